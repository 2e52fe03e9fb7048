package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

// Publisher mirrors hub events onto a Kafka topic for integration
// consumers. Messages are keyed by task id so consumers see per-task order.
// A nil Publisher is valid and publishes nothing.
type Publisher struct {
	writer  *kgo.Writer
	timeout time.Duration
}

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	At    time.Time   `json:"at"`
}

func NewPublisher(brokersCSV, topic string) *Publisher {
	brokers := splitCSV(brokersCSV)

	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}

	return &Publisher{
		writer:  w,
		timeout: 3 * time.Second,
	}
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}

// Publish writes one event. The timeout keeps a down broker from stalling
// the mutation path it is called from.
func (p *Publisher) Publish(ctx context.Context, key, event string, data interface{}) error {
	if p == nil {
		return nil
	}

	b, err := json.Marshal(envelope{Event: event, Data: data, At: time.Now()})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	})
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
