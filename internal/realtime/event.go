package realtime

import "encoding/json"

// Wire event names. task.updated and task.deleted go to every connection;
// notification.new goes to the recipient's connections only. join is the
// only client-to-server event.
const (
	EventJoin            = "join"
	EventTaskUpdated     = "task.updated"
	EventTaskDeleted     = "task.deleted"
	EventNotificationNew = "notification.new"
)

// Event is a JSON frame on the websocket, both directions.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: event, Data: raw})
}
