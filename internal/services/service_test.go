package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskhub/backend/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Task{},
		&models.Notification{},
		&models.AuditLog{},
		&models.Token{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, name, email string) models.User {
	t.Helper()

	user := models.User{
		ID:           uuid.Must(uuid.NewV4()),
		Name:         name,
		Email:        email,
		PasswordHash: "x",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

type recordedEvent struct {
	UserID string // empty for broadcasts
	Event  string
	Data   interface{}
}

// fakeHub records the events the task service emits.
type fakeHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *fakeHub) Broadcast(event string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{Event: event, Data: data})
}

func (h *fakeHub) SendToUser(userID, event string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{UserID: userID, Event: event, Data: data})
}

func (h *fakeHub) all() []recordedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recordedEvent(nil), h.events...)
}

func (h *fakeHub) byEvent(event string) []recordedEvent {
	var out []recordedEvent
	for _, e := range h.all() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (h *fakeHub) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}

func setupTaskService(t *testing.T) (*gorm.DB, *fakeHub, *TaskServiceImpl) {
	t.Helper()
	db := setupTestDB(t)
	hub := &fakeHub{}
	return db, hub, NewTaskService(hub, nil, nil)
}

func mustCreateTask(t *testing.T, svc *TaskServiceImpl, db *gorm.DB, actorID uuid.UUID, input CreateTaskInput) models.Task {
	t.Helper()
	task, err := svc.Create(context.Background(), db, actorID, input)
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return task
}

func baseTaskInput() CreateTaskInput {
	return CreateTaskInput{
		Title:    "Write the quarterly report",
		Status:   models.StatusTodo,
		Priority: models.PriorityMedium,
		DueDate:  time.Now().Add(48 * time.Hour),
	}
}

func strPtr(s string) *string { return &s }

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}
