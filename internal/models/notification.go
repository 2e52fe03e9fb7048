package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Notification types.
const (
	NotificationTaskAssigned = "TASK_ASSIGNED"
)

// Notification is the durable record behind a push; if the recipient has no
// live connection when the push fires, this row is what they recover from on
// the next poll. ReadAt stays nil until the recipient acknowledges it.
type Notification struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    uuid.UUID  `json:"userId" gorm:"type:uuid;not null;index"`
	TaskID    uuid.UUID  `json:"taskId" gorm:"type:uuid;not null;index"`
	Type      string     `json:"type" gorm:"not null"`
	ReadAt    *time.Time `json:"readAt"`
	CreatedAt time.Time  `json:"createdAt"`

	Task *Task `json:"task,omitempty" gorm:"foreignKey:TaskID"`
}
