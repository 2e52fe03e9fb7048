package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Task statuses. Transitions are unrestricted; any status may follow any
// other. The audit trail records status changes either way.
const (
	StatusTodo       = "TODO"
	StatusInProgress = "IN_PROGRESS"
	StatusReview     = "REVIEW"
	StatusCompleted  = "COMPLETED"
)

// Task priorities, lowest to highest.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

type Task struct {
	ID           uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Title        string     `json:"title" gorm:"not null"`
	Description  string     `json:"description"`
	Status       string     `json:"status" gorm:"not null;default:'TODO'"`
	Priority     string     `json:"priority" gorm:"not null;default:'MEDIUM'"`
	DueDate      time.Time  `json:"dueDate" gorm:"type:timestamp;not null"`
	CreatorID    uuid.UUID  `json:"creatorId" gorm:"type:uuid;not null;index"`
	AssignedToID *uuid.UUID `json:"assignedToId" gorm:"type:uuid;index"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	Creator    *User `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	AssignedTo *User `json:"assignedTo,omitempty" gorm:"foreignKey:AssignedToID"`
}
