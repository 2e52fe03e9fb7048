package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Audit actions.
const (
	AuditStatusUpdate = "STATUS_UPDATE"
)

// AuditLog is append-only: rows are never updated or deleted.
type AuditLog struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;not null"`
	TaskID    uuid.UUID `json:"taskId" gorm:"type:uuid;not null;index"`
	Action    string    `json:"action" gorm:"not null"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"createdAt"`
}
