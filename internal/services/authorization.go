package services

import (
	"github.com/gofrs/uuid"

	"taskhub/backend/internal/models"
)

// Authorization rules are pure functions over a task and an actor.
//
// The model is deliberately creator-gated only for deletion: any
// authenticated user may create a task (becoming its creator) or update and
// reassign any task, but only the creator may remove one. Do not tighten
// the update rule without confirming product intent.

// CanDeleteTask reports whether actorID may delete task.
func CanDeleteTask(task models.Task, actorID uuid.UUID) bool {
	return task.CreatorID == actorID
}

// CanUpdateTask reports whether actorID may update task. Every
// authenticated user may.
func CanUpdateTask(task models.Task, actorID uuid.UUID) bool {
	return true
}
