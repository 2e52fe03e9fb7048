package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"taskhub/backend/internal/apperrors"
	"taskhub/backend/internal/cache"
	"taskhub/backend/internal/events"
	"taskhub/backend/internal/models"
	"taskhub/backend/internal/realtime"
)

// Broadcaster is the realtime fan-out surface the task service emits into.
// Implemented by realtime.Hub.
type Broadcaster interface {
	Broadcast(event string, data interface{})
	SendToUser(userID string, event string, data interface{})
}

type CreateTaskInput struct {
	Title        string
	Description  string
	Status       string
	Priority     string
	DueDate      time.Time
	AssignedToID *uuid.UUID
}

// UpdateTaskInput is a partial patch: nil fields keep their previous
// values. AssignedToID distinguishes "not present" (nil) from "clear the
// assignee" (present, Valid=false).
type UpdateTaskInput struct {
	Title        *string
	Description  *string
	Status       *string
	Priority     *string
	DueDate      *time.Time
	AssignedToID *uuid.NullUUID
}

type TaskFilter struct {
	Status   string
	Priority string
}

type TaskService interface {
	Create(ctx context.Context, db *gorm.DB, actorID uuid.UUID, input CreateTaskInput) (models.Task, error)
	Update(ctx context.Context, db *gorm.DB, actorID, taskID uuid.UUID, input UpdateTaskInput) (models.Task, error)
	Delete(ctx context.Context, db *gorm.DB, actorID, taskID uuid.UUID) error
	GetByID(ctx context.Context, db *gorm.DB, taskID uuid.UUID) (models.Task, error)
	List(ctx context.Context, db *gorm.DB, filter TaskFilter) ([]models.Task, error)
	ListAssignedTo(ctx context.Context, db *gorm.DB, userID uuid.UUID, filter TaskFilter) ([]models.Task, error)
	ListCreatedBy(ctx context.Context, db *gorm.DB, userID uuid.UUID, filter TaskFilter) ([]models.Task, error)
	ListOverdue(ctx context.Context, db *gorm.DB, userID uuid.UUID, filter TaskFilter) ([]models.Task, error)
}

const (
	taskListCacheKey = "tasks:all"
	taskListCacheTTL = 30 * time.Second
)

// TaskServiceImpl orchestrates task mutations: it checks authorization,
// performs the store mutation, then runs the best-effort side effects
// (broadcast, audit entry, assignment notification). The task mutation is
// the durable source of truth; side-effect failures are logged and never
// roll it back.
type TaskServiceImpl struct {
	hub    Broadcaster
	events *events.Publisher
	cache  cache.Cache
}

func NewTaskService(hub Broadcaster, publisher *events.Publisher, c cache.Cache) *TaskServiceImpl {
	return &TaskServiceImpl{hub: hub, events: publisher, cache: c}
}

func (s *TaskServiceImpl) Create(ctx context.Context, db *gorm.DB, actorID uuid.UUID, input CreateTaskInput) (models.Task, error) {
	task := models.Task{
		ID:           uuid.Must(uuid.NewV4()),
		Title:        input.Title,
		Description:  input.Description,
		Status:       input.Status,
		Priority:     input.Priority,
		DueDate:      input.DueDate,
		CreatorID:    actorID,
		AssignedToID: input.AssignedToID,
	}

	if err := db.WithContext(ctx).Create(&task).Error; err != nil {
		return models.Task{}, apperrors.Internal("failed to create task", err)
	}

	// The mutation has committed; side effects run even if the request is
	// canceled from here on.
	ctx = context.WithoutCancel(ctx)

	task, err := s.loadTask(ctx, db, task.ID)
	if err != nil {
		return models.Task{}, err
	}

	s.invalidateTaskCache(ctx)
	s.emitBroadcast(ctx, task.ID.String(), realtime.EventTaskUpdated, task)

	if task.AssignedToID != nil && *task.AssignedToID != actorID {
		if err := s.notifyAssignment(ctx, db, *task.AssignedToID, task.ID); err != nil {
			log.Printf("⚠️  Assignment notification failed for task %s: %v", task.ID, err)
		}
	}

	return task, nil
}

func (s *TaskServiceImpl) Update(ctx context.Context, db *gorm.DB, actorID, taskID uuid.UUID, input UpdateTaskInput) (models.Task, error) {
	oldTask, err := s.loadTask(ctx, db, taskID)
	if err != nil {
		return models.Task{}, err
	}

	if !CanUpdateTask(oldTask, actorID) {
		return models.Task{}, apperrors.Forbidden("you are not authorized to update this task")
	}

	// The creator is immutable: the patch has no creator field and the
	// update map below never touches creator_id.
	updates := map[string]interface{}{}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Status != nil {
		updates["status"] = *input.Status
	}
	if input.Priority != nil {
		updates["priority"] = *input.Priority
	}
	if input.DueDate != nil {
		updates["due_date"] = *input.DueDate
	}
	if input.AssignedToID != nil {
		if input.AssignedToID.Valid {
			updates["assigned_to_id"] = input.AssignedToID.UUID
		} else {
			updates["assigned_to_id"] = nil
		}
	}

	if len(updates) > 0 {
		result := db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", taskID).Updates(updates)
		if result.Error != nil {
			return models.Task{}, apperrors.Internal("failed to update task", result.Error)
		}
	}

	ctx = context.WithoutCancel(ctx)

	task, err := s.loadTask(ctx, db, taskID)
	if err != nil {
		return models.Task{}, err
	}

	s.invalidateTaskCache(ctx)
	s.emitBroadcast(ctx, task.ID.String(), realtime.EventTaskUpdated, task)

	if input.Status != nil && *input.Status != oldTask.Status {
		audit := models.AuditLog{
			ID:      uuid.Must(uuid.NewV4()),
			UserID:  actorID,
			TaskID:  taskID,
			Action:  models.AuditStatusUpdate,
			Details: "Status changed from " + oldTask.Status + " to " + *input.Status,
		}
		if err := db.WithContext(ctx).Create(&audit).Error; err != nil {
			log.Printf("⚠️  Audit log write failed for task %s: %v", taskID, err)
		}
	}

	if input.AssignedToID != nil && input.AssignedToID.Valid {
		newAssignee := input.AssignedToID.UUID
		changed := oldTask.AssignedToID == nil || *oldTask.AssignedToID != newAssignee
		if changed && newAssignee != actorID {
			if err := s.notifyAssignment(ctx, db, newAssignee, taskID); err != nil {
				log.Printf("⚠️  Assignment notification failed for task %s: %v", taskID, err)
			}
		}
	}

	return task, nil
}

func (s *TaskServiceImpl) Delete(ctx context.Context, db *gorm.DB, actorID, taskID uuid.UUID) error {
	task, err := s.loadTask(ctx, db, taskID)
	if err != nil {
		return err
	}

	if !CanDeleteTask(task, actorID) {
		return apperrors.Forbidden("you are not authorized to delete this task")
	}

	// Notifications referencing the task go first so a crash between the
	// two deletes can never leave rows pointing at a missing task.
	if err := db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&models.Notification{}).Error; err != nil {
		return apperrors.Internal("failed to delete task notifications", err)
	}

	if err := db.WithContext(ctx).Delete(&models.Task{}, "id = ?", taskID).Error; err != nil {
		return apperrors.Internal("failed to delete task", err)
	}

	ctx = context.WithoutCancel(ctx)
	s.invalidateTaskCache(ctx)
	s.emitBroadcast(ctx, taskID.String(), realtime.EventTaskDeleted, deletedPayload{ID: taskID})

	return nil
}

func (s *TaskServiceImpl) GetByID(ctx context.Context, db *gorm.DB, taskID uuid.UUID) (models.Task, error) {
	return s.loadTask(ctx, db, taskID)
}

func (s *TaskServiceImpl) List(ctx context.Context, db *gorm.DB, filter TaskFilter) ([]models.Task, error) {
	cacheable := s.cache != nil && filter == (TaskFilter{})

	if cacheable {
		if b, ok := s.cache.Get(ctx, taskListCacheKey); ok {
			var tasks []models.Task
			if err := json.Unmarshal(b, &tasks); err == nil {
				return tasks, nil
			}
		}
	}

	var tasks []models.Task
	q := applyFilter(withUsers(db.WithContext(ctx)), filter)
	if err := q.Order("due_date asc").Find(&tasks).Error; err != nil {
		return nil, apperrors.Internal("failed to list tasks", err)
	}

	if cacheable {
		if b, err := json.Marshal(tasks); err == nil {
			s.cache.Set(ctx, taskListCacheKey, b, taskListCacheTTL)
		}
	}

	return tasks, nil
}

func (s *TaskServiceImpl) ListAssignedTo(ctx context.Context, db *gorm.DB, userID uuid.UUID, filter TaskFilter) ([]models.Task, error) {
	var tasks []models.Task
	q := applyFilter(withUsers(db.WithContext(ctx)), filter).Where("assigned_to_id = ?", userID)
	if err := q.Order("due_date asc").Find(&tasks).Error; err != nil {
		return nil, apperrors.Internal("failed to list assigned tasks", err)
	}
	return tasks, nil
}

func (s *TaskServiceImpl) ListCreatedBy(ctx context.Context, db *gorm.DB, userID uuid.UUID, filter TaskFilter) ([]models.Task, error) {
	var tasks []models.Task
	q := applyFilter(withUsers(db.WithContext(ctx)), filter).Where("creator_id = ?", userID)
	if err := q.Order("due_date asc").Find(&tasks).Error; err != nil {
		return nil, apperrors.Internal("failed to list created tasks", err)
	}
	return tasks, nil
}

// ListOverdue returns tasks past their due date that are not completed and
// that the user either created or is assigned to.
func (s *TaskServiceImpl) ListOverdue(ctx context.Context, db *gorm.DB, userID uuid.UUID, filter TaskFilter) ([]models.Task, error) {
	var tasks []models.Task
	q := applyFilter(withUsers(db.WithContext(ctx)), filter).
		Where("due_date < ?", time.Now()).
		Where("status <> ?", models.StatusCompleted).
		Where("assigned_to_id = ? OR creator_id = ?", userID, userID)
	if err := q.Order("due_date asc").Find(&tasks).Error; err != nil {
		return nil, apperrors.Internal("failed to list overdue tasks", err)
	}
	return tasks, nil
}

// notifyAssignment persists the notification record, then pushes it to the
// recipient's connections only. Callers guarantee the recipient differs
// from both the previous assignee and the actor.
func (s *TaskServiceImpl) notifyAssignment(ctx context.Context, db *gorm.DB, recipientID, taskID uuid.UUID) error {
	notification := models.Notification{
		ID:     uuid.Must(uuid.NewV4()),
		UserID: recipientID,
		TaskID: taskID,
		Type:   models.NotificationTaskAssigned,
	}

	if err := db.WithContext(ctx).Create(&notification).Error; err != nil {
		return err
	}

	s.emitToUser(ctx, recipientID.String(), taskID.String(), realtime.EventNotificationNew, notification)
	return nil
}

type deletedPayload struct {
	ID uuid.UUID `json:"id"`
}

func (s *TaskServiceImpl) loadTask(ctx context.Context, db *gorm.DB, taskID uuid.UUID) (models.Task, error) {
	var task models.Task
	if err := withUsers(db.WithContext(ctx)).Where("id = ?", taskID).First(&task).Error; err != nil {
		return models.Task{}, apperrors.FromStore(err, "task not found")
	}
	return task, nil
}

func (s *TaskServiceImpl) emitBroadcast(ctx context.Context, key, event string, data interface{}) {
	if s.hub != nil {
		s.hub.Broadcast(event, data)
	}
	s.mirror(ctx, key, event, data)
}

func (s *TaskServiceImpl) emitToUser(ctx context.Context, userID, key, event string, data interface{}) {
	if s.hub != nil {
		s.hub.SendToUser(userID, event, data)
	}
	s.mirror(ctx, key, event, data)
}

func (s *TaskServiceImpl) mirror(ctx context.Context, key, event string, data interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, key, event, data); err != nil {
		log.Printf("⚠️  Failed to mirror %s event to kafka: %v", event, err)
	}
}

func (s *TaskServiceImpl) invalidateTaskCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern(ctx, "tasks:*"); err != nil {
		log.Printf("⚠️  Task cache invalidation failed: %v", err)
	}
}

func withUsers(db *gorm.DB) *gorm.DB {
	return db.Preload("Creator").Preload("AssignedTo")
}

func applyFilter(db *gorm.DB, filter TaskFilter) *gorm.DB {
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		db = db.Where("priority = ?", filter.Priority)
	}
	return db
}
