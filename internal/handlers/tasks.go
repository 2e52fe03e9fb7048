package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"taskhub/backend/internal/apperrors"
	"taskhub/backend/internal/middleware"
	"taskhub/backend/internal/models"
	"taskhub/backend/internal/services"
)

type TaskHandler struct {
	db          *gorm.DB
	taskService services.TaskService
}

func NewTaskHandler(db *gorm.DB, taskService services.TaskService) *TaskHandler {
	return &TaskHandler{db: db, taskService: taskService}
}

type createTaskRequest struct {
	Title        string    `json:"title" binding:"required,min=1,max=100"`
	Description  string    `json:"description"`
	DueDate      time.Time `json:"dueDate" binding:"required"`
	Priority     string    `json:"priority" binding:"required,oneof=LOW MEDIUM HIGH URGENT"`
	Status       string    `json:"status" binding:"required,oneof=TODO IN_PROGRESS REVIEW COMPLETED"`
	AssignedToID *string   `json:"assignedToId"`
}

// updateTaskRequest is a partial patch; absent fields keep their values.
// An empty assignedToId clears the assignee.
type updateTaskRequest struct {
	Title        *string    `json:"title" binding:"omitempty,min=1,max=100"`
	Description  *string    `json:"description"`
	DueDate      *time.Time `json:"dueDate"`
	Priority     *string    `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Status       *string    `json:"status" binding:"omitempty,oneof=TODO IN_PROGRESS REVIEW COMPLETED"`
	AssignedToID *string    `json:"assignedToId"`
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := services.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	}
	if req.AssignedToID != nil && *req.AssignedToID != "" {
		assignee, err := uuid.FromString(*req.AssignedToID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignedToId"})
			return
		}
		input.AssignedToID = &assignee
	}

	task, err := h.taskService.Create(c.Request.Context(), h.db, actorID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	taskID, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := services.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	}
	if req.AssignedToID != nil {
		if *req.AssignedToID == "" {
			input.AssignedToID = &uuid.NullUUID{}
		} else {
			assignee, err := uuid.FromString(*req.AssignedToID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignedToId"})
				return
			}
			input.AssignedToID = &uuid.NullUUID{UUID: assignee, Valid: true}
		}
	}

	task, err := h.taskService.Update(c.Request.Context(), h.db, actorID, taskID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	taskID, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), h.db, actorID, taskID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	taskID, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	task, err := h.taskService.GetByID(c.Request.Context(), h.db, taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	filter, err := parseTaskFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	tasks, err := h.taskService.List(c.Request.Context(), h.db, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) GetTasksAssignedToMe(c *gin.Context) {
	h.userScopedList(c, h.taskService.ListAssignedTo)
}

func (h *TaskHandler) GetTasksCreatedByMe(c *gin.Context) {
	h.userScopedList(c, h.taskService.ListCreatedBy)
}

func (h *TaskHandler) GetOverdueTasks(c *gin.Context) {
	h.userScopedList(c, h.taskService.ListOverdue)
}

type userScopedQuery func(ctx context.Context, db *gorm.DB, userID uuid.UUID, filter services.TaskFilter) ([]models.Task, error)

func (h *TaskHandler) userScopedList(c *gin.Context, query userScopedQuery) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	filter, err := parseTaskFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	tasks, err := query(c.Request.Context(), h.db, userID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func parseTaskFilter(c *gin.Context) (services.TaskFilter, error) {
	filter := services.TaskFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
	}

	switch filter.Status {
	case "", models.StatusTodo, models.StatusInProgress, models.StatusReview, models.StatusCompleted:
	default:
		return services.TaskFilter{}, apperrors.Validation("invalid status filter")
	}

	switch filter.Priority {
	case "", models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent:
	default:
		return services.TaskFilter{}, apperrors.Validation("invalid priority filter")
	}

	return filter, nil
}
