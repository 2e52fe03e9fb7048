package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gofrs/uuid"

	"taskhub/backend/internal/apperrors"
	"taskhub/backend/internal/models"
	"taskhub/backend/internal/realtime"
)

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d, got nil", status)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperrors.Error, got %T: %v", err, err)
	}
	if appErr.Status != status {
		t.Errorf("expected status %d, got %d (%v)", status, appErr.Status, err)
	}
}

func TestCreateTask_BroadcastsAndNotifiesAssignee(t *testing.T) {
	db, hub, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	bob := createTestUser(t, db, "Bob", "bob@example.com")

	input := baseTaskInput()
	input.AssignedToID = &bob.ID
	task := mustCreateTask(t, svc, db, alice.ID, input)

	if task.CreatorID != alice.ID {
		t.Errorf("expected creator %s, got %s", alice.ID, task.CreatorID)
	}
	if task.Creator == nil || task.Creator.Name != "Alice" {
		t.Error("expected creator name resolved on the returned task")
	}
	if task.AssignedTo == nil || task.AssignedTo.Name != "Bob" {
		t.Error("expected assignee name resolved on the returned task")
	}

	broadcasts := hub.byEvent(realtime.EventTaskUpdated)
	if len(broadcasts) != 1 {
		t.Fatalf("expected 1 task.updated broadcast, got %d", len(broadcasts))
	}
	if broadcasts[0].UserID != "" {
		t.Error("task.updated must be a broadcast, not a targeted event")
	}

	pushes := hub.byEvent(realtime.EventNotificationNew)
	if len(pushes) != 1 {
		t.Fatalf("expected 1 notification.new push, got %d", len(pushes))
	}
	if pushes[0].UserID != bob.ID.String() {
		t.Errorf("notification.new pushed to %q, want %q", pushes[0].UserID, bob.ID)
	}

	var notification models.Notification
	if err := db.Where("user_id = ? AND task_id = ?", bob.ID, task.ID).First(&notification).Error; err != nil {
		t.Fatalf("expected persisted notification: %v", err)
	}
	if notification.Type != models.NotificationTaskAssigned {
		t.Errorf("expected type %q, got %q", models.NotificationTaskAssigned, notification.Type)
	}
	if notification.ReadAt != nil {
		t.Error("new notification must be unread")
	}
}

func TestCreateTask_SelfAssignmentProducesNoNotification(t *testing.T) {
	db, hub, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")

	input := baseTaskInput()
	input.AssignedToID = &alice.ID
	mustCreateTask(t, svc, db, alice.ID, input)

	if got := hub.byEvent(realtime.EventNotificationNew); len(got) != 0 {
		t.Errorf("expected no notification.new events, got %d", len(got))
	}
	if n := countRows(t, db, &models.Notification{}, "1 = 1"); n != 0 {
		t.Errorf("expected no notification rows, got %d", n)
	}
}

func TestCreateTask_UnassignedBroadcastsOnly(t *testing.T) {
	db, hub, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")

	mustCreateTask(t, svc, db, alice.ID, baseTaskInput())

	if got := hub.byEvent(realtime.EventTaskUpdated); len(got) != 1 {
		t.Errorf("expected 1 broadcast, got %d", len(got))
	}
	if got := hub.byEvent(realtime.EventNotificationNew); len(got) != 0 {
		t.Errorf("expected no notifications, got %d", len(got))
	}
}

func TestUpdateTask_CreatorIsImmutable(t *testing.T) {
	db, _, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	bob := createTestUser(t, db, "Bob", "bob@example.com")

	task := mustCreateTask(t, svc, db, alice.ID, baseTaskInput())

	// Any authenticated user may update; the creator stays fixed.
	updated, err := svc.Update(context.Background(), db, bob.ID, task.ID, UpdateTaskInput{
		Title:  strPtr("Rewritten by Bob"),
		Status: strPtr(models.StatusInProgress),
	})
	if err != nil {
		t.Fatalf("update by non-creator must succeed: %v", err)
	}

	if updated.CreatorID != alice.ID {
		t.Errorf("creator changed: want %s, got %s", alice.ID, updated.CreatorID)
	}
	if updated.Title != "Rewritten by Bob" {
		t.Errorf("title not updated: %q", updated.Title)
	}
}

func TestUpdateTask_StatusChangeAppendsOneAuditEntry(t *testing.T) {
	db, hub, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")

	task := mustCreateTask(t, svc, db, alice.ID, baseTaskInput())
	hub.reset()

	_, err := svc.Update(context.Background(), db, alice.ID, task.ID, UpdateTaskInput{
		Status: strPtr(models.StatusInProgress),
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	var audits []models.AuditLog
	if err := db.Where("task_id = ?", task.ID).Find(&audits).Error; err != nil {
		t.Fatalf("failed to load audits: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("expected exactly 1 audit entry, got %d", len(audits))
	}

	audit := audits[0]
	if audit.Action != models.AuditStatusUpdate {
		t.Errorf("expected action %q, got %q", models.AuditStatusUpdate, audit.Action)
	}
	if audit.UserID != alice.ID {
		t.Errorf("expected acting user %s, got %s", alice.ID, audit.UserID)
	}
	want := "Status changed from TODO to IN_PROGRESS"
	if audit.Details != want {
		t.Errorf("expected details %q, got %q", want, audit.Details)
	}

	if got := hub.byEvent(realtime.EventTaskUpdated); len(got) != 1 {
		t.Errorf("expected 1 task.updated broadcast, got %d", len(got))
	}
	if got := hub.byEvent(realtime.EventNotificationNew); len(got) != 0 {
		t.Errorf("status change must not create notifications, got %d", len(got))
	}
}

func TestUpdateTask_NonStatusFieldsProduceNoAudit(t *testing.T) {
	db, _, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	task := mustCreateTask(t, svc, db, alice.ID, baseTaskInput())

	_, err := svc.Update(context.Background(), db, alice.ID, task.ID, UpdateTaskInput{
		Title:    strPtr("New title"),
		Priority: strPtr(models.PriorityUrgent),
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if n := countRows(t, db, &models.AuditLog{}, "task_id = ?", task.ID); n != 0 {
		t.Errorf("expected 0 audit entries, got %d", n)
	}
}

func TestUpdateTask_SameStatusProducesNoAudit(t *testing.T) {
	db, _, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	task := mustCreateTask(t, svc, db, alice.ID, baseTaskInput())

	_, err := svc.Update(context.Background(), db, alice.ID, task.ID, UpdateTaskInput{
		Status: strPtr(models.StatusTodo),
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if n := countRows(t, db, &models.AuditLog{}, "task_id = ?", task.ID); n != 0 {
		t.Errorf("unchanged status must not be audited, got %d entries", n)
	}
}

func TestUpdateTask_ReassignmentNotifiesNewAssignee(t *testing.T) {
	db, hub, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	bob := createTestUser(t, db, "Bob", "bob@example.com")
	task := mustCreateTask(t, svc, db, alice.ID, baseTaskInput())
	hub.reset()

	_, err := svc.Update(context.Background(), db, alice.ID, task.ID, UpdateTaskInput{
		AssignedToID: &uuid.NullUUID{UUID: bob.ID, Valid: true},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	pushes := hub.byEvent(realtime.EventNotificationNew)
	if len(pushes) != 1 {
		t.Fatalf("expected 1 notification.new, got %d", len(pushes))
	}
	if pushes[0].UserID != bob.ID.String() {
		t.Errorf("notification pushed to %q, want %q", pushes[0].UserID, bob.ID)
	}

	if n := countRows(t, db, &models.Notification{}, "user_id = ? AND task_id = ?", bob.ID, task.ID); n != 1 {
		t.Errorf("expected 1 persisted notification, got %d", n)
	}
}

func TestUpdateTask_ReassignmentToActorProducesNoNotification(t *testing.T) {
	db, hub, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	bob := createTestUser(t, db, "Bob", "bob@example.com")

	input := baseTaskInput()
	input.AssignedToID = &alice.ID
	task := mustCreateTask(t, svc, db, bob.ID, input)
	hub.reset()

	// Bob reassigns the task to himself: new assignee == actor.
	_, err := svc.Update(context.Background(), db, bob.ID, task.ID, UpdateTaskInput{
		AssignedToID: &uuid.NullUUID{UUID: bob.ID, Valid: true},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if got := hub.byEvent(realtime.EventNotificationNew); len(got) != 0 {
		t.Errorf("self-assignment must not notify, got %d events", len(got))
	}
}

func TestUpdateTask_UnchangedAssigneeProducesNoNotification(t *testing.T) {
	db, hub, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	bob := createTestUser(t, db, "Bob", "bob@example.com")

	input := baseTaskInput()
	input.AssignedToID = &bob.ID
	task := mustCreateTask(t, svc, db, alice.ID, input)
	hub.reset()

	_, err := svc.Update(context.Background(), db, alice.ID, task.ID, UpdateTaskInput{
		AssignedToID: &uuid.NullUUID{UUID: bob.ID, Valid: true},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if got := hub.byEvent(realtime.EventNotificationNew); len(got) != 0 {
		t.Errorf("unchanged assignee must not notify, got %d events", len(got))
	}
}

func TestUpdateTask_ClearingAssignee(t *testing.T) {
	db, hub, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	bob := createTestUser(t, db, "Bob", "bob@example.com")

	input := baseTaskInput()
	input.AssignedToID = &bob.ID
	task := mustCreateTask(t, svc, db, alice.ID, input)
	hub.reset()

	updated, err := svc.Update(context.Background(), db, alice.ID, task.ID, UpdateTaskInput{
		AssignedToID: &uuid.NullUUID{},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if updated.AssignedToID != nil {
		t.Errorf("expected assignee cleared, got %v", updated.AssignedToID)
	}
	if got := hub.byEvent(realtime.EventNotificationNew); len(got) != 0 {
		t.Errorf("clearing the assignee must not notify, got %d events", len(got))
	}
}

func TestUpdateTask_PartialPatchKeepsOtherFields(t *testing.T) {
	db, _, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")

	input := baseTaskInput()
	input.Description = "original description"
	task := mustCreateTask(t, svc, db, alice.ID, input)

	updated, err := svc.Update(context.Background(), db, alice.ID, task.ID, UpdateTaskInput{
		Priority: strPtr(models.PriorityHigh),
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if updated.Priority != models.PriorityHigh {
		t.Errorf("priority not updated: %q", updated.Priority)
	}
	if updated.Title != task.Title {
		t.Errorf("title changed unexpectedly: %q", updated.Title)
	}
	if updated.Description != "original description" {
		t.Errorf("description changed unexpectedly: %q", updated.Description)
	}
	if updated.Status != task.Status {
		t.Errorf("status changed unexpectedly: %q", updated.Status)
	}
}

func TestUpdateTask_NotFound(t *testing.T) {
	db, _, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")

	_, err := svc.Update(context.Background(), db, alice.ID, uuid.Must(uuid.NewV4()), UpdateTaskInput{
		Title: strPtr("whatever"),
	})
	wantStatus(t, err, http.StatusNotFound)
}

func TestDeleteTask_NonCreatorForbidden(t *testing.T) {
	db, hub, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	bob := createTestUser(t, db, "Bob", "bob@example.com")
	carol := createTestUser(t, db, "Carol", "carol@example.com")

	input := baseTaskInput()
	input.AssignedToID = &carol.ID
	task := mustCreateTask(t, svc, db, alice.ID, input)
	hub.reset()

	err := svc.Delete(context.Background(), db, bob.ID, task.ID)
	wantStatus(t, err, http.StatusForbidden)

	// Nothing was emitted, nothing was removed.
	if got := hub.all(); len(got) != 0 {
		t.Errorf("forbidden delete must emit no events, got %d", len(got))
	}
	if n := countRows(t, db, &models.Task{}, "id = ?", task.ID); n != 1 {
		t.Error("task must survive a forbidden delete")
	}
	if n := countRows(t, db, &models.Notification{}, "task_id = ?", task.ID); n != 1 {
		t.Error("notifications must survive a forbidden delete")
	}
}

func TestDeleteTask_CreatorRemovesTaskAndNotifications(t *testing.T) {
	db, hub, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	bob := createTestUser(t, db, "Bob", "bob@example.com")

	input := baseTaskInput()
	input.AssignedToID = &bob.ID
	task := mustCreateTask(t, svc, db, alice.ID, input)
	hub.reset()

	if err := svc.Delete(context.Background(), db, alice.ID, task.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if n := countRows(t, db, &models.Task{}, "id = ?", task.ID); n != 0 {
		t.Error("task must be removed")
	}
	if n := countRows(t, db, &models.Notification{}, "task_id = ?", task.ID); n != 0 {
		t.Error("no notification may reference a deleted task")
	}

	deleted := hub.byEvent(realtime.EventTaskDeleted)
	if len(deleted) != 1 {
		t.Fatalf("expected 1 task.deleted broadcast, got %d", len(deleted))
	}
	payload, ok := deleted[0].Data.(deletedPayload)
	if !ok {
		t.Fatalf("unexpected task.deleted payload type %T", deleted[0].Data)
	}
	if payload.ID != task.ID {
		t.Errorf("task.deleted carries id %s, want %s", payload.ID, task.ID)
	}
}

func TestDeleteTask_NotFound(t *testing.T) {
	db, _, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")

	err := svc.Delete(context.Background(), db, alice.ID, uuid.Must(uuid.NewV4()))
	wantStatus(t, err, http.StatusNotFound)
}

func TestListOverdue(t *testing.T) {
	db, _, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	bob := createTestUser(t, db, "Bob", "bob@example.com")

	past := time.Now().Add(-24 * time.Hour)
	earlier := time.Now().Add(-48 * time.Hour)
	future := time.Now().Add(24 * time.Hour)

	overdueAssigned := baseTaskInput()
	overdueAssigned.Title = "overdue assigned to alice"
	overdueAssigned.DueDate = past
	overdueAssigned.AssignedToID = &alice.ID
	mustCreateTask(t, svc, db, bob.ID, overdueAssigned)

	overdueCreated := baseTaskInput()
	overdueCreated.Title = "overdue created by alice"
	overdueCreated.DueDate = earlier
	mustCreateTask(t, svc, db, alice.ID, overdueCreated)

	unrelated := baseTaskInput()
	unrelated.Title = "overdue but unrelated"
	unrelated.DueDate = past
	mustCreateTask(t, svc, db, bob.ID, unrelated)

	notDue := baseTaskInput()
	notDue.Title = "future task"
	notDue.DueDate = future
	mustCreateTask(t, svc, db, alice.ID, notDue)

	completed := baseTaskInput()
	completed.Title = "completed overdue"
	completed.DueDate = past
	completed.Status = models.StatusCompleted
	mustCreateTask(t, svc, db, alice.ID, completed)

	tasks, err := svc.ListOverdue(context.Background(), db, alice.ID, TaskFilter{})
	if err != nil {
		t.Fatalf("overdue query failed: %v", err)
	}

	if len(tasks) != 2 {
		titles := make([]string, 0, len(tasks))
		for _, task := range tasks {
			titles = append(titles, task.Title)
		}
		t.Fatalf("expected 2 overdue tasks, got %d: %v", len(tasks), titles)
	}
	// Ascending by due date: the 48h-old task first.
	if tasks[0].Title != "overdue created by alice" {
		t.Errorf("expected oldest due date first, got %q", tasks[0].Title)
	}
	if tasks[1].Title != "overdue assigned to alice" {
		t.Errorf("expected %q second, got %q", "overdue assigned to alice", tasks[1].Title)
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	db, _, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")

	later := baseTaskInput()
	later.Title = "due later"
	later.DueDate = time.Now().Add(72 * time.Hour)
	later.Priority = models.PriorityHigh
	mustCreateTask(t, svc, db, alice.ID, later)

	sooner := baseTaskInput()
	sooner.Title = "due sooner"
	sooner.DueDate = time.Now().Add(24 * time.Hour)
	sooner.Priority = models.PriorityHigh
	mustCreateTask(t, svc, db, alice.ID, sooner)

	other := baseTaskInput()
	other.Title = "low priority"
	other.Priority = models.PriorityLow
	mustCreateTask(t, svc, db, alice.ID, other)

	tasks, err := svc.List(context.Background(), db, TaskFilter{Priority: models.PriorityHigh})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Title != "due sooner" || tasks[1].Title != "due later" {
		t.Errorf("expected ascending due date order, got %q then %q", tasks[0].Title, tasks[1].Title)
	}
}

func TestListAssignedAndCreated(t *testing.T) {
	db, _, svc := setupTaskService(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	bob := createTestUser(t, db, "Bob", "bob@example.com")

	mine := baseTaskInput()
	mine.Title = "created by alice"
	mustCreateTask(t, svc, db, alice.ID, mine)

	assigned := baseTaskInput()
	assigned.Title = "assigned to alice"
	assigned.AssignedToID = &alice.ID
	mustCreateTask(t, svc, db, bob.ID, assigned)

	created, err := svc.ListCreatedBy(context.Background(), db, alice.ID, TaskFilter{})
	if err != nil {
		t.Fatalf("created query failed: %v", err)
	}
	if len(created) != 1 || created[0].Title != "created by alice" {
		t.Errorf("unexpected created-by result: %+v", created)
	}

	assignedTasks, err := svc.ListAssignedTo(context.Background(), db, alice.ID, TaskFilter{})
	if err != nil {
		t.Fatalf("assigned query failed: %v", err)
	}
	if len(assignedTasks) != 1 || assignedTasks[0].Title != "assigned to alice" {
		t.Errorf("unexpected assigned-to result: %+v", assignedTasks)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db, _, svc := setupTaskService(t)
	_, err := svc.GetByID(context.Background(), db, uuid.Must(uuid.NewV4()))
	wantStatus(t, err, http.StatusNotFound)
}
