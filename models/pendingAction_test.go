package models_test

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
)

func TestPendingActions_FIFOOrderAndUniqueIds(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	first, err := models.EnqueueAction(ctx, "biz-1", models.ActionKindStatusUpdate, "wo-1", 3, map[string]string{"status": models.WorkOrderStatusInProgress})
	if err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	second, err := models.EnqueueAction(ctx, "biz-1", models.ActionKindChecklistUpdate, "wo-1", 3, map[string]any{"item_index": 0, "done": true})
	if err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	third, err := models.EnqueueAction(ctx, "biz-1", models.ActionKindObservationAdd, "wo-2", 1, map[string]string{"text": "cliente ausente"})
	if err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}

	if first.ActionId == second.ActionId || second.ActionId == third.ActionId {
		t.Fatalf("action ids must be unique: %s %s %s", first.ActionId, second.ActionId, third.ActionId)
	}

	actions, err := models.PendingActionsFIFO(ctx)
	if err != nil {
		t.Fatalf("PendingActionsFIFO: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("expected 3 pending actions, got %d", len(actions))
	}
	want := []string{first.ActionId, second.ActionId, third.ActionId}
	for i, a := range actions {
		if a.ActionId != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], a.ActionId)
		}
	}

	count, err := models.CountPendingActions(ctx)
	if err != nil {
		t.Fatalf("CountPendingActions: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

func TestPendingActions_EnqueueRequiresWorkOrder(t *testing.T) {
	setupTestDB(t)
	if _, err := models.EnqueueAction(context.Background(), "biz-1", models.ActionKindStatusUpdate, "", 0, nil); err == nil {
		t.Fatal("expected an error for empty work order id")
	}
}

func TestPendingActions_RemoveDeletesOnlyTarget(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	keep, _ := models.EnqueueAction(ctx, "biz-1", models.ActionKindStatusUpdate, "wo-1", 1, map[string]string{"status": models.WorkOrderStatusDone})
	drop, _ := models.EnqueueAction(ctx, "biz-1", models.ActionKindStatusUpdate, "wo-2", 1, map[string]string{"status": models.WorkOrderStatusPaused})

	if err := models.RemovePendingAction(ctx, drop.ActionId); err != nil {
		t.Fatalf("RemovePendingAction: %v", err)
	}

	actions, err := models.PendingActionsFIFO(ctx)
	if err != nil {
		t.Fatalf("PendingActionsFIFO: %v", err)
	}
	if len(actions) != 1 || actions[0].ActionId != keep.ActionId {
		t.Fatalf("expected only %s to remain, got %+v", keep.ActionId, actions)
	}
}

func TestPendingActions_BumpRetryRecordsAttempt(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	action, _ := models.EnqueueAction(ctx, "biz-1", models.ActionKindPhotoAdd, "wo-1", 0, map[string]any{"photo": []byte{1}})
	if err := models.BumpActionRetry(ctx, action.ActionId, "connection refused"); err != nil {
		t.Fatalf("BumpActionRetry: %v", err)
	}
	if err := models.BumpActionRetry(ctx, action.ActionId, "timeout"); err != nil {
		t.Fatalf("BumpActionRetry: %v", err)
	}

	actions, _ := models.PendingActionsFIFO(ctx)
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	got := actions[0]
	if got.RetryCount != 2 {
		t.Fatalf("expected retry_count 2, got %d", got.RetryCount)
	}
	if got.LastError == nil || *got.LastError != "timeout" {
		t.Fatalf("expected last_error %q, got %v", "timeout", got.LastError)
	}
	if got.LastAttemptAt == nil || time.Since(*got.LastAttemptAt) > time.Minute {
		t.Fatalf("expected a recent last_attempt_at, got %v", got.LastAttemptAt)
	}
}

func TestMoveToDeadLetter_AtomicAcrossTables(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	action, _ := models.EnqueueAction(ctx, "biz-1", models.ActionKindContractSign, "wo-9", 4, map[string]any{"signature": []byte{1}, "signed_by": "Ana"})
	action.RetryCount = models.MaxActionRetries

	if err := models.MoveToDeadLetter(ctx, *action, models.DeadLetterReasonRetryExhausted, "backend unreachable"); err != nil {
		t.Fatalf("MoveToDeadLetter: %v", err)
	}

	count, _ := models.CountPendingActions(ctx)
	if count != 0 {
		t.Fatalf("expected empty queue after dead-lettering, got %d", count)
	}

	letters, err := models.ListDeadLetters(ctx, 0)
	if err != nil {
		t.Fatalf("ListDeadLetters: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(letters))
	}
	letter := letters[0]
	if letter.ActionId != action.ActionId {
		t.Fatalf("expected action id %s, got %s", action.ActionId, letter.ActionId)
	}
	if letter.Reason != models.DeadLetterReasonRetryExhausted {
		t.Fatalf("expected reason %s, got %s", models.DeadLetterReasonRetryExhausted, letter.Reason)
	}
	if letter.RetryCount != models.MaxActionRetries {
		t.Fatalf("expected retry_count %d, got %d", models.MaxActionRetries, letter.RetryCount)
	}
	if letter.LastError != "backend unreachable" {
		t.Fatalf("unexpected last_error %q", letter.LastError)
	}
}

func TestClearAll_WipesEverything(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	if _, err := models.EnqueueAction(ctx, "biz-1", models.ActionKindStatusUpdate, "wo-1", 1, map[string]string{"status": models.WorkOrderStatusDone}); err != nil {
		t.Fatalf("EnqueueAction: %v", err)
	}
	if err := models.SaveSession(ctx, &models.Session{Token: "tok", TechnicianId: "tech-1", BusinessId: "biz-1"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := models.CacheWorkOrderList(ctx, "biz-1", []models.WorkOrderSummary{{ID: "wo-1"}}); err != nil {
		t.Fatalf("CacheWorkOrderList: %v", err)
	}

	if err := models.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	if count, _ := models.CountPendingActions(ctx); count != 0 {
		t.Fatalf("expected empty queue, got %d", count)
	}
	if _, err := models.GetSession(ctx); err == nil {
		t.Fatal("expected session to be gone")
	}
	if _, err := models.GetCachedWorkOrderList(ctx, "biz-1"); err == nil {
		t.Fatal("expected list cache to be gone")
	}

	var runs int64
	if err := config.GetDB().Model(&models.SyncRun{}).Count(&runs).Error; err != nil {
		t.Fatalf("count sync runs: %v", err)
	}
	if runs != 0 {
		t.Fatalf("expected sync run history to be gone, got %d rows", runs)
	}
}
