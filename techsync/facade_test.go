package techsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"bitbucket.org/mmdatafocus/fieldservice_sync/fieldapi"
	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
	"github.com/go-playground/validator/v10"
)

func newOnlineFacade(t *testing.T, spy *backendSpy) *Facade {
	t.Helper()
	srv := httptest.NewServer(spy.handler())
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL)
	watcher := NewNetworkWatcher(srv.URL+"/healthz", config.GetLogger(), nil)
	watcher.Check(context.Background())
	return NewFacade(client, watcher, config.GetLogger())
}

func newOfflineFacade(t *testing.T) *Facade {
	t.Helper()
	client := newTestClient(t, "http://127.0.0.1:1")
	watcher := NewNetworkWatcher("http://127.0.0.1:1/healthz", config.GetLogger(), nil)
	return NewFacade(client, watcher, config.GetLogger())
}

func TestFacade_OnlineDeliversDirectly(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	spy := &backendSpy{status: http.StatusOK}
	facade := newOnlineFacade(t, spy)
	seedDetail(t, "wo-1", 5)

	result, err := facade.UpdateStatus(ctx, "tok", "biz-1", "wo-1", StatusUpdatePayload{Status: models.WorkOrderStatusInProgress})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if result.Offline || result.ActionId != "" {
		t.Fatalf("expected a direct delivery, got %+v", result)
	}
	if count, _ := models.CountPendingActions(ctx); count != 0 {
		t.Fatalf("direct delivery must not enqueue, got %d actions", count)
	}

	cached, _ := models.GetCachedWorkOrderDetail(ctx, "wo-1")
	if cached.Detail.Status != models.WorkOrderStatusInProgress {
		t.Fatalf("expected cache to reflect the change, got %q", cached.Detail.Status)
	}
}

func TestFacade_OfflineEnqueuesAndPatchesCache(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	facade := newOfflineFacade(t)
	seedDetail(t, "wo-1", 5)

	result, err := facade.UpdateStatus(ctx, "tok", "biz-1", "wo-1", StatusUpdatePayload{Status: models.WorkOrderStatusPaused})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if !result.Offline || result.ActionId == "" {
		t.Fatalf("expected an offline result with an action id, got %+v", result)
	}

	actions, _ := models.PendingActionsFIFO(ctx)
	if len(actions) != 1 {
		t.Fatalf("expected 1 queued action, got %d", len(actions))
	}
	if actions[0].Kind != models.ActionKindStatusUpdate || actions[0].BaseVersion != 5 {
		t.Fatalf("unexpected queued action: %+v", actions[0])
	}

	cached, _ := models.GetCachedWorkOrderDetail(ctx, "wo-1")
	if cached.Detail.Status != models.WorkOrderStatusPaused {
		t.Fatalf("expected optimistic cache patch, got %q", cached.Detail.Status)
	}
}

func TestFacade_ValidationErrorsPropagate(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	facade := newOfflineFacade(t)

	_, err := facade.UpdateStatus(ctx, "tok", "biz-1", "wo-1", StatusUpdatePayload{Status: "finished"})
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if count, _ := models.CountPendingActions(ctx); count != 0 {
		t.Fatalf("invalid payloads must never enter the queue, got %d", count)
	}

	if _, err := facade.AddObservation(ctx, "tok", "biz-1", "", ObservationAddPayload{Text: "x"}); err == nil {
		t.Fatal("expected an error for a missing work order id")
	}
}

func TestFacade_ServerErrorFallsBackToQueue(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	spy := &backendSpy{status: http.StatusBadGateway}
	facade := newOnlineFacade(t, spy)

	result, err := facade.AddObservation(ctx, "tok", "biz-1", "wo-1", ObservationAddPayload{Text: "cliente remarcou"})
	if err != nil {
		t.Fatalf("AddObservation: %v", err)
	}
	if !result.Offline {
		t.Fatalf("a 5xx must queue the change, got %+v", result)
	}
	if count, _ := models.CountPendingActions(ctx); count != 1 {
		t.Fatalf("expected 1 queued action, got %d", count)
	}
}

func TestFacade_ConflictPropagatesWithoutQueueing(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	spy := &backendSpy{status: http.StatusConflict}
	facade := newOnlineFacade(t, spy)
	seedDetail(t, "wo-1", 3)

	_, err := facade.UpdateStatus(ctx, "tok", "biz-1", "wo-1", StatusUpdatePayload{Status: models.WorkOrderStatusDone})
	if !fieldapi.IsConflict(err) {
		t.Fatalf("expected a conflict error, got %v", err)
	}
	if count, _ := models.CountPendingActions(ctx); count != 0 {
		t.Fatalf("conflicts must not be queued, got %d actions", count)
	}

	cached, _ := models.GetCachedWorkOrderDetail(ctx, "wo-1")
	if cached.Detail.Status != models.WorkOrderStatusOpen {
		t.Fatalf("cache must stay untouched on conflict, got %q", cached.Detail.Status)
	}
}

func TestFacade_SignContractPatchesSignature(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	facade := newOfflineFacade(t)
	seedDetail(t, "wo-1", 1)

	result, err := facade.SignContract(ctx, "tok", "biz-1", "wo-1", ContractSignPayload{
		Signature: []byte{0x89, 0x50, 0x4e, 0x47},
		SignedBy:  "Carlos Lima",
	})
	if err != nil {
		t.Fatalf("SignContract: %v", err)
	}
	if !result.Offline {
		t.Fatalf("expected offline queueing, got %+v", result)
	}

	cached, _ := models.GetCachedWorkOrderDetail(ctx, "wo-1")
	if cached.Detail.SignedAt == nil || cached.Detail.SignedBy != "Carlos Lima" {
		t.Fatalf("expected signature patch, got signed_at=%v signed_by=%q", cached.Detail.SignedAt, cached.Detail.SignedBy)
	}
}
