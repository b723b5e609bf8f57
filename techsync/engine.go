package techsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"bitbucket.org/mmdatafocus/fieldservice_sync/fieldapi"
	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
	"bitbucket.org/mmdatafocus/fieldservice_sync/utils"
	"github.com/sirupsen/logrus"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrOffline        = errors.New("device is offline")
	ErrNoCredential   = errors.New("no credential available for sync")
)

// Engine drains the pending-action queue against the backend. At most one
// pass runs at a time, guarded by an in-memory flag; this is a
// single-process agent, so a process restart resetting the flag is safe
// (no pass can be in flight across a restart).
type Engine struct {
	client *fieldapi.Client
	logger *logrus.Logger

	mu      sync.Mutex
	syncing bool
}

func NewEngine(client *fieldapi.Client, logger *logrus.Logger) *Engine {
	return &Engine{client: client, logger: logger}
}

func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.syncing {
		return false
	}
	e.syncing = true
	return true
}

func (e *Engine) end() {
	e.mu.Lock()
	e.syncing = false
	e.mu.Unlock()
}

const (
	retryBackoffBase = 30 * time.Second
	retryBackoffCap  = 10 * time.Minute
)

func retryEligible(action models.PendingAction, now time.Time) bool {
	if !config.RetryBackoffEnabled() {
		return true
	}
	if action.LastAttemptAt == nil {
		return true
	}
	backoff := retryBackoffBase << uint(action.RetryCount)
	if backoff > retryBackoffCap {
		backoff = retryBackoffCap
	}
	return now.Sub(*action.LastAttemptAt) >= backoff
}

// Reconcile runs one synchronization pass. token may be empty, in which
// case the persisted session supplies the credential; no credential at all
// is fatal for the pass and leaves the queue untouched. Requests arriving
// while a pass runs are refused with ErrSyncInProgress, never queued.
func (e *Engine) Reconcile(ctx context.Context, token string, online bool, trigger string) (*SyncSummary, error) {
	if !e.begin() {
		return nil, ErrSyncInProgress
	}
	defer e.end()

	if !online {
		return nil, ErrOffline
	}

	businessId := ""
	if session, err := models.GetSession(ctx); err == nil {
		businessId = session.BusinessId
		if token == "" {
			token = session.Token
		}
	}
	if token == "" {
		return nil, ErrNoCredential
	}

	startedAt := time.Now().UTC()
	run := models.SyncRun{
		BusinessId:  businessId,
		Status:      models.SyncRunStatusRunning,
		TriggeredBy: trigger,
		StartedAt:   &startedAt,
	}
	if err := config.GetDB().WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}

	actions, err := models.PendingActionsFIFO(ctx)
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{Errors: []SyncActionError{}}
	now := time.Now().UTC()

	for _, action := range actions {
		if !retryEligible(action, now) {
			summary.Skipped++
			continue
		}

		dispatchErr := e.dispatch(ctx, token, action)
		if dispatchErr == nil {
			if err := models.RemovePendingAction(ctx, action.ActionId); err != nil {
				return nil, err
			}
			if patch := cachePatchFor(action.Kind, action.PayloadJSON); patch != nil {
				if perr := models.PatchCachedWorkOrderDetail(ctx, action.WorkOrderId, patch); perr != nil {
					config.LogError(e.logger, "techsync", "Reconcile", "patch cached detail", action.ActionId, perr)
				}
			}
			summary.Synced++
			continue
		}

		errMsg := dispatchErr.Error()
		if fieldapi.IsConflict(dispatchErr) {
			// The work order moved on the backend since this change was
			// based on it. Replaying would overwrite newer state; surface
			// the conflict instead.
			if err := models.MoveToDeadLetter(ctx, action, models.DeadLetterReasonConflict, errMsg); err != nil {
				return nil, err
			}
			summary.Failed++
			summary.Errors = append(summary.Errors, SyncActionError{
				ActionId:    action.ActionId,
				Kind:        action.Kind,
				WorkOrderId: action.WorkOrderId,
				Reason:      models.DeadLetterReasonConflict,
				Message:     errMsg,
			})
			e.logActionError(action, "conflict", dispatchErr)
			continue
		}

		newCount := action.RetryCount + 1
		if newCount >= models.MaxActionRetries {
			action.RetryCount = newCount
			if err := models.MoveToDeadLetter(ctx, action, models.DeadLetterReasonRetryExhausted, errMsg); err != nil {
				return nil, err
			}
			summary.Failed++
			summary.Errors = append(summary.Errors, SyncActionError{
				ActionId:    action.ActionId,
				Kind:        action.Kind,
				WorkOrderId: action.WorkOrderId,
				Reason:      models.DeadLetterReasonRetryExhausted,
				Message:     errMsg,
			})
			e.logActionError(action, "retry exhausted", dispatchErr)
			continue
		}

		if err := models.BumpActionRetry(ctx, action.ActionId, errMsg); err != nil {
			return nil, err
		}
		e.logActionError(action, "delivery failed, will retry", dispatchErr)
	}

	finishedAt := time.Now().UTC()
	if err := models.TouchLastSync(ctx, finishedAt); err != nil {
		config.LogError(e.logger, "techsync", "Reconcile", "touch last sync", nil, err)
	}

	status := models.SyncRunStatusSuccess
	if summary.Failed > 0 && summary.Synced == 0 {
		status = models.SyncRunStatusFailed
	} else if summary.Failed > 0 {
		status = models.SyncRunStatusPartial
	}
	errorsJSON, _ := json.Marshal(summary.Errors)
	if err := config.GetDB().WithContext(ctx).Model(&run).Updates(map[string]interface{}{
		"status":      status,
		"synced":      summary.Synced,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
		"errors_json": errorsJSON,
		"finished_at": finishedAt,
		"duration_ms": finishedAt.Sub(startedAt).Milliseconds(),
	}).Error; err != nil {
		return nil, err
	}

	summary.Success = summary.Failed == 0
	return summary, nil
}

func (e *Engine) dispatch(ctx context.Context, token string, action models.PendingAction) error {
	switch action.Kind {
	case models.ActionKindStatusUpdate:
		var p StatusUpdatePayload
		if err := utils.UnmarshalFromJSON(action.PayloadJSON, &p); err != nil {
			return err
		}
		return e.client.UpdateStatus(ctx, token, action.WorkOrderId, action.BaseVersion, p.Status)
	case models.ActionKindChecklistUpdate:
		var p ChecklistUpdatePayload
		if err := utils.UnmarshalFromJSON(action.PayloadJSON, &p); err != nil {
			return err
		}
		return e.client.UpdateChecklistItem(ctx, token, action.WorkOrderId, action.BaseVersion, p.ItemIndex, p.Done)
	case models.ActionKindObservationAdd:
		var p ObservationAddPayload
		if err := utils.UnmarshalFromJSON(action.PayloadJSON, &p); err != nil {
			return err
		}
		return e.client.UpdateObservation(ctx, token, action.WorkOrderId, action.BaseVersion, p.Text)
	case models.ActionKindPhotoAdd:
		var p PhotoAddPayload
		if err := utils.UnmarshalFromJSON(action.PayloadJSON, &p); err != nil {
			return err
		}
		return e.client.AddPhoto(ctx, token, action.WorkOrderId, p.Caption, p.Photo)
	case models.ActionKindContractSign:
		var p ContractSignPayload
		if err := utils.UnmarshalFromJSON(action.PayloadJSON, &p); err != nil {
			return err
		}
		return e.client.SignContract(ctx, token, action.WorkOrderId, action.BaseVersion, p.Signature, p.SignedBy)
	}
	return fmt.Errorf("unknown action kind %q", action.Kind)
}

func (e *Engine) logActionError(action models.PendingAction, context string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"module":        "techsync",
		"action_id":     action.ActionId,
		"kind":          action.Kind,
		"work_order_id": action.WorkOrderId,
		"retry_count":   action.RetryCount,
		"context":       context,
	}).Error(err.Error())
}
