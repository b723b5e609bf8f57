package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionKindStatusUpdate    = "status_update"
	ActionKindChecklistUpdate = "checklist_update"
	ActionKindPhotoAdd        = "photo_add"
	ActionKindContractSign    = "contract_sign"
	ActionKindObservationAdd  = "observation_add"
)

// MaxActionRetries is the delivery-attempt ceiling. An action whose counter
// reaches this value is moved to the dead-letter table.
const MaxActionRetries = 3

const (
	DeadLetterReasonRetryExhausted = "retry_exhausted"
	DeadLetterReasonConflict       = "conflict"
)

// PendingAction is one queued mutation awaiting delivery to the backend.
// ActionId is generated at enqueue time and stable across retries. Rows are
// drained in primary-key order, which is enqueue (FIFO) order.
type PendingAction struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	ActionId      string     `gorm:"uniqueIndex;size:64;not null" json:"action_id"`
	BusinessId    string     `gorm:"index;size:64" json:"business_id"`
	Kind          string     `gorm:"index;size:32;not null" json:"kind"`
	WorkOrderId   string     `gorm:"index;size:64;not null" json:"work_order_id"`
	PayloadJSON   []byte     `gorm:"type:json" json:"payload"`
	BaseVersion   int        `json:"base_version"`
	RetryCount    int        `gorm:"default:0" json:"retry_count"`
	LastError     *string    `gorm:"type:text" json:"last_error"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// DeadLetter is the durable record of an action that was dropped, either
// after retry exhaustion or on a version conflict. Kept for manual review;
// nothing replays these automatically.
type DeadLetter struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	ActionId    string    `gorm:"uniqueIndex;size:64;not null" json:"action_id"`
	BusinessId  string    `gorm:"index;size:64" json:"business_id"`
	Kind        string    `gorm:"size:32" json:"kind"`
	WorkOrderId string    `gorm:"index;size:64" json:"work_order_id"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	Reason      string    `gorm:"size:32;not null" json:"reason"`
	LastError   string    `gorm:"type:text" json:"last_error"`
	RetryCount  int       `json:"retry_count"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func EnqueueAction(ctx context.Context, businessId string, kind string, workOrderId string, baseVersion int, payload any) (*PendingAction, error) {
	if workOrderId == "" {
		return nil, errors.New("work order id is required")
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	action := PendingAction{
		ActionId:    uuid.NewString(),
		BusinessId:  businessId,
		Kind:        kind,
		WorkOrderId: workOrderId,
		PayloadJSON: payloadJSON,
		BaseVersion: baseVersion,
	}
	if err := config.GetDB().WithContext(ctx).Create(&action).Error; err != nil {
		return nil, err
	}
	return &action, nil
}

// PendingActionsFIFO returns the full queue snapshot in enqueue order.
func PendingActionsFIFO(ctx context.Context) ([]PendingAction, error) {
	var actions []PendingAction
	err := config.GetDB().WithContext(ctx).
		Order("id ASC").
		Find(&actions).Error
	return actions, err
}

func CountPendingActions(ctx context.Context) (int64, error) {
	var count int64
	err := config.GetDB().WithContext(ctx).
		Model(&PendingAction{}).
		Count(&count).Error
	return count, err
}

// RemovePendingAction deletes a delivered action. Removal happens per
// action, immediately on success, so progress survives a failure later in
// the same pass.
func RemovePendingAction(ctx context.Context, actionId string) error {
	return config.GetDB().WithContext(ctx).
		Where("action_id = ?", actionId).
		Delete(&PendingAction{}).Error
}

// BumpActionRetry records a failed delivery attempt.
func BumpActionRetry(ctx context.Context, actionId string, attemptErr string) error {
	now := time.Now().UTC()
	return config.GetDB().WithContext(ctx).
		Model(&PendingAction{}).
		Where("action_id = ?", actionId).
		Updates(map[string]interface{}{
			"retry_count":     gorm.Expr("retry_count + 1"),
			"last_error":      &attemptErr,
			"last_attempt_at": &now,
		}).Error
}

// MoveToDeadLetter removes the action from the queue and persists the drop.
// Both writes run in one transaction so the action can never exist in both
// places.
func MoveToDeadLetter(ctx context.Context, action PendingAction, reason string, lastError string) error {
	return config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("action_id = ?", action.ActionId).Delete(&PendingAction{}).Error; err != nil {
			return err
		}
		letter := DeadLetter{
			ActionId:    action.ActionId,
			BusinessId:  action.BusinessId,
			Kind:        action.Kind,
			WorkOrderId: action.WorkOrderId,
			PayloadJSON: action.PayloadJSON,
			Reason:      reason,
			LastError:   lastError,
			RetryCount:  action.RetryCount,
			EnqueuedAt:  action.CreatedAt,
		}
		return tx.Create(&letter).Error
	})
}

func ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var letters []DeadLetter
	err := config.GetDB().WithContext(ctx).
		Order("id desc").
		Limit(limit).
		Find(&letters).Error
	return letters, err
}
