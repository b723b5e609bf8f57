package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
)

const (
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual    = "manual"
	SyncTriggeredReconnect = "reconnect"
	SyncTriggeredLogout    = "logout"
)

// SyncRun is the persisted history of one reconciliation pass.
type SyncRun struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	BusinessId  string     `gorm:"index;size:64" json:"business_id"`
	Status      string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy string     `gorm:"size:20" json:"triggered_by"`
	Synced      int        `json:"synced"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	ErrorsJSON  []byte     `gorm:"type:json" json:"errors"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	DurationMs  int64      `json:"duration_ms"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []SyncRun
	err := config.GetDB().WithContext(ctx).
		Order("id desc").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
