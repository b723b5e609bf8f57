package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"bitbucket.org/mmdatafocus/fieldservice_sync/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Work-order statuses as the backend stores them.
const (
	WorkOrderStatusOpen       = "aberta"
	WorkOrderStatusInProgress = "em_andamento"
	WorkOrderStatusPaused     = "pausada"
	WorkOrderStatusDone       = "concluida"
	WorkOrderStatusCanceled   = "cancelada"
)

func IsValidWorkOrderStatus(status string) bool {
	switch status {
	case WorkOrderStatusOpen, WorkOrderStatusInProgress, WorkOrderStatusPaused,
		WorkOrderStatusDone, WorkOrderStatusCanceled:
		return true
	}
	return false
}

// WorkOrderSummary is one row of the technician's active list, as returned
// by the backend list endpoint.
type WorkOrderSummary struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	Status      string          `json:"status"`
	ClientName  string          `json:"client_name"`
	Address     string          `json:"address"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type ChecklistItem struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

type WorkOrderPhoto struct {
	ID      string    `json:"id"`
	Caption string    `json:"caption"`
	URL     string    `json:"url"`
	TakenAt time.Time `json:"taken_at"`
}

// WorkOrderDetail is the full payload for a single work order. Version is
// the backend's optimistic-concurrency counter; queued actions record the
// version they were based on.
type WorkOrderDetail struct {
	ID           string           `json:"id"`
	Number       string           `json:"number"`
	BusinessId   string           `json:"business_id"`
	Status       string           `json:"status"`
	ClientName   string           `json:"client_name"`
	ClientPhone  string           `json:"client_phone"`
	Address      string           `json:"address"`
	Observations string           `json:"observations"`
	Version      int              `json:"version"`
	TotalAmount  decimal.Decimal  `json:"total_amount"`
	Checklist    []ChecklistItem  `json:"checklist"`
	Photos       []WorkOrderPhoto `json:"photos"`
	SignedAt     *time.Time       `json:"signed_at"`
	SignedBy     string           `json:"signed_by"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// CachedWorkOrderList is the per-tenant list snapshot. One row per
// business_id; a fresh fetch overwrites it in place.
type CachedWorkOrderList struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"uniqueIndex;size:64;not null" json:"business_id"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	ItemCount   int       `json:"item_count"`
	CachedAt    time.Time `json:"cached_at"`
}

// CachedWorkOrderDetail is the per-work-order snapshot. No history is kept.
type CachedWorkOrderDetail struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	WorkOrderId string    `gorm:"uniqueIndex;size:64;not null" json:"work_order_id"`
	BusinessId  string    `gorm:"index;size:64" json:"business_id"`
	Version     int       `json:"version"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	CachedAt    time.Time `json:"cached_at"`
}

// CachedList pairs decoded data with its capture metadata. FromCache lets
// the caller decide how to present staleness (e.g. a banner).
type CachedList struct {
	Items     []WorkOrderSummary `json:"items"`
	CachedAt  time.Time          `json:"cachedAt"`
	FromCache bool               `json:"fromCache"`
}

type CachedDetail struct {
	Detail    *WorkOrderDetail `json:"detail"`
	CachedAt  time.Time        `json:"cachedAt"`
	FromCache bool             `json:"fromCache"`
}

func CacheWorkOrderList(ctx context.Context, businessId string, items []WorkOrderSummary) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	row := CachedWorkOrderList{
		BusinessId:  businessId,
		PayloadJSON: payload,
		ItemCount:   len(items),
		CachedAt:    time.Now().UTC(),
	}
	return config.GetDB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "business_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload_json", "item_count", "cached_at"}),
		}).
		Create(&row).Error
}

func CacheWorkOrderDetail(ctx context.Context, detail *WorkOrderDetail) error {
	if detail == nil || detail.ID == "" {
		return errors.New("work order detail is empty")
	}
	detail.ClientPhone = utils.NormalizePhone(detail.ClientPhone)
	payload, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	row := CachedWorkOrderDetail{
		WorkOrderId: detail.ID,
		BusinessId:  detail.BusinessId,
		Version:     detail.Version,
		PayloadJSON: payload,
		CachedAt:    time.Now().UTC(),
	}
	return config.GetDB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "work_order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"business_id", "version", "payload_json", "cached_at"}),
		}).
		Create(&row).Error
}

func GetCachedWorkOrderList(ctx context.Context, businessId string) (*CachedList, error) {
	var row CachedWorkOrderList
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ?", businessId).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	var items []WorkOrderSummary
	if err := json.Unmarshal(row.PayloadJSON, &items); err != nil {
		return nil, err
	}
	return &CachedList{Items: items, CachedAt: row.CachedAt, FromCache: true}, nil
}

func GetCachedWorkOrderDetail(ctx context.Context, workOrderId string) (*CachedDetail, error) {
	var row CachedWorkOrderDetail
	err := config.GetDB().WithContext(ctx).
		Where("work_order_id = ?", workOrderId).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	var detail WorkOrderDetail
	if err := json.Unmarshal(row.PayloadJSON, &detail); err != nil {
		return nil, err
	}
	return &CachedDetail{Detail: &detail, CachedAt: row.CachedAt, FromCache: true}, nil
}

// PatchCachedWorkOrderDetail applies an in-place mutation to a cached
// detail, if one exists. Used for optimistic patches so screens reflect a
// queued change immediately. A missing snapshot is not an error; there is
// simply nothing to patch.
func PatchCachedWorkOrderDetail(ctx context.Context, workOrderId string, mutate func(*WorkOrderDetail)) error {
	cached, err := GetCachedWorkOrderDetail(ctx, workOrderId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil
		}
		return err
	}
	mutate(cached.Detail)
	cached.Detail.UpdatedAt = time.Now().UTC()
	return CacheWorkOrderDetail(ctx, cached.Detail)
}

// ClearCache drops cached lists and details only. Queue, dead letters and
// session survive; use ClearAll for logout.
func ClearCache(ctx context.Context) error {
	db := config.GetDB().WithContext(ctx)
	if err := db.Where("1 = 1").Delete(&CachedWorkOrderList{}).Error; err != nil {
		return err
	}
	return db.Where("1 = 1").Delete(&CachedWorkOrderDetail{}).Error
}

// ClearAll wipes everything the agent persists: cache, queue, dead letters,
// sync history and the session. Logout path.
func ClearAll(ctx context.Context) error {
	db := config.GetDB().WithContext(ctx)
	for _, model := range []any{
		&CachedWorkOrderList{}, &CachedWorkOrderDetail{},
		&PendingAction{}, &DeadLetter{}, &SyncRun{}, &Session{},
	} {
		if err := db.Where("1 = 1").Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
