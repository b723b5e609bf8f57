package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fieldservice_sync/config"
	"bitbucket.org/mmdatafocus/fieldservice_sync/utils"
	"gorm.io/gorm"
)

// Session is the single persisted login on this device: the bearer token
// for the central backend plus the technician profile. UnlockHash is a
// bcrypt hash of the login password so the app can re-open offline without
// reaching the backend.
type Session struct {
	ID             uint       `gorm:"primary_key" json:"id"`
	Token          string     `gorm:"type:text" json:"-"`
	TechnicianId   string     `gorm:"size:64" json:"technician_id"`
	TechnicianName string     `gorm:"size:255" json:"technician_name"`
	BusinessId     string     `gorm:"size:64" json:"business_id"`
	UnlockHash     string     `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SaveSession replaces whatever session exists; one login per device.
func SaveSession(ctx context.Context, session *Session) error {
	return config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Session{}).Error; err != nil {
			return err
		}
		return tx.Create(session).Error
	})
}

func GetSession(ctx context.Context) (*Session, error) {
	var session Session
	err := config.GetDB().WithContext(ctx).
		Order("id desc").
		Take(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &session, nil
}

// TouchLastSync stamps the end of a completed reconciliation pass. Updated
// even when some actions failed, as long as the pass ran to completion.
func TouchLastSync(ctx context.Context, at time.Time) error {
	return config.GetDB().WithContext(ctx).
		Model(&Session{}).
		Where("1 = 1").
		Update("last_sync_at", at).Error
}
