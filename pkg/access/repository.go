package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository backs the grant store with PostgreSQL. Revoked, used and
// expired grants stay in the table for audit; rows are never deleted.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Grant{})
}

func (r *Repository) Put(ctx context.Context, grant *Grant) error {
	if err := r.db.WithContext(ctx).Create(grant).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (r *Repository) GetBySecret(ctx context.Context, secret string) (*Grant, error) {
	var grant Grant
	result := r.db.WithContext(ctx).
		Where("secret = ?", secret).
		Order("created_at DESC").
		First(&grant)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	return &grant, nil
}

func (r *Repository) ListActiveBySubject(ctx context.Context, subjectID string, now time.Time) ([]Grant, error) {
	var grants []Grant
	err := r.db.WithContext(ctx).
		Where("subject_id = ? AND is_active AND expires_at > ?", subjectID, now).
		Order("created_at ASC").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return grants, nil
}

func (r *Repository) ListAll(ctx context.Context) ([]Grant, error) {
	var grants []Grant
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return grants, nil
}

// Redeem is a single conditional UPDATE so concurrent redeemers of one
// PIN cannot both succeed.
func (r *Repository) Redeem(ctx context.Context, secret, subjectID, kind, redeemerID string, now time.Time) (*Grant, error) {
	result := r.db.WithContext(ctx).Model(&Grant{}).
		Where("secret = ? AND subject_id = ? AND kind = ?", secret, subjectID, kind).
		Where("is_active AND (used_by = '' OR used_by IS NULL) AND expires_at > ?", now).
		Updates(map[string]interface{}{
			"used_by": redeemerID,
			"used_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetBySecret(ctx, secret)
}

func (r *Repository) MarkUsed(ctx context.Context, secret, redeemerID string, now time.Time) (*Grant, error) {
	result := r.db.WithContext(ctx).Model(&Grant{}).
		Where("secret = ? AND is_active AND expires_at > ?", secret, now).
		Updates(map[string]interface{}{
			"used_by": redeemerID,
			"used_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetBySecret(ctx, secret)
}

func (r *Repository) Deactivate(ctx context.Context, secret string) (*Grant, error) {
	result := r.db.WithContext(ctx).Model(&Grant{}).
		Where("secret = ?", secret).
		Update("is_active", false)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetBySecret(ctx, secret)
}

func (r *Repository) DeactivateAllForSubject(ctx context.Context, subjectID, kind string, now time.Time) (int, error) {
	query := r.db.WithContext(ctx).Model(&Grant{}).
		Where("subject_id = ? AND is_active AND expires_at > ?", subjectID, now)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	result := query.Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	return int(result.RowsAffected), nil
}

func (r *Repository) Update(ctx context.Context, grant *Grant) error {
	result := r.db.WithContext(ctx).Model(&Grant{}).
		Where("id = ?", grant.ID).
		Select("notification_sent", "sms_sent", "emergency_contacts", "location").
		Updates(grant)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
