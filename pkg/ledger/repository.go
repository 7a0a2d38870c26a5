package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Repository backs the chain with PostgreSQL. The table is append-only:
// this type issues INSERTs and SELECTs and nothing else.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Entry{})
}

func (r *Repository) Append(ctx context.Context, entry *Entry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (r *Repository) Last(ctx context.Context) (*Entry, error) {
	var entry Entry
	result := r.db.WithContext(ctx).Order("seq DESC").First(&entry)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrEmpty
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, result.Error)
	}
	return &entry, nil
}

func (r *Repository) All(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := r.db.WithContext(ctx).Order("seq ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return entries, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Entry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return count, nil
}
