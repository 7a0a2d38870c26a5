package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ehealthwave/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrHistoryNotFound = errors.New("notification not found")

// HistoryRecord tracks one notification through its delivery lifecycle
// (sent -> delivered | failed). Status updates come back from the
// delivery gateway's callbacks.
type HistoryRecord struct {
	ID          string            `json:"id" gorm:"primaryKey;column:id"`
	Type        string            `json:"type" gorm:"column:type"`
	SubjectID   string            `json:"subject_id" gorm:"index;column:subject_id"`
	PhoneNumber string            `json:"phone_number,omitempty" gorm:"column:phone_number"`
	Message     string            `json:"message" gorm:"column:message"`
	Status      string            `json:"status" gorm:"column:status"`
	Language    string            `json:"language" gorm:"column:language"`
	Timestamp   time.Time         `json:"timestamp" gorm:"column:timestamp"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata"`
}

func (HistoryRecord) TableName() string {
	return "notification_history"
}

type History interface {
	Add(ctx context.Context, rec *HistoryRecord) error
	UpdateStatus(ctx context.Context, id, status string) error
	Get(ctx context.Context, id string) (*HistoryRecord, error)
	BySubject(ctx context.Context, subjectID string) ([]HistoryRecord, error)
}

func NewHistoryRecord(n models.Notification) *HistoryRecord {
	id := n.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := n.Status
	if status == "" {
		status = models.NotificationStatusSent
	}
	return &HistoryRecord{
		ID:          id,
		Type:        n.Type,
		SubjectID:   n.SubjectID,
		PhoneNumber: n.PhoneNumber,
		Message:     n.Message,
		Status:      status,
		Language:    n.Language,
		Timestamp:   n.Timestamp,
		Metadata:    datatypes.JSONMap(n.Metadata),
	}
}

// MemoryHistory is the in-process implementation and test fake.
type MemoryHistory struct {
	mu      sync.Mutex
	records []*HistoryRecord
	byID    map[string]*HistoryRecord
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{byID: make(map[string]*HistoryRecord)}
}

func (h *MemoryHistory) Add(ctx context.Context, rec *HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := *rec
	h.records = append(h.records, &r)
	h.byID[r.ID] = &r
	return nil
}

func (h *MemoryHistory) UpdateStatus(ctx context.Context, id, status string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.byID[id]
	if !ok {
		return ErrHistoryNotFound
	}
	rec.Status = status
	return nil
}

func (h *MemoryHistory) Get(ctx context.Context, id string) (*HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.byID[id]
	if !ok {
		return nil, ErrHistoryNotFound
	}
	out := *rec
	return &out, nil
}

func (h *MemoryHistory) BySubject(ctx context.Context, subjectID string) ([]HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []HistoryRecord
	for _, rec := range h.records {
		if rec.SubjectID == subjectID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// HistoryRepository persists delivery history to PostgreSQL.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&HistoryRecord{})
}

func (r *HistoryRepository) Add(ctx context.Context, rec *HistoryRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *HistoryRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result := r.db.WithContext(ctx).Model(&HistoryRecord{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("updating notification status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrHistoryNotFound
	}
	return nil
}

func (r *HistoryRepository) Get(ctx context.Context, id string) (*HistoryRecord, error) {
	var rec HistoryRecord
	result := r.db.WithContext(ctx).First(&rec, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrHistoryNotFound
	}
	return &rec, result.Error
}

func (r *HistoryRepository) BySubject(ctx context.Context, subjectID string) ([]HistoryRecord, error) {
	var recs []HistoryRecord
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("timestamp ASC").
		Find(&recs).Error
	return recs, err
}
