package access

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound           = errors.New("access grant not found")
	ErrStorageUnavailable = errors.New("grant storage unavailable")
)

// Store is keyed storage of grants. All mutations that implement a
// trust decision (Redeem, MarkUsed, Deactivate*) are atomic
// check-and-set operations so two concurrent callers cannot both
// succeed on one single-use credential.
type Store interface {
	Put(ctx context.Context, grant *Grant) error
	GetBySecret(ctx context.Context, secret string) (*Grant, error)
	ListActiveBySubject(ctx context.Context, subjectID string, now time.Time) ([]Grant, error)
	ListAll(ctx context.Context) ([]Grant, error)

	// Redeem consumes a single-use grant: it finds the grant matching
	// secret, subject and kind that is active, unused and unexpired,
	// marks it used, and returns it. ErrNotFound when no grant matches.
	Redeem(ctx context.Context, secret, subjectID, kind, redeemerID string, now time.Time) (*Grant, error)

	// MarkUsed stamps a reusable grant's used_by/used_at without
	// deactivating it. The grant must be active and unexpired.
	MarkUsed(ctx context.Context, secret, redeemerID string, now time.Time) (*Grant, error)

	// Deactivate clears is_active on the grant with the given secret.
	// ErrNotFound when no grant carries the secret.
	Deactivate(ctx context.Context, secret string) (*Grant, error)

	// DeactivateAllForSubject revokes every active, unexpired grant of
	// the given kind ("" for all kinds) and returns how many changed.
	DeactivateAllForSubject(ctx context.Context, subjectID, kind string, now time.Time) (int, error)

	// Update persists marker fields (sms_sent, notification_sent,
	// location, contacts) on an existing grant.
	Update(ctx context.Context, grant *Grant) error
}

// MemoryStore holds grants in process memory. Grants are retained after
// revocation and expiry; only the active/used flags change.
type MemoryStore struct {
	mu       sync.Mutex
	grants   []*Grant
	bySecret map[string]*Grant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bySecret: make(map[string]*Grant)}
}

func (s *MemoryStore) Put(ctx context.Context, grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := *grant
	s.grants = append(s.grants, &g)
	s.bySecret[g.Secret] = &g
	return nil
}

func (s *MemoryStore) GetBySecret(ctx context.Context, secret string) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.bySecret[secret]
	if !ok {
		return nil, ErrNotFound
	}
	out := *g
	return &out, nil
}

func (s *MemoryStore) ListActiveBySubject(ctx context.Context, subjectID string, now time.Time) ([]Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Grant
	for _, g := range s.grants {
		if g.SubjectID == subjectID && g.IsActive && g.ExpiresAt.After(now) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Grant, 0, len(s.grants))
	for _, g := range s.grants {
		out = append(out, *g)
	}
	return out, nil
}

func (s *MemoryStore) Redeem(ctx context.Context, secret, subjectID, kind, redeemerID string, now time.Time) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.bySecret[secret]
	if !ok || g.Kind != kind || g.SubjectID != subjectID || !g.IsActive || g.Spent() || !g.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	g.UsedBy = redeemerID
	usedAt := now
	g.UsedAt = &usedAt
	out := *g
	return &out, nil
}

func (s *MemoryStore) MarkUsed(ctx context.Context, secret, redeemerID string, now time.Time) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.bySecret[secret]
	if !ok || !g.IsActive || !g.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	g.UsedBy = redeemerID
	usedAt := now
	g.UsedAt = &usedAt
	out := *g
	return &out, nil
}

func (s *MemoryStore) Deactivate(ctx context.Context, secret string) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.bySecret[secret]
	if !ok {
		return nil, ErrNotFound
	}
	g.IsActive = false
	out := *g
	return &out, nil
}

func (s *MemoryStore) DeactivateAllForSubject(ctx context.Context, subjectID, kind string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, g := range s.grants {
		if g.SubjectID != subjectID || !g.IsActive || !g.ExpiresAt.After(now) {
			continue
		}
		if kind != "" && g.Kind != kind {
			continue
		}
		g.IsActive = false
		count++
	}
	return count, nil
}

func (s *MemoryStore) Update(ctx context.Context, grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.bySecret[grant.Secret]
	if !ok {
		return ErrNotFound
	}
	// Marker fields only. Lifecycle state (is_active, used_by, used_at)
	// is owned by the atomic mutations; writing it back here would let a
	// stale read erase a concurrent redemption.
	g.NotificationSent = grant.NotificationSent
	g.SMSSent = grant.SMSSent
	g.EmergencyContacts = grant.EmergencyContacts
	g.Location = grant.Location
	return nil
}
