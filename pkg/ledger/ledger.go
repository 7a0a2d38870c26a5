package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ehealthwave/platform/pkg/common/logger"
	"github.com/ehealthwave/platform/pkg/observability/metrics"
	"github.com/google/uuid"
)

// Ledger is the tamper-evident audit trail. Each appended entry commits
// to the previous entry's hash, so rewriting history invalidates every
// hash downstream of the edit.
type Ledger struct {
	store   Store
	mu      sync.Mutex
	nowFunc func() time.Time
}

// New opens a ledger over the given store and writes the genesis entry
// if the chain is empty. The genesis entry is never recomputed or
// replaced once written.
func New(store Store) (*Ledger, error) {
	l := &Ledger{
		store:   store,
		nowFunc: time.Now,
	}

	count, err := store.Count(context.Background())
	if err != nil {
		return nil, fmt.Errorf("checking ledger state: %w", err)
	}
	if count == 0 {
		ts := l.now()
		genesis := &Entry{
			ID:           GenesisID,
			Timestamp:    ts,
			Payload:      GenesisPayload(),
			PreviousHash: GenesisPreviousHash,
			Hash:         ComputeHash(GenesisPayload(), ts, GenesisPreviousHash),
		}
		if err := store.Append(context.Background(), genesis); err != nil {
			return nil, fmt.Errorf("writing genesis entry: %w", err)
		}
		logger.Log.Info("Audit ledger initialized with genesis entry")
	}

	return l, nil
}

// WithClock overrides the time source. Used by tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.nowFunc = now
	return l
}

// Timestamps are truncated to microseconds so the hash input survives a
// PostgreSQL round-trip.
func (l *Ledger) now() time.Time {
	return l.nowFunc().UTC().Truncate(time.Microsecond)
}

// Append records a new event at the head of the chain. Appends are
// serialized; the chain needs a strict total order of previousHash links.
func (l *Ledger) Append(ctx context.Context, payload map[string]interface{}) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.store.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading chain head: %w", err)
	}

	ts := l.now()
	entry := &Entry{
		ID:           uuid.New().String(),
		Timestamp:    ts,
		Payload:      payload,
		PreviousHash: last.Hash,
		Hash:         ComputeHash(payload, ts, last.Hash),
	}

	if err := l.store.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("appending ledger entry: %w", err)
	}
	if count, err := l.store.Count(ctx); err == nil {
		metrics.ObserveLedgerSize(int(count))
	}
	return entry, nil
}

// VerifyIntegrity walks the chain from the second entry onward and
// recomputes every hash. It reports only pass/fail, not which entry
// broke; the chain is vouched for as a whole.
func (l *Ledger) VerifyIntegrity(ctx context.Context) (bool, error) {
	entries, err := l.store.All(ctx)
	if err != nil {
		return false, fmt.Errorf("reading ledger: %w", err)
	}

	for i := 1; i < len(entries); i++ {
		current := entries[i]
		previous := entries[i-1]

		if current.PreviousHash != previous.Hash {
			return false, nil
		}
		if ComputeHash(current.Payload, current.Timestamp, current.PreviousHash) != current.Hash {
			return false, nil
		}
	}

	return true, nil
}

// Entries returns the full chain in append order.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	return l.store.All(ctx)
}
