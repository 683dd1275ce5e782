package credits

import (
	"context"
	"sync"

	apperrors "speaker-split/internal/app/errors"
)

// Store persists ledgers keyed by user id. Implementations only need
// whole-record reads and writes; the Service serializes access per user.
type Store interface {
	// Get returns the stored ledger, or ErrLedgerNotFound.
	Get(ctx context.Context, userID string) (*Ledger, error)
	// Put writes the ledger as one atomic record.
	Put(ctx context.Context, ledger *Ledger) error
}

// MemoryStore is an in-process Store. Each test gets its own instance; no
// hidden package-level state.
type MemoryStore struct {
	mu      sync.RWMutex
	ledgers map[string]*Ledger
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledgers: make(map[string]*Ledger)}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledger, ok := s.ledgers[userID]
	if !ok {
		return nil, apperrors.ErrLedgerNotFound
	}
	return ledger.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, ledger *Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledgers[ledger.UserID] = ledger.Clone()
	return nil
}
