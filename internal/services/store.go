package services

import (
	"context"
	"math/big"
	"sync"

	"lotteryledger/internal/models"
)

// Store holds the durable state of one ledger: its owner and the entries of
// the current round.
type Store interface {
	// Owner returns the recorded owner, if one was ever set.
	Owner(ctx context.Context) (models.Address, bool, error)
	SetOwner(ctx context.Context, owner models.Address) error
	Append(ctx context.Context, entry models.Entry) error
	// Entry returns ErrIndexOutOfRange for a position outside the round.
	Entry(ctx context.Context, index int) (models.Entry, error)
	Count(ctx context.Context) (int, error)
	Entries(ctx context.Context) ([]models.Entry, error)
	// Settle clears every entry, but only if payout succeeds. When payout
	// fails the entries are left exactly as they were.
	Settle(ctx context.Context, payout func(ctx context.Context) error) error
}

// MemoryStore is a Store that lives for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	owner    models.Address
	hasOwner bool
	entries  []models.Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make([]models.Entry, 0),
	}
}

func (s *MemoryStore) Owner(ctx context.Context) (models.Address, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, s.hasOwner, nil
}

func (s *MemoryStore) SetOwner(ctx context.Context, owner models.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = owner
	s.hasOwner = true
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, entry models.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, copyEntry(entry))
	return nil
}

func (s *MemoryStore) Entry(ctx context.Context, index int) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.entries) {
		return models.Entry{}, ErrIndexOutOfRange
	}
	return copyEntry(s.entries[index]), nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Entries(ctx context.Context) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = copyEntry(e)
	}
	return out, nil
}

func (s *MemoryStore) Settle(ctx context.Context, payout func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := payout(ctx); err != nil {
		return err
	}
	s.entries = make([]models.Entry, 0)
	return nil
}

func copyEntry(e models.Entry) models.Entry {
	if e.Amount != nil {
		e.Amount = new(big.Int).Set(e.Amount)
	}
	return e
}
