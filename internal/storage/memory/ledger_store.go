package memory

import (
	"context"
	"sort"
	"sync"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu        sync.RWMutex
	state     *domain.LedgerState
	investors map[domain.Address]*domain.InvestorRecord // keyed by investor address
	applied   int
	failNext  error
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		investors: make(map[domain.Address]*domain.InvestorRecord),
	}
}

// Load returns the stored state and investors ordered by Seq ASC.
// Returns ErrNotFound if nothing was applied yet.
func (s *LedgerStore) Load(_ context.Context) (*domain.LedgerState, []*domain.InvestorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, nil, storage.ErrNotFound
	}

	investors := make([]*domain.InvestorRecord, 0, len(s.investors))
	for _, r := range s.investors {
		investors = append(investors, r.Clone())
	}
	sort.Slice(investors, func(i, j int) bool {
		return investors[i].Seq < investors[j].Seq
	})

	return s.state.Clone(), investors, nil
}

// Apply writes a changeset atomically.
func (s *LedgerStore) Apply(_ context.Context, cs *domain.Changeset) error {
	if cs == nil || cs.State == nil {
		return storage.ErrInvalidInput
	}
	for _, r := range cs.Investors {
		if r == nil || r.Investor == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}

	s.state = cs.State.Clone()
	for _, r := range cs.Investors {
		s.investors[r.Investor] = r.Clone()
	}
	for _, addr := range cs.Dropped {
		delete(s.investors, addr)
	}
	s.applied++
	return nil
}

// FailNextApply makes the next Apply return err without writing.
func (s *LedgerStore) FailNextApply(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Applied returns the number of successful Apply calls.
func (s *LedgerStore) Applied() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
