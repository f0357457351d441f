package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"presale-ledger/internal/domain"
	"presale-ledger/internal/storage"
)

// JournalStore is an in-memory implementation of storage.JournalStore and
// storage.InflowStore.
type JournalStore struct {
	mu      sync.RWMutex
	data    map[string]*domain.JournalEntry // keyed by entry id
	entries []*domain.JournalEntry          // append order
}

// NewJournalStore creates a new in-memory journal store.
func NewJournalStore() *JournalStore {
	return &JournalStore{
		data: make(map[string]*domain.JournalEntry),
	}
}

// Append adds entries atomically. Fails entire batch on any duplicate.
func (s *JournalStore) Append(_ context.Context, entries []*domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(entries))

	// First pass: check for duplicates (existing + intra-batch)
	for _, e := range entries {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.ID] = struct{}{}
	}

	// Second pass: insert all
	for _, e := range entries {
		c := e.Clone()
		s.data[e.ID] = c
		s.entries = append(s.entries, c)
	}

	return nil
}

// GetAll retrieves every entry ordered by (version, index) ASC.
func (s *JournalStore) GetAll(_ context.Context) ([]*domain.JournalEntry, error) {
	return s.filter(func(*domain.JournalEntry) bool { return true }), nil
}

// GetByInvestor retrieves the entries of an investor ordered by (version, index) ASC.
func (s *JournalStore) GetByInvestor(_ context.Context, investor domain.Address) ([]*domain.JournalEntry, error) {
	return s.filter(func(e *domain.JournalEntry) bool { return e.Investor == investor }), nil
}

func (s *JournalStore) filter(keep func(*domain.JournalEntry) bool) []*domain.JournalEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.JournalEntry
	for _, e := range s.entries {
		if keep(e) {
			result = append(result, e.Clone())
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Version != result[j].Version {
			return result[i].Version < result[j].Version
		}
		return result[i].Index < result[j].Index
	})

	return result
}

// DailyInflows returns per-day, per-asset purchase totals within [start, end].
func (s *JournalStore) DailyInflows(_ context.Context, start, end int64) ([]*domain.DailyInflow, error) {
	if start > end {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		day   int64
		asset domain.Asset
	}
	buckets := make(map[key]*domain.DailyInflow)
	for _, e := range s.entries {
		if e.Kind != domain.JournalPurchase || e.Timestamp < start || e.Timestamp > end {
			continue
		}
		k := key{day: e.Timestamp - e.Timestamp%86400, asset: e.Asset}
		b, ok := buckets[k]
		if !ok {
			b = &domain.DailyInflow{
				Day:         k.day,
				Asset:       k.asset,
				AssetAmount: new(big.Int),
				QuoteAmount: new(big.Int),
				TokenAmount: new(big.Int),
			}
			buckets[k] = b
		}
		b.Purchases++
		b.AssetAmount.Add(b.AssetAmount, domain.CloneAmount(e.AssetAmount))
		b.QuoteAmount.Add(b.QuoteAmount, domain.CloneAmount(e.QuoteAmount))
		b.TokenAmount.Add(b.TokenAmount, domain.CloneAmount(e.TokenAmount))
	}

	result := make([]*domain.DailyInflow, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Day != result[j].Day {
			return result[i].Day < result[j].Day
		}
		return result[i].Asset < result[j].Asset
	})

	return result, nil
}

var (
	_ storage.JournalStore = (*JournalStore)(nil)
	_ storage.InflowStore  = (*JournalStore)(nil)
)
