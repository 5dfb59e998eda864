package services

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/dashboard"
	"fintrack/internal/ledger"
)

// DashboardService serves per-owner summaries from a cache. Concurrent misses
// for the same owner share one computation.
type DashboardService struct {
	store ledger.TransactionStore
	cache cache.Cache[[]core.Transaction]
	group singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

func NewDashboardService(store ledger.TransactionStore, c cache.Cache[[]core.Transaction]) *DashboardService {
	return &DashboardService{
		store:       store,
		cache:       c,
		generations: make(map[string]uint64),
	}
}

// Summary computes the owner's dashboard, with the topN largest transactions.
func (s *DashboardService) Summary(ctx context.Context, ownerID string, topN int) (dashboard.Summary, error) {
	txs, err := s.transactions(ctx, ownerID)
	if err != nil {
		return dashboard.Summary{}, err
	}
	return dashboard.Summarize(txs, topN), nil
}

func (s *DashboardService) transactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	if s.cache != nil {
		if txs, ok := s.cache.Get(ownerID); ok {
			return txs, nil
		}
	}

	v, err, _ := s.group.Do(ownerID, func() (interface{}, error) {
		gen := s.generation(ownerID)
		txs, err := s.store.ListTransactions(ctx, ownerID)
		if err != nil {
			return nil, core.Persistence("list transactions", err)
		}
		// A mutation during the load makes the result stale; serve it once
		// but do not cache it.
		s.storeIfCurrent(ownerID, gen, txs)
		return txs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.Transaction), nil
}

// Invalidate drops the owner's cached ledger.
func (s *DashboardService) Invalidate(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[ownerID]++
	if s.cache != nil {
		s.cache.Delete(ownerID)
	}
}

func (s *DashboardService) generation(ownerID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[ownerID]
}

// storeIfCurrent caches txs unless the owner was invalidated after gen was
// read. The compare and the write share the lock Invalidate holds.
func (s *DashboardService) storeIfCurrent(ownerID string, gen uint64, txs []core.Transaction) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[ownerID] == gen {
		s.cache.Set(ownerID, txs)
	}
}
