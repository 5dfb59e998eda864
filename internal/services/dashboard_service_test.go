package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/ledger/memory"
)

type countingStore struct {
	*memory.Store
	lists atomic.Int32
}

func (c *countingStore) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	c.lists.Add(1)
	return c.Store.ListTransactions(ctx, ownerID)
}

func TestDashboardService_SummaryCachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memory.New()}
	dash := NewDashboardService(store, cache.NewLRUCache[[]core.Transaction](16, time.Minute))
	txSvc := NewTransactionService(store, WithInvalidator(dash))

	for _, tx := range []core.Transaction{
		{Description: "Salary", Amount: core.Money{Cents: 100000}, Date: core.NewDate(2024, 1, 1), Category: "Work"},
		{Description: "Lunch", Amount: core.Money{Cents: -10000}, Date: core.NewDate(2024, 1, 2), Category: "Food"},
		{Description: "Dinner", Amount: core.Money{Cents: -15000}, Date: core.NewDate(2024, 1, 3), Category: "Food"},
	} {
		if _, err := txSvc.Create(ctx, "alice", tx); err != nil {
			t.Fatal(err)
		}
	}

	s, err := dash.Summary(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Totals.Balance.Cents != 75000 || len(s.Top) != 2 || s.Categories[0].Percentage != 100 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if _, err := dash.Summary(ctx, "alice", 2); err != nil {
		t.Fatal(err)
	}
	if n := store.lists.Load(); n != 1 {
		t.Fatalf("expected one store read, got %d", n)
	}

	if _, err := txSvc.Create(ctx, "alice", core.Transaction{
		Description: "Bonus", Amount: core.Money{Cents: 5000}, Date: core.NewDate(2024, 1, 4), Category: "Work",
	}); err != nil {
		t.Fatal(err)
	}
	s, _ = dash.Summary(ctx, "alice", 2)
	if s.Totals.Balance.Cents != 80000 {
		t.Fatalf("stale summary after mutation: %+v", s.Totals)
	}
	if n := store.lists.Load(); n != 2 {
		t.Fatalf("expected a reload after invalidation, got %d reads", n)
	}
}

// invalidatingStore simulates a mutation landing while the ledger is loaded.
type invalidatingStore struct {
	*memory.Store
	during func()
	lists  atomic.Int32
}

func (s *invalidatingStore) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	txs, err := s.Store.ListTransactions(ctx, ownerID)
	if s.lists.Add(1) == 1 && s.during != nil {
		s.during()
	}
	return txs, err
}

func TestDashboardService_MutationDuringLoadIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := &invalidatingStore{Store: memory.New()}
	dash := NewDashboardService(store, cache.NewLRUCache[[]core.Transaction](16, time.Minute))
	txSvc := NewTransactionService(store, WithInvalidator(dash))

	if _, err := txSvc.Create(ctx, "alice", core.Transaction{
		Description: "Salary", Amount: core.Money{Cents: 100000}, Date: core.NewDate(2024, 1, 1), Category: "Work",
	}); err != nil {
		t.Fatal(err)
	}
	store.during = func() {
		if _, err := txSvc.Create(ctx, "alice", core.Transaction{
			Description: "Rent", Amount: core.Money{Cents: -40000}, Date: core.NewDate(2024, 1, 2), Category: "Home",
		}); err != nil {
			t.Error(err)
		}
	}

	first, err := dash.Summary(ctx, "alice", 5)
	if err != nil {
		t.Fatal(err)
	}
	if first.Totals.Balance.Cents != 100000 {
		t.Fatalf("first load should reflect the pre-mutation ledger: %+v", first.Totals)
	}
	second, err := dash.Summary(ctx, "alice", 5)
	if err != nil {
		t.Fatal(err)
	}
	if second.Totals.Balance.Cents != 60000 {
		t.Fatalf("stale ledger was cached: %+v", second.Totals)
	}
	if n := store.lists.Load(); n != 2 {
		t.Fatalf("expected a reload, got %d reads", n)
	}
}

func TestDashboardService_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	dash := NewDashboardService(store, nil)
	if _, err := store.CreateTransaction(ctx, core.Transaction{
		OwnerID: "alice", Description: "Salary", Amount: core.Money{Cents: 100}, Date: core.NewDate(2024, 1, 1), Category: "Work",
	}); err != nil {
		t.Fatal(err)
	}

	s, err := dash.Summary(ctx, "bob", 5)
	if err != nil {
		t.Fatal(err)
	}
	if s.Totals.Income.Cents != 0 || len(s.RunningBalance) != 0 {
		t.Fatalf("bob sees alice's data: %+v", s)
	}
}
