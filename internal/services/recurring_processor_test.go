package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger/memory"
)

type recordingNotifier struct {
	events []core.TransactionEvent
}

func (r *recordingNotifier) Notify(_ context.Context, evt core.TransactionEvent) {
	r.events = append(r.events, evt)
}

func seedTemplate(t *testing.T, store *memory.Store, owner, desc string, cents int64, anchor core.Date, every core.RepeatInterval) core.Transaction {
	t.Helper()
	tpl, err := store.CreateTransaction(context.Background(), core.Transaction{
		OwnerID: owner, Description: desc, Amount: core.Money{Cents: cents}, Date: anchor,
		Category: "Health", IsRecurring: true, RepeatInterval: every,
	})
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return tpl
}

func at(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 9, 30, 0, 0, time.UTC)
}

func TestRunPass_WeeklyGym(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tpl := seedTemplate(t, store, "alice", "Gym", -2000, core.NewDate(2024, 1, 1), core.Weekly)
	notifier := &recordingNotifier{}
	p := NewRecurringProcessor(store, notifier, time.UTC)

	report, err := p.RunPass(ctx, at(2024, 1, 8)) // Monday
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if report.Created != 1 || report.Checked != 1 {
		t.Fatalf("monday report = %+v", report)
	}

	list, _ := store.ListTransactions(ctx, "alice")
	if len(list) != 2 {
		t.Fatalf("expected template + instance, got %d", len(list))
	}
	inst := list[0]
	if inst.Date.String() != "2024-01-08" || inst.IsRecurring || inst.RepeatInterval != "" ||
		inst.Description != "Gym" || inst.Amount.Cents != -2000 || inst.Category != tpl.Category || inst.OwnerID != "alice" {
		t.Fatalf("unexpected instance: %+v", inst)
	}
	if len(notifier.events) != 1 || notifier.events[0].Source != core.SourceScheduler || notifier.events[0].TransactionID != inst.ID {
		t.Fatalf("unexpected notifications: %+v", notifier.events)
	}

	report, err = p.RunPass(ctx, at(2024, 1, 9)) // Tuesday
	if err != nil || report.Due != 0 || report.Created != 0 {
		t.Fatalf("tuesday report = %+v, %v", report, err)
	}
}

func TestRunPass_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedTemplate(t, store, "alice", "Gym", -2000, core.NewDate(2024, 1, 1), core.Weekly)
	seedTemplate(t, store, "bob", "Rent", -90000, core.NewDate(2023, 12, 8), core.Monthly)
	p := NewRecurringProcessor(store, nil, time.UTC)

	first, err := p.RunPass(ctx, at(2024, 1, 8))
	if err != nil || first.Created != 2 {
		t.Fatalf("first pass = %+v, %v", first, err)
	}
	second, err := p.RunPass(ctx, at(2024, 1, 8).Add(3*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if second.Created != 0 || second.Skipped != 2 {
		t.Fatalf("second pass = %+v", second)
	}

	for _, owner := range []string{"alice", "bob"} {
		list, _ := store.ListTransactions(ctx, owner)
		if len(list) != 2 {
			t.Errorf("%s has %d records, want 2", owner, len(list))
		}
	}
}

func TestRunPass_UsesLocationForToday(t *testing.T) {
	store := memory.New()
	seedTemplate(t, store, "alice", "Gym", -2000, core.NewDate(2024, 1, 1), core.Weekly)

	// Sunday 20:00 UTC is already Monday in UTC+10.
	loc := time.FixedZone("UTC+10", 10*60*60)
	p := NewRecurringProcessor(store, nil, loc)
	report, err := p.RunPass(context.Background(), time.Date(2024, 1, 7, 20, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if report.Date.String() != "2024-01-08" || report.Created != 1 {
		t.Fatalf("report = %+v", report)
	}
}

type flakyStore struct {
	*memory.Store
	failFor string
}

func (f *flakyStore) MaterializeOccurrence(ctx context.Context, tpl core.Transaction, due core.Date, inst core.Transaction) (core.Transaction, error) {
	if tpl.ID == f.failFor {
		return core.Transaction{}, errors.New("disk full")
	}
	return f.Store.MaterializeOccurrence(ctx, tpl, due, inst)
}

func TestRunPass_IsolatesFailures(t *testing.T) {
	store := memory.New()
	broken := seedTemplate(t, store, "alice", "Gym", -2000, core.NewDate(2024, 1, 1), core.Weekly)
	seedTemplate(t, store, "bob", "Pool", -1500, core.NewDate(2024, 1, 1), core.Weekly)

	p := NewRecurringProcessor(&flakyStore{Store: store, failFor: broken.ID}, nil, time.UTC)
	report, err := p.RunPass(context.Background(), at(2024, 1, 8))
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if report.Failed != 1 || report.Created != 1 {
		t.Fatalf("report = %+v", report)
	}
	list, _ := store.ListTransactions(context.Background(), "bob")
	if len(list) != 2 {
		t.Fatalf("healthy template not materialized: %d records", len(list))
	}
}

func TestRunPass_NeverDueOnOrBeforeAnchor(t *testing.T) {
	store := memory.New()
	seedTemplate(t, store, "alice", "Gym", -2000, core.NewDate(2024, 1, 8), core.Weekly)
	p := NewRecurringProcessor(store, nil, time.UTC)

	for _, now := range []time.Time{at(2024, 1, 1), at(2024, 1, 8)} {
		report, err := p.RunPass(context.Background(), now)
		if err != nil || report.Created != 0 {
			t.Fatalf("%s: report = %+v, %v", now.Format(time.DateOnly), report, err)
		}
	}
}
