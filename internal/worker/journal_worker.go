package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

// TransactionReader is the owner-scoped lookup the worker uses to load the
// current state of a record named by an event.
type TransactionReader interface {
	GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error)
}

// Stats counts processed events since start.
type Stats struct {
	Journaled int64
	Orphaned  int64
	Failed    int64
}

// JournalWorker appends a journal row for every transaction event it
// receives.
type JournalWorker struct {
	store   TransactionReader
	journal sheets.JournalWriter

	journaled atomic.Int64
	orphaned  atomic.Int64
	failed    atomic.Int64
}

func NewJournalWorker(store TransactionReader, journal sheets.JournalWriter) *JournalWorker {
	return &JournalWorker{store: store, journal: journal}
}

// HandleEvent processes a single transaction event from AMQP. A record that
// no longer exists is journaled from the event data alone.
func (w *JournalWorker) HandleEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	evt := msg.Event()
	slog.InfoContext(ctx, "Processing transaction event",
		"type", evt.Type,
		"transaction_id", evt.TransactionID,
		"owner_id", evt.OwnerID,
		"source", evt.Source)

	var record *core.Transaction
	if evt.Type != core.EventDeleted {
		t, err := w.store.GetTransaction(ctx, evt.OwnerID, evt.TransactionID)
		switch {
		case err == nil:
			record = &t
		case errors.Is(err, core.ErrNotFound):
			// deleted before we got to it
			w.orphaned.Add(1)
			slog.WarnContext(ctx, "Transaction no longer exists, journaling event only",
				"transaction_id", evt.TransactionID)
		default:
			w.failed.Add(1)
			return fmt.Errorf("get transaction from storage: %w", err)
		}
	}

	ref, err := w.journal.AppendEntry(ctx, sheets.NewJournalEntry(evt, record))
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("append journal entry: %w", err)
	}
	w.journaled.Add(1)

	slog.InfoContext(ctx, "Journaled transaction event",
		"type", evt.Type,
		"transaction_id", evt.TransactionID,
		"row_ref", ref)
	return nil
}

func (w *JournalWorker) Stats() Stats {
	return Stats{
		Journaled: w.journaled.Load(),
		Orphaned:  w.orphaned.Load(),
		Failed:    w.failed.Load(),
	}
}
