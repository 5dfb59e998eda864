// Package sheets exports ledger activity to an append-only journal.
package sheets

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// JournalEntry is one row of the activity journal. Deleted records carry
// only the identifiers known from the event.
type JournalEntry struct {
	RecordedAt    time.Time
	Event         core.EventType
	Source        string
	OwnerID       string
	TransactionID string
	Date          string
	Description   string
	Category      string
	Amount        core.Money
	Recurring     bool
}

// Ports for outbound adapters.
type (
	JournalWriter interface {
		// AppendEntry writes e and returns a reference to the written row.
		AppendEntry(ctx context.Context, e JournalEntry) (rowRef string, err error)
	}

	JournalReader interface {
		Entries(ctx context.Context) ([]JournalEntry, error)
	}
)

// NewJournalEntry builds the journal row for evt. t is the current state of
// the record and is ignored for deletions.
func NewJournalEntry(evt core.TransactionEvent, t *core.Transaction) JournalEntry {
	e := JournalEntry{
		RecordedAt:    evt.OccurredAt,
		Event:         evt.Type,
		Source:        evt.Source,
		OwnerID:       evt.OwnerID,
		TransactionID: evt.TransactionID,
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	if t == nil || evt.Type == core.EventDeleted {
		return e
	}
	e.Date = t.Date.String()
	e.Description = t.Description
	e.Category = t.Category
	e.Amount = t.Amount
	e.Recurring = t.IsRecurring
	return e
}

// Row renders e in column order A:J.
func (e JournalEntry) Row() []any {
	var amount any = ""
	if e.Event != core.EventDeleted {
		amount = e.Amount.Float()
	}
	return []any{
		e.RecordedAt.UTC().Format(time.RFC3339),
		string(e.Event),
		e.Source,
		e.OwnerID,
		e.TransactionID,
		e.Date,
		e.Description,
		e.Category,
		amount,
		e.Recurring,
	}
}

// Header is the column header written to an empty journal sheet.
func Header() []any {
	return []any{"Recorded At", "Event", "Source", "Owner", "Transaction", "Date", "Description", "Category", "Amount", "Recurring"}
}
