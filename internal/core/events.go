package core

import "time"

const (
	EventCreated EventType = "transaction.created"
	EventUpdated EventType = "transaction.updated"
	EventDeleted EventType = "transaction.deleted"
)

const (
	SourceAPI       = "api"
	SourceScheduler = "scheduler"
)

type EventType string

// TransactionEvent is a lightweight notification about a ledger mutation.
// Consumers fetch the record itself through the owner-scoped store.
type TransactionEvent struct {
	Type          EventType
	TransactionID string
	OwnerID       string
	Source        string
	OccurredAt    time.Time
}

func NewTransactionEvent(typ EventType, t Transaction, source string) TransactionEvent {
	return TransactionEvent{
		Type:          typ,
		TransactionID: t.ID,
		OwnerID:       t.OwnerID,
		Source:        source,
		OccurredAt:    time.Now().UTC(),
	}
}
