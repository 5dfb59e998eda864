package services

import (
	"context"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// TransactionService owns the ledger rules for user-initiated changes.
// Every operation is scoped to the caller's owner id.
type TransactionService struct {
	store  ledger.TransactionStore
	events EventPublisher
	cache  Invalidator
}

type TransactionOption func(*TransactionService)

func WithEventPublisher(p EventPublisher) TransactionOption {
	return func(s *TransactionService) { s.events = p }
}

func WithInvalidator(i Invalidator) TransactionOption {
	return func(s *TransactionService) { s.cache = i }
}

func NewTransactionService(store ledger.TransactionStore, opts ...TransactionOption) *TransactionService {
	s := &TransactionService{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates t and stores it for ownerID. Any ID or owner on t is
// ignored.
func (s *TransactionService) Create(ctx context.Context, ownerID string, t core.Transaction) (core.Transaction, error) {
	t.ID = ""
	t.OwnerID = ownerID
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, core.Persistence("create transaction", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", created.ID,
		"owner_id", ownerID,
		"amount_cents", created.Amount.Cents,
		"recurring", created.IsRecurring)

	s.Notify(ctx, core.NewTransactionEvent(core.EventCreated, created, core.SourceAPI))
	return created, nil
}

// List returns the owner's transactions, newest date first.
func (s *TransactionService) List(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, core.Persistence("list transactions", err)
	}
	return txs, nil
}

func (s *TransactionService) Get(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, core.Persistence("get transaction", err)
	}
	return t, nil
}

// Update merges patch into the owner's record and re-validates the result.
// It returns the stored record and the record as it was before the change.
func (s *TransactionService) Update(ctx context.Context, ownerID, id string, patch core.TransactionPatch) (updated, previous core.Transaction, err error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}

	previous, err = s.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, core.Persistence("get transaction", err)
	}
	if patch.IsEmpty() {
		return previous, previous, nil
	}
	recurring := previous.IsRecurring
	if patch.IsRecurring != nil {
		recurring = *patch.IsRecurring
	}
	if patch.RepeatInterval != nil && *patch.RepeatInterval != "" && !recurring {
		return core.Transaction{}, core.Transaction{}, core.NewValidationError("repeatInterval", "repeatInterval requires a recurring transaction")
	}

	merged := previous.Apply(patch)
	if err := merged.Validate(); err != nil {
		return core.Transaction{}, core.Transaction{}, err
	}

	updated, err = s.store.UpdateTransaction(ctx, ownerID, merged)
	if err != nil {
		return core.Transaction{}, core.Transaction{}, core.Persistence("update transaction", err)
	}

	slog.InfoContext(ctx, "Transaction updated", "transaction_id", id, "owner_id", ownerID)
	s.Notify(ctx, core.NewTransactionEvent(core.EventUpdated, updated, core.SourceAPI))
	return updated, previous, nil
}

// Delete removes the owner's record and returns it as it was.
func (s *TransactionService) Delete(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	existing, err := s.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, core.Persistence("get transaction", err)
	}
	if err := s.store.DeleteTransaction(ctx, ownerID, id); err != nil {
		return core.Transaction{}, core.Persistence("delete transaction", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", id, "owner_id", ownerID)
	s.Notify(ctx, core.NewTransactionEvent(core.EventDeleted, existing, core.SourceAPI))
	return existing, nil
}

// Notify invalidates the owner's cached views and publishes evt. Failures
// are logged and never surface to the caller.
func (s *TransactionService) Notify(ctx context.Context, evt core.TransactionEvent) {
	if s.cache != nil {
		s.cache.Invalidate(evt.OwnerID)
	}
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		slog.WarnContext(ctx, "Failed to publish transaction event",
			"event", evt.Type,
			"transaction_id", evt.TransactionID,
			"error", err)
	}
}
