// Package ledger defines the persistence ports of the transaction ledger.
//
// Every owner-facing method takes the owner id as a required argument and
// filters on it. Records owned by someone else behave exactly like absent
// records and yield core.ErrNotFound.
package ledger

import (
	"context"
	"time"

	"fintrack/internal/core"
)

type (
	TransactionStore interface {
		// CreateTransaction persists t, assigning ID and timestamps.
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// ListTransactions returns the owner's records, newest date first.
		ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error)
		// UpdateTransaction replaces the mutable fields of the record with t.ID
		// owned by ownerID.
		UpdateTransaction(ctx context.Context, ownerID string, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, ownerID, id string) error
	}

	// TemplateSource is the system-level view used by the recurrence pass.
	TemplateSource interface {
		// ListTemplates returns every recurring template across owners.
		ListTemplates(ctx context.Context) ([]core.Transaction, error)
		// MaterializeOccurrence records (template.ID, due) and inserts the
		// instance. It returns core.ErrAlreadyMaterialized when the pair was
		// recorded before, in which case nothing is inserted.
		MaterializeOccurrence(ctx context.Context, template core.Transaction, due core.Date, instance core.Transaction) (core.Transaction, error)
	}

	UserStore interface {
		// CreateUser fails with a ValidationError when the email is taken.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUserByID(ctx context.Context, id string) (core.User, error)
		TouchLastLogin(ctx context.Context, id string, at time.Time) error
	}

	// Store bundles everything a backend must provide.
	Store interface {
		TransactionStore
		TemplateSource
		UserStore
		Ping(ctx context.Context) error
		Close() error
	}
)
