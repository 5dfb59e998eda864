package services

import (
	"context"
	"errors"

	"fintrack/internal/core"
)

// EventPublisher delivers ledger change notifications.
type EventPublisher interface {
	Publish(ctx context.Context, evt core.TransactionEvent) error
}

// Invalidator drops cached views derived from an owner's ledger.
type Invalidator interface {
	Invalidate(ownerID string)
}

// MultiPublisher fans an event out to every publisher and joins their errors.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, evt core.TransactionEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
