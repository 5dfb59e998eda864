package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// Notifier is told about every instance the processor creates.
type Notifier interface {
	Notify(ctx context.Context, evt core.TransactionEvent)
}

// Report summarizes a single recurrence pass.
type Report struct {
	Date    core.Date `json:"date"`
	Checked int       `json:"checked"`
	Due     int       `json:"due"`
	Created int       `json:"created"`
	Skipped int       `json:"skipped"`
	Failed  int       `json:"failed"`
}

// RecurringProcessor materializes due occurrences of recurring templates.
// A pass can be re-run any number of times for the same day: each
// (template, due date) pair is created at most once.
type RecurringProcessor struct {
	templates ledger.TemplateSource
	notifier  Notifier
	location  *time.Location
}

func NewRecurringProcessor(templates ledger.TemplateSource, notifier Notifier, location *time.Location) *RecurringProcessor {
	if location == nil {
		location = time.UTC
	}
	return &RecurringProcessor{
		templates: templates,
		notifier:  notifier,
		location:  location,
	}
}

// RunPass checks every template against the calendar date of now in the
// processor's location.
func (p *RecurringProcessor) RunPass(ctx context.Context, now time.Time) (Report, error) {
	today := core.DateOf(now.In(p.location))
	report := Report{Date: today}

	templates, err := p.templates.ListTemplates(ctx)
	if err != nil {
		return report, fmt.Errorf("list recurring templates: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring templates",
		"total", len(templates),
		"due_date", today.String())

	for _, tpl := range templates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		checker, err := GetDuenessChecker(tpl.RepeatInterval)
		if err != nil {
			report.Failed++
			slog.ErrorContext(ctx, "Template has no dueness checker",
				"template_id", tpl.ID,
				"repeat_interval", tpl.RepeatInterval,
				"error", err)
			continue
		}
		if !checker.IsDue(tpl.Date, today) {
			continue
		}
		report.Due++

		created, err := p.templates.MaterializeOccurrence(ctx, tpl, today, instanceOf(tpl, today))
		switch {
		case errors.Is(err, core.ErrAlreadyMaterialized):
			report.Skipped++
			slog.DebugContext(ctx, "Occurrence already materialized",
				"template_id", tpl.ID,
				"due_date", today.String())
			continue
		case err != nil:
			report.Failed++
			slog.ErrorContext(ctx, "Failed to materialize occurrence",
				"template_id", tpl.ID,
				"owner_id", tpl.OwnerID,
				"due_date", today.String(),
				"error", err)
			continue
		}

		report.Created++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			"template_id", tpl.ID,
			"transaction_id", created.ID,
			"owner_id", created.OwnerID,
			"amount_cents", created.Amount.Cents,
			"repeat_interval", tpl.RepeatInterval)

		if p.notifier != nil {
			p.notifier.Notify(ctx, core.NewTransactionEvent(core.EventCreated, created, core.SourceScheduler))
		}
	}

	slog.InfoContext(ctx, "Recurring pass complete",
		"checked", report.Checked,
		"created", report.Created,
		"skipped", report.Skipped,
		"failed", report.Failed)

	return report, nil
}

func instanceOf(tpl core.Transaction, due core.Date) core.Transaction {
	return core.Transaction{
		OwnerID:     tpl.OwnerID,
		Description: tpl.Description,
		Amount:      tpl.Amount,
		Date:        due,
		Category:    tpl.Category,
	}
}
