package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	once := flag.Bool("once", false, "run a single recurrence pass and exit")
	date := flag.String("date", "", "run the pass as of this day (YYYY-MM-DD); implies -once")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentRecurring)
	loc := cli.RecurringLocation(logger, cfg)

	asOf, err := passInstant(*date, loc)
	if err != nil {
		logger.Error("Invalid -date flag", "error", err)
		os.Exit(2)
	}

	logger.Info("Starting recurring-worker", "once", *once || asOf != nil, "timezone", loc.String())

	ledger := cli.OpenStore(context.Background(), logger, cfg)
	defer ledger.Cleanup()

	// Created occurrences are published so the journal worker records them.
	var opts []services.TransactionOption
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, occurrences will not be published", "error", err)
		} else {
			defer amqpClient.Close()
			opts = append(opts, services.WithEventPublisher(amqpClient))
		}
	}
	notifier := services.NewTransactionService(ledger.Store, opts...)
	processor := services.NewRecurringProcessor(ledger.Store, notifier, loc)

	if *once || asOf != nil {
		now := time.Now()
		if asOf != nil {
			now = *asOf
		}
		report, err := processor.RunPass(context.Background(), now)
		if err != nil {
			logger.Error("Recurrence pass failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Recurrence pass finished",
			applog.FieldDueDate, report.Date.String(),
			"created", report.Created,
			"skipped", report.Skipped,
			"failed", report.Failed)
		if report.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	scheduler := services.NewRecurringScheduler(processor, services.SchedulerConfig{Interval: cfg.RecurringInterval})
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop recurring scheduler", "error", err)
		}
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start recurring scheduler", "error", err)
		os.Exit(1)
	}
	logger.Info("Recurring scheduler configured", "interval", cfg.RecurringInterval)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker stopped")
}

// passInstant turns -date into noon of that day in loc, so the pass sees
// that calendar day whatever the offset.
func passInstant(date string, loc *time.Location) (*time.Time, error) {
	if date == "" {
		return nil, nil
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", date, err)
	}
	t := time.Date(d.Year(), time.Month(d.Month()), d.Day(), 12, 0, 0, 0, loc)
	return &t, nil
}
