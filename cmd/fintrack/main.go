package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/attachments"
	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	apphttp "fintrack/internal/http"
	"fintrack/internal/live"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	startupCtx := context.Background()
	ledger := cli.OpenStore(startupCtx, logger, cfg)
	store := ledger.Store

	files, err := attachments.NewLocalStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		logger.Error("Failed to prepare upload directory", "error", err, "dir", cfg.UploadDir)
		os.Exit(1)
	}

	// Dashboard summaries are cached per owner and dropped on every mutation.
	summaries := cache.NewLRUCache[[]core.Transaction](cfg.DashboardCacheSize, cfg.DashboardCacheTTL)
	caches := cache.NewManager()
	caches.Register(summaries)
	caches.StartCleanup(time.Minute)
	dashboardService := services.NewDashboardService(store, summaries)

	hub := live.NewHub(cfg.CORSOrigin)
	publishers := services.MultiPublisher{hub}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, events stay in-process", "error", err)
			amqpClient = nil
		} else {
			publishers = append(publishers, amqpClient)
			logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - transaction events will not be journaled")
	}

	transactionService := services.NewTransactionService(store,
		services.WithEventPublisher(publishers),
		services.WithInvalidator(dashboardService))
	authService := services.NewAuthService(store, auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL))
	processor := services.NewRecurringProcessor(store, transactionService, cli.RecurringLocation(logger, cfg))

	var scheduler *services.RecurringScheduler
	if cfg.RecurringInProcess {
		scheduler = services.NewRecurringScheduler(processor, services.SchedulerConfig{Interval: cfg.RecurringInterval})
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Transactions: transactionService,
		Auth:         authService,
		Dashboard:    dashboardService,
		Attachments:  files,
		Store:        store,
		Live:         hub,
		Recurrence:   processor,
		Logger:       logger.WithComponent(applog.ComponentHTTP),
	}, apphttp.Options{
		CORSOrigin:         cfg.CORSOrigin,
		Production:         cfg.IsProduction(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxBodyBytes:       cfg.MaxUploadBytes + 1<<20,
		RecurrenceToken:    cfg.RecurrenceTriggerToken,
		TrustedProxies:     cfg.TrustedProxies,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				logger.Error("Failed to stop recurring scheduler", "error", err)
			}
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", "error", err)
			}
		}
		if err := ledger.Cleanup(); err != nil {
			logger.Warn("Failed to close ledger store", "error", err)
		}
	})

	go hub.Run(ctx)
	if scheduler != nil {
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("Failed to start recurring scheduler", "error", err)
			os.Exit(1)
		}
		logger.Info("Recurring scheduler running in-process", "interval", cfg.RecurringInterval)
	}

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"env", cfg.AppEnv,
		"recurrence_trigger", cfg.RecurrenceTriggerToken != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
