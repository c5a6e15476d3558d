package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-intent-bot/internal/completion"
	"solana-intent-bot/internal/config"
	"solana-intent-bot/internal/database"
	"solana-intent-bot/internal/executor"
	"solana-intent-bot/internal/logger"
	"solana-intent-bot/internal/pipeline"
	"solana-intent-bot/internal/scheduler"
	"solana-intent-bot/internal/tracker"
	"solana-intent-bot/internal/validator"
	"solana-intent-bot/internal/venue"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize external clients
	completions := completion.NewClient(&cfg.Completion, log)
	venueClient := venue.NewRestClient(&cfg.Venue, log)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	assets, err := venueClient.GetSupportedAssets(startupCtx)
	cancelStartup()
	if err != nil {
		log.Fatal("Failed to connect to venue API", zap.Error(err))
	}
	log.Info("Successfully connected to venue API.", zap.Int("supported_assets", len(assets)))

	// Wire the trade-intent pipeline
	paramValidator := validator.NewValidator(cfg.Trading.SupportedAssets)
	execValidator := validator.NewExecutionValidator(venueClient)
	exec := executor.NewExecutor(completions, venueClient, execValidator, &cfg.Trading, log)
	statusTracker := tracker.NewTracker(db, log)
	pipe := pipeline.NewPipeline(completions, paramValidator, exec, statusTracker, &cfg.Trading, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Run the recurring-trade fire loop
	tickInterval := time.Duration(cfg.Scheduler.TickInterval) * time.Second
	sched := scheduler.NewScheduler(db, pipe, tickInterval, log)
	sched.Run(ctx)

	log.Info("Bot has been shut down.")
}
