package main

import (
	"fmt"
	"net/http"
	"os"

	"solana-intent-bot/internal/config"
	"solana-intent-bot/internal/database"
	"solana-intent-bot/internal/history"
	"solana-intent-bot/internal/logger"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Setup HTTP server
	mux := http.NewServeMux()

	historyService := history.NewService(db, log)
	apiHandler := NewAPIHandler(log, historyService)

	// API endpoints
	mux.HandleFunc("/api/transactions", apiHandler.TransactionsHandler)
	mux.HandleFunc("/api/assets", apiHandler.AssetsHandler)
	mux.HandleFunc("/api/success-rate", apiHandler.SuccessRateHandler)
	mux.HandleFunc("/api/search", apiHandler.SearchHandler)
	mux.HandleFunc("/health", apiHandler.HealthHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting history API server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("History API server failed", zap.Error(err))
	}
}
