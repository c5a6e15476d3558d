package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"solana-intent-bot/internal/history"
	"solana-intent-bot/internal/models"

	"go.uber.org/zap"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log     *zap.Logger
	history *history.Service
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, historyService *history.Service) *APIHandler {
	return &APIHandler{log: log, history: historyService}
}

// TransactionsHandler returns one page of a user's executions.
// Filters compose conjunctively; changing a filter is the caller's cue to
// reset to page 1.
func (h *APIHandler) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	filters := history.Filters{Asset: r.URL.Query().Get("asset")}
	for _, status := range r.URL.Query()["status"] {
		filters.Statuses = append(filters.Statuses, models.ExecutionStatus(status))
	}
	if from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from")); err == nil {
		filters.From = &from
	}
	if to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to")); err == nil {
		filters.To = &to
	}
	if min, err := strconv.ParseFloat(r.URL.Query().Get("min_amount"), 64); err == nil {
		filters.MinAmount = &min
	}
	if max, err := strconv.ParseFloat(r.URL.Query().Get("max_amount"), 64); err == nil {
		filters.MaxAmount = &max
	}

	result, err := h.history.GetTransactions(r.Context(), userID, filters, page, pageSize)
	if err != nil {
		h.log.Error("Failed to get transactions", zap.Error(err))
		http.Error(w, "Failed to get transactions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

// AssetsHandler returns per-asset summed amounts over completed executions.
func (h *APIHandler) AssetsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	totals, err := h.history.GetTransactionsByAsset(r.Context(), userID)
	if err != nil {
		h.log.Error("Failed to aggregate by asset", zap.Error(err))
		http.Error(w, "Failed to aggregate by asset", http.StatusInternalServerError)
		return
	}

	writeJSON(w, totals)
}

// SuccessRateHandler returns the percentage of completed executions.
func (h *APIHandler) SuccessRateHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	rate, err := h.history.GetSuccessRate(r.Context(), userID)
	if err != nil {
		h.log.Error("Failed to compute success rate", zap.Error(err))
		http.Error(w, "Failed to compute success rate", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]float64{"success_rate": rate})
}

// SearchHandler matches against asset symbols and transaction signatures.
func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	term := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	executions, err := h.history.SearchTransactions(r.Context(), userID, term, limit)
	if err != nil {
		h.log.Error("Failed to search transactions", zap.Error(err))
		http.Error(w, "Failed to search transactions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, executions)
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
