package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brojonat/cardflow/service/catalog"
	"github.com/brojonat/cardflow/service/config"
	"github.com/brojonat/cardflow/service/payment"
	"github.com/brojonat/cardflow/service/store"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a purchase request
)

// handleListCatalog returns a handler that lists the storefront items.
// GET /api/v1/catalog
func handleListCatalog(cat *catalog.Catalog, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := cat.Items()
		logger.Debug("catalog listed", "count", len(items))

		writeJSON(w, map[string]interface{}{
			"items": items,
		}, http.StatusOK)
	})
}

// handleCreatePurchase returns a handler that creates a transaction record
// for a catalog item and starts the payment pipeline for it.
// POST /api/v1/purchases
func handleCreatePurchase(cfg *config.Config, cat *catalog.Catalog, st *store.Store, engine *payment.Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			ItemID string `json:"item_id"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode purchase request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if req.ItemID == "" {
			writeError(w, "item_id is required", http.StatusBadRequest)
			return
		}

		item, err := cat.Get(req.ItemID)
		if err != nil {
			logger.Debug("unknown catalog item", "item_id", req.ItemID)
			writeError(w, "item not found", http.StatusNotFound)
			return
		}

		discount := payment.DiscountFor(item.Price, cfg.DiscountRate)
		rec, err := payment.NewRecord(item.Name, item.Price, discount)
		if err != nil {
			logger.Error("failed to build transaction record",
				"item_id", item.ID,
				"price", item.Price,
				"discount", discount,
				"error", err,
			)
			writeError(w, "failed to create purchase", http.StatusInternalServerError)
			return
		}

		// Snapshot the response before handing the record to the engine;
		// the pipeline goroutine owns the record from here on.
		resp := purchaseResponse{
			ID:             rec.ID,
			ItemLabel:      rec.ItemLabel,
			OriginalAmount: rec.OriginalAmount,
			Discount:       rec.Discount,
			FinalAmount:    rec.FinalAmount,
			Status:         string(payment.StatusAuthorizing),
			CreatedAt:      rec.CreatedAt,
		}

		// The pipeline outlives the request; detach its context from the
		// request's cancellation.
		if !engine.Start(context.WithoutCancel(r.Context()), rec) {
			writeError(w, "purchase is already being processed", http.StatusConflict)
			return
		}

		logger.Info("purchase accepted",
			"record_id", rec.ID,
			"item_id", item.ID,
			"final_amount", payment.FormatUSD(resp.FinalAmount),
		)
		writeJSON(w, resp, http.StatusAccepted)
	})
}

// handleListPurchases returns a handler that lists settled purchases,
// newest first.
// GET /api/v1/purchases?limit=N&offset=N
func handleListPurchases(st *store.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		// Parse limit (default 100, max 1000)
		limit := 100
		if limitStr := query.Get("limit"); limitStr != "" {
			var parsedLimit int
			if _, err := fmt.Sscanf(limitStr, "%d", &parsedLimit); err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsedLimit < 1 {
				writeError(w, "limit must be at least 1", http.StatusBadRequest)
				return
			}
			if parsedLimit > 1000 {
				writeError(w, "limit cannot exceed 1000", http.StatusBadRequest)
				return
			}
			limit = parsedLimit
		}

		// Parse offset (default 0)
		offset := 0
		if offsetStr := query.Get("offset"); offsetStr != "" {
			var parsedOffset int
			if _, err := fmt.Sscanf(offsetStr, "%d", &parsedOffset); err != nil {
				writeError(w, "invalid offset parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsedOffset < 0 {
				writeError(w, "offset cannot be negative", http.StatusBadRequest)
				return
			}
			offset = parsedOffset
		}

		records := st.List(limit, offset)
		logger.Debug("purchases listed", "count", len(records))

		resp := make([]purchaseResponse, len(records))
		for i, rec := range records {
			resp[i] = recordToResponse(rec)
		}

		writeJSON(w, map[string]interface{}{
			"purchases": resp,
			"count":     len(resp),
			"limit":     limit,
			"offset":    offset,
		}, http.StatusOK)
	})
}

// handleGetPurchase returns a handler that retrieves one settled purchase.
// In-flight purchases are visible on the event stream, not here.
// GET /api/v1/purchases/{id}
func handleGetPurchase(st *store.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			writeError(w, "purchase id is required", http.StatusBadRequest)
			return
		}

		rec, err := st.Get(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, "purchase not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get purchase", "record_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, recordToResponse(rec), http.StatusOK)
	})
}

// handleMerchantSummary returns a handler for the merchant dashboard
// aggregates.
// GET /api/v1/merchant/summary
func handleMerchantSummary(st *store.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary := st.Summary()
		logger.Debug("merchant summary computed", "sales_count", summary.SalesCount)

		writeJSON(w, summaryResponse{
			TreasuryBalance: summary.TreasuryBalance,
			MerchantBalance: summary.MerchantBalance,
			SalesCount:      summary.SalesCount,
			FeesSaved:       summary.FeesSaved,
			AvgSettlementMS: summary.AvgSettlement.Milliseconds(),
		}, http.StatusOK)
	})
}

// purchaseResponse is the JSON response format for a transaction record.
// Amounts are in cents.
type purchaseResponse struct {
	ID             string     `json:"id"`
	ItemLabel      string     `json:"item_label"`
	OriginalAmount int64      `json:"original_amount"`
	Discount       int64      `json:"discount"`
	FinalAmount    int64      `json:"final_amount"`
	Status         string     `json:"status"`
	TxHash         string     `json:"tx_hash,omitempty"`
	BlockNumber    int64      `json:"block_number,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	SettledAt      *time.Time `json:"settled_at,omitempty"`
}

// recordToResponse converts a terminal transaction record to a response
// format.
func recordToResponse(rec *payment.TransactionRecord) purchaseResponse {
	resp := purchaseResponse{
		ID:             rec.ID,
		ItemLabel:      rec.ItemLabel,
		OriginalAmount: rec.OriginalAmount,
		Discount:       rec.Discount,
		FinalAmount:    rec.FinalAmount,
		Status:         string(rec.Status),
		TxHash:         rec.TxHash,
		BlockNumber:    rec.BlockNumber,
		CreatedAt:      rec.CreatedAt,
	}
	if !rec.SettledAt.IsZero() {
		settledAt := rec.SettledAt
		resp.SettledAt = &settledAt
	}
	return resp
}

// summaryResponse is the JSON response format for the merchant dashboard.
// Amounts are in cents.
type summaryResponse struct {
	TreasuryBalance int64 `json:"treasury_balance"`
	MerchantBalance int64 `json:"merchant_balance"`
	SalesCount      int   `json:"sales_count"`
	FeesSaved       int64 `json:"fees_saved"`
	AvgSettlementMS int64 `json:"avg_settlement_ms"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
