// Package handlers provides HTTP handlers for market data operations.
// Each endpoint is a thin adapter over the cache-first findata client: the
// hot path for repeated queries is served from the in-memory cache.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/stockpile/internal/analysis"
	"github.com/aristath/stockpile/internal/cache"
	"github.com/rs/zerolog"
)

// Fetcher is the data-fetching surface the handlers depend on, implemented
// by the findata client.
type Fetcher interface {
	GetPrices(ctx context.Context, ticker, startDate, endDate string) ([]cache.Record, error)
	GetFinancialMetrics(ctx context.Context, ticker, endDate, period string, limit int) ([]cache.Record, error)
	SearchLineItems(ctx context.Context, ticker string, lineItems []string, endDate, period string, limit int) ([]cache.Record, error)
	GetInsiderTrades(ctx context.Context, ticker, endDate string, limit int) ([]cache.Record, error)
	GetCompanyNews(ctx context.Context, ticker, endDate string, limit int) ([]cache.Record, error)
}

// Handler handles market data HTTP requests
type Handler struct {
	fetcher Fetcher
	cache   *cache.Cache
	log     zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(fetcher Fetcher, c *cache.Cache, log zerolog.Logger) *Handler {
	return &Handler{
		fetcher: fetcher,
		cache:   c,
		log:     log.With().Str("handler", "marketdata").Logger(),
	}
}

// HandleGetPrices handles GET /api/prices/{ticker}
// Query params: start_date, end_date (default: last 90 days).
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request, ticker string) {
	start := r.URL.Query().Get("start_date")
	end := r.URL.Query().Get("end_date")
	if end == "" {
		end = time.Now().Format("2006-01-02")
	}
	if start == "" {
		start = time.Now().AddDate(0, 0, -90).Format("2006-01-02")
	}

	recs, err := h.fetcher.GetPrices(r.Context(), ticker, start, end)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get prices")
		h.writeError(w, http.StatusBadGateway, "failed to get prices")
		return
	}
	h.writeRecords(w, ticker, "prices", recs)
}

// HandleGetFinancialMetrics handles GET /api/financial-metrics/{ticker}
// Query params: end_date, period (default "ttm"), limit (default 10).
func (h *Handler) HandleGetFinancialMetrics(w http.ResponseWriter, r *http.Request, ticker string) {
	end := queryOr(r, "end_date", time.Now().Format("2006-01-02"))
	period := queryOr(r, "period", "ttm")
	limit := queryAsInt(r, "limit", 10)

	recs, err := h.fetcher.GetFinancialMetrics(r.Context(), ticker, end, period, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get financial metrics")
		h.writeError(w, http.StatusBadGateway, "failed to get financial metrics")
		return
	}
	h.writeRecords(w, ticker, "financial_metrics", recs)
}

// HandleSearchLineItems handles POST /api/line-items
// Body: {"ticker": "...", "line_items": [...], "end_date": "...", "period": "...", "limit": N}
func (h *Handler) HandleSearchLineItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker    string   `json:"ticker"`
		LineItems []string `json:"line_items"`
		EndDate   string   `json:"end_date"`
		Period    string   `json:"period"`
		Limit     int      `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Ticker == "" || len(req.LineItems) == 0 {
		h.writeError(w, http.StatusBadRequest, "ticker and line_items are required")
		return
	}
	if req.EndDate == "" {
		req.EndDate = time.Now().Format("2006-01-02")
	}
	if req.Period == "" {
		req.Period = "ttm"
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	recs, err := h.fetcher.SearchLineItems(r.Context(), req.Ticker, req.LineItems, req.EndDate, req.Period, req.Limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", req.Ticker).Msg("Failed to search line items")
		h.writeError(w, http.StatusBadGateway, "failed to search line items")
		return
	}
	h.writeRecords(w, req.Ticker, "line_items", recs)
}

// HandleGetInsiderTrades handles GET /api/insider-trades/{ticker}
func (h *Handler) HandleGetInsiderTrades(w http.ResponseWriter, r *http.Request, ticker string) {
	end := queryOr(r, "end_date", time.Now().Format("2006-01-02"))
	limit := queryAsInt(r, "limit", 50)

	recs, err := h.fetcher.GetInsiderTrades(r.Context(), ticker, end, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get insider trades")
		h.writeError(w, http.StatusBadGateway, "failed to get insider trades")
		return
	}
	h.writeRecords(w, ticker, "insider_trades", recs)
}

// HandleGetCompanyNews handles GET /api/company-news/{ticker}
func (h *Handler) HandleGetCompanyNews(w http.ResponseWriter, r *http.Request, ticker string) {
	end := queryOr(r, "end_date", time.Now().Format("2006-01-02"))
	limit := queryAsInt(r, "limit", 50)

	recs, err := h.fetcher.GetCompanyNews(r.Context(), ticker, end, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get company news")
		h.writeError(w, http.StatusBadGateway, "failed to get company news")
		return
	}
	h.writeRecords(w, ticker, "company_news", recs)
}

// HandleGetIndicators handles GET /api/analysis/{ticker}/indicators
// Computes indicators over the ticker's cached price series. Returns 404
// when no prices are cached for the ticker; fetch or stream prices first.
func (h *Handler) HandleGetIndicators(w http.ResponseWriter, r *http.Request, ticker string) {
	bars, ok := h.cache.GetPrices(ticker)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no cached prices for ticker")
		return
	}

	ind, err := analysis.Compute(ticker, bars)
	if err != nil {
		h.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to compute indicators")
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"data": ind,
		"metadata": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeRecords(w http.ResponseWriter, ticker, field string, recs []cache.Record) {
	if recs == nil {
		recs = []cache.Record{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"ticker": ticker,
			field:    recs,
		},
		"metadata": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(recs),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

func queryOr(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

func queryAsInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
