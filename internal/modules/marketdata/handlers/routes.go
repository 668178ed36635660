package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/prices/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		h.HandleGetPrices(w, r, chi.URLParam(r, "ticker"))
	})
	r.Get("/financial-metrics/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		h.HandleGetFinancialMetrics(w, r, chi.URLParam(r, "ticker"))
	})
	r.Post("/line-items", h.HandleSearchLineItems)
	r.Get("/insider-trades/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		h.HandleGetInsiderTrades(w, r, chi.URLParam(r, "ticker"))
	})
	r.Get("/company-news/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		h.HandleGetCompanyNews(w, r, chi.URLParam(r, "ticker"))
	})
	r.Get("/analysis/{ticker}/indicators", func(w http.ResponseWriter, r *http.Request) {
		h.HandleGetIndicators(w, r, chi.URLParam(r, "ticker"))
	})
}
