package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/stockpile/internal/cache"
)

// CacheHandlers exposes cache administration endpoints.
type CacheHandlers struct {
	cache *cache.Cache
	log   zerolog.Logger
}

// NewCacheHandlers creates cache admin handlers.
func NewCacheHandlers(c *cache.Cache, log zerolog.Logger) *CacheHandlers {
	return &CacheHandlers{
		cache: c,
		log:   log.With().Str("handler", "cache").Logger(),
	}
}

// RegisterRoutes registers cache admin routes
func (h *CacheHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", h.HandleGetStats)
		r.Put("/ttl", h.HandleSetTTL)
	})
}

// HandleGetStats handles GET /api/cache/stats
func (h *CacheHandlers) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data": h.cache.Stats(),
		"metadata": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSetTTL handles PUT /api/cache/ttl
// Body: {"ttl": "90m"} — a Go duration string. Applies to future writes
// only; entries already cached keep their original expiry.
func (h *CacheHandlers) HandleSetTTL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TTL string `json:"ttl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ttl, err := time.ParseDuration(req.TTL)
	if err != nil || ttl <= 0 {
		h.writeError(w, http.StatusBadRequest, "ttl must be a positive duration like \"90m\"")
		return
	}

	h.cache.SetTTL(ttl)
	h.log.Info().Dur("ttl", ttl).Msg("Cache TTL updated")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"ttl_seconds": ttl.Seconds(),
		},
	})
}

func (h *CacheHandlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *CacheHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
