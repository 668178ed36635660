// Package handlers provides HTTP handlers for snapshot operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/stockpile/internal/cache"
	"github.com/aristath/stockpile/internal/modules/snapshots"
	"github.com/rs/zerolog"
)

// Handler handles snapshot HTTP requests
type Handler struct {
	cache        *cache.Cache
	catalog      *snapshots.Catalog
	snapshotPath string
	log          zerolog.Logger
}

// NewHandler creates a new snapshots handler
func NewHandler(
	c *cache.Cache,
	catalog *snapshots.Catalog,
	snapshotPath string,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		cache:        c,
		catalog:      catalog,
		snapshotPath: snapshotPath,
		log:          log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleList handles GET /api/snapshots
// Returns the snapshot catalog, newest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.catalog.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		h.writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if entries == nil {
		entries = []snapshots.Entry{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"snapshots": entries,
		},
		"metadata": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSave handles POST /api/snapshots/save
// Writes the cache to the configured snapshot path and catalogs the result.
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.SaveSnapshot(h.snapshotPath); err != nil {
		h.log.Error().Err(err).Str("path", h.snapshotPath).Msg("Failed to save snapshot")
		h.writeError(w, http.StatusInternalServerError, "failed to save snapshot")
		return
	}

	entry, err := h.catalog.Record(h.snapshotPath)
	if err != nil {
		h.log.Error().Err(err).Msg("Snapshot saved but could not be cataloged")
		h.writeError(w, http.StatusInternalServerError, "snapshot saved but not cataloged")
		return
	}

	h.log.Info().Str("path", entry.Path).Int64("bytes", entry.SizeBytes).Msg("Snapshot saved")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data": entry,
	})
}

// HandleLoad handles POST /api/snapshots/load
// Replaces all in-memory cache state with the snapshot on disk. A missing
// snapshot file is a no-op, matching the warm-start behavior.
func (h *Handler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.LoadSnapshot(h.snapshotPath); err != nil {
		h.log.Error().Err(err).Str("path", h.snapshotPath).Msg("Failed to load snapshot")
		h.writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"loaded": true,
			"path":   h.snapshotPath,
			"stats":  h.cache.Stats(),
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
