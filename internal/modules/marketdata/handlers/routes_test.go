package handlers

import (
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestRegisterRoutes(t *testing.T) {
	h, _ := newTestHandler(newStubFetcher(nil, nil))

	router := chi.NewRouter()
	assert.NotPanics(t, func() {
		h.RegisterRoutes(router)
	}, "RegisterRoutes should not panic")

	patterns := []string{}
	for _, route := range router.Routes() {
		patterns = append(patterns, route.Pattern)
	}
	assert.Contains(t, patterns, "/prices/{ticker}")
	assert.Contains(t, patterns, "/line-items")
	assert.Contains(t, patterns, "/analysis/{ticker}/indicators")
}
