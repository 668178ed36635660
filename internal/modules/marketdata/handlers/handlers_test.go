package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/stockpile/internal/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher returns canned records and counts calls per method.
type stubFetcher struct {
	records []cache.Record
	err     error
	calls   map[string]int
}

func newStubFetcher(records []cache.Record, err error) *stubFetcher {
	return &stubFetcher{records: records, err: err, calls: map[string]int{}}
}

func (s *stubFetcher) GetPrices(_ context.Context, ticker, _, _ string) ([]cache.Record, error) {
	s.calls["prices"]++
	return s.records, s.err
}

func (s *stubFetcher) GetFinancialMetrics(_ context.Context, _, _, _ string, _ int) ([]cache.Record, error) {
	s.calls["financial_metrics"]++
	return s.records, s.err
}

func (s *stubFetcher) SearchLineItems(_ context.Context, _ string, _ []string, _, _ string, _ int) ([]cache.Record, error) {
	s.calls["line_items"]++
	return s.records, s.err
}

func (s *stubFetcher) GetInsiderTrades(_ context.Context, _, _ string, _ int) ([]cache.Record, error) {
	s.calls["insider_trades"]++
	return s.records, s.err
}

func (s *stubFetcher) GetCompanyNews(_ context.Context, _, _ string, _ int) ([]cache.Record, error) {
	s.calls["company_news"]++
	return s.records, s.err
}

func newTestHandler(fetcher Fetcher) (*Handler, *cache.Cache) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	c := cache.New(log)
	return NewHandler(fetcher, c, log), c
}

func TestHandleGetPrices(t *testing.T) {
	fetcher := newStubFetcher([]cache.Record{{"time": "2026-08-25T00:00:00Z", "close": 221.1}}, nil)
	h, _ := newTestHandler(fetcher)

	rec := httptest.NewRecorder()
	h.HandleGetPrices(rec, httptest.NewRequest(http.MethodGet, "/api/prices/AAPL", nil), "AAPL")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ticker":"AAPL"`)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Equal(t, 1, fetcher.calls["prices"])
}

func TestHandleGetPricesUpstreamError(t *testing.T) {
	fetcher := newStubFetcher(nil, fmt.Errorf("upstream down"))
	h, _ := newTestHandler(fetcher)

	rec := httptest.NewRecorder()
	h.HandleGetPrices(rec, httptest.NewRequest(http.MethodGet, "/api/prices/AAPL", nil), "AAPL")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleSearchLineItemsValidation(t *testing.T) {
	fetcher := newStubFetcher(nil, nil)
	h, _ := newTestHandler(fetcher)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing ticker", `{"line_items":["revenue"]}`, http.StatusBadRequest},
		{"missing line items", `{"ticker":"AAPL"}`, http.StatusBadRequest},
		{"valid", `{"ticker":"AAPL","line_items":["revenue"]}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/line-items", strings.NewReader(tt.body))
			h.HandleSearchLineItems(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, 1, fetcher.calls["line_items"], "only the valid request reaches the fetcher")
}

func TestHandleGetInsiderTradesAndNews(t *testing.T) {
	fetcher := newStubFetcher([]cache.Record{{"filing_date": "2026-08-20"}}, nil)
	h, _ := newTestHandler(fetcher)

	rec := httptest.NewRecorder()
	h.HandleGetInsiderTrades(rec, httptest.NewRequest(http.MethodGet, "/api/insider-trades/AAPL", nil), "AAPL")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleGetCompanyNews(rec, httptest.NewRequest(http.MethodGet, "/api/company-news/AAPL?limit=5", nil), "AAPL")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, fetcher.calls["insider_trades"])
	assert.Equal(t, 1, fetcher.calls["company_news"])
}

func TestHandleGetIndicatorsRequiresCachedPrices(t *testing.T) {
	h, c := newTestHandler(newStubFetcher(nil, nil))

	rec := httptest.NewRecorder()
	h.HandleGetIndicators(rec, httptest.NewRequest(http.MethodGet, "/api/analysis/AAPL/indicators", nil), "AAPL")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// One bar is cached but not enough for indicator math.
	c.SetPrices("AAPL", []cache.Record{{"time": "2026-08-25T00:00:00Z", "close": 221.1}})
	rec = httptest.NewRecorder()
	h.HandleGetIndicators(rec, httptest.NewRequest(http.MethodGet, "/api/analysis/AAPL/indicators", nil), "AAPL")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	c.SetPrices("AAPL", []cache.Record{{"time": "2026-08-26T00:00:00Z", "close": 222.7}})
	rec = httptest.NewRecorder()
	h.HandleGetIndicators(rec, httptest.NewRequest(http.MethodGet, "/api/analysis/AAPL/indicators", nil), "AAPL")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bars":2`)
}
