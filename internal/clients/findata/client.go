// Package findata provides a client for the Financial Datasets API, the
// upstream source for prices, financial metrics, line items, insider trades
// and company news.
//
// Every fetch is cache-first: the shared market data cache is consulted
// before the network, and responses are merged back into it afterwards. The
// cache is purely a request-deduplication and latency-reduction layer; the
// client never assumes a cached entry is complete for an arbitrary query.
package findata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aristath/stockpile/internal/cache"
	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.financialdatasets.ai"

// Client is the Financial Datasets API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *cache.Cache
	log        zerolog.Logger
}

// NewClient creates a new Financial Datasets client backed by the shared
// market data cache.
func NewClient(apiKey string, c *cache.Cache, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: c,
		log:   log.With().Str("component", "findata").Logger(),
	}
}

// SetBaseURL overrides the API base URL (used in tests and for proxies).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// GetPrices returns daily price bars for a ticker. Cached bars are served
// without a network round trip; fresh responses are merged into the cache
// keyed by bar timestamp.
func (c *Client) GetPrices(ctx context.Context, ticker, startDate, endDate string) ([]cache.Record, error) {
	if recs, ok := c.cache.GetPrices(ticker); ok {
		c.log.Debug().Str("ticker", ticker).Msg("Prices served from cache")
		return recs, nil
	}

	query := url.Values{}
	query.Set("ticker", ticker)
	query.Set("interval", "day")
	query.Set("interval_multiplier", "1")
	query.Set("start_date", startDate)
	query.Set("end_date", endDate)

	recs, err := c.getList(ctx, "/prices/", query, "prices")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices for %s: %w", ticker, err)
	}

	c.cache.SetPrices(ticker, recs)
	return recs, nil
}

// GetFinancialMetrics returns financial metric reports for a ticker, newest
// first, up to limit. Deduped in the cache by report period.
func (c *Client) GetFinancialMetrics(ctx context.Context, ticker, endDate, period string, limit int) ([]cache.Record, error) {
	if recs, ok := c.cache.GetFinancialMetrics(ticker); ok {
		c.log.Debug().Str("ticker", ticker).Msg("Financial metrics served from cache")
		return recs, nil
	}

	query := url.Values{}
	query.Set("ticker", ticker)
	query.Set("report_period_lte", endDate)
	query.Set("period", period)
	query.Set("limit", fmt.Sprintf("%d", limit))

	recs, err := c.getList(ctx, "/financial-metrics/", query, "financial_metrics")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch financial metrics for %s: %w", ticker, err)
	}

	c.cache.SetFinancialMetrics(ticker, recs)
	return recs, nil
}

// SearchLineItems returns specific financial statement line items for a
// ticker. This is the one POST endpoint in the API.
func (c *Client) SearchLineItems(ctx context.Context, ticker string, lineItems []string, endDate, period string, limit int) ([]cache.Record, error) {
	if recs, ok := c.cache.GetLineItems(ticker); ok {
		c.log.Debug().Str("ticker", ticker).Msg("Line items served from cache")
		return recs, nil
	}

	body := map[string]any{
		"tickers":    []string{ticker},
		"line_items": lineItems,
		"end_date":   endDate,
		"period":     period,
		"limit":      limit,
	}

	recs, err := c.postList(ctx, "/financials/search/line-items", body, "search_results")
	if err != nil {
		return nil, fmt.Errorf("failed to search line items for %s: %w", ticker, err)
	}

	c.cache.SetLineItems(ticker, recs)
	return recs, nil
}

// GetInsiderTrades returns insider trade filings for a ticker, deduped in
// the cache by filing date.
func (c *Client) GetInsiderTrades(ctx context.Context, ticker, endDate string, limit int) ([]cache.Record, error) {
	if recs, ok := c.cache.GetInsiderTrades(ticker); ok {
		c.log.Debug().Str("ticker", ticker).Msg("Insider trades served from cache")
		return recs, nil
	}

	query := url.Values{}
	query.Set("ticker", ticker)
	query.Set("filing_date_lte", endDate)
	query.Set("limit", fmt.Sprintf("%d", limit))

	recs, err := c.getList(ctx, "/insider-trades/", query, "insider_trades")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch insider trades for %s: %w", ticker, err)
	}

	c.cache.SetInsiderTrades(ticker, recs)
	return recs, nil
}

// GetCompanyNews returns news articles for a ticker, deduped in the cache by
// publication date.
func (c *Client) GetCompanyNews(ctx context.Context, ticker, endDate string, limit int) ([]cache.Record, error) {
	if recs, ok := c.cache.GetCompanyNews(ticker); ok {
		c.log.Debug().Str("ticker", ticker).Msg("Company news served from cache")
		return recs, nil
	}

	query := url.Values{}
	query.Set("ticker", ticker)
	query.Set("end_date", endDate)
	query.Set("limit", fmt.Sprintf("%d", limit))

	recs, err := c.getList(ctx, "/news/", query, "news")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch company news for %s: %w", ticker, err)
	}

	c.cache.SetCompanyNews(ticker, recs)
	return recs, nil
}

// getList performs a GET request and extracts the named list field from the
// JSON response envelope.
func (c *Client) getList(ctx context.Context, path string, query url.Values, field string) ([]cache.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, field)
}

// postList performs a POST request with a JSON body and extracts the named
// list field from the response envelope.
func (c *Client) postList(ctx context.Context, path string, body any, field string) ([]cache.Record, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, field)
}

func (c *Client) do(req *http.Request, field string) ([]cache.Record, error) {
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	raw, ok := envelope[field]
	if !ok {
		return nil, fmt.Errorf("response missing %q field", field)
	}
	var records []cache.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %q list: %w", field, err)
	}
	return records, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
