// Package cache provides the in-memory market data cache shared by every
// data-fetching component. It holds API responses (prices, financial metrics,
// line items, insider trades, company news) keyed by ticker, with per-ticker
// expiration, merge-on-write deduplication, and a per-category size limit.
//
// The cache is content-agnostic: records are open key-value maps and the only
// field it ever reads is the category's dedup field. One instance is created
// in main and injected into every consumer.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Category identifies one of the five independent record stores.
type Category string

const (
	Prices           Category = "prices"
	FinancialMetrics Category = "financial_metrics"
	LineItems        Category = "line_items"
	InsiderTrades    Category = "insider_trades"
	CompanyNews      Category = "company_news"
)

// Categories lists all stores in a stable order.
var Categories = []Category{Prices, FinancialMetrics, LineItems, InsiderTrades, CompanyNews}

// dedupFields maps each category to the record field whose value must be
// unique within a ticker's record list.
var dedupFields = map[Category]string{
	Prices:           "time",
	FinancialMetrics: "report_period",
	LineItems:        "report_period",
	InsiderTrades:    "filing_date",
	CompanyNews:      "date",
}

// Record is a single schema-free API response row.
type Record map[string]any

const (
	// MaxEntriesPerCategory caps the number of tickers held per category.
	// Exceeding it evicts the oldest-inserted tickers first.
	MaxEntriesPerCategory = 10_000

	// DefaultTTL applies to writes until SetTTL changes it.
	DefaultTTL = time.Hour
)

// store is one category's ticker → record-list mapping with explicit
// insertion-order tracking, so FIFO eviction has a defined victim.
// Overwriting an existing ticker keeps its original insertion slot.
type store struct {
	records map[string][]Record
	order   *list.List // ticker strings, oldest at the front
	elems   map[string]*list.Element
}

func newStore() *store {
	return &store{
		records: make(map[string][]Record),
		order:   list.New(),
		elems:   make(map[string]*list.Element),
	}
}

func (s *store) get(ticker string) ([]Record, bool) {
	recs, ok := s.records[ticker]
	return recs, ok
}

func (s *store) put(ticker string, recs []Record) {
	if _, exists := s.records[ticker]; !exists {
		s.elems[ticker] = s.order.PushBack(ticker)
	}
	s.records[ticker] = recs
}

func (s *store) delete(ticker string) {
	if elem, ok := s.elems[ticker]; ok {
		s.order.Remove(elem)
		delete(s.elems, ticker)
	}
	delete(s.records, ticker)
}

// evictOldest removes the oldest-inserted ticker and reports which one.
func (s *store) evictOldest() (string, bool) {
	front := s.order.Front()
	if front == nil {
		return "", false
	}
	ticker := front.Value.(string)
	s.delete(ticker)
	return ticker, true
}

func (s *store) len() int {
	return len(s.records)
}

// Cache is the in-memory market data cache. A single mutex guards all five
// category stores, the shared expiry map, and the TTL, so a write to one
// category is atomic relative to reads of any other. Public methods take the
// lock exactly once and delegate to unexported unlocked helpers; no public
// call ever nests another locking call.
type Cache struct {
	mu         sync.Mutex
	stores     map[Category]*store
	expiry     map[string]time.Time // shared across categories, keyed by ticker
	ttl        time.Duration
	maxEntries int
	log        zerolog.Logger
	now        func() time.Time // swapped in expiry tests
}

// New creates an empty cache with the default TTL and size limit.
func New(log zerolog.Logger) *Cache {
	stores := make(map[Category]*store, len(Categories))
	for _, cat := range Categories {
		stores[cat] = newStore()
	}
	return &Cache{
		stores:     stores,
		expiry:     make(map[string]time.Time),
		ttl:        DefaultTTL,
		maxEntries: MaxEntriesPerCategory,
		log:        log.With().Str("component", "cache").Logger(),
		now:        time.Now,
	}
}

// get returns the record list for a ticker in one category. Must be called
// with the lock held.
//
// Expiry is checked lazily: a stale ticker is dropped from the category being
// read and from the expiry map. Sibling categories keep their entries until
// they are themselves read or overwritten.
func (c *Cache) get(cat Category, ticker string) ([]Record, bool) {
	st := c.stores[cat]
	if exp, tracked := c.expiry[ticker]; tracked && c.now().After(exp) {
		st.delete(ticker)
		delete(c.expiry, ticker)
		return nil, false
	}
	recs, ok := st.get(ticker)
	if !ok {
		return nil, false
	}
	// Fresh slice header over the shared record maps. Callers may reorder or
	// truncate the result; they must not mutate the records themselves.
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, true
}

// set merges records into a ticker's list, refreshes the ticker's shared
// expiry, and enforces the category size limit. Must be called with the lock
// held.
func (c *Cache) set(cat Category, ticker string, records []Record) {
	st := c.stores[cat]
	existing, _ := st.get(ticker)
	st.put(ticker, mergeRecords(existing, records, dedupFields[cat]))

	// The expiry is per ticker, not per category: a write to any category
	// keeps all of the ticker's cached data alive.
	c.expiry[ticker] = c.now().Add(c.ttl)

	for st.len() > c.maxEntries {
		evicted, ok := st.evictOldest()
		if !ok {
			break
		}
		c.log.Debug().
			Str("category", string(cat)).
			Str("ticker", evicted).
			Msg("Evicted oldest ticker to enforce size limit")
	}
}

// mergeRecords appends to existing every incoming record whose dedup-field
// value has not been seen before, either in the existing list or earlier in
// the same batch. Existing order is preserved; new records keep input order.
func mergeRecords(existing, incoming []Record, field string) []Record {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[dedupValue(rec, field)] = struct{}{}
	}

	merged := make([]Record, len(existing), len(existing)+len(incoming))
	copy(merged, existing)
	for _, rec := range incoming {
		key := dedupValue(rec, field)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, rec)
	}
	return merged
}

// dedupValue renders a record's dedup-field value as a comparable string.
// The fields are date/timestamp strings in practice, but snapshot round-trips
// can widen numeric types, so formatting keeps comparisons stable.
func dedupValue(rec Record, field string) string {
	return fmt.Sprint(rec[field])
}

// GetPrices returns cached price data for a ticker, if present and fresh.
func (c *Cache) GetPrices(ticker string) ([]Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(Prices, ticker)
}

// SetPrices merges price records into the cache and refreshes the ticker's
// expiry. Prices dedup on the "time" field.
func (c *Cache) SetPrices(ticker string, records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(Prices, ticker, records)
}

// GetFinancialMetrics returns cached financial metrics for a ticker, if
// present and fresh.
func (c *Cache) GetFinancialMetrics(ticker string) ([]Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(FinancialMetrics, ticker)
}

// SetFinancialMetrics merges financial metric records into the cache.
// Metrics dedup on the "report_period" field.
func (c *Cache) SetFinancialMetrics(ticker string, records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(FinancialMetrics, ticker, records)
}

// GetLineItems returns cached line items for a ticker, if present and fresh.
func (c *Cache) GetLineItems(ticker string) ([]Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(LineItems, ticker)
}

// SetLineItems merges line item records into the cache. Line items dedup on
// the "report_period" field.
func (c *Cache) SetLineItems(ticker string, records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(LineItems, ticker, records)
}

// GetInsiderTrades returns cached insider trades for a ticker, if present
// and fresh.
func (c *Cache) GetInsiderTrades(ticker string) ([]Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(InsiderTrades, ticker)
}

// SetInsiderTrades merges insider trade records into the cache. Insider
// trades dedup on the "filing_date" field.
func (c *Cache) SetInsiderTrades(ticker string, records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(InsiderTrades, ticker, records)
}

// GetCompanyNews returns cached company news for a ticker, if present and
// fresh.
func (c *Cache) GetCompanyNews(ticker string) ([]Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(CompanyNews, ticker)
}

// SetCompanyNews merges company news records into the cache. News dedups on
// the "date" field.
func (c *Cache) SetCompanyNews(ticker string, records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(CompanyNews, ticker, records)
}

// SetTTL replaces the TTL applied to future writes. Already-stored expiry
// timestamps are not changed.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// TTL returns the TTL currently applied to writes.
func (c *Cache) TTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl
}

// Stats describes the cache's current occupancy.
type Stats struct {
	Entries        map[Category]int `json:"entries"`
	TrackedTickers int              `json:"tracked_tickers"`
	TTLSeconds     float64          `json:"ttl_seconds"`
}

// Stats returns per-category entry counts and the number of tickers with a
// tracked expiry. Expired-but-unread entries are included in the counts.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make(map[Category]int, len(c.stores))
	for cat, st := range c.stores {
		entries[cat] = st.len()
	}
	return Stats{
		Entries:        entries,
		TrackedTickers: len(c.expiry),
		TTLSeconds:     c.ttl.Seconds(),
	}
}
