package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() *Cache {
	return New(zerolog.New(nil).Level(zerolog.Disabled))
}

func priceRecord(ts string, close float64) Record {
	return Record{"time": ts, "close": close}
}

func TestGetUnknownTickerReturnsAbsent(t *testing.T) {
	c := newTestCache()

	recs, ok := c.GetPrices("AAPL")
	assert.False(t, ok)
	assert.Nil(t, recs)
}

func TestSetThenGetRoundTrip(t *testing.T) {
	c := newTestCache()

	c.SetPrices("AAPL", []Record{
		priceRecord("2026-08-24T00:00:00Z", 219.5),
		priceRecord("2026-08-25T00:00:00Z", 221.1),
	})

	recs, ok := c.GetPrices("AAPL")
	require.True(t, ok)
	require.Len(t, recs, 2)
	assert.Equal(t, "2026-08-24T00:00:00Z", recs[0]["time"])
	assert.Equal(t, "2026-08-25T00:00:00Z", recs[1]["time"])
}

func TestMergeDeduplicatesAcrossSets(t *testing.T) {
	c := newTestCache()

	c.SetPrices("AAPL", []Record{
		priceRecord("2026-08-24T00:00:00Z", 219.5),
		priceRecord("2026-08-25T00:00:00Z", 221.1),
	})
	// Overlapping second batch: one duplicate timestamp, one new.
	c.SetPrices("AAPL", []Record{
		priceRecord("2026-08-25T00:00:00Z", 999.9),
		priceRecord("2026-08-26T00:00:00Z", 222.7),
	})

	recs, ok := c.GetPrices("AAPL")
	require.True(t, ok)
	require.Len(t, recs, 3)

	// First-seen order, and the first-seen record wins for a duplicate key.
	assert.Equal(t, "2026-08-24T00:00:00Z", recs[0]["time"])
	assert.Equal(t, "2026-08-25T00:00:00Z", recs[1]["time"])
	assert.Equal(t, 221.1, recs[1]["close"])
	assert.Equal(t, "2026-08-26T00:00:00Z", recs[2]["time"])
}

func TestMergeDeduplicatesWithinOneBatch(t *testing.T) {
	c := newTestCache()

	c.SetCompanyNews("AAPL", []Record{
		{"date": "2026-08-25", "title": "first"},
		{"date": "2026-08-25", "title": "second"},
	})

	recs, ok := c.GetCompanyNews("AAPL")
	require.True(t, ok)
	require.Len(t, recs, 1)
	assert.Equal(t, "first", recs[0]["title"])
}

func TestCategoriesUseTheirOwnDedupFields(t *testing.T) {
	tests := []struct {
		name  string
		set   func(c *Cache, ticker string, recs []Record)
		get   func(c *Cache, ticker string) ([]Record, bool)
		field string
	}{
		{"prices", (*Cache).SetPrices, (*Cache).GetPrices, "time"},
		{"financial_metrics", (*Cache).SetFinancialMetrics, (*Cache).GetFinancialMetrics, "report_period"},
		{"line_items", (*Cache).SetLineItems, (*Cache).GetLineItems, "report_period"},
		{"insider_trades", (*Cache).SetInsiderTrades, (*Cache).GetInsiderTrades, "filing_date"},
		{"company_news", (*Cache).SetCompanyNews, (*Cache).GetCompanyNews, "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache()
			tt.set(c, "MSFT", []Record{{tt.field: "2026-06-30"}})
			tt.set(c, "MSFT", []Record{{tt.field: "2026-06-30"}, {tt.field: "2026-03-31"}})

			recs, ok := tt.get(c, "MSFT")
			require.True(t, ok)
			assert.Len(t, recs, 2)
		})
	}
}

func TestCategoriesAreIndependentStores(t *testing.T) {
	c := newTestCache()

	c.SetPrices("AAPL", []Record{priceRecord("2026-08-25T00:00:00Z", 221.1)})

	_, ok := c.GetCompanyNews("AAPL")
	assert.False(t, ok, "a prices write must not create a news entry")
}

func TestExpiredTickerReturnsAbsent(t *testing.T) {
	c := newTestCache()
	base := time.Now()
	c.now = func() time.Time { return base }

	c.SetPrices("AAPL", []Record{priceRecord("2026-08-25T00:00:00Z", 221.1)})

	// Just before the TTL boundary the data is still served.
	c.now = func() time.Time { return base.Add(DefaultTTL - time.Second) }
	_, ok := c.GetPrices("AAPL")
	assert.True(t, ok)

	// Just after, it is gone.
	c.now = func() time.Time { return base.Add(DefaultTTL + time.Second) }
	_, ok = c.GetPrices("AAPL")
	assert.False(t, ok)

	// The expired read also dropped the expiry record, so a re-read at any
	// later time still reports absent rather than re-evicting.
	c.now = func() time.Time { return base.Add(48 * time.Hour) }
	_, ok = c.GetPrices("AAPL")
	assert.False(t, ok)
}

func TestWriteToAnyCategoryRefreshesSharedExpiry(t *testing.T) {
	c := newTestCache()
	base := time.Now()
	c.now = func() time.Time { return base }

	c.SetPrices("AAPL", []Record{priceRecord("2026-08-25T00:00:00Z", 221.1)})

	// A later write to a different category refreshes the ticker's expiry.
	c.now = func() time.Time { return base.Add(30 * time.Minute) }
	c.SetLineItems("AAPL", []Record{{"report_period": "2026-06-30"}})

	// Past the original deadline but within the refreshed one.
	c.now = func() time.Time { return base.Add(DefaultTTL + time.Minute) }
	_, ok := c.GetPrices("AAPL")
	assert.True(t, ok, "line_items write should have kept the prices entry alive")

	// Past the refreshed deadline as well.
	c.now = func() time.Time { return base.Add(30*time.Minute + DefaultTTL + time.Minute) }
	_, ok = c.GetPrices("AAPL")
	assert.False(t, ok)
}

func TestExpiredReadLeavesSiblingCategoriesStored(t *testing.T) {
	c := newTestCache()
	base := time.Now()
	c.now = func() time.Time { return base }

	c.SetPrices("AAPL", []Record{priceRecord("2026-08-25T00:00:00Z", 221.1)})
	c.SetCompanyNews("AAPL", []Record{{"date": "2026-08-25", "title": "earnings"}})

	c.now = func() time.Time { return base.Add(DefaultTTL + time.Second) }
	_, ok := c.GetPrices("AAPL")
	require.False(t, ok)

	// The expired prices read cleared the shared expiry record without
	// touching the news store, so the stale news entry is now served as if
	// fresh. Matches the lazy, per-category eviction contract.
	recs, ok := c.GetCompanyNews("AAPL")
	assert.True(t, ok)
	assert.Len(t, recs, 1)
}

func TestSetTTLAppliesToFutureWritesOnly(t *testing.T) {
	c := newTestCache()
	base := time.Now()
	c.now = func() time.Time { return base }

	c.SetPrices("AAPL", []Record{priceRecord("2026-08-25T00:00:00Z", 221.1)})
	c.SetTTL(10 * time.Minute)
	c.SetPrices("MSFT", []Record{priceRecord("2026-08-25T00:00:00Z", 504.2)})

	c.now = func() time.Time { return base.Add(20 * time.Minute) }
	_, ok := c.GetPrices("AAPL")
	assert.True(t, ok, "AAPL was written under the 1h TTL")
	_, ok = c.GetPrices("MSFT")
	assert.False(t, ok, "MSFT was written under the 10m TTL")
}

func TestEvictionRemovesOldestInsertedTicker(t *testing.T) {
	c := newTestCache()
	c.maxEntries = 3

	for i := 0; i < 4; i++ {
		ticker := fmt.Sprintf("T%d", i)
		c.SetPrices(ticker, []Record{priceRecord("2026-08-25T00:00:00Z", float64(i))})
	}

	_, ok := c.GetPrices("T0")
	assert.False(t, ok, "first-inserted ticker should have been evicted")
	for i := 1; i < 4; i++ {
		_, ok := c.GetPrices(fmt.Sprintf("T%d", i))
		assert.True(t, ok, "ticker T%d should survive", i)
	}
}

func TestEvictionIsPerCategory(t *testing.T) {
	c := newTestCache()
	c.maxEntries = 2

	c.SetPrices("T0", []Record{priceRecord("a", 1)})
	c.SetCompanyNews("T0", []Record{{"date": "2026-08-25"}})
	c.SetPrices("T1", []Record{priceRecord("a", 1)})
	c.SetPrices("T2", []Record{priceRecord("a", 1)})

	_, ok := c.GetPrices("T0")
	assert.False(t, ok, "prices store exceeded its bound")
	_, ok = c.GetCompanyNews("T0")
	assert.True(t, ok, "news store never exceeded its bound")
}

func TestOverwriteKeepsOriginalInsertionSlot(t *testing.T) {
	c := newTestCache()
	c.maxEntries = 2

	c.SetPrices("T0", []Record{priceRecord("a", 1)})
	c.SetPrices("T1", []Record{priceRecord("a", 1)})
	// Re-writing T0 must not move it to the back of the eviction order.
	c.SetPrices("T0", []Record{priceRecord("b", 2)})
	c.SetPrices("T2", []Record{priceRecord("a", 1)})

	_, ok := c.GetPrices("T0")
	assert.False(t, ok, "T0 keeps its original insertion slot and is evicted first")
	_, ok = c.GetPrices("T1")
	assert.True(t, ok)
}

func TestEvictionAtFullBound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full-bound eviction test in short mode")
	}
	c := newTestCache()

	for i := 0; i <= MaxEntriesPerCategory; i++ {
		c.SetInsiderTrades(fmt.Sprintf("T%05d", i), []Record{{"filing_date": "2026-08-25"}})
	}

	_, ok := c.GetInsiderTrades("T00000")
	assert.False(t, ok)
	_, ok = c.GetInsiderTrades("T00001")
	assert.True(t, ok)
	assert.Equal(t, MaxEntriesPerCategory, c.Stats().Entries[InsiderTrades])
}

func TestGetReturnsIndependentSliceHeader(t *testing.T) {
	c := newTestCache()

	c.SetPrices("AAPL", []Record{
		priceRecord("2026-08-24T00:00:00Z", 219.5),
		priceRecord("2026-08-25T00:00:00Z", 221.1),
	})

	recs, ok := c.GetPrices("AAPL")
	require.True(t, ok)

	// Reordering the returned slice must not disturb the stored list.
	recs[0], recs[1] = recs[1], recs[0]

	again, ok := c.GetPrices("AAPL")
	require.True(t, ok)
	require.Len(t, again, 2)
	assert.Equal(t, "2026-08-24T00:00:00Z", again[0]["time"])
}

func TestStats(t *testing.T) {
	c := newTestCache()

	c.SetPrices("AAPL", []Record{priceRecord("a", 1)})
	c.SetPrices("MSFT", []Record{priceRecord("a", 1)})
	c.SetCompanyNews("AAPL", []Record{{"date": "2026-08-25"}})

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries[Prices])
	assert.Equal(t, 1, stats.Entries[CompanyNews])
	assert.Equal(t, 0, stats.Entries[LineItems])
	assert.Equal(t, 2, stats.TrackedTickers)
	assert.Equal(t, DefaultTTL.Seconds(), stats.TTLSeconds)
}

func TestConcurrentAccessIsRaceFree(t *testing.T) {
	c := newTestCache()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ticker := fmt.Sprintf("T%d", w%4)
			for i := 0; i < 200; i++ {
				c.SetPrices(ticker, []Record{priceRecord(fmt.Sprintf("ts-%d-%d", w, i), float64(i))})
				c.GetPrices(ticker)
				c.SetCompanyNews(ticker, []Record{{"date": fmt.Sprintf("d-%d-%d", w, i)}})
				c.GetCompanyNews(ticker)
			}
		}(w)
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, 4, stats.Entries[Prices])
	assert.Equal(t, 4, stats.Entries[CompanyNews])
}
