// Package analysis computes technical indicators and return statistics over
// cached price series. It reads the cache's schema-free price records and
// never touches the network; a ticker must be fetched (or streamed) before
// it can be analyzed.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/stockpile/internal/cache"
	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

const (
	smaPeriod = 20
	emaPeriod = 20
	rsiPeriod = 14

	// Trading days per year, for annualizing daily volatility.
	tradingDays = 252
)

// Indicators summarizes a ticker's cached price series. Indicator fields are
// nil when the series is too short for their lookback period.
type Indicators struct {
	Ticker    string  `json:"ticker"`
	Bars      int     `json:"bars"`
	FirstTime string  `json:"first_time"`
	LastTime  string  `json:"last_time"`
	LastClose float64 `json:"last_close"`

	SMA20 *float64 `json:"sma_20,omitempty"`
	EMA20 *float64 `json:"ema_20,omitempty"`
	RSI14 *float64 `json:"rsi_14,omitempty"`

	MeanDailyReturn      float64 `json:"mean_daily_return"`
	DailyReturnStdDev    float64 `json:"daily_return_std_dev"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
}

// Compute derives indicators from a ticker's cached price records. Records
// are sorted by their "time" field (merge order is arrival order, and
// streamed bars can interleave with backfills). At least two bars with
// usable close prices are required.
func Compute(ticker string, bars []cache.Record) (*Indicators, error) {
	type bar struct {
		time  string
		close float64
	}

	series := make([]bar, 0, len(bars))
	for _, rec := range bars {
		ts, _ := rec["time"].(string)
		close, ok := asFloat(rec["close"])
		if ts == "" || !ok {
			continue
		}
		series = append(series, bar{time: ts, close: close})
	}
	if len(series) < 2 {
		return nil, fmt.Errorf("not enough price data for %s: have %d usable bars, need at least 2", ticker, len(series))
	}

	// ISO-8601 timestamps sort correctly as strings.
	sort.Slice(series, func(i, j int) bool { return series[i].time < series[j].time })

	closes := make([]float64, len(series))
	for i, b := range series {
		closes[i] = b.close
	}

	logReturns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 && closes[i] > 0 {
			logReturns = append(logReturns, math.Log(closes[i]/closes[i-1]))
		}
	}

	ind := &Indicators{
		Ticker:    ticker,
		Bars:      len(series),
		FirstTime: series[0].time,
		LastTime:  series[len(series)-1].time,
		LastClose: closes[len(closes)-1],
	}

	if len(logReturns) > 1 {
		ind.MeanDailyReturn = stat.Mean(logReturns, nil)
		ind.DailyReturnStdDev = stat.StdDev(logReturns, nil)
		ind.AnnualizedVolatility = ind.DailyReturnStdDev * math.Sqrt(tradingDays)
	}

	if len(closes) >= smaPeriod {
		ind.SMA20 = lastValue(talib.Sma(closes, smaPeriod))
	}
	if len(closes) >= emaPeriod {
		ind.EMA20 = lastValue(talib.Ema(closes, emaPeriod))
	}
	if len(closes) > rsiPeriod {
		ind.RSI14 = lastValue(talib.Rsi(closes, rsiPeriod))
	}

	return ind, nil
}

// lastValue returns a pointer to the final element of a talib output series,
// or nil when the series is empty or ends in NaN.
func lastValue(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// asFloat widens the numeric types a record value can arrive as: float64
// from JSON, or integer variants after a msgpack snapshot round trip.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
