package findata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aristath/stockpile/internal/cache"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	dialTimeout       = 30 * time.Second
	writeWait         = 10 * time.Second
	baseReconnectWait = 5 * time.Second
	maxReconnectWait  = 5 * time.Minute
)

// PriceTick is a single real-time price update from the stream.
type PriceTick struct {
	Ticker string  `json:"ticker"`
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// PriceStream folds real-time price ticks into the shared cache. Each tick
// becomes a one-record merge keyed by the bar timestamp, so replayed ticks
// for a bar already cached are dropped by the dedup merge.
type PriceStream struct {
	url     string
	tickers []string
	cache   *cache.Cache
	log     zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewPriceStream creates a stream client for the given websocket URL and
// ticker subscriptions.
func NewPriceStream(url string, tickers []string, c *cache.Cache, log zerolog.Logger) *PriceStream {
	return &PriceStream{
		url:     url,
		tickers: tickers,
		cache:   c,
		log:     log.With().Str("component", "price_stream").Logger(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the connect/read loop in the background. Connection
// failures are retried with exponential backoff until Stop is called.
func (s *PriceStream) Start() {
	s.log.Info().Str("url", s.url).Strs("tickers", s.tickers).Msg("Starting price stream")
	go s.run()
}

// Stop closes the connection and stops the reconnect loop. Safe to call once.
func (s *PriceStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stop)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	<-s.done
	s.log.Info().Msg("Price stream stopped")
}

func (s *PriceStream) run() {
	defer close(s.done)

	attempt := 0
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if err := s.connectAndRead(); err != nil {
			s.log.Warn().Err(err).Msg("Price stream disconnected")
		}

		select {
		case <-s.stop:
			return
		case <-time.After(reconnectWait(attempt)):
			attempt++
		}
	}
}

// connectAndRead dials the stream, subscribes, and consumes ticks until the
// connection drops or Stop is called.
func (s *PriceStream) connectAndRead() error {
	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close(websocket.StatusInternalError, "read loop exited")
	}()

	if err := s.subscribe(conn); err != nil {
		return err
	}
	s.log.Info().Msg("Price stream connected")

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		s.handleMessage(data)
	}
}

func (s *PriceStream) subscribe(conn *websocket.Conn) error {
	msg, err := json.Marshal(map[string]any{
		"action":  "subscribe",
		"tickers": s.tickers,
	})
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("failed to send subscription: %w", err)
	}
	return nil
}

// handleMessage parses one stream frame and merges it into the cache.
// Malformed frames are logged and skipped; a bad upstream message must not
// kill the stream.
func (s *PriceStream) handleMessage(data []byte) {
	var tick PriceTick
	if err := json.Unmarshal(data, &tick); err != nil {
		s.log.Warn().Err(err).Msg("Dropping malformed stream message")
		return
	}
	if tick.Ticker == "" || tick.Time == "" {
		s.log.Warn().RawJSON("frame", data).Msg("Dropping stream message without ticker/time")
		return
	}
	s.applyTick(tick)
}

// applyTick merges a tick into the prices cache as a single-record write.
func (s *PriceStream) applyTick(tick PriceTick) {
	s.cache.SetPrices(tick.Ticker, []cache.Record{{
		"time":   tick.Time,
		"open":   tick.Open,
		"high":   tick.High,
		"low":    tick.Low,
		"close":  tick.Close,
		"volume": tick.Volume,
	}})
}

// reconnectWait returns the backoff delay for the given attempt number,
// doubling from the base delay up to the cap.
func reconnectWait(attempt int) time.Duration {
	wait := time.Duration(float64(baseReconnectWait) * math.Pow(2, float64(attempt)))
	if wait > maxReconnectWait || wait <= 0 {
		return maxReconnectWait
	}
	return wait
}
