package binance

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// DefaultStreamURL is the all-symbols book-ticker stream.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws/!bookTicker"

const (
	// streamWriteWait is the time allowed to write a control frame.
	streamWriteWait = 10 * time.Second

	// streamPongWait is the time allowed to read the next pong.
	streamPongWait = 60 * time.Second

	// streamPingPeriod sends pings at this interval. Must be less than pongWait.
	streamPingPeriod = (streamPongWait * 9) / 10

	// streamReconnectDelay is the base delay before attempting to reconnect.
	streamReconnectDelay = 2 * time.Second

	// streamMaxReconnectDelay caps the exponential backoff.
	streamMaxReconnectDelay = 60 * time.Second

	// tickerStaleAfter bounds how old a quote may be before the feed stops
	// reporting ready and the scanner falls back to REST.
	tickerStaleAfter = 10 * time.Second
)

// symbolResolver maps native exchange symbols to unified ones. The REST
// client provides it from its exchangeInfo snapshot.
type symbolResolver interface {
	ResolveNative(native string) (string, bool)
}

// TickerFeed maintains a live top-of-book snapshot from the exchange's
// combined book-ticker stream. It degrades gracefully: when the stream is
// down or stale, Ready reports false and callers fall back to REST polling.
type TickerFeed struct {
	wsURL    string
	resolver symbolResolver
	logger   *slog.Logger

	mu       sync.RWMutex
	tickers  map[string]domain.Ticker
	lastSeen time.Time
}

// NewTickerFeed creates a feed over wsURL (DefaultStreamURL when empty).
func NewTickerFeed(wsURL string, resolver symbolResolver, logger *slog.Logger) *TickerFeed {
	if wsURL == "" {
		wsURL = DefaultStreamURL
	}
	return &TickerFeed{
		wsURL:    wsURL,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "ticker_feed")),
		tickers:  make(map[string]domain.Ticker),
	}
}

// Run connects and consumes the stream until ctx is cancelled, reconnecting
// with exponential backoff. It always returns ctx.Err().
func (f *TickerFeed) Run(ctx context.Context) error {
	delay := streamReconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := f.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > streamMaxReconnectDelay {
			delay = streamMaxReconnectDelay
		}
	}
}

// Ready reports whether the snapshot is fresh enough to serve quotes.
func (f *TickerFeed) Ready() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.tickers) > 0 && time.Since(f.lastSeen) < tickerStaleAfter
}

// Snapshot returns a copy of the current top-of-book map.
func (f *TickerFeed) Snapshot() map[string]domain.Ticker {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]domain.Ticker, len(f.tickers))
	for k, v := range f.tickers {
		out[k] = v
	}
	return out
}

// consume runs one connection lifetime: dial, ping loop, read loop.
func (f *TickerFeed) consume(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.logger.Info("stream connected", slog.String("url", f.wsURL))

	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})
	// Binance pings the client; answering keeps the session alive past the
	// server's idle cutoff.
	conn.SetPingHandler(func(appData string) error {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleFrame(message)
	}
}

// handleFrame applies one book-ticker update to the snapshot.
func (f *TickerFeed) handleFrame(raw []byte) {
	var frame streamBookTicker
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Symbol == "" {
		return
	}

	unified, ok := f.resolver.ResolveNative(frame.Symbol)
	if !ok {
		return
	}

	bid, err1 := decimal.NewFromString(frame.BidPrice)
	ask, err2 := decimal.NewFromString(frame.AskPrice)
	if err1 != nil || err2 != nil {
		return
	}

	now := time.Now().UTC()
	f.mu.Lock()
	f.tickers[unified] = domain.Ticker{
		Symbol:     unified,
		Bid:        bid,
		Ask:        ask,
		CapturedAt: now,
	}
	f.lastSeen = now
	f.mu.Unlock()
}
