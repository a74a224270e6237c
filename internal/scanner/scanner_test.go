package scanner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// flakyGateway fails ListActivePairs a fixed number of times before
// recovering, counting every call.
type flakyGateway struct {
	calls     atomic.Int64
	failFirst int64
}

func (g *flakyGateway) ListActivePairs(ctx context.Context) ([]domain.PairInfo, error) {
	if g.calls.Add(1) <= g.failFirst {
		return nil, errors.New("exchange unavailable")
	}
	return nil, nil
}

func (g *flakyGateway) GetTickers(ctx context.Context) (map[string]domain.Ticker, error) {
	return map[string]domain.Ticker{}, nil
}

func (g *flakyGateway) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	return domain.OrderBook{}, domain.ErrPairNotFound
}

func (g *flakyGateway) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty decimal.Decimal) (domain.OrderResult, error) {
	return domain.OrderResult{}, domain.ErrOrderRejected
}

type nopDispatcher struct{}

func (nopDispatcher) Send(ctx context.Context, route domain.Route) error { return nil }

func TestScanner_SurvivesFailedCycle(t *testing.T) {
	gw := &flakyGateway{failFirst: 1}
	s := New(
		gw,
		NewGenerator("USDT", []string{"ETH"}),
		newTestValidator(gw, "0.2", 0),
		nopDispatcher{},
		Config{
			FastStake:        d("15"),
			FastThresholdPct: d("0.5"),
			CycleIdle:        5 * time.Millisecond,
			ErrorBackoff:     5 * time.Millisecond,
		},
		discardLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The first cycle fails; the loop must back off and run more cycles.
	deadline := time.Now().Add(2 * time.Second)
	for gw.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("loop stalled after %d cycles", gw.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
