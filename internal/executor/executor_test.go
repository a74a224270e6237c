package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type placedOrder struct {
	Symbol string
	Side   domain.OrderSide
	Qty    decimal.Decimal
}

// orderFunc scripts the gateway's reaction to one symbol+side.
type orderFunc func(ctx context.Context, qty decimal.Decimal) (domain.OrderResult, error)

// fakeGateway is an in-memory market gateway with scripted order outcomes.
type fakeGateway struct {
	pairs   []domain.PairInfo
	tickers map[string]domain.Ticker

	mu          sync.Mutex
	orders      []placedOrder
	handlers    map[string]orderFunc // key: symbol + "|" + side
	inFlight    int
	maxInFlight int
}

func (g *fakeGateway) ListActivePairs(ctx context.Context) ([]domain.PairInfo, error) {
	return g.pairs, nil
}

func (g *fakeGateway) GetTickers(ctx context.Context) (map[string]domain.Ticker, error) {
	return g.tickers, nil
}

func (g *fakeGateway) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	return domain.OrderBook{Symbol: symbol}, nil
}

func (g *fakeGateway) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty decimal.Decimal) (domain.OrderResult, error) {
	g.mu.Lock()
	g.orders = append(g.orders, placedOrder{Symbol: symbol, Side: side, Qty: qty})
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	h := g.handlers[symbol+"|"+string(side)]
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	if h == nil {
		return domain.OrderResult{}, domain.ErrOrderRejected
	}
	return h(ctx, qty)
}

func (g *fakeGateway) placed() []placedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]placedOrder, len(g.orders))
	copy(out, g.orders)
	return out
}

// fillAt scripts a full fill at the given price.
func fillAt(price string) orderFunc {
	p := decimal.RequireFromString(price)
	return func(ctx context.Context, qty decimal.Decimal) (domain.OrderResult, error) {
		return domain.OrderResult{
			FilledQty: qty,
			AvgPrice:  p,
			Cost:      qty.Mul(p),
		}, nil
	}
}

// hangUntilDeadline blocks until the leg context expires.
func hangUntilDeadline(ctx context.Context, qty decimal.Decimal) (domain.OrderResult, error) {
	<-ctx.Done()
	return domain.OrderResult{}, ctx.Err()
}

func triangularGateway() *fakeGateway {
	return &fakeGateway{
		pairs: []domain.PairInfo{
			{Symbol: "SOL/USDT", Base: "SOL", Quote: "USDT", Active: true},
			{Symbol: "SOL/ETH", Base: "SOL", Quote: "ETH", Active: true},
			{Symbol: "ETH/USDT", Base: "ETH", Quote: "USDT", Active: true},
			{Symbol: "BNB/ETH", Base: "BNB", Quote: "ETH", Active: true},
		},
		tickers: map[string]domain.Ticker{
			"SOL/USDT": {Symbol: "SOL/USDT", Bid: d("99.9"), Ask: d("100")},
			"SOL/ETH":  {Symbol: "SOL/ETH", Bid: d("0.05"), Ask: d("0.0501")},
			"ETH/USDT": {Symbol: "ETH/USDT", Bid: d("2000"), Ask: d("2001")},
		},
		handlers: make(map[string]orderFunc),
	}
}

func newEngine(gw domain.MarketGateway) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(nil, gw, Config{
		BaseCurrency:   "USDT",
		InitialCapital: d("15"),
		LegTimeout:     200 * time.Millisecond,
		SafetyShrink:   d("0.995"),
	}, logger)
}

func cmdFor(symbols [3]string) domain.RouteCommand {
	return domain.RouteCommand{
		ID:         "cmd-1",
		Payload:    domain.RoutePayload{Ruta: symbols, Timestamp: float64(time.Now().Unix())},
		ReceivedAt: time.Now(),
	}
}

func TestExecute_HappyPath(t *testing.T) {
	gw := triangularGateway()
	gw.handlers["SOL/USDT|buy"] = fillAt("100")
	gw.handlers["SOL/ETH|sell"] = fillAt("0.05")
	gw.handlers["ETH/USDT|sell"] = fillAt("2000")

	eng := newEngine(gw)
	rec, err := eng.Execute(context.Background(), cmdFor([3]string{"SOL/USDT", "SOL/ETH", "ETH/USDT"}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if rec.Status != domain.ExecDone {
		t.Fatalf("status = %s, want done", rec.Status)
	}
	if rec.FinalCurrency != "USDT" {
		t.Errorf("final currency = %s, want USDT", rec.FinalCurrency)
	}
	if len(rec.Legs) != 3 {
		t.Fatalf("legs = %d, want 3", len(rec.Legs))
	}

	// Each leg shrinks the converted amount by the safety factor; with the
	// scripted prices the loop multiplier is exactly 1, so the final amount
	// is capital * shrink^3.
	shrink := d("0.995")
	want := d("15").Mul(shrink).Mul(shrink).Mul(shrink)
	if !rec.FinalAmount.Equal(want) {
		t.Errorf("final amount = %s, want %s", rec.FinalAmount, want)
	}
}

func TestExecute_LegTwoTimeout_Rescues(t *testing.T) {
	gw := triangularGateway()
	gw.handlers["SOL/USDT|buy"] = fillAt("100")
	gw.handlers["SOL/ETH|sell"] = hangUntilDeadline
	gw.handlers["SOL/USDT|sell"] = fillAt("99.5") // rescue fill

	eng := newEngine(gw)
	rec, err := eng.Execute(context.Background(), cmdFor([3]string{"SOL/USDT", "SOL/ETH", "ETH/USDT"}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if rec.Status != domain.ExecRescued {
		t.Fatalf("status = %s, want rescued", rec.Status)
	}
	if rec.Legs[1].Outcome != domain.LegTimeout {
		t.Errorf("leg 2 outcome = %s, want timeout", rec.Legs[1].Outcome)
	}
	if rec.Rescue == nil {
		t.Fatal("rescue fill not recorded")
	}

	// Exactly one rescue sell of the full held SOL amount on SOL/USDT.
	heldSOL := d("15").Div(d("100")).Mul(d("0.995"))
	var rescues []placedOrder
	for _, o := range gw.placed() {
		if o.Symbol == "SOL/USDT" && o.Side == domain.OrderSideSell {
			rescues = append(rescues, o)
		}
	}
	if len(rescues) != 1 {
		t.Fatalf("rescue sells = %d, want exactly 1", len(rescues))
	}
	if !rescues[0].Qty.Equal(heldSOL) {
		t.Errorf("rescue qty = %s, want %s", rescues[0].Qty, heldSOL)
	}
	if !rec.FinalAmount.Equal(heldSOL.Mul(d("99.5"))) {
		t.Errorf("recovered = %s, want rescue fill cost %s", rec.FinalAmount, heldSOL.Mul(d("99.5")))
	}
	if rec.FinalCurrency != "USDT" {
		t.Errorf("final currency = %s, want USDT", rec.FinalCurrency)
	}
}

func TestExecute_RescueFailed(t *testing.T) {
	gw := triangularGateway()
	gw.handlers["SOL/USDT|buy"] = fillAt("100")
	// Leg 2 rejected, rescue sell also rejected (no handler scripted).

	eng := newEngine(gw)
	rec, err := eng.Execute(context.Background(), cmdFor([3]string{"SOL/USDT", "SOL/ETH", "ETH/USDT"}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if rec.Status != domain.ExecRescueFailed {
		t.Fatalf("status = %s, want rescue_failed", rec.Status)
	}
	if rec.FinalCurrency != "SOL" {
		t.Errorf("stranded currency = %s, want SOL", rec.FinalCurrency)
	}
}

func TestExecute_LegOneFailure_NoRescueOrder(t *testing.T) {
	gw := triangularGateway()
	// Leg 1 rejected immediately; capital never leaves USDT.

	eng := newEngine(gw)
	rec, err := eng.Execute(context.Background(), cmdFor([3]string{"SOL/USDT", "SOL/ETH", "ETH/USDT"}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if rec.Status != domain.ExecRescued {
		t.Fatalf("status = %s, want rescued (capital intact)", rec.Status)
	}
	if got := len(gw.placed()); got != 1 {
		t.Errorf("orders placed = %d, want 1 (the failed leg only)", got)
	}
	if !rec.FinalAmount.Equal(d("15")) {
		t.Errorf("final amount = %s, want untouched capital 15", rec.FinalAmount)
	}
}

func TestExecute_RoutingError_NoOrders(t *testing.T) {
	gw := triangularGateway()
	gw.handlers["SOL/USDT|buy"] = fillAt("100")

	eng := newEngine(gw)
	// After leg 1 the engine holds SOL; BNB/ETH maps to neither side.
	rec, err := eng.Execute(context.Background(), cmdFor([3]string{"SOL/USDT", "BNB/ETH", "ETH/USDT"}))
	if !errors.Is(err, domain.ErrRouting) {
		t.Fatalf("err = %v, want ErrRouting", err)
	}
	if rec.Status != domain.ExecAborting {
		t.Errorf("status = %s, want aborting", rec.Status)
	}

	// The malformed leg placed no order and no rescue was attempted.
	for _, o := range gw.placed()[1:] {
		t.Errorf("unexpected order after routing error: %+v", o)
	}
}

func TestExecute_SingleFlight(t *testing.T) {
	gw := triangularGateway()
	slow := func(ctx context.Context, qty decimal.Decimal) (domain.OrderResult, error) {
		time.Sleep(100 * time.Millisecond)
		return domain.OrderResult{FilledQty: qty, AvgPrice: d("100"), Cost: qty.Mul(d("100"))}, nil
	}
	gw.handlers["SOL/USDT|buy"] = slow
	gw.handlers["SOL/ETH|sell"] = fillAt("0.05")
	gw.handlers["ETH/USDT|sell"] = fillAt("2000")

	eng := newEngine(gw)
	cmd := cmdFor([3]string{"SOL/USDT", "SOL/ETH", "ETH/USDT"})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = eng.Execute(context.Background(), cmd)
		}()
	}
	wg.Wait()

	busy := 0
	for _, err := range errs {
		if errors.Is(err, domain.ErrExecutionBusy) {
			busy++
		} else if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if busy != 1 {
		t.Errorf("busy rejections = %d, want exactly 1", busy)
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.maxInFlight > 1 {
		t.Errorf("max concurrent orders = %d, want 1", gw.maxInFlight)
	}
}
