package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// bookGateway serves canned order books; the other gateway methods are
// unused by the validator.
type bookGateway struct {
	books map[string]domain.OrderBook
}

func (g *bookGateway) ListActivePairs(ctx context.Context) ([]domain.PairInfo, error) {
	return nil, nil
}

func (g *bookGateway) GetTickers(ctx context.Context) (map[string]domain.Ticker, error) {
	return nil, nil
}

func (g *bookGateway) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	b, ok := g.books[symbol]
	if !ok {
		return domain.OrderBook{}, domain.ErrPairNotFound
	}
	return b, nil
}

func (g *bookGateway) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty decimal.Decimal) (domain.OrderResult, error) {
	return domain.OrderResult{}, domain.ErrOrderRejected
}

func deepBook(symbol, price string) domain.OrderBook {
	return domain.OrderBook{
		Symbol: symbol,
		Asks:   []domain.PriceLevel{{Price: d(price), Volume: d("1000000")}},
		Bids:   []domain.PriceLevel{{Price: d(price), Volume: d("1000000")}},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestValidator(gw domain.MarketGateway, minROI string, cooldown time.Duration) *Validator {
	return NewValidator(gw, ValidatorConfig{
		BaseCurrency: "USDT",
		Stake:        d("15"),
		FeePct:       d("0.1"),
		MinNetROIPct: d(minROI),
		BookDepth:    20,
		Cooldown:     cooldown,
	}, discardLogger())
}

var solRoute = domain.Route{
	Symbols:      [3]string{"SOL/USDT", "SOL/ETH", "ETH/USDT"},
	Intermediate: "ETH",
}

func TestValidator_NetProfitFormula(t *testing.T) {
	// One deep level per book: P1=100, P2=0.0506, P3=2000.
	gw := &bookGateway{books: map[string]domain.OrderBook{
		"SOL/USDT": deepBook("SOL/USDT", "100"),
		"SOL/ETH":  deepBook("SOL/ETH", "0.0506"),
		"ETH/USDT": deepBook("ETH/USDT", "2000"),
	}}
	v := newTestValidator(gw, "0.2", 0)

	opp, err := v.Validate(context.Background(), solRoute, pairSet())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	// final = 15 * (1/P1)*(1-fee) * P2*(1-fee) * P3*(1-fee)
	stake := d("15")
	keep := d("0.999")
	final := stake.Div(d("100")).Mul(keep).Mul(d("0.0506")).Mul(keep).Mul(d("2000")).Mul(keep)
	want := final.Sub(stake).Div(stake).Mul(d("100"))
	if !opp.NetROI.Equal(want) {
		t.Errorf("net ROI = %s, want %s", opp.NetROI, want)
	}
	if opp.ID == "" || opp.DetectedAt.IsZero() {
		t.Error("opportunity missing identity fields")
	}
}

func TestValidator_SlippageWorsensROI(t *testing.T) {
	thin := domain.OrderBook{
		Symbol: "SOL/USDT",
		Asks: []domain.PriceLevel{
			{Price: d("100"), Volume: d("0.05")},
			{Price: d("110"), Volume: d("1000")},
		},
		Bids: []domain.PriceLevel{{Price: d("99"), Volume: d("1000")}},
	}
	gw := &bookGateway{books: map[string]domain.OrderBook{
		"SOL/USDT": thin,
		"SOL/ETH":  deepBook("SOL/ETH", "0.0506"),
		"ETH/USDT": deepBook("ETH/USDT", "2000"),
	}}
	v := newTestValidator(gw, "0.2", 0)

	opp, err := v.Validate(context.Background(), solRoute, pairSet())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	deep := &bookGateway{books: map[string]domain.OrderBook{
		"SOL/USDT": deepBook("SOL/USDT", "100"),
		"SOL/ETH":  deepBook("SOL/ETH", "0.0506"),
		"ETH/USDT": deepBook("ETH/USDT", "2000"),
	}}
	ideal, err := newTestValidator(deep, "0.2", 0).Validate(context.Background(), solRoute, pairSet())
	if err != nil {
		t.Fatalf("validate ideal: %v", err)
	}

	if !opp.NetROI.LessThan(ideal.NetROI) {
		t.Errorf("thin-book ROI %s not worse than deep-book ROI %s", opp.NetROI, ideal.NetROI)
	}
}

func TestValidator_InsufficientLiquidity(t *testing.T) {
	shallow := domain.OrderBook{
		Symbol: "SOL/USDT",
		Asks:   []domain.PriceLevel{{Price: d("100"), Volume: d("0.001")}},
		Bids:   []domain.PriceLevel{{Price: d("99"), Volume: d("0.001")}},
	}
	gw := &bookGateway{books: map[string]domain.OrderBook{
		"SOL/USDT": shallow,
		"SOL/ETH":  deepBook("SOL/ETH", "0.0506"),
		"ETH/USDT": deepBook("ETH/USDT", "2000"),
	}}
	v := newTestValidator(gw, "0.2", 0)

	_, err := v.Validate(context.Background(), solRoute, pairSet())
	if !errors.Is(err, domain.ErrLiquidityInsufficient) {
		t.Errorf("err = %v, want ErrLiquidityInsufficient", err)
	}
}

func TestValidator_Accept(t *testing.T) {
	v := newTestValidator(&bookGateway{}, "0.2", 100*time.Millisecond)

	opp := domain.Opportunity{NetROI: d("0.5")}
	weak := domain.Opportunity{NetROI: d("0.1")}

	t.Run("Below Threshold Rejected", func(t *testing.T) {
		if v.Accept(weak) {
			t.Error("accepted ROI below threshold")
		}
	})

	t.Run("Cooldown Serializes Emissions", func(t *testing.T) {
		if !v.Accept(opp) {
			t.Fatal("first emission rejected")
		}
		if v.Accept(opp) {
			t.Error("second emission inside cooldown accepted")
		}
		time.Sleep(120 * time.Millisecond)
		if !v.Accept(opp) {
			t.Error("emission after cooldown rejected")
		}
	})
}
