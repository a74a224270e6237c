// Package binance implements the market gateway against the Binance spot
// REST API and book-ticker stream. It owns symbol mapping (unified
// "ETH/USDT" to native "ETHUSDT"), request signing, and quantity precision
// rounding; nothing above it ever sees a native symbol.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirgeek/Bot-Arbitraje/internal/domain"
)

// DefaultBaseURL is the Binance spot REST root.
const DefaultBaseURL = "https://api.binance.com"

// recvWindowMs tells the exchange how much client/server clock skew to
// tolerate on signed requests.
const recvWindowMs = 10000

// pairMeta is the cached per-symbol metadata built from exchangeInfo.
type pairMeta struct {
	info     domain.PairInfo
	native   string
	stepSize decimal.Decimal // LOT_SIZE quantity increment, zero if absent
}

// Client is the REST gateway handle. Scanning and execution paths hold
// separate Clients so order placement never contends with bulk reads.
type Client struct {
	baseURL    string
	apiKey     string
	secret     []byte
	httpClient *http.Client

	mu       sync.RWMutex
	byUnified map[string]pairMeta
	byNative  map[string]string // native -> unified
}

// NewClient creates a gateway client. baseURL falls back to
// DefaultBaseURL when empty.
func NewClient(baseURL, apiKey, secret string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		secret:  []byte(secret),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		byUnified: make(map[string]pairMeta),
		byNative:  make(map[string]string),
	}
}

// ListActivePairs refreshes and returns the tradable pair snapshot.
func (c *Client) ListActivePairs(ctx context.Context) ([]domain.PairInfo, error) {
	body, err := c.get(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("binance: exchange info: %w", err)
	}

	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("binance: decode exchange info: %w", err)
	}

	byUnified := make(map[string]pairMeta, len(resp.Symbols))
	byNative := make(map[string]string, len(resp.Symbols))
	pairs := make([]domain.PairInfo, 0, len(resp.Symbols))

	for _, s := range resp.Symbols {
		info := domain.PairInfo{
			Symbol: domain.Symbol(s.BaseAsset, s.QuoteAsset),
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Active: s.Status == statusTrading,
		}
		meta := pairMeta{info: info, native: s.Symbol}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" && f.StepSize != "" {
				if step, err := decimal.NewFromString(f.StepSize); err == nil {
					meta.stepSize = step
				}
			}
		}
		byUnified[info.Symbol] = meta
		byNative[s.Symbol] = info.Symbol
		pairs = append(pairs, info)
	}

	c.mu.Lock()
	c.byUnified = byUnified
	c.byNative = byNative
	c.mu.Unlock()

	return pairs, nil
}

// GetTickers returns top-of-book quotes for every pair known to the
// current snapshot.
func (c *Client) GetTickers(ctx context.Context) (map[string]domain.Ticker, error) {
	if err := c.ensureSymbols(ctx); err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/api/v3/ticker/bookTicker", nil)
	if err != nil {
		return nil, fmt.Errorf("binance: book tickers: %w", err)
	}

	var entries []bookTickerEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("binance: decode book tickers: %w", err)
	}

	now := time.Now().UTC()
	out := make(map[string]domain.Ticker, len(entries))
	for _, e := range entries {
		unified, ok := c.ResolveNative(e.Symbol)
		if !ok {
			continue
		}
		bid, err1 := decimal.NewFromString(e.BidPrice)
		ask, err2 := decimal.NewFromString(e.AskPrice)
		if err1 != nil || err2 != nil {
			continue
		}
		out[unified] = domain.Ticker{
			Symbol:     unified,
			Bid:        bid,
			Ask:        ask,
			CapturedAt: now,
		}
	}
	return out, nil
}

// GetOrderBook fetches up to depth levels per side for one pair.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	meta, err := c.meta(ctx, symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}
	if depth <= 0 {
		depth = 20
	}

	params := url.Values{}
	params.Set("symbol", meta.native)
	params.Set("limit", strconv.Itoa(depth))

	body, err := c.get(ctx, "/api/v3/depth", params)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}

	var resp depthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("binance: decode depth %s: %w", symbol, err)
	}

	book := domain.OrderBook{
		Symbol:     symbol,
		Asks:       parseLevels(resp.Asks),
		Bids:       parseLevels(resp.Bids),
		CapturedAt: time.Now().UTC(),
	}
	return book, nil
}

// PlaceMarketOrder submits a market order, rounding the quantity down to
// the pair's lot-size step first.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, qty decimal.Decimal) (domain.OrderResult, error) {
	meta, err := c.meta(ctx, symbol)
	if err != nil {
		return domain.OrderResult{}, err
	}

	qty = roundToStep(qty, meta.stepSize)
	if !qty.IsPositive() {
		return domain.OrderResult{}, fmt.Errorf("%w: %s qty rounds to zero", domain.ErrOrderRejected, symbol)
	}

	params := url.Values{}
	params.Set("symbol", meta.native)
	params.Set("side", strings.ToUpper(string(side)))
	params.Set("type", "MARKET")
	params.Set("quantity", qty.String())
	params.Set("newOrderRespType", "FULL")

	body, err := c.postSigned(ctx, "/api/v3/order", params)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("binance: place order %s: %w", symbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("binance: decode order %s: %w", symbol, err)
	}

	filled, err1 := decimal.NewFromString(resp.ExecutedQty)
	cost, err2 := decimal.NewFromString(resp.CummulativeQuoteQty)
	if err1 != nil || err2 != nil {
		return domain.OrderResult{}, fmt.Errorf("binance: order %s: unparseable fill fields", symbol)
	}

	res := domain.OrderResult{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Side:      side,
		FilledQty: filled,
		Cost:      cost,
	}
	if filled.IsPositive() {
		res.AvgPrice = cost.Div(filled)
	}
	return res, nil
}

// ResolveNative maps a native exchange symbol to the unified form.
func (c *Client) ResolveNative(native string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	unified, ok := c.byNative[native]
	return unified, ok
}

// meta returns cached pair metadata, refreshing the snapshot when the
// symbol is unknown.
func (c *Client) meta(ctx context.Context, symbol string) (pairMeta, error) {
	c.mu.RLock()
	m, ok := c.byUnified[symbol]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	if _, err := c.ListActivePairs(ctx); err != nil {
		return pairMeta{}, err
	}

	c.mu.RLock()
	m, ok = c.byUnified[symbol]
	c.mu.RUnlock()
	if !ok {
		return pairMeta{}, fmt.Errorf("%w: %s", domain.ErrPairNotFound, symbol)
	}
	return m, nil
}

// ensureSymbols loads the symbol map once when it is still empty.
func (c *Client) ensureSymbols(ctx context.Context) error {
	c.mu.RLock()
	n := len(c.byNative)
	c.mu.RUnlock()
	if n > 0 {
		return nil
	}
	_, err := c.ListActivePairs(ctx)
	return err
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

// get performs an unsigned GET and returns the response body.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// postSigned performs a signed POST: the query string gets timestamp and
// recvWindow appended, and an HMAC-SHA256 signature over the whole string
// as the final parameter.
func (c *Client) postSigned(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(recvWindowMs))

	query := params.Encode()
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	// Only the order path maps an exchange refusal onto ErrOrderRejected;
	// read-path failures stay plain errors.
	body, err := c.do(req)
	if err != nil {
		var e *exchangeError
		if errors.As(err, &e) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderRejected, e.Error())
		}
		return nil, err
	}
	return body, nil
}

// exchangeError is a non-2xx exchange reply, with the error body decoded
// when Binance sent one.
type exchangeError struct {
	Status  int
	Code    int
	Message string
}

func (e *exchangeError) Error() string {
	switch {
	case e.Message != "" && e.Code != 0:
		return fmt.Sprintf("status %d code %d: %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("status %d: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
}

// do executes the request and surfaces exchange error bodies as errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := &exchangeError{Status: resp.StatusCode}
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			e.Code = apiErr.Code
			e.Message = apiErr.Message
		} else {
			e.Message = strings.TrimSpace(string(body))
		}
		return nil, e
	}
	return body, nil
}

// parseLevels converts [price, qty] string pairs, dropping malformed rows.
func parseLevels(raw [][2]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err1 := decimal.NewFromString(lvl[0])
		vol, err2 := decimal.NewFromString(lvl[1])
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Volume: vol})
	}
	return out
}

// roundToStep floors qty to the lot-size increment.
func roundToStep(qty, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}

// Compile-time interface check.
var _ domain.MarketGateway = (*Client)(nil)
