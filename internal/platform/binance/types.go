package binance

// exchangeInfoResponse is the reply to GET /api/v3/exchangeInfo.
type exchangeInfoResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol     string         `json:"symbol"`
	Status     string         `json:"status"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType string `json:"filterType"`
	StepSize   string `json:"stepSize"`
}

// statusTrading is the exchange's "active" symbol status.
const statusTrading = "TRADING"

// bookTickerEntry is one element of GET /api/v3/ticker/bookTicker.
type bookTickerEntry struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// depthResponse is the reply to GET /api/v3/depth. Levels are
// [price, quantity] string pairs; bids arrive descending, asks ascending.
type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// orderResponse is the FULL reply to POST /api/v3/order.
type orderResponse struct {
	OrderID            int64  `json:"orderId"`
	Status             string `json:"status"`
	ExecutedQty        string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
}

// apiError is the exchange's error body.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// streamBookTicker is one frame of the !bookTicker websocket stream.
type streamBookTicker struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}
