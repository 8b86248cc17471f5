package domain

import "time"

// Broker-agnostic types for order execution and reconciliation.
// These abstract away broker-specific implementations (Alpaca, IBKR, etc.)

// Account represents the trading account state (broker-agnostic)
type Account struct {
	Equity      float64 // Total account equity
	BuyingPower float64 // Available buying power
}

// Position represents a held position (broker-agnostic, read-only view)
type Position struct {
	Symbol        string  // Security or contract symbol
	Qty           float64 // Signed quantity (negative for short)
	Side          string  // "long" or "short"
	AvgEntryPrice float64 // Average fill price
	CurrentPrice  float64 // Last traded price
	MarketValue   float64 // Current position value
	CostBasis     float64 // Total cost basis
	UnrealizedPL  float64 // Unrealized profit/loss
}

// Order statuses as reported by the broker.
const (
	OrderStatusNew       = "new"
	OrderStatusFilled    = "filled"
	OrderStatusCanceled  = "canceled"
	OrderStatusRejected  = "rejected"
	OrderStatusExpired   = "expired"
	OrderStatusPartially = "partially_filled"
)

// Order types.
const (
	OrderTypeMarket       = "market"
	OrderTypeLimit        = "limit"
	OrderTypeStop         = "stop"
	OrderTypeStopLimit    = "stop_limit"
	OrderTypeTrailingStop = "trailing_stop"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order represents a broker order (read-only view, polled)
type Order struct {
	ID             string     // Broker order ID
	ClientOrderID  string     // Caller-supplied idempotency key
	Symbol         string     // Security symbol
	Side           string     // "buy" or "sell"
	Type           string     // market, limit, stop, stop_limit, trailing_stop
	Status         string     // Broker order status
	Qty            float64    // Ordered quantity
	LimitPrice     float64    // Limit price (0 if not a limit order)
	StopPrice      float64    // Stop price (0 if no stop)
	FilledQty      float64    // Filled quantity
	FilledAvgPrice float64    // Average fill price (0 until filled)
	SubmittedAt    time.Time  // Submission timestamp
	FilledAt       *time.Time // Fill timestamp (nil until filled)
}

// BracketSpec holds the attached exit legs of a bracket order.
type BracketSpec struct {
	TakeProfitLimit float64 // Limit price of the attached take-profit leg
	StopLossPrice   float64 // Stop price of the attached stop-loss leg
}

// OrderRequest is the specification for submitting an order.
type OrderRequest struct {
	Symbol        string
	Qty           float64
	Side          string       // "buy" or "sell"
	Type          string       // market, limit, stop
	TimeInForce   string       // "day" or "gtc"
	LimitPrice    float64      // required for limit orders
	StopPrice     float64      // required for stop orders
	ClientOrderID string       // optional idempotency key
	Bracket       *BracketSpec // non-nil submits an entry with attached exits
}

// Quote represents the current inside market for a symbol.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
}

// Bar represents a single OHLCV candle.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Clock represents the market clock.
type Clock struct {
	IsOpen    bool
	Timestamp time.Time
	NextOpen  time.Time
	NextClose time.Time
}
