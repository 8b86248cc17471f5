package domain

import "context"

// BrokerClient defines broker-agnostic trading and account operations.
// All broker access goes through this interface; there are no ambient
// singletons, which is what makes the mock broker in tests possible.
// Every call is a synchronous network round-trip with a bounded timeout and
// may fail with a connectivity or API error - callers must treat failure as
// a typed outcome, never an unhandled crash.
type BrokerClient interface {
	// Account & market state
	GetAccount() (*Account, error)
	GetClock() (*Clock, error)
	IsConnected() bool

	// Positions & orders (read-only views, polled)
	ListPositions() ([]Position, error)
	ListOrders(status string, symbols []string, limit int) ([]Order, error)
	GetOrder(id string) (*Order, error)

	// Trading
	SubmitOrder(req OrderRequest) (*Order, error)
	CancelOrder(id string) error
	ReplaceOrder(id string, newStopPrice float64) (*Order, error)
	CloseAllPositions(cancelOrders bool) error

	// Market data
	GetLatestQuote(symbol string) (*Quote, error)
	GetOptionQuotes(symbols []string) (map[string]Quote, error)
	GetBars(symbol, timeframe string, limit int) ([]Bar, error)
}

// AlertSink is a fire-and-forget notification channel. Implementations must
// never let a delivery failure unwind an in-progress order operation.
type AlertSink interface {
	SendAlert(ctx context.Context, title, body string, severity Severity)
}

// Severity of a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// CandidateSource produces scored trade ideas. The scanning subsystem is an
// external collaborator; the scheduler only pulls from this interface.
type CandidateSource interface {
	Scan(ctx context.Context, window string) ([]Candidate, error)
}
