// Package brokertest provides a configurable in-memory BrokerClient for
// package tests. Behaviors default to empty success; override the function
// fields to script a scenario. Call counters allow asserting that a code
// path never reached the broker.
package brokertest

import (
	"fmt"
	"sync"

	"github.com/harmoniceagle/trader/internal/domain"
)

// MockBroker implements domain.BrokerClient.
type MockBroker struct {
	mu sync.Mutex

	Connected bool
	Account   domain.Account
	Clock     domain.Clock
	Positions []domain.Position
	Orders    []domain.Order
	Quotes    map[string]domain.Quote
	Bars      []domain.Bar

	// Optional overrides.
	SubmitOrderFn   func(req domain.OrderRequest) (*domain.Order, error)
	ListOrdersFn    func(status string, symbols []string, limit int) ([]domain.Order, error)
	ListPositionsFn func() ([]domain.Position, error)
	GetOrderFn      func(id string) (*domain.Order, error)
	ReplaceOrderFn  func(id string, newStop float64) (*domain.Order, error)

	// Recorded calls.
	Submitted []domain.OrderRequest
	Canceled  []string
	Replaced  []string
	CloseAlls int
}

// New returns a connected mock with a funded account.
func New() *MockBroker {
	return &MockBroker{
		Connected: true,
		Account:   domain.Account{Equity: 100000, BuyingPower: 200000},
		Clock:     domain.Clock{IsOpen: true},
		Quotes:    make(map[string]domain.Quote),
	}
}

func (m *MockBroker) IsConnected() bool { return m.Connected }

func (m *MockBroker) GetAccount() (*domain.Account, error) {
	if !m.Connected {
		return nil, fmt.Errorf("not connected")
	}
	acct := m.Account
	return &acct, nil
}

func (m *MockBroker) GetClock() (*domain.Clock, error) {
	if !m.Connected {
		return nil, fmt.Errorf("not connected")
	}
	clock := m.Clock
	return &clock, nil
}

func (m *MockBroker) ListPositions() ([]domain.Position, error) {
	if m.ListPositionsFn != nil {
		return m.ListPositionsFn()
	}
	return append([]domain.Position(nil), m.Positions...), nil
}

func (m *MockBroker) ListOrders(status string, symbols []string, limit int) ([]domain.Order, error) {
	if m.ListOrdersFn != nil {
		return m.ListOrdersFn(status, symbols, limit)
	}
	if len(symbols) == 0 {
		return append([]domain.Order(nil), m.Orders...), nil
	}
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}
	var out []domain.Order
	for _, o := range m.Orders {
		if want[o.Symbol] {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockBroker) GetOrder(id string) (*domain.Order, error) {
	if m.GetOrderFn != nil {
		return m.GetOrderFn(id)
	}
	for i := range m.Orders {
		if m.Orders[i].ID == id {
			o := m.Orders[i]
			return &o, nil
		}
	}
	return nil, fmt.Errorf("order %s not found", id)
}

func (m *MockBroker) SubmitOrder(req domain.OrderRequest) (*domain.Order, error) {
	m.mu.Lock()
	m.Submitted = append(m.Submitted, req)
	n := len(m.Submitted)
	m.mu.Unlock()

	if m.SubmitOrderFn != nil {
		return m.SubmitOrderFn(req)
	}
	return &domain.Order{
		ID:            fmt.Sprintf("mock-order-%d", n),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        domain.OrderStatusNew,
		Qty:           req.Qty,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
	}, nil
}

func (m *MockBroker) CancelOrder(id string) error {
	m.mu.Lock()
	m.Canceled = append(m.Canceled, id)
	m.mu.Unlock()
	return nil
}

func (m *MockBroker) ReplaceOrder(id string, newStop float64) (*domain.Order, error) {
	m.mu.Lock()
	m.Replaced = append(m.Replaced, id)
	m.mu.Unlock()
	if m.ReplaceOrderFn != nil {
		return m.ReplaceOrderFn(id, newStop)
	}
	return &domain.Order{ID: id, StopPrice: newStop, Type: domain.OrderTypeStop}, nil
}

func (m *MockBroker) CloseAllPositions(cancelOrders bool) error {
	m.mu.Lock()
	m.CloseAlls++
	m.mu.Unlock()
	return nil
}

func (m *MockBroker) GetLatestQuote(symbol string) (*domain.Quote, error) {
	q, ok := m.Quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &q, nil
}

func (m *MockBroker) GetOptionQuotes(symbols []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote)
	for _, s := range symbols {
		if q, ok := m.Quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (m *MockBroker) GetBars(symbol, timeframe string, limit int) ([]domain.Bar, error) {
	return append([]domain.Bar(nil), m.Bars...), nil
}

// SubmitCount returns how many orders were submitted.
func (m *MockBroker) SubmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Submitted)
}

// SellCount returns how many sell orders were submitted.
func (m *MockBroker) SellCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, req := range m.Submitted {
		if req.Side == domain.SideSell {
			n++
		}
	}
	return n
}
