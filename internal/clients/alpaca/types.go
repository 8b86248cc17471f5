package alpaca

import (
	"strconv"
	"time"

	"github.com/harmoniceagle/trader/internal/domain"
)

// Wire DTOs for the Alpaca-compatible trading API. The API encodes all
// numerics as JSON strings, so each DTO carries a transform to the
// broker-agnostic domain type.

type accountDTO struct {
	Equity      string `json:"equity"`
	BuyingPower string `json:"buying_power"`
	Status      string `json:"status"`
}

func (a accountDTO) toDomain() *domain.Account {
	return &domain.Account{
		Equity:      parseFloat(a.Equity),
		BuyingPower: parseFloat(a.BuyingPower),
	}
}

type positionDTO struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	AvgEntryPrice string `json:"avg_entry_price"`
	CurrentPrice  string `json:"current_price"`
	MarketValue   string `json:"market_value"`
	CostBasis     string `json:"cost_basis"`
	UnrealizedPL  string `json:"unrealized_pl"`
}

func (p positionDTO) toDomain() domain.Position {
	return domain.Position{
		Symbol:        p.Symbol,
		Qty:           parseFloat(p.Qty),
		Side:          p.Side,
		AvgEntryPrice: parseFloat(p.AvgEntryPrice),
		CurrentPrice:  parseFloat(p.CurrentPrice),
		MarketValue:   parseFloat(p.MarketValue),
		CostBasis:     parseFloat(p.CostBasis),
		UnrealizedPL:  parseFloat(p.UnrealizedPL),
	}
}

type orderDTO struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Qty            string     `json:"qty"`
	LimitPrice     string     `json:"limit_price"`
	StopPrice      string     `json:"stop_price"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice string     `json:"filled_avg_price"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	FilledAt       *time.Time `json:"filled_at"`
}

func (o orderDTO) toDomain() domain.Order {
	return domain.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Type:           o.Type,
		Status:         o.Status,
		Qty:            parseFloat(o.Qty),
		LimitPrice:     parseFloat(o.LimitPrice),
		StopPrice:      parseFloat(o.StopPrice),
		FilledQty:      parseFloat(o.FilledQty),
		FilledAvgPrice: parseFloat(o.FilledAvgPrice),
		SubmittedAt:    o.SubmittedAt,
		FilledAt:       o.FilledAt,
	}
}

type clockDTO struct {
	IsOpen    bool      `json:"is_open"`
	Timestamp time.Time `json:"timestamp"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

func (c clockDTO) toDomain() *domain.Clock {
	return &domain.Clock{
		IsOpen:    c.IsOpen,
		Timestamp: c.Timestamp,
		NextOpen:  c.NextOpen,
		NextClose: c.NextClose,
	}
}

// quoteDTO is shared by the stock and option latest-quote endpoints.
type quoteDTO struct {
	BidPrice float64 `json:"bp"`
	AskPrice float64 `json:"ap"`
}

type latestQuoteResponse struct {
	Symbol string   `json:"symbol"`
	Quote  quoteDTO `json:"quote"`
}

type optionQuotesResponse struct {
	Quotes map[string]quoteDTO `json:"quotes"`
}

type barDTO struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

type barsResponse struct {
	Bars   []barDTO `json:"bars"`
	Symbol string   `json:"symbol"`
}

func (b barDTO) toDomain() domain.Bar {
	return domain.Bar{
		Timestamp: b.Timestamp,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
}

// orderRequestDTO is the outbound order payload.
type orderRequestDTO struct {
	Symbol        string          `json:"symbol"`
	Qty           string          `json:"qty"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	TimeInForce   string          `json:"time_in_force"`
	LimitPrice    string          `json:"limit_price,omitempty"`
	StopPrice     string          `json:"stop_price,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	OrderClass    string          `json:"order_class,omitempty"`
	TakeProfit    *takeProfitSpec `json:"take_profit,omitempty"`
	StopLoss      *stopLossSpec   `json:"stop_loss,omitempty"`
}

type takeProfitSpec struct {
	LimitPrice string `json:"limit_price"`
}

type stopLossSpec struct {
	StopPrice string `json:"stop_price"`
}

func toOrderRequestDTO(req domain.OrderRequest) orderRequestDTO {
	dto := orderRequestDTO{
		Symbol:        req.Symbol,
		Qty:           formatFloat(req.Qty),
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
	}
	if req.LimitPrice > 0 {
		dto.LimitPrice = formatFloat(req.LimitPrice)
	}
	if req.StopPrice > 0 {
		dto.StopPrice = formatFloat(req.StopPrice)
	}
	if req.Bracket != nil {
		dto.OrderClass = "bracket"
		dto.TakeProfit = &takeProfitSpec{LimitPrice: formatFloat(req.Bracket.TakeProfitLimit)}
		dto.StopLoss = &stopLossSpec{StopPrice: formatFloat(req.Bracket.StopLossPrice)}
	}
	return dto
}

// apiError is the error body returned by the trading API.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
