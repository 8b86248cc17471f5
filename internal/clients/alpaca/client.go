// Package alpaca provides a client for an Alpaca-compatible brokerage API.
package alpaca

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/domain"
)

// Client implements domain.BrokerClient against the Alpaca v2 REST API.
// All calls have bounded timeouts; errors are returned, never panicked.
type Client struct {
	baseURL    string // trading API (account, orders, positions)
	dataURL    string // market data API (quotes, bars)
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new broker client. Credentials may be empty; the client
// then reports IsConnected() == false and every call fails with a typed error.
func NewClient(baseURL, dataURL, apiKey, apiSecret string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		dataURL:   strings.TrimRight(dataURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.With().Str("client", "alpaca").Logger(),
	}
}

// IsConnected reports whether the client has credentials to talk to the broker.
// It does not perform a network round-trip; use GetClock for a live check.
func (c *Client) IsConnected() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// ErrNoCredentials is returned for every call on a client without credentials.
var ErrNoCredentials = fmt.Errorf("broker credentials not configured")

func (c *Client) do(method, rawURL string, body interface{}, out interface{}) error {
	if !c.IsConnected() {
		return ErrNoCredentials
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.Message != "" {
			return fmt.Errorf("broker rejected request (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("broker returned status %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode broker response: %w", err)
	}
	return nil
}

// GetAccount fetches equity and buying power.
func (c *Client) GetAccount() (*domain.Account, error) {
	var dto accountDTO
	if err := c.do(http.MethodGet, c.baseURL+"/v2/account", nil, &dto); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return dto.toDomain(), nil
}

// GetClock fetches the market clock.
func (c *Client) GetClock() (*domain.Clock, error) {
	var dto clockDTO
	if err := c.do(http.MethodGet, c.baseURL+"/v2/clock", nil, &dto); err != nil {
		return nil, fmt.Errorf("failed to get clock: %w", err)
	}
	return dto.toDomain(), nil
}

// ListPositions fetches all open positions.
func (c *Client) ListPositions() ([]domain.Position, error) {
	var dtos []positionDTO
	if err := c.do(http.MethodGet, c.baseURL+"/v2/positions", nil, &dtos); err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(dtos))
	for _, dto := range dtos {
		positions = append(positions, dto.toDomain())
	}
	return positions, nil
}

// ListOrders fetches orders filtered by status ("open", "closed", "all"),
// optionally by symbols, newest first.
func (c *Client) ListOrders(status string, symbols []string, limit int) ([]domain.Order, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if len(symbols) > 0 {
		params.Set("symbols", strings.Join(symbols, ","))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	params.Set("direction", "desc")

	var dtos []orderDTO
	if err := c.do(http.MethodGet, c.baseURL+"/v2/orders?"+params.Encode(), nil, &dtos); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(dtos))
	for _, dto := range dtos {
		orders = append(orders, dto.toDomain())
	}
	return orders, nil
}

// GetOrder fetches a single order by broker ID.
func (c *Client) GetOrder(id string) (*domain.Order, error) {
	var dto orderDTO
	if err := c.do(http.MethodGet, c.baseURL+"/v2/orders/"+url.PathEscape(id), nil, &dto); err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	order := dto.toDomain()
	return &order, nil
}

// SubmitOrder submits an order (optionally a bracket) and returns the
// broker's view of it.
func (c *Client) SubmitOrder(req domain.OrderRequest) (*domain.Order, error) {
	c.log.Debug().
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Str("type", req.Type).
		Float64("qty", req.Qty).
		Msg("Submitting order")

	var dto orderDTO
	if err := c.do(http.MethodPost, c.baseURL+"/v2/orders", toOrderRequestDTO(req), &dto); err != nil {
		return nil, fmt.Errorf("failed to submit order: %w", err)
	}

	order := dto.toDomain()
	c.log.Info().
		Str("symbol", order.Symbol).
		Str("order_id", order.ID).
		Str("side", order.Side).
		Msg("Order submitted")
	return &order, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(id string) error {
	if err := c.do(http.MethodDelete, c.baseURL+"/v2/orders/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", id, err)
	}
	return nil
}

// ReplaceOrder moves the stop price of an existing order in place.
func (c *Client) ReplaceOrder(id string, newStopPrice float64) (*domain.Order, error) {
	body := map[string]string{"stop_price": formatFloat(newStopPrice)}

	var dto orderDTO
	if err := c.do(http.MethodPatch, c.baseURL+"/v2/orders/"+url.PathEscape(id), body, &dto); err != nil {
		return nil, fmt.Errorf("failed to replace order %s: %w", id, err)
	}
	order := dto.toDomain()
	return &order, nil
}

// CloseAllPositions liquidates every position at market, optionally
// cancelling open orders first. Kill switch - use with care.
func (c *Client) CloseAllPositions(cancelOrders bool) error {
	rawURL := c.baseURL + "/v2/positions"
	if cancelOrders {
		rawURL += "?cancel_orders=true"
	}
	if err := c.do(http.MethodDelete, rawURL, nil, nil); err != nil {
		return fmt.Errorf("failed to close all positions: %w", err)
	}
	c.log.Warn().Msg("Close-all-positions submitted")
	return nil
}

// GetLatestQuote fetches the current inside market for a stock symbol.
func (c *Client) GetLatestQuote(symbol string) (*domain.Quote, error) {
	var resp latestQuoteResponse
	rawURL := fmt.Sprintf("%s/v2/stocks/%s/quotes/latest", c.dataURL, url.PathEscape(symbol))
	if err := c.do(http.MethodGet, rawURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	return &domain.Quote{
		Symbol: symbol,
		Bid:    resp.Quote.BidPrice,
		Ask:    resp.Quote.AskPrice,
	}, nil
}

// GetOptionQuotes fetches latest quotes for a batch of option contract
// symbols. Contracts with no quote are absent from the result map.
func (c *Client) GetOptionQuotes(symbols []string) (map[string]domain.Quote, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	var resp optionQuotesResponse
	rawURL := c.dataURL + "/v1beta1/options/quotes/latest?" + params.Encode()
	if err := c.do(http.MethodGet, rawURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get option quotes: %w", err)
	}

	quotes := make(map[string]domain.Quote, len(resp.Quotes))
	for sym, q := range resp.Quotes {
		quotes[sym] = domain.Quote{Symbol: sym, Bid: q.BidPrice, Ask: q.AskPrice}
	}
	return quotes, nil
}

// GetBars fetches recent OHLCV bars for a symbol, oldest first.
// timeframe follows the API convention ("5Min", "1Day", ...).
func (c *Client) GetBars(symbol, timeframe string, limit int) ([]domain.Bar, error) {
	params := url.Values{}
	params.Set("timeframe", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	var resp barsResponse
	rawURL := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", c.dataURL, url.PathEscape(symbol), params.Encode())
	if err := c.do(http.MethodGet, rawURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(resp.Bars))
	for _, dto := range resp.Bars {
		bars = append(bars, dto.toDomain())
	}
	return bars, nil
}
