package alpaca

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniceagle/trader/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewClient(srv.URL, srv.URL, "key", "secret", log)
}

func TestGetAccount_ParsesStringNumerics(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		_, _ = w.Write([]byte(`{"equity":"100000.50","buying_power":"200001","status":"ACTIVE"}`))
	})

	acct, err := client.GetAccount()
	require.NoError(t, err)
	assert.Equal(t, 100000.50, acct.Equity)
	assert.Equal(t, 200001.0, acct.BuyingPower)
}

func TestSubmitOrder_BracketPayload(t *testing.T) {
	var received map[string]interface{}
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"id":"ord-1","symbol":"AAPL","side":"buy","type":"market","status":"new","qty":"400"}`))
	})

	order, err := client.SubmitOrder(domain.OrderRequest{
		Symbol:      "AAPL",
		Qty:         400,
		Side:        domain.SideBuy,
		Type:        domain.OrderTypeMarket,
		TimeInForce: "gtc",
		Bracket: &domain.BracketSpec{
			TakeProfitLimit: 55,
			StopLossPrice:   49,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, 400.0, order.Qty)

	assert.Equal(t, "bracket", received["order_class"])
	tp := received["take_profit"].(map[string]interface{})
	assert.Equal(t, "55", tp["limit_price"])
	sl := received["stop_loss"].(map[string]interface{})
	assert.Equal(t, "49", sl["stop_price"])
}

func TestListOrders_QueryParams(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "closed", q.Get("status"))
		assert.Equal(t, "AAPL", q.Get("symbols"))
		assert.Equal(t, "5", q.Get("limit"))
		_, _ = w.Write([]byte(`[{"id":"o1","symbol":"AAPL","side":"sell","status":"filled","filled_avg_price":"51.25"}]`))
	})

	orders, err := client.ListOrders("closed", []string{"AAPL"}, 5)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 51.25, orders[0].FilledAvgPrice)
}

func TestDo_BrokerRejectionIsTypedError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":40310000,"message":"insufficient buying power"}`))
	})

	_, err := client.SubmitOrder(domain.OrderRequest{Symbol: "AAPL", Qty: 1, Side: "buy", Type: "market", TimeInForce: "day"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient buying power")
}

func TestClient_NoCredentials(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	client := NewClient("http://localhost:1", "http://localhost:1", "", "", log)

	assert.False(t, client.IsConnected())

	_, err := client.GetAccount()
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestGetOptionQuotes(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta1/options/quotes/latest", r.URL.Path)
		_, _ = w.Write([]byte(`{"quotes":{"SPY250117P00450000":{"bp":1.10,"ap":1.20}}}`))
	})

	quotes, err := client.GetOptionQuotes([]string{"SPY250117P00450000"})
	require.NoError(t, err)
	require.Contains(t, quotes, "SPY250117P00450000")
	assert.Equal(t, 1.20, quotes["SPY250117P00450000"].Ask)
}
