package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/harmoniceagle/trader/internal/domain"
)

// healthResponse mirrors what operators watch on the dashboard: trading mode,
// risk limits and live broker reachability.
type healthResponse struct {
	Status         string  `json:"status"`
	Mode           string  `json:"mode"`
	AutoExecute    bool    `json:"auto_execute"`
	RiskLimit      float64 `json:"risk_limit_percent"`
	MaxPositions   int     `json:"max_positions"`
	BrokerOnline   bool    `json:"broker_online"`
	MarketOpen     bool    `json:"market_open"`
	NextMarketOpen string  `json:"next_market_open,omitempty"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Mode:          string(s.cfg.TradingMode),
		AutoExecute:   s.cfg.AutoExecute,
		RiskLimit:     s.cfg.Risk.MaxRiskPerTradePercent,
		MaxPositions:  s.cfg.Risk.MaxOpenPositions,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}

	if clock, err := s.broker.GetClock(); err == nil {
		resp.BrokerOnline = true
		resp.MarketOpen = clock.IsOpen
		if !clock.IsOpen {
			resp.NextMarketOpen = clock.NextOpen.Format(time.RFC3339)
		}
	} else {
		resp.Status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.broker.ListPositions()
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.broker.GetAccount()
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "open"
	}
	orders, err := s.broker.ListOrders(status, nil, 100)
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	s.writeJSON(w, http.StatusOK, orders)
}

// handleLiquidate is the kill switch: cancel everything, close everything.
// The confirm parameter is a deliberate speed bump.
func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "LIQUIDATE" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "liquidation requires ?confirm=LIQUIDATE",
		})
		return
	}

	s.log.Warn().Msg("Emergency liquidation requested")

	if err := s.broker.CloseAllPositions(true); err != nil {
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	if s.alerts != nil {
		s.alerts.SendAlert(r.Context(), "EMERGENCY LIQUIDATION",
			"All positions closed and open orders canceled via API", domain.SeverityCritical)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "liquidation submitted"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
