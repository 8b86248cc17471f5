// Package protection implements the position protection daemon: the safety
// net that guarantees every open position has a stop, and the peak-exit
// ratchet that tightens stops as a position works.
package protection

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/domain"
	"github.com/harmoniceagle/trader/internal/metrics"
)

// Emergency stop distance for unprotected positions, fraction of current price.
const safetyNetStopPercent = 0.02

// SafetyNet places emergency stops on positions that have none. Idempotent
// by construction: a protected position has a covering order and is skipped
// until that order disappears.
type SafetyNet struct {
	broker domain.BrokerClient
	alerts domain.AlertSink
	log    zerolog.Logger
}

// NewSafetyNet creates a safety net service.
func NewSafetyNet(broker domain.BrokerClient, alerts domain.AlertSink, log zerolog.Logger) *SafetyNet {
	return &SafetyNet{
		broker: broker,
		alerts: alerts,
		log:    log.With().Str("service", "safety_net").Logger(),
	}
}

// Run scans all open positions and protects any without a stop order.
// Returns the number of stops placed.
func (s *SafetyNet) Run(ctx context.Context) (int, error) {
	positions, err := s.broker.ListPositions()
	if err != nil {
		return 0, fmt.Errorf("failed to list positions: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	orders, err := s.broker.ListOrders("open", nil, 200)
	if err != nil {
		return 0, fmt.Errorf("failed to list open orders: %w", err)
	}

	protected := protectedSymbols(orders)
	placed := 0

	for _, pos := range positions {
		if ctx.Err() != nil {
			return placed, ctx.Err()
		}
		if protected[pos.Symbol] {
			continue
		}

		stop, side := emergencyStop(pos)
		if stop <= 0 {
			continue
		}

		_, err := s.broker.SubmitOrder(domain.OrderRequest{
			Symbol:      pos.Symbol,
			Qty:         math.Abs(pos.Qty),
			Side:        side,
			Type:        domain.OrderTypeStop,
			TimeInForce: "gtc",
			StopPrice:   stop,
		})
		if err != nil {
			s.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to place emergency stop")
			continue
		}

		placed++
		metrics.ProtectionStops.WithLabelValues("safety_net").Inc()
		s.log.Warn().
			Str("symbol", pos.Symbol).
			Float64("stop", stop).
			Float64("current", pos.CurrentPrice).
			Msg("Unprotected position covered with emergency stop")

		if s.alerts != nil {
			s.alerts.SendAlert(ctx, "Safety Net: "+pos.Symbol,
				fmt.Sprintf("Placed emergency stop at %.2f (current %.2f)", stop, pos.CurrentPrice),
				domain.SeverityWarning)
		}
	}
	return placed, nil
}

// protectedSymbols returns the symbols covered by a live protective order.
func protectedSymbols(orders []domain.Order) map[string]bool {
	out := make(map[string]bool)
	for _, o := range orders {
		switch o.Type {
		case domain.OrderTypeStop, domain.OrderTypeStopLimit, domain.OrderTypeTrailingStop:
			out[o.Symbol] = true
		}
	}
	return out
}

// emergencyStop computes the 2% stop for a position: below price for a long,
// above for a short. Returns the closing side for the stop order.
func emergencyStop(pos domain.Position) (stop float64, side string) {
	if pos.CurrentPrice <= 0 {
		return 0, ""
	}
	if strings.EqualFold(pos.Side, "short") {
		return pos.CurrentPrice * (1 + safetyNetStopPercent), domain.SideBuy
	}
	return pos.CurrentPrice * (1 - safetyNetStopPercent), domain.SideSell
}
