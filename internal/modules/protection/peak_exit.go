package protection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/domain"
	"github.com/harmoniceagle/trader/internal/metrics"
)

const (
	atrPeriod    = 14
	volSMAPeriod = 10

	// Volume below this fraction of its rolling average while price rises
	// marks buying exhaustion.
	exhaustionVolRatio = 0.9

	tightATRMult = 0.5
	looseATRMult = 2.0

	barTimeframe = "5Min"
	barLookback  = 50
)

// Ratchet tightens stops on long positions as they work. The stop only ever
// moves up, toward the current price, never away from it; a proposed stop
// that would loosen protection or trigger immediately is discarded.
type Ratchet struct {
	broker domain.BrokerClient
	log    zerolog.Logger

	mu    sync.Mutex
	highs map[string]float64 // trailing high per symbol since first seen
}

// NewRatchet creates a peak-exit ratchet service.
func NewRatchet(broker domain.BrokerClient, log zerolog.Logger) *Ratchet {
	return &Ratchet{
		broker: broker,
		log:    log.With().Str("service", "ratchet").Logger(),
		highs:  make(map[string]float64),
	}
}

// Run evaluates every long position and replaces stops that can tighten.
// Returns the number of stops moved.
func (r *Ratchet) Run(ctx context.Context) (int, error) {
	positions, err := r.broker.ListPositions()
	if err != nil {
		return 0, fmt.Errorf("failed to list positions: %w", err)
	}

	orders, err := r.broker.ListOrders("open", nil, 200)
	if err != nil {
		return 0, fmt.Errorf("failed to list open orders: %w", err)
	}

	r.pruneClosed(positions)

	moved := 0
	for _, pos := range positions {
		if ctx.Err() != nil {
			return moved, ctx.Err()
		}
		// Shorts are outside the ratchet's remit; the safety net covers them.
		if strings.EqualFold(pos.Side, "short") || pos.CurrentPrice <= 0 {
			continue
		}

		stopOrder := findStopOrder(orders, pos.Symbol)
		if stopOrder == nil {
			// Nothing to ratchet; the safety net will place one.
			continue
		}

		bars, err := r.broker.GetBars(pos.Symbol, barTimeframe, barLookback)
		if err != nil {
			r.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to fetch bars")
			continue
		}

		proposed, ok := r.proposeStop(pos, bars)
		if !ok {
			continue
		}

		applied, ok := applyGuards(proposed, stopOrder.StopPrice, pos.CurrentPrice)
		if !ok {
			continue
		}

		if _, err := r.broker.ReplaceOrder(stopOrder.ID, applied); err != nil {
			r.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to replace stop order")
			continue
		}

		moved++
		metrics.ProtectionStops.WithLabelValues("ratchet").Inc()
		r.log.Info().
			Str("symbol", pos.Symbol).
			Float64("old_stop", stopOrder.StopPrice).
			Float64("new_stop", applied).
			Float64("current", pos.CurrentPrice).
			Msg("Stop ratcheted up")
	}
	return moved, nil
}

// proposeStop computes the candidate stop from recent bars: tight below
// price on volume exhaustion, otherwise a loose trail under the peak.
func (r *Ratchet) proposeStop(pos domain.Position, bars []domain.Bar) (float64, bool) {
	need := atrPeriod + 1
	if volSMAPeriod+1 > need {
		need = volSMAPeriod + 1
	}
	if len(bars) < need {
		return 0, false
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	atrSeries := talib.Atr(highs, lows, closes, atrPeriod)
	atr := atrSeries[len(atrSeries)-1]
	if atr <= 0 {
		return 0, false
	}

	volSMA := talib.Sma(volumes, volSMAPeriod)
	avgVol := volSMA[len(volSMA)-1]

	trailingHigh := r.trackHigh(pos.Symbol, highs)

	last := len(bars) - 1
	priceRising := closes[last] > closes[last-1]
	exhausted := priceRising && avgVol > 0 && volumes[last] < exhaustionVolRatio*avgVol

	if exhausted {
		return pos.CurrentPrice - tightATRMult*atr, true
	}
	return trailingHigh - looseATRMult*atr, true
}

// applyGuards enforces the ratchet invariant. The returned stop is accepted
// only if it tightens the existing stop and stays below the current price.
func applyGuards(proposed, existingStop, currentPrice float64) (float64, bool) {
	if proposed <= existingStop {
		return 0, false
	}
	if proposed >= currentPrice {
		return 0, false
	}
	return proposed, true
}

// trackHigh updates and returns the trailing high for a symbol.
func (r *Ratchet) trackHigh(symbol string, highs []float64) float64 {
	peak := 0.0
	for _, h := range highs {
		if h > peak {
			peak = h
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.highs[symbol]; ok && prev > peak {
		peak = prev
	}
	r.highs[symbol] = peak
	return peak
}

// pruneClosed drops trailing-high state for symbols no longer held.
func (r *Ratchet) pruneClosed(positions []domain.Position) {
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for sym := range r.highs {
		if !held[sym] {
			delete(r.highs, sym)
		}
	}
}

// findStopOrder returns the open protective order for a symbol, or nil.
func findStopOrder(orders []domain.Order, symbol string) *domain.Order {
	for i := range orders {
		o := orders[i]
		if o.Symbol != symbol {
			continue
		}
		switch o.Type {
		case domain.OrderTypeStop, domain.OrderTypeStopLimit, domain.OrderTypeTrailingStop:
			return &orders[i]
		}
	}
	return nil
}
