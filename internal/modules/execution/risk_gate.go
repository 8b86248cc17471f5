// Package execution implements order submission: the risk gate, the bracket
// order protocol for equities and the two-phase protocol for iron condors.
package execution

import (
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/config"
	"github.com/harmoniceagle/trader/internal/domain"
)

// RiskGate enforces the pre-trade compliance checks and computes position
// size. It is deliberately conservative: any doubt about broker state is a
// rejection, never a pass.
type RiskGate struct {
	broker domain.BrokerClient
	risk   config.RiskConfig
	log    zerolog.Logger
}

// NewRiskGate creates a risk gate.
func NewRiskGate(broker domain.BrokerClient, risk config.RiskConfig, log zerolog.Logger) *RiskGate {
	return &RiskGate{
		broker: broker,
		risk:   risk,
		log:    log.With().Str("service", "risk_gate").Logger(),
	}
}

// CheckCompliance validates that a new position in symbol is allowed.
// One position per symbol, hard cap on concurrent positions, fail closed
// when the broker cannot be queried.
func (g *RiskGate) CheckCompliance(symbol string) domain.Outcome {
	if !g.broker.IsConnected() {
		return domain.Outcome{Code: domain.OutcomeNoAPI, Detail: "broker not connected"}
	}

	positions, err := g.broker.ListPositions()
	if err != nil {
		g.log.Error().Err(err).Msg("Compliance check could not list positions")
		return domain.Outcome{Code: domain.OutcomeRiskCheckError, Detail: err.Error()}
	}

	if len(positions) >= g.risk.MaxOpenPositions {
		return domain.Outcome{
			Code:   domain.OutcomeMaxPositionsReached,
			Detail: "open position cap reached",
		}
	}

	for _, pos := range positions {
		if strings.EqualFold(pos.Symbol, symbol) {
			return domain.Outcome{
				Code:   domain.OutcomeAlreadyHolding,
				Detail: "already holding " + symbol,
			}
		}
	}

	return domain.Outcome{Code: domain.OutcomeOK}
}

// SizePosition computes the share quantity for a candidate. Risk-based
// sizing capped by a per-position allocation limit; never zero for a valid
// entry price, so a passing candidate always trades at least one share.
func (g *RiskGate) SizePosition(c domain.Candidate, equity float64) int {
	entry := c.TradePlan.Entry
	if entry <= 0 {
		return 0
	}

	stopDist := math.Abs(entry - c.TradePlan.StopLoss)
	if stopDist <= 0 {
		// Degenerate stop; assume a 1% distance rather than divide by zero.
		stopDist = entry * 0.01
	}

	riskPct := g.riskPercent(c)
	riskDollars := equity * riskPct / 100

	sharesByRisk := math.Floor(riskDollars / stopDist)
	sharesByCap := math.Floor(equity * g.risk.MaxAllocationPercent / 100 / entry)

	qty := math.Min(sharesByRisk, sharesByCap)
	if qty < 1 {
		qty = 1
	}

	g.log.Debug().
		Str("symbol", c.Symbol).
		Float64("risk_percent", riskPct).
		Float64("shares_by_risk", sharesByRisk).
		Float64("shares_by_cap", sharesByCap).
		Int("qty", int(qty)).
		Msg("Position sized")
	return int(qty)
}

// riskPercent resolves the risk percentage for a candidate: the plan's own
// figure when present, otherwise the configured base (core trades get the
// higher core allowance), optionally scaled quadratically by conviction.
func (g *RiskGate) riskPercent(c domain.Candidate) float64 {
	pct := g.risk.MaxRiskPerTradePercent
	if c.TradePlan.IsCoreTrade {
		pct = g.risk.CoreRiskPerTradePercent
	}
	if c.TradePlan.RiskPercent > 0 {
		pct = c.TradePlan.RiskPercent
	}

	if g.risk.ConvictionSizing && c.Score > 0 && g.risk.ConvictionBaseline > 0 {
		mult := c.Score / g.risk.ConvictionBaseline
		pct *= mult * mult
		if pct > g.risk.ConvictionCapPercent {
			pct = g.risk.ConvictionCapPercent
		}
		if pct < g.risk.ConvictionFloorPercent {
			pct = g.risk.ConvictionFloorPercent
		}
	}
	return pct
}
