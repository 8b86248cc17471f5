package execution

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/harmoniceagle/trader/internal/brokertest"
	"github.com/harmoniceagle/trader/internal/config"
	"github.com/harmoniceagle/trader/internal/domain"
)

func defaultRisk() config.RiskConfig {
	return config.RiskConfig{
		MaxRiskPerTradePercent:  1.0,
		CoreRiskPerTradePercent: 1.25,
		MaxAllocationPercent:    20.0,
		MaxOpenPositions:        4,
		ConvictionBaseline:      70.0,
		ConvictionCapPercent:    2.0,
		ConvictionFloorPercent:  0.25,
	}
}

func swingCandidate(symbol string) domain.Candidate {
	return domain.Candidate{
		SignalID:  "sig-" + symbol,
		Symbol:    symbol,
		Bucket:    domain.BucketSwing,
		SetupName: "breakout",
		Direction: domain.DirectionLong,
		Score:     80,
		TradePlan: domain.TradePlan{Entry: 50, StopLoss: 49, TakeProfit: 53},
	}
}

func TestCheckCompliance_OK(t *testing.T) {
	gate := NewRiskGate(brokertest.New(), defaultRisk(), zerolog.Nop())
	assert.Equal(t, domain.OutcomeOK, gate.CheckCompliance("AAPL").Code)
}

func TestCheckCompliance_NoAPI(t *testing.T) {
	broker := brokertest.New()
	broker.Connected = false
	gate := NewRiskGate(broker, defaultRisk(), zerolog.Nop())
	assert.Equal(t, domain.OutcomeNoAPI, gate.CheckCompliance("AAPL").Code)
}

func TestCheckCompliance_MaxPositions(t *testing.T) {
	broker := brokertest.New()
	broker.Positions = []domain.Position{
		{Symbol: "A"}, {Symbol: "B"}, {Symbol: "C"}, {Symbol: "D"},
	}
	gate := NewRiskGate(broker, defaultRisk(), zerolog.Nop())
	assert.Equal(t, domain.OutcomeMaxPositionsReached, gate.CheckCompliance("AAPL").Code)
}

func TestCheckCompliance_AlreadyHolding(t *testing.T) {
	broker := brokertest.New()
	broker.Positions = []domain.Position{{Symbol: "AAPL"}}
	gate := NewRiskGate(broker, defaultRisk(), zerolog.Nop())
	assert.Equal(t, domain.OutcomeAlreadyHolding, gate.CheckCompliance("AAPL").Code)
}

func TestCheckCompliance_ListFailureFailsClosed(t *testing.T) {
	broker := brokertest.New()
	broker.ListPositionsFn = func() ([]domain.Position, error) {
		return nil, assert.AnError
	}
	gate := NewRiskGate(broker, defaultRisk(), zerolog.Nop())
	assert.Equal(t, domain.OutcomeRiskCheckError, gate.CheckCompliance("AAPL").Code)
}

func TestSizePosition_AllocationCapBinds(t *testing.T) {
	// equity=100k, entry=50, stop=49, risk 1% -> 1000 shares by risk;
	// 20% allocation cap -> floor(20000/50) = 400 shares.
	gate := NewRiskGate(brokertest.New(), defaultRisk(), zerolog.Nop())

	qty := gate.SizePosition(swingCandidate("AAPL"), 100000)
	assert.Equal(t, 400, qty)
}

func TestSizePosition_RiskBinds(t *testing.T) {
	// Wide stop: entry=50, stop=40 -> floor(1000/10) = 100 shares by risk,
	// well under the 400-share cap.
	gate := NewRiskGate(brokertest.New(), defaultRisk(), zerolog.Nop())

	c := swingCandidate("AAPL")
	c.TradePlan.StopLoss = 40
	assert.Equal(t, 100, gate.SizePosition(c, 100000))
}

func TestSizePosition_NonPositiveEntryReturnsZero(t *testing.T) {
	gate := NewRiskGate(brokertest.New(), defaultRisk(), zerolog.Nop())

	c := swingCandidate("AAPL")
	c.TradePlan.Entry = 0
	assert.Equal(t, 0, gate.SizePosition(c, 100000))

	c.TradePlan.Entry = -5
	assert.Equal(t, 0, gate.SizePosition(c, 100000))
}

func TestSizePosition_ZeroStopDistanceFallsBackToOnePercent(t *testing.T) {
	gate := NewRiskGate(brokertest.New(), defaultRisk(), zerolog.Nop())

	c := swingCandidate("AAPL")
	c.TradePlan.StopLoss = 50 // same as entry
	// risk 1% of 100k = 1000; fallback stop distance 0.50 -> 2000 by risk;
	// cap 400 binds.
	assert.Equal(t, 400, gate.SizePosition(c, 100000))
}

func TestSizePosition_NeverBelowOneShare(t *testing.T) {
	gate := NewRiskGate(brokertest.New(), defaultRisk(), zerolog.Nop())

	c := swingCandidate("AAPL")
	c.TradePlan.Entry = 5000
	c.TradePlan.StopLoss = 4000
	// Tiny account: risk dollars 10, stop distance 1000 -> 0 by risk,
	// floored to 1.
	assert.Equal(t, 1, gate.SizePosition(c, 1000))
}

func TestSizePosition_RiskStaysWithinBounds(t *testing.T) {
	gate := NewRiskGate(brokertest.New(), defaultRisk(), zerolog.Nop())

	cases := []struct{ equity, entry, stop float64 }{
		{100000, 50, 49},
		{50000, 120, 117.5},
		{250000, 18.4, 17.9},
		{10000, 300, 285},
	}
	for _, tc := range cases {
		c := swingCandidate("X")
		c.TradePlan.Entry = tc.entry
		c.TradePlan.StopLoss = tc.stop

		qty := float64(gate.SizePosition(c, tc.equity))
		assert.GreaterOrEqual(t, qty, 1.0)
		assert.LessOrEqual(t, qty*(tc.entry-tc.stop), tc.equity*0.01+tc.entry)
		assert.LessOrEqual(t, qty*tc.entry, tc.equity*0.20+tc.entry)
	}
}

func TestRiskPercent_CoreTradeUsesHigherAllowance(t *testing.T) {
	gate := NewRiskGate(brokertest.New(), defaultRisk(), zerolog.Nop())

	c := swingCandidate("AAPL")
	c.TradePlan.IsCoreTrade = true
	c.TradePlan.StopLoss = 40 // risk binds: 1.25% of 100k / 10 = 125
	assert.Equal(t, 125, gate.SizePosition(c, 100000))
}

func TestRiskPercent_ConvictionScalingIsQuadraticAndClamped(t *testing.T) {
	risk := defaultRisk()
	risk.ConvictionSizing = true
	risk.MaxRiskPerTradePercent = 0.75
	gate := NewRiskGate(brokertest.New(), risk, zerolog.Nop())

	// Score at baseline: multiplier 1.0 -> 0.75%.
	c := swingCandidate("AAPL")
	c.Score = 70
	assert.InDelta(t, 0.75, gate.riskPercent(c), 1e-9)

	// Score above baseline scales quadratically: 0.75 * (84/70)^2 = 1.08.
	c.Score = 84
	assert.InDelta(t, 1.08, gate.riskPercent(c), 1e-9)

	// Very high score clamps at the cap.
	c.Score = 140
	assert.InDelta(t, 2.0, gate.riskPercent(c), 1e-9)

	// Very low score clamps at the floor.
	c.Score = 20
	assert.InDelta(t, 0.25, gate.riskPercent(c), 1e-9)
}
