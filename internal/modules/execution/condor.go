package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/harmoniceagle/trader/internal/domain"
	"github.com/harmoniceagle/trader/internal/metrics"
)

// Limit price aggression for condor legs: pay up for the protective wings,
// undercut to get the income legs filled.
var (
	buyLimitFactor  = decimal.NewFromFloat(1.05)
	sellLimitFactor = decimal.NewFromFloat(0.95)
)

// CondorExecutor runs the two-phase iron condor protocol. The four legs
// cannot be submitted atomically, so the protective wings are bought and
// verified before the short body is ever attempted; the account is never
// naked on the income side.
type CondorExecutor struct {
	broker domain.BrokerClient
	alerts domain.AlertSink
	log    zerolog.Logger

	// Wing fill polling knobs, overridable in tests.
	pollAttempts int
	pollInterval time.Duration
}

// NewCondorExecutor creates a condor executor with the default 10x1s fill poll.
func NewCondorExecutor(broker domain.BrokerClient, alerts domain.AlertSink, log zerolog.Logger) *CondorExecutor {
	return &CondorExecutor{
		broker:       broker,
		alerts:       alerts,
		log:          log.With().Str("service", "condor_executor").Logger(),
		pollAttempts: 10,
		pollInterval: time.Second,
	}
}

// Execute runs the protocol. Anything other than SUCCESS means "verify
// manually"; callers must never retry automatically, since a blind retry
// could duplicate wing purchases.
func (e *CondorExecutor) Execute(ctx context.Context, c domain.Candidate) domain.Outcome {
	legs := c.CondorLegs
	if legs == nil {
		return e.finish(c, domain.Outcome{Code: domain.OutcomeError, Detail: "candidate has no condor legs"})
	}
	if !e.broker.IsConnected() {
		return e.finish(c, domain.Outcome{Code: domain.OutcomeFailedNoAPI, Detail: "broker not connected"})
	}

	// Quote derivation. Every leg needs a live ask to price against.
	quotes, err := e.broker.GetOptionQuotes(legs.Symbols())
	if err != nil {
		return e.finish(c, domain.Outcome{Code: domain.OutcomeError, Detail: fmt.Sprintf("quote fetch failed: %v", err)})
	}
	for _, sym := range legs.Symbols() {
		q, ok := quotes[sym]
		if !ok || q.Ask <= 0 {
			return e.finish(c, domain.Outcome{Code: domain.OutcomeAborted, Detail: "No Liquidity"})
		}
	}

	// Phase 1: buy the protective wings.
	wings := []string{legs.LongPut, legs.LongCall}
	wingOrders := make([]string, 0, len(wings))
	for _, sym := range wings {
		limit := roundToCent(decimal.NewFromFloat(quotes[sym].Ask).Mul(buyLimitFactor))
		order, err := e.broker.SubmitOrder(domain.OrderRequest{
			Symbol:      sym,
			Qty:         1,
			Side:        domain.SideBuy,
			Type:        domain.OrderTypeLimit,
			TimeInForce: "day",
			LimitPrice:  limit,
		})
		if err != nil {
			e.cancelAll(wingOrders)
			return e.finish(c, domain.Outcome{Code: domain.OutcomeError, Detail: fmt.Sprintf("Phase 1 Failed: %v", err)})
		}
		wingOrders = append(wingOrders, order.ID)
	}

	// Fill wait: poll once per interval up to the attempt ceiling.
	if !e.waitForFills(ctx, wingOrders) {
		e.cancelAll(wingOrders)
		return e.finish(c, domain.Outcome{Code: domain.OutcomeAborted, Detail: "Wings Timeout"})
	}

	// Ghost-fill verification: fills can be reported before positions
	// settle. Both wings must appear as live positions before any selling.
	if !e.holdsAll(wings) {
		return e.finish(c, domain.Outcome{Code: domain.OutcomeAborted, Detail: "Ghost Fill Protection"})
	}

	// Phase 2: sell the body. Failure here leaves a debit spread, a
	// degraded but defined-risk state, reported as PARTIAL.
	for _, sym := range []string{legs.ShortPut, legs.ShortCall} {
		limit := roundToCent(decimal.NewFromFloat(quotes[sym].Bid).Mul(sellLimitFactor))
		if _, err := e.broker.SubmitOrder(domain.OrderRequest{
			Symbol:      sym,
			Qty:         1,
			Side:        domain.SideSell,
			Type:        domain.OrderTypeLimit,
			TimeInForce: "day",
			LimitPrice:  limit,
		}); err != nil {
			return e.finish(c, domain.Outcome{
				Code:   domain.OutcomePartial,
				Detail: fmt.Sprintf("Wings Only (Phase 2 Error %v)", err),
			})
		}
	}

	return e.finish(c, domain.Outcome{Code: domain.OutcomeSuccess, Detail: "Iron Condor Executed"})
}

// waitForFills polls the wing orders until all are filled or attempts run out.
func (e *CondorExecutor) waitForFills(ctx context.Context, orderIDs []string) bool {
	for attempt := 0; attempt < e.pollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(e.pollInterval):
			}
		}

		allFilled := true
		for _, id := range orderIDs {
			order, err := e.broker.GetOrder(id)
			if err != nil || order.Status != domain.OrderStatusFilled {
				allFilled = false
				break
			}
		}
		if allFilled {
			return true
		}
	}
	return false
}

// holdsAll reports whether every symbol appears in live positions.
func (e *CondorExecutor) holdsAll(symbols []string) bool {
	positions, err := e.broker.ListPositions()
	if err != nil {
		e.log.Error().Err(err).Msg("Position verification failed")
		return false
	}
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}
	for _, sym := range symbols {
		if !held[sym] {
			return false
		}
	}
	return true
}

func (e *CondorExecutor) cancelAll(orderIDs []string) {
	for _, id := range orderIDs {
		if err := e.broker.CancelOrder(id); err != nil {
			e.log.Error().Err(err).Str("order_id", id).Msg("Failed to cancel wing order")
		}
	}
}

// finish records metrics, notifies on non-success and returns the outcome.
func (e *CondorExecutor) finish(c domain.Candidate, outcome domain.Outcome) domain.Outcome {
	metrics.CondorOutcomes.WithLabelValues(outcome.Code).Inc()

	logEvent := e.log.Info()
	severity := domain.SeveritySuccess
	if !outcome.Success() {
		logEvent = e.log.Warn()
		severity = domain.SeverityWarning
	}
	logEvent.
		Str("symbol", c.Symbol).
		Str("outcome", outcome.String()).
		Msg("Condor execution finished")

	if e.alerts != nil && outcome.Code != domain.OutcomeResearchOnly {
		e.alerts.SendAlert(context.Background(),
			"Iron Condor: "+c.Symbol, outcome.String(), severity)
	}
	return outcome
}

func roundToCent(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
