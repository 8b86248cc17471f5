package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/config"
	"github.com/harmoniceagle/trader/internal/domain"
	"github.com/harmoniceagle/trader/internal/metrics"
	"github.com/harmoniceagle/trader/internal/modules/journal"
)

// Executor runs the order submission protocol: a chain of hard gates, then a
// single bracket order. Every failure is a typed outcome; nothing below this
// layer throws into a scheduler job or request handler.
type Executor struct {
	broker  domain.BrokerClient
	gate    *RiskGate
	journal *journal.Repository
	alerts  domain.AlertSink
	mode    config.TradingMode
	condor  *CondorExecutor
	log     zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(
	broker domain.BrokerClient,
	gate *RiskGate,
	repo *journal.Repository,
	alerts domain.AlertSink,
	mode config.TradingMode,
	log zerolog.Logger,
) *Executor {
	return &Executor{
		broker:  broker,
		gate:    gate,
		journal: repo,
		alerts:  alerts,
		mode:    mode,
		condor:  NewCondorExecutor(broker, alerts, log),
		log:     log.With().Str("service", "executor").Logger(),
	}
}

// Execute submits a candidate as a bracket order. Options candidates are
// dispatched to the two-phase condor protocol instead.
func (x *Executor) Execute(ctx context.Context, c domain.Candidate) domain.Outcome {
	if c.Bucket == domain.BucketOptions && c.CondorLegs != nil {
		if x.mode == config.ModeResearch {
			return domain.Outcome{Code: domain.OutcomeResearchOnly, Detail: "research mode, no order sent"}
		}
		// The compliance gate applies to multi-leg structures too; four legs
		// still count as one position against the cap.
		if outcome := x.gate.CheckCompliance(c.Symbol); outcome.Code != domain.OutcomeOK {
			x.log.Warn().Str("symbol", c.Symbol).Str("outcome", outcome.String()).Msg("Candidate rejected by risk gate")
			return outcome
		}
		return x.condor.Execute(ctx, c)
	}

	// Gate 1: connectivity.
	if !x.broker.IsConnected() {
		return domain.Outcome{Code: domain.OutcomeFailedNoAPI, Detail: "broker not connected"}
	}

	// Gate 2: research mode is a dry run, no order ever leaves the process.
	if x.mode == config.ModeResearch {
		x.log.Info().Str("symbol", c.Symbol).Msg("Research mode, candidate not executed")
		return domain.Outcome{Code: domain.OutcomeResearchOnly, Detail: "research mode, no order sent"}
	}

	// Gate 3: compliance.
	if outcome := x.gate.CheckCompliance(c.Symbol); outcome.Code != domain.OutcomeOK {
		x.log.Warn().Str("symbol", c.Symbol).Str("outcome", outcome.String()).Msg("Candidate rejected by risk gate")
		return outcome
	}

	account, err := x.broker.GetAccount()
	if err != nil {
		return domain.Outcome{Code: domain.OutcomeRiskCheckError, Detail: fmt.Sprintf("account unavailable: %v", err)}
	}

	// Gate 4: sizing.
	qty := x.gate.SizePosition(c, account.Equity)
	if qty <= 0 {
		return domain.Outcome{Code: domain.OutcomeQtyZero, Detail: fmt.Sprintf("entry price %.2f produced zero quantity", c.TradePlan.Entry)}
	}

	// Gate 5: safety seal. Pure geometry, independent of broker state.
	if outcome := validateGeometry(c); outcome.Code != domain.OutcomeOK {
		return outcome
	}

	req := buildBracketRequest(c, qty)
	order, err := x.broker.SubmitOrder(req)
	if err != nil {
		x.log.Error().Err(err).Str("symbol", c.Symbol).Msg("Order submission failed")
		return domain.Outcome{Code: domain.OutcomeError, Detail: err.Error()}
	}

	metrics.Orders.WithLabelValues(string(x.mode), req.Side).Inc()

	// Submission succeeded; journaling and notification failures must never
	// roll it back.
	x.recordEntry(c, order, qty)
	x.notifyEntry(ctx, c, order, qty)

	return domain.Outcome{Code: domain.OutcomeSuccess, Detail: order.ID}
}

// validateGeometry enforces the safety seal: for a long, stop < entry <
// target; mirrored for a short. A violated seal means the candidate data is
// wrong and no order may reach the broker.
func validateGeometry(c domain.Candidate) domain.Outcome {
	entry := c.TradePlan.Entry
	stop := c.TradePlan.StopLoss
	target := c.TradePlan.TakeProfit

	valid := stop < entry && entry < target
	if c.Direction == domain.DirectionShort {
		valid = target < entry && entry < stop
	}
	if !valid {
		return domain.Outcome{
			Code: domain.OutcomeRejectedSafety,
			Detail: fmt.Sprintf("invalid %s geometry: stop=%.2f entry=%.2f target=%.2f",
				c.Direction, stop, entry, target),
		}
	}
	return domain.Outcome{Code: domain.OutcomeOK}
}

// buildBracketRequest maps a candidate to a bracket order. Swing entries are
// patient limit orders (GTC); day entries are market orders (DAY).
func buildBracketRequest(c domain.Candidate, qty int) domain.OrderRequest {
	side := domain.SideBuy
	if c.Direction == domain.DirectionShort {
		side = domain.SideSell
	}

	req := domain.OrderRequest{
		Symbol:        c.Symbol,
		Qty:           float64(qty),
		Side:          side,
		ClientOrderID: c.SignalID,
		Bracket: &domain.BracketSpec{
			TakeProfitLimit: c.TradePlan.TakeProfit,
			StopLossPrice:   c.TradePlan.StopLoss,
		},
	}

	if c.Bucket == domain.BucketDay {
		req.Type = domain.OrderTypeMarket
		req.TimeInForce = "day"
	} else {
		req.Type = domain.OrderTypeLimit
		req.TimeInForce = "gtc"
		req.LimitPrice = c.TradePlan.Entry
	}
	return req
}

func (x *Executor) recordEntry(c domain.Candidate, order *domain.Order, qty int) {
	side := domain.SideBuy
	if c.Direction == domain.DirectionShort {
		side = domain.SideSell
	}

	entry := &journal.Entry{
		TradeID:     c.SignalID,
		Symbol:      c.Symbol,
		Bucket:      c.Bucket,
		SetupName:   c.SetupName,
		Side:        side,
		Qty:         float64(qty),
		EntryTime:   time.Now().UTC(),
		EntryPrice:  c.TradePlan.Entry,
		StopPrice:   c.TradePlan.StopLoss,
		TargetPrice: c.TradePlan.TakeProfit,
		RiskDollars: math.Abs(c.TradePlan.Entry-c.TradePlan.StopLoss) * float64(qty),
		Status:      journal.StatusOpen,
		Score:       c.Score,
	}
	if err := x.journal.Insert(entry); err != nil {
		x.log.Error().Err(err).
			Str("symbol", c.Symbol).
			Str("order_id", order.ID).
			Msg("Order submitted but journal write failed; reconciliation will recover it")
	}
}

func (x *Executor) notifyEntry(ctx context.Context, c domain.Candidate, order *domain.Order, qty int) {
	if x.alerts == nil {
		return
	}
	body := fmt.Sprintf("%s %d x %s @ %.2f (stop %.2f, target %.2f)\nSetup: %s\nOrder: %s",
		c.Direction, qty, c.Symbol,
		c.TradePlan.Entry, c.TradePlan.StopLoss, c.TradePlan.TakeProfit,
		c.SetupName, order.ID,
	)
	x.alerts.SendAlert(ctx, "Trade Entered: "+c.Symbol, body, domain.SeveritySuccess)
}
