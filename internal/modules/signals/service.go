package signals

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/domain"
	"github.com/harmoniceagle/trader/internal/metrics"
)

// Executor runs a candidate through the order submission protocol.
type Executor interface {
	Execute(ctx context.Context, c domain.Candidate) domain.Outcome
}

// Service processes inbound signals with at-most-once semantics on the happy
// path. The idempotency record is written only after execution completes, so
// a crash between broker acceptance and the write can re-execute a retried
// signal; this is a documented trade-off, not a bug to paper over.
type Service struct {
	store    *Store
	executor Executor
	log      zerolog.Logger
}

// NewService creates the signal processing service.
func NewService(store *Store, executor Executor, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		executor: executor,
		log:      log.With().Str("service", "signals").Logger(),
	}
}

// ProcessSignal executes a signal unless it was already processed.
func (s *Service) ProcessSignal(ctx context.Context, sig domain.Signal) domain.Outcome {
	seen, err := s.store.Seen(sig.SignalID)
	if err != nil {
		s.log.Error().Err(err).Str("signal_id", sig.SignalID).Msg("Idempotency check failed")
		metrics.Signals.WithLabelValues("error").Inc()
		return domain.Outcome{Code: domain.OutcomeError, Detail: "idempotency store unavailable"}
	}
	if seen {
		s.log.Info().Str("signal_id", sig.SignalID).Msg("Duplicate signal ignored")
		metrics.Signals.WithLabelValues("duplicate").Inc()
		return domain.Outcome{Code: domain.OutcomeIgnoredDuplicate, Detail: "signal already processed"}
	}

	candidate := sig.Candidate
	if candidate.SignalID == "" {
		candidate.SignalID = sig.SignalID
	}

	outcome := s.executor.Execute(ctx, candidate)

	// Only terminal outcomes are recorded; a connectivity failure must not
	// block a later retry of the same signal.
	if outcome.Terminal() {
		if err := s.store.Mark(sig.SignalID, outcome.Code); err != nil {
			s.log.Error().Err(err).Str("signal_id", sig.SignalID).Msg("Failed to mark signal processed")
		}
	}

	switch {
	case outcome.Success():
		metrics.Signals.WithLabelValues("success").Inc()
	case outcome.Code == domain.OutcomeError || outcome.Code == domain.OutcomeFailedNoAPI:
		metrics.Signals.WithLabelValues("error").Inc()
	default:
		metrics.Signals.WithLabelValues("rejected").Inc()
	}

	s.log.Info().
		Str("signal_id", sig.SignalID).
		Str("symbol", candidate.Symbol).
		Str("outcome", outcome.String()).
		Msg("Signal processed")
	return outcome
}
