package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/domain"
	"github.com/harmoniceagle/trader/internal/modules/journal"
	"github.com/harmoniceagle/trader/internal/modules/protection"
)

// Scan windows in exchange time. The opening 15 minutes are skipped on
// purpose; the first window waits for the open-auction noise to settle.
var ScanWindows = map[string]string{
	"morning":   "0 45 9 * * MON-FRI",
	"early":     "0 0 10 * * MON-FRI",
	"mid":       "0 30 10 * * MON-FRI",
	"midday":    "0 0 12 * * MON-FRI",
	"afternoon": "0 0 15 * * MON-FRI",
}

// Default schedules for the periodic jobs.
const (
	ReconciliationSchedule = "0 */5 * * * *"       // every 5 minutes
	ProtectionSchedule     = "0 */2 * * * *"       // every 2 minutes
	BackupSchedule         = "0 30 17 * * MON-FRI" // after the close
)

const jobTimeout = 2 * time.Minute

// CandidateExecutor runs a candidate through the submission protocol.
type CandidateExecutor interface {
	Execute(ctx context.Context, c domain.Candidate) domain.Outcome
}

// ReconciliationJob runs the journal sync and close-detection pass.
type ReconciliationJob struct {
	Reconciler *journal.Reconciler
}

func (j *ReconciliationJob) Name() string { return "reconciliation" }

func (j *ReconciliationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	j.Reconciler.Run(ctx)
	return nil
}

// ProtectionJob runs the safety net and the ratchet while the market is open.
type ProtectionJob struct {
	Broker    domain.BrokerClient
	SafetyNet *protection.SafetyNet
	Ratchet   *protection.Ratchet
	Log       zerolog.Logger
}

func (j *ProtectionJob) Name() string { return "protection" }

func (j *ProtectionJob) Run() error {
	clock, err := j.Broker.GetClock()
	if err != nil {
		return fmt.Errorf("failed to get market clock: %w", err)
	}
	if !clock.IsOpen {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := j.SafetyNet.Run(ctx); err != nil {
		j.Log.Error().Err(err).Msg("Safety net pass failed")
	}
	if _, err := j.Ratchet.Run(ctx); err != nil {
		j.Log.Error().Err(err).Msg("Ratchet pass failed")
	}
	return nil
}

// ScanJob pulls candidates for a named window and optionally executes them.
// With auto-execution off the candidates are only reported via alerts.
type ScanJob struct {
	Window      string
	Source      domain.CandidateSource
	Executor    CandidateExecutor
	Alerts      domain.AlertSink
	AutoExecute bool
	Log         zerolog.Logger
}

func (j *ScanJob) Name() string { return "scan-" + j.Window }

func (j *ScanJob) Run() error {
	if j.Source == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	candidates, err := j.Source.Scan(ctx, j.Window)
	if err != nil {
		return fmt.Errorf("scan window %s failed: %w", j.Window, err)
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, c := range candidates {
		if !j.AutoExecute {
			if j.Alerts != nil {
				body := fmt.Sprintf("%s %s @ %.2f (score %.0f, setup %s)",
					c.Direction, c.Symbol, c.TradePlan.Entry, c.Score, c.SetupName)
				j.Alerts.SendAlert(ctx, "Candidate: "+c.Symbol, body, domain.SeverityInfo)
			}
			continue
		}

		outcome := j.Executor.Execute(ctx, c)
		j.Log.Info().
			Str("window", j.Window).
			Str("symbol", c.Symbol).
			Str("outcome", outcome.String()).
			Msg("Scan candidate executed")
	}
	return nil
}

// BackupJob uploads a ledger snapshot offsite.
type BackupJob struct {
	Backup interface {
		Run(ctx context.Context) error
	}
}

func (j *BackupJob) Name() string { return "ledger-backup" }

func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	return j.Backup.Run(ctx)
}
