package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmoniceagle/trader/internal/brokertest"
	"github.com/harmoniceagle/trader/internal/domain"
	"github.com/harmoniceagle/trader/internal/modules/protection"
)

type fakeSource struct {
	candidates []domain.Candidate
	windows    []string
}

func (f *fakeSource) Scan(ctx context.Context, window string) ([]domain.Candidate, error) {
	f.windows = append(f.windows, window)
	return f.candidates, nil
}

type fakeExecutor struct {
	executed []domain.Candidate
}

func (f *fakeExecutor) Execute(ctx context.Context, c domain.Candidate) domain.Outcome {
	f.executed = append(f.executed, c)
	return domain.Outcome{Code: domain.OutcomeSuccess}
}

func TestScanJob_ExecutesCandidatesWhenAutoEnabled(t *testing.T) {
	source := &fakeSource{candidates: []domain.Candidate{
		{Symbol: "AAPL", TradePlan: domain.TradePlan{Entry: 50}},
		{Symbol: "MSFT", TradePlan: domain.TradePlan{Entry: 300}},
	}}
	exec := &fakeExecutor{}

	job := &ScanJob{
		Window:      "morning",
		Source:      source,
		Executor:    exec,
		AutoExecute: true,
		Log:         zerolog.Nop(),
	}

	require.NoError(t, job.Run())
	assert.Equal(t, []string{"morning"}, source.windows)
	assert.Len(t, exec.executed, 2)
}

func TestScanJob_ReportOnlyWithoutAutoExecution(t *testing.T) {
	source := &fakeSource{candidates: []domain.Candidate{
		{Symbol: "AAPL", TradePlan: domain.TradePlan{Entry: 50}},
	}}
	exec := &fakeExecutor{}

	job := &ScanJob{
		Window:      "midday",
		Source:      source,
		Executor:    exec,
		AutoExecute: false,
		Log:         zerolog.Nop(),
	}

	require.NoError(t, job.Run())
	assert.Empty(t, exec.executed)
}

func TestScanJob_NilSourceIsNoOp(t *testing.T) {
	job := &ScanJob{Window: "morning", Log: zerolog.Nop()}
	assert.NoError(t, job.Run())
}

func TestProtectionJob_SkipsWhenMarketClosed(t *testing.T) {
	broker := brokertest.New()
	broker.Clock = domain.Clock{IsOpen: false}
	broker.Positions = []domain.Position{
		{Symbol: "AAPL", Qty: 100, Side: "long", CurrentPrice: 200},
	}

	job := &ProtectionJob{
		Broker:    broker,
		SafetyNet: protection.NewSafetyNet(broker, nil, zerolog.Nop()),
		Ratchet:   protection.NewRatchet(broker, zerolog.Nop()),
		Log:       zerolog.Nop(),
	}

	require.NoError(t, job.Run())
	assert.Zero(t, broker.SubmitCount())
}

func TestProtectionJob_RunsWhenMarketOpen(t *testing.T) {
	broker := brokertest.New()
	broker.Positions = []domain.Position{
		{Symbol: "AAPL", Qty: 100, Side: "long", CurrentPrice: 200},
	}

	job := &ProtectionJob{
		Broker:    broker,
		SafetyNet: protection.NewSafetyNet(broker, nil, zerolog.Nop()),
		Ratchet:   protection.NewRatchet(broker, zerolog.Nop()),
		Log:       zerolog.Nop(),
	}

	require.NoError(t, job.Run())
	assert.Equal(t, 1, broker.SubmitCount()) // safety net stop
}

func TestScheduler_RegistersAndListsJobs(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())

	job := &ScanJob{Window: "morning", Log: zerolog.Nop()}
	require.NoError(t, s.AddJob(ScanWindows["morning"], job))
	require.NoError(t, s.AddJob(ReconciliationSchedule, &ScanJob{Window: "x", Log: zerolog.Nop()}))

	s.Start()
	defer s.Stop()

	infos := s.Jobs()
	require.Len(t, infos, 2)
	assert.Equal(t, "scan-morning", infos[0].Name)
	assert.False(t, infos[0].NextRun.IsZero())
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	err := s.AddJob("not a schedule", &ScanJob{Window: "morning", Log: zerolog.Nop()})
	assert.Error(t, err)
}
