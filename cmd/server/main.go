package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/clients/alpaca"
	"github.com/harmoniceagle/trader/internal/config"
	"github.com/harmoniceagle/trader/internal/database"
	"github.com/harmoniceagle/trader/internal/domain"
	"github.com/harmoniceagle/trader/internal/modules/execution"
	"github.com/harmoniceagle/trader/internal/modules/journal"
	"github.com/harmoniceagle/trader/internal/modules/protection"
	"github.com/harmoniceagle/trader/internal/modules/signals"
	"github.com/harmoniceagle/trader/internal/notify"
	"github.com/harmoniceagle/trader/internal/reliability"
	"github.com/harmoniceagle/trader/internal/scheduler"
	"github.com/harmoniceagle/trader/internal/server"
	"github.com/harmoniceagle/trader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info", Pretty: true})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("mode", string(cfg.TradingMode)).
		Bool("auto_execute", cfg.AutoExecute).
		Msg("Starting execution engine")

	// Databases. The ledger gets the maximum-safety profile; it is the audit
	// trail for real money.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	signalsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "signals.db"),
		Profile: database.ProfileStandard,
		Name:    "signals",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open signals database")
	}
	defer signalsDB.Close()

	// Broker client and notifications.
	broker := alpaca.NewClient(cfg.BrokerBaseURL, cfg.BrokerDataURL, cfg.BrokerAPIKey, cfg.BrokerAPISecret, log)
	alerts := buildNotifier(cfg, log)

	// Repositories and services.
	journalRepo, err := journal.NewRepository(ledgerDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize journal")
	}
	reconciler := journal.NewReconciler(journalRepo, broker, log)

	signalStore, err := signals.NewStore(signalsDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize signal store")
	}

	riskGate := execution.NewRiskGate(broker, cfg.Risk, log)
	executor := execution.NewExecutor(broker, riskGate, journalRepo, alerts, cfg.TradingMode, log)
	signalService := signals.NewService(signalStore, executor, log)

	safetyNet := protection.NewSafetyNet(broker, alerts, log)
	ratchet := protection.NewRatchet(broker, log)

	// Cold-start hydration: rebuild missing journal rows from broker history
	// before anything else reads the journal.
	if broker.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if n, err := reconciler.Hydrate(ctx); err != nil {
			log.Error().Err(err).Msg("Startup hydration failed, continuing with existing journal")
		} else if n > 0 {
			log.Info().Int("rows", n).Msg("Journal hydrated on startup")
		}
		cancel()
	}

	// Trade update stream: accelerates reconciliation, polling stays
	// authoritative.
	if cfg.BrokerStreamURL != "" {
		stream := alpaca.NewTradeUpdateStream(cfg.BrokerStreamURL, cfg.BrokerAPIKey, cfg.BrokerAPISecret,
			func(event string, order domain.Order) {
				if event != "fill" && event != "partial_fill" {
					return
				}
				log.Info().Str("event", event).Str("symbol", order.Symbol).Msg("Fill event, reconciling")
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				reconciler.Run(ctx)
			}, log)
		stream.Start()
		defer stream.Stop()
	}

	// Scheduler in exchange time.
	nyc, err := time.LoadLocation("America/New_York")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load exchange timezone")
	}
	sched := scheduler.New(nyc, log)

	reconJob := &scheduler.ReconciliationJob{Reconciler: reconciler}
	protectJob := &scheduler.ProtectionJob{Broker: broker, SafetyNet: safetyNet, Ratchet: ratchet, Log: log}
	triggerJobs := []scheduler.Job{reconJob, protectJob}

	if err := sched.AddJob(scheduler.ReconciliationSchedule, reconJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register reconciliation job")
	}
	if err := sched.AddJob(scheduler.ProtectionSchedule, protectJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register protection job")
	}

	for window, spec := range scheduler.ScanWindows {
		job := &scheduler.ScanJob{
			Window:      window,
			Source:      nil, // scanning subsystem attaches here when deployed alongside
			Executor:    executor,
			Alerts:      alerts,
			AutoExecute: cfg.AutoExecute,
			Log:         log,
		}
		if err := sched.AddJob(spec, job); err != nil {
			log.Fatal().Err(err).Str("window", window).Msg("Failed to register scan job")
		}
	}

	if cfg.Backup.Enabled {
		backup, err := reliability.NewBackupService(context.Background(), ledgerDB, cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup service")
		}
		backupJob := &scheduler.BackupJob{Backup: backup}
		if err := sched.AddJob(scheduler.BackupSchedule, backupJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
		triggerJobs = append(triggerJobs, backupJob)
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server.
	srv := server.New(server.Config{
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		Log:            log,
		AppConfig:      cfg,
		Broker:         broker,
		Alerts:         alerts,
		JournalHandler: journal.NewHandler(journalRepo, reconciler, log),
		WebhookHandler: signals.NewHandler(signalService, cfg.WebhookToken, log),
		Scheduler:      sched,
		TriggerJobs:    triggerJobs,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Execution engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}

// buildNotifier assembles the alert fan-out from whatever channels are
// configured. Zero channels is fine; alerts become log lines only.
func buildNotifier(cfg *config.Config, log zerolog.Logger) domain.AlertSink {
	var senders []notify.Sender

	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Error().Err(err).Msg("Telegram sender unavailable")
		} else {
			senders = append(senders, tg)
		}
	}

	return notify.New(log, senders...)
}
