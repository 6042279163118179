// Package main is the entry point for the pipeline binary: it wires
// configuration, the store, the provider router, and the orchestrator,
// then either runs once (-run-now) or schedules a daily run via cron and
// blocks until signaled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/marketpipe/internal/config"
	"github.com/aristath/marketpipe/internal/fundamentals"
	"github.com/aristath/marketpipe/internal/pipeline"
	"github.com/aristath/marketpipe/internal/prices"
	"github.com/aristath/marketpipe/internal/providers"
	"github.com/aristath/marketpipe/internal/reliability"
	"github.com/aristath/marketpipe/internal/scheduler"
	"github.com/aristath/marketpipe/internal/store"
	"github.com/aristath/marketpipe/pkg/logger"
)

// newProvider constructs the concrete Provider for one configured spec.
// Network-facing provider adapters are an explicit external collaborator
// of this system (their HTTP clients live outside this module); this
// registry is the single place a deployment wires its own adapters in by
// name. No adapters ship with this binary, so an unrecognized name is
// reported rather than silently skipped.
func newProvider(spec config.ProviderSpec) (providers.Provider, error) {
	return nil, fmt.Errorf("no provider adapter registered for %q — register one in cmd/pipeline/main.go's newProvider", spec.Name)
}

// pipelineJob adapts Orchestrator.Run into the scheduler.Job interface.
type pipelineJob struct {
	orch *pipeline.Orchestrator
	name string
}

func (j pipelineJob) Name() string { return j.name }

func (j pipelineJob) Run() error {
	ctx := context.Background()
	_, err := j.orch.Run(ctx, time.Now().UTC())
	return err
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "info", Pretty: true}).Fatal().Err(err).Msg("failed to load configuration")
	}

	baseLog := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	baseLog.Info().Msg("starting pipeline")

	runStarted := time.Now().UTC()
	runFile, err := logger.NewRunFile(cfg.LogDir, runStarted)
	if err != nil {
		baseLog.Fatal().Err(err).Msg("failed to open run log file")
	}
	defer runFile.Close()
	log := logger.NewRunLogger(logger.Config{Level: cfg.LogLevel, Pretty: true}, runFile)
	logger.SetGlobalLogger(log)

	db, err := store.New(store.Config{
		Path:    cfg.DataDir + "/marketpipe.db",
		Profile: store.ProfileStandard,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	tickers := store.NewTickerRepository(db.Conn())
	bars := store.NewBarRepository(db.Conn())
	fundamentalsRepo := store.NewFundamentalsRepository(db.Conn())
	earnings := store.NewEarningsRepository(db.Conn())
	ratiosRepo := store.NewRatiosRepository(db.Conn())
	scoresRepo := store.NewScoresRepository(db.Conn())
	apiUsage := store.NewApiUsageRepository(db.Conn())
	updateLog := store.NewUpdateLogRepository(db.Conn())

	var providerConfigs []providers.ProviderConfig
	var providerNames []string
	for _, spec := range cfg.Providers {
		p, err := newProvider(spec)
		if err != nil {
			log.Warn().Err(err).Str("provider", spec.Name).Msg("skipping unregistered provider")
			continue
		}
		providerConfigs = append(providerConfigs, providers.ProviderConfig{
			Provider:      p,
			Priority:      spec.Priority,
			RatePerMinute: spec.RatePerMinute,
			RatePerDay:    spec.RatePerDay,
		})
		providerNames = append(providerNames, spec.Name)
	}
	router := providers.NewRouter(log, providerConfigs)
	budget := pipeline.NewBudgetTracker(apiUsage, providerNames, cfg.DailyAPIBudget, cfg.APIBudgetReservePct)

	priceProc := prices.NewProcessor(log, router, bars, cfg.PriceBatchSize, cfg.InterBatchDelay())
	fundProc := fundamentals.NewProcessor(log, router, fundamentalsRepo, tickers, earnings)

	orch := pipeline.New(
		log,
		pipeline.Config{
			WorkerCount:            cfg.WorkerCount,
			MinimumHistoryDays:     cfg.MinimumHistoryDays,
			RunDeadline:            cfg.RunDeadline(),
			RateLimitWaitThreshold: cfg.RateLimitWaitThreshold(),
		},
		tickers, bars, earnings, ratiosRepo, scoresRepo, updateLog,
		router, budget, priceProc, fundProc,
	)

	runNow := flag.Bool("run-now", false, "run the pipeline immediately instead of waiting for the daily schedule")
	flag.Parse()

	job := pipelineJob{orch: orch, name: "daily_pipeline"}

	sched := scheduler.New(log)
	if err := sched.AddJob(cronSpecFor(cfg.MarketCloseUTC), job); err != nil {
		log.Fatal().Err(err).Msg("failed to register daily pipeline job")
	}
	if err := sched.AddJob("0 0 2 * * *", reliability.NewDailyMaintenanceJob(db, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to register daily maintenance job")
	}
	if err := sched.AddJob("0 0 3 * * 0", reliability.NewWeeklyMaintenanceJob(db, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to register weekly maintenance job")
	}

	if *runNow {
		if err := sched.RunNow(job); err != nil {
			log.Fatal().Err(err).Msg("pipeline run failed")
		}
		return
	}

	sched.Start()
	log.Info().Msg("pipeline scheduled, waiting for trigger time or shutdown signal")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	sched.Stop()
}

// cronSpecFor builds a seconds-precision cron expression firing one hour
// after marketCloseUTC (HH:MM), the daily pipeline trigger time.
func cronSpecFor(marketCloseUTC string) string {
	var hour, minute int
	if _, err := fmt.Sscanf(marketCloseUTC, "%d:%d", &hour, &minute); err != nil {
		hour, minute = 21, 0
	}
	hour = (hour + 1) % 24
	return fmt.Sprintf("0 %d %d * * *", minute, hour)
}
