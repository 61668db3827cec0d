package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cricstats/stature/internal/adapters/export"
	"github.com/cricstats/stature/internal/adapters/ingest"
	"github.com/cricstats/stature/internal/app"
	"github.com/cricstats/stature/internal/config"
	"github.com/cricstats/stature/internal/domain/dataset"
	"github.com/cricstats/stature/pkg/logger"
)

// Exit codes: malformed input is distinguished so batch callers can tell a
// bad dataset from an engine failure.
const (
	exitOK             = 0
	exitFailure        = 1
	exitMalformedInput = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		datasetPath   = flag.String("dataset", "", "Path to the processed all-players CSV (overrides config)")
		rawDir        = flag.String("raw-dir", "", "Directory of raw tournament JSON files (overrides config)")
		outputPath    = flag.String("output", "", "Path for the analysis results JSON (overrides config)")
		dashboardPath = flag.String("dashboard", "", "Path for the dashboard payload JSON (overrides config)")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return exitFailure
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		return exitFailure
	}
	if *datasetPath != "" {
		cfg.DatasetPath = *datasetPath
	}
	if *rawDir != "" {
		cfg.RawDir = *rawDir
	}
	if *outputPath != "" {
		cfg.OutputPath = *outputPath
	}
	if *dashboardPath != "" {
		cfg.DashboardPath = *dashboardPath
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
	}

	table, err := ingest.Load(ctx, cfg)
	if err != nil {
		log.Error(ctx, "failed to load dataset", logger.Error(err))
		if errors.Is(err, dataset.ErrMalformedInput) {
			return exitMalformedInput
		}
		return exitFailure
	}

	svc := app.New(cfg, app.WithLogger(log))
	doc, err := svc.Run(ctx, table)
	if err != nil {
		log.Error(ctx, "analysis run failed", logger.Error(err))
		if errors.Is(err, dataset.ErrMalformedInput) {
			return exitMalformedInput
		}
		return exitFailure
	}

	if err := export.WriteDocument(ctx, doc, cfg.OutputPath); err != nil {
		log.Error(ctx, "failed to write results", logger.Error(err))
		return exitFailure
	}
	if cfg.DashboardPath != "" {
		if err := export.WriteDashboard(ctx, table, doc, cfg.DashboardPath); err != nil {
			log.Error(ctx, "failed to write dashboard", logger.Error(err))
			return exitFailure
		}
	}

	log.Info(ctx, "done",
		logger.String("run_id", doc.RunID),
		logger.String("output", cfg.OutputPath),
		logger.Int("skips", len(doc.Skips)),
	)
	return exitOK
}
