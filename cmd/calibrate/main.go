// Command calibrate runs the flight calibration batch: it drains the intake
// directory of submission bundles, aligns each flight against its simulated
// dose reference, and archives the calibrated records. Health, readiness,
// and metrics are served over HTTP while the batch runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/cosmiconair/flight-dose-etl/internal/adapter/http"
	kafkaadapter "github.com/cosmiconair/flight-dose-etl/internal/adapter/kafka"
	"github.com/cosmiconair/flight-dose-etl/internal/adapter/spool"
	"github.com/cosmiconair/flight-dose-etl/internal/archive"
	"github.com/cosmiconair/flight-dose-etl/internal/config"
	"github.com/cosmiconair/flight-dose-etl/internal/observability"
	"github.com/cosmiconair/flight-dose-etl/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		slog.Error("calibrate failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	arch, err := archive.Open(cfg.ArchiveRoot, logger)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer arch.Close()

	intake, err := spool.New(cfg.IntakeDir, logger)
	if err != nil {
		return fmt.Errorf("open intake: %w", err)
	}

	// Downstream notification is feature-flagged via NOTIFY_ENABLED.
	var notifier pipeline.Notifier
	if cfg.NotifyEnabled {
		kn := kafkaadapter.NewNotifier(cfg, logger)
		defer kn.Close()
		notifier = kn
		metrics.NotifyEnabled.Set(1)
		logger.Info("downstream notification enabled", "topic", cfg.KafkaNotifyTopic)
	} else {
		logger.Info("downstream notification disabled")
	}

	p := pipeline.New(intake, arch, notifier, logger, metrics,
		cfg.NormalizeConfig(), cfg.AlignConfig(), cfg.Concurrency)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, arch, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		logger.Info("shutdown complete")
	}()

	report, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}

	counts := report.Counts()
	logger.Info("batch report",
		"started", report.Started,
		"completed", report.Completed,
		"archived", counts[pipeline.DispositionArchived],
		"deferred", counts[pipeline.DispositionDeferred],
		"unresolved", counts[pipeline.DispositionUnresolved],
		"failed", counts[pipeline.DispositionFailed],
	)
	for _, res := range report.Results {
		if res.Err != nil {
			logger.Warn("flight not archived",
				"data_id", res.Key.String(),
				"disposition", res.Disposition,
				"error", res.Err,
			)
		}
	}
	if n := counts[pipeline.DispositionFailed]; n > 0 {
		return fmt.Errorf("batch completed with %d failed flight(s)", n)
	}
	return nil
}
