package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/psspl2021/global-trade-hub-sub009/internal/alerting"
	"github.com/psspl2021/global-trade-hub-sub009/internal/config"
	"github.com/psspl2021/global-trade-hub-sub009/internal/logging"
	"github.com/psspl2021/global-trade-hub-sub009/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "alert-evaluator config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New("alert-evaluator", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alert-evaluator logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("alert-evaluator database error", zap.Error(err))
	}
	defer dbPool.Close()

	evaluator, err := alerting.NewEvaluator(storage.NewRepository(dbPool), alerting.Config{
		IntentThreshold: cfg.IntentThreshold,
		RFQSpikeCount:   cfg.RFQSpikeCount,
		RFQSpikeWindow:  cfg.RFQSpikeWindow,
		CrossCountryMin: cfg.CrossCountryMin,
		AlertTTL:        cfg.AlertTTL,
		DecayFactor:     cfg.DecayFactor,
		DecayInterval:   cfg.DecayInterval,
	}, log)
	if err != nil {
		log.Fatal("alert-evaluator setup error", zap.Error(err))
	}

	log.Info("alert-evaluator running",
		zap.Duration("interval", cfg.EvaluationInterval),
		zap.Int64("intent_threshold", cfg.IntentThreshold))

	ticker := time.NewTicker(cfg.EvaluationInterval)
	defer ticker.Stop()

	runOnce(ctx, evaluator, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("alert-evaluator shutting down")
			return
		case <-ticker.C:
			runOnce(ctx, evaluator, log)
		}
	}
}

// runOnce isolates one evaluation; a failed run is retried on the next
// tick rather than crashing the scheduler.
func runOnce(ctx context.Context, evaluator *alerting.Evaluator, log *zap.Logger) {
	alerts, err := evaluator.Evaluate(ctx)
	if err != nil {
		log.Error("evaluation run failed", zap.Error(err))
		return
	}
	if len(alerts) > 0 {
		log.Info("evaluation run complete", zap.Int("new_alerts", len(alerts)))
	}
}
