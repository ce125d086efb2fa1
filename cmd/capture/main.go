package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/psspl2021/global-trade-hub-sub009/internal/capture"
	"github.com/psspl2021/global-trade-hub-sub009/internal/config"
	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
	"github.com/psspl2021/global-trade-hub-sub009/internal/logging"
	"github.com/psspl2021/global-trade-hub-sub009/internal/mq"
	"github.com/psspl2021/global-trade-hub-sub009/internal/storage"
	"github.com/psspl2021/global-trade-hub-sub009/internal/throttle"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "capture config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New("capture", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "capture logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("capture database error", zap.Error(err))
	}
	defer dbPool.Close()

	repo := storage.NewRepository(dbPool)

	rdb, err := throttle.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("capture redis error", zap.Error(err))
	}
	defer rdb.Close()

	svc := capture.NewService(repo, throttle.NewCaptureThrottle(rdb, cfg.CaptureCooldown), log)

	reader := mq.NewReader(cfg.KafkaBrokers, cfg.KafkaTopicSignals, cfg.ConsumerGroupPrefix+"-capture")
	defer reader.Close()

	log.Info("capture consuming", zap.String("topic", cfg.KafkaTopicSignals))
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("capture shutting down")
				return
			}
			log.Warn("capture read error", zap.Error(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}

		signal, err := mq.ParseMessageJSON[contracts.Signal](msg)
		if err != nil {
			log.Warn("capture decode signal error", zap.Error(err))
			continue
		}
		if signal.OccurredAt.IsZero() {
			signal.OccurredAt = time.Now().UTC()
		}

		if svc.Capture(ctx, signal) {
			log.Debug("signal captured",
				zap.String("signal_id", signal.ID),
				zap.String("corridor", signal.Corridor().String()),
				zap.String("source_type", string(signal.SourceType)))
		}
	}
}
