package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/theone-pang/gdaxbook/config"
	"github.com/theone-pang/gdaxbook/infra/coinbasews"
	"github.com/theone-pang/gdaxbook/infra/kafka"
	"github.com/theone-pang/gdaxbook/infra/replay"
	"github.com/theone-pang/gdaxbook/jobs/broadcaster"
	"github.com/theone-pang/gdaxbook/service"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("config load failed")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	// ---------------- Feed source ----------------

	var source service.Source
	switch cfg.Feed.Source {
	case "replay":
		source = replay.New(cfg.Kafka.Brokers, cfg.Kafka.ReplayTopic, logger)
	default:
		source = coinbasews.New(cfg.Feed.URL, cfg.Feed.Product, logger)
	}

	// ---------------- Book ----------------

	svc, err := service.New(service.Config{
		Product:      cfg.Feed.Product,
		ReadyTimeout: time.Duration(cfg.Feed.ReadyTimeoutSec) * time.Second,
	}, source, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("book startup failed")
	}
	defer svc.Close()
	logger.Info().Msg("book ready")

	// ---------------- Background jobs ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.QuoteTopic != "" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.QuoteTopic)
		defer producer.Close()

		bc := broadcaster.New(
			svc,
			svc.Product(),
			producer,
			time.Duration(cfg.Kafka.QuoteIntervalMS)*time.Millisecond,
			logger,
		)
		go bc.Run(ctx)
	}

	// ---------------- Shutdown ----------------

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	stats := svc.Stats()
	logger.Info().
		Uint64("processed", stats.Processed).
		Uint64("decode_errors", stats.DecodeErrors).
		Int("queue_depth", svc.QueueDepth()).
		Msg("shutting down")
}
