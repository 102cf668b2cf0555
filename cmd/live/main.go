package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/f1-live-leaderboard/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/f1-live-leaderboard/internal/adapter/kafka"
	natsadapter "github.com/couchcryptid/f1-live-leaderboard/internal/adapter/nats"
	"github.com/couchcryptid/f1-live-leaderboard/internal/adapter/openf1"
	"github.com/couchcryptid/f1-live-leaderboard/internal/adapter/ws"
	"github.com/couchcryptid/f1-live-leaderboard/internal/config"
	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
	"github.com/couchcryptid/f1-live-leaderboard/internal/live"
	"github.com/couchcryptid/f1-live-leaderboard/internal/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	detect, err := live.DetectorByName(cfg.SessionDetection)
	if err != nil {
		logger.Error("invalid session detection", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	client := openf1.NewClient(cfg.OpenF1BaseURL, cfg.SessionKey, cfg.OpenF1Timeout, metrics, logger)
	board := live.NewBoard(logger, metrics)
	tracker := live.NewTracker(client, board, live.TrackerConfig{
		TickInterval: cfg.LeaderboardPollInterval,
		Options: domain.ReconcileOptions{
			LapThreshold: cfg.LapThreshold,
			GapTolerance: cfg.GapTolerance,
		},
	}, clock, logger, metrics)
	sessionSignal := live.NewSignal(client, detect, cfg.SessionPollInterval, clock, logger, metrics)
	sessionSignal.Subscribe(tracker.HandleSignal)

	hubCfg := ws.DefaultConfig()
	hubCfg.CheckOrigin = ws.AllowOrigins(cfg.CORSAllowedOrigins)
	hub := ws.NewHub(board, hubCfg, logger, metrics)
	board.AddPublisher("websocket", hub)

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		board.AddPublisher("kafka", writer)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var natsPub *natsadapter.Publisher
	if cfg.NATSEnabled() {
		natsPub, err = natsadapter.Connect(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		board.AddPublisher("nats", natsPub)
	}

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:           cfg.HTTPAddr,
		Ready:          sessionSignal,
		Signal:         sessionSignal,
		Board:          board,
		Stream:         hub,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start snapshot fan-out.
	go func() {
		if err := board.Run(ctx); err != nil {
			logger.Error("board error", "error", err)
		}
	}()

	// Start session signal. The tracker follows it.
	signalDone := make(chan struct{})
	go func() {
		defer close(signalDone)
		if err := sessionSignal.Run(ctx); err != nil {
			logger.Error("session signal error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	<-signalDone
	tracker.Stop()
	hub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if natsPub != nil {
		if err := natsPub.Close(); err != nil {
			logger.Error("nats close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
