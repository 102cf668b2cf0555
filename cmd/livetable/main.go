package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/f1-live-leaderboard/internal/adapter/openf1"
	"github.com/couchcryptid/f1-live-leaderboard/internal/config"
	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
	"github.com/couchcryptid/f1-live-leaderboard/internal/live"
	"github.com/couchcryptid/f1-live-leaderboard/internal/observability"
	"github.com/couchcryptid/f1-live-leaderboard/internal/render"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

const clearScreen = "\033[H\033[2J"

type options struct {
	sessionKey string
	detection  string
	interval   time.Duration
	noColor    bool
	noClear    bool
	verbose    bool
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: failed to load .env:", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "livetable",
		Short: "Follow the live race leaderboard in the terminal",
		Long: `livetable polls the OpenF1 timing API and redraws the reconciled
leaderboard after every accepted tick. Settings default to the same
environment variables as the live service; flags override them.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.sessionKey, "session", "", "OpenF1 session key (default SESSION_KEY or \"latest\")")
	f.StringVar(&opts.detection, "detection", "", "session detection: status or window (default SESSION_DETECTION)")
	f.DurationVar(&opts.interval, "interval", 0, "leaderboard refresh interval (default LEADERBOARD_POLL_INTERVAL)")
	f.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")
	f.BoolVar(&opts.noClear, "no-clear", false, "append tables instead of redrawing the screen")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log at info level to stderr")

	return cmd
}

func run(ctx context.Context, out io.Writer, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg, opts)
	if opts.noColor {
		color.NoColor = true
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	metrics := observability.NewMetrics()

	detect, err := live.DetectorByName(cfg.SessionDetection)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	client := openf1.NewClient(cfg.OpenF1BaseURL, cfg.SessionKey, cfg.OpenF1Timeout, metrics, logger)
	board := live.NewBoard(logger, metrics)
	board.AddPublisher("terminal", tablePublisher(out, !opts.noClear))

	tracker := live.NewTracker(client, board, live.TrackerConfig{
		TickInterval: cfg.LeaderboardPollInterval,
		Options:      domain.ReconcileOptions{LapThreshold: cfg.LapThreshold, GapTolerance: cfg.GapTolerance},
	}, clock, logger, metrics)
	defer tracker.Stop()

	sessionSignal := live.NewSignal(client, detect, cfg.SessionPollInterval, clock, logger, metrics)
	sessionSignal.Subscribe(tracker.HandleSignal)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go board.Run(ctx) //nolint:errcheck // Run only returns nil on cancellation

	fmt.Fprintln(out, "Waiting for a live session...")
	return sessionSignal.Run(ctx)
}

func applyFlags(cfg *config.Config, opts options) {
	if opts.sessionKey != "" {
		cfg.SessionKey = opts.sessionKey
	}
	if opts.detection != "" {
		cfg.SessionDetection = opts.detection
	}
	if opts.interval > 0 {
		cfg.LeaderboardPollInterval = opts.interval
	}
}

func tablePublisher(out io.Writer, redraw bool) live.Publisher {
	return live.PublisherFunc(func(_ context.Context, snap domain.Snapshot) error {
		if redraw {
			if _, err := io.WriteString(out, clearScreen); err != nil {
				return err
			}
		}
		return render.WriteTable(out, snap)
	})
}
