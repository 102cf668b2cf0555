package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
	"github.com/couchcryptid/f1-live-leaderboard/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// DefaultTickInterval is how often the leaderboard is refreshed while live.
const DefaultTickInterval = 10 * time.Second

// ErrEmptySnapshot means the interval feed returned no cars after cars had
// already been timed. The tick is discarded rather than retiring the field.
var ErrEmptySnapshot = errors.New("empty interval snapshot")

// Feed supplies the per-session timing data.
type Feed interface {
	Drivers(ctx context.Context) (domain.Roster, error)
	Intervals(ctx context.Context) ([]domain.IntervalSample, error)
	Positions(ctx context.Context) ([]domain.PositionSample, error)
}

// TrackerConfig tunes the tick cadence and reconciliation.
type TrackerConfig struct {
	TickInterval time.Duration
	Options      domain.ReconcileOptions
}

// Tracker owns one session's roster and retirement state and reconciles the
// interval and position feeds on every tick while the session is live.
type Tracker struct {
	feed    Feed
	board   *Board
	cfg     TrackerConfig
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	root       context.Context
	cancelRoot context.CancelFunc
	ticks      latest
	wg         sync.WaitGroup

	mu            sync.Mutex
	stopped       bool
	epoch         uint64
	session       *domain.Session
	cancelSession context.CancelFunc
	roster        domain.Roster
	race          *domain.RaceState
	tick          uint64
}

// NewTracker creates an idle tracker. Sessions start through HandleSignal.
func NewTracker(feed Feed, board *Board, cfg TrackerConfig, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Tracker {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Options == (domain.ReconcileOptions{}) {
		cfg.Options = domain.DefaultReconcileOptions()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Tracker{
		feed:       feed,
		board:      board,
		cfg:        cfg,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		root:       root,
		cancelRoot: cancel,
		roster:     domain.Roster{},
		race:       domain.NewRaceState(),
	}
}

// HandleSignal reacts to a session signal update. Going inactive, or moving
// to a different session, clears the roster, the retirement set and the
// published ranking before it returns.
func (t *Tracker) HandleSignal(state SignalState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	switch {
	case !state.Active || state.Session == nil:
		if t.session != nil {
			t.endSessionLocked("session ended")
		}
	case t.session == nil:
		t.startSessionLocked(*state.Session)
	case t.session.Key != state.Session.Key:
		t.endSessionLocked("session changed")
		t.startSessionLocked(*state.Session)
	default:
		s := *state.Session
		t.session = &s
	}
}

// Stop cancels all pending requests and timers and waits for them to exit.
// Nothing is published after Stop returns.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.cancelRoot()
	t.ticks.stop()
	t.epoch++
	t.session = nil
	t.roster = domain.Roster{}
	t.race.Reset()
	t.mu.Unlock()

	t.wg.Wait()
	t.metrics.TrackerRunning.Set(0)
}

// Session returns the session being tracked, or nil.
func (t *Tracker) Session() *domain.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	s := *t.session
	return &s
}

// Roster returns a copy of the cached driver roster.
func (t *Tracker) Roster() domain.Roster {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roster.Clone()
}

// Retired returns the retired cars of the current session in retirement order.
func (t *Tracker) Retired() []domain.CarID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.race.Retired.IDs()
}

func (t *Tracker) startSessionLocked(session domain.Session) {
	t.epoch++
	t.session = &session
	t.roster = domain.Roster{}
	t.race.Reset()
	t.tick = 0

	ctx, cancel := context.WithCancel(t.root)
	t.cancelSession = cancel
	t.metrics.TrackerRunning.Set(1)
	t.logger.Info("tracking session", "session_key", session.Key, "session", session.Name, "epoch", t.epoch)

	epoch := t.epoch
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runSession(ctx, epoch)
	}()
}

func (t *Tracker) endSessionLocked(reason string) {
	if t.cancelSession != nil {
		t.cancelSession()
		t.cancelSession = nil
	}
	t.ticks.stop()

	key := sessionKey(t.session)
	t.epoch++
	t.session = nil
	t.roster = domain.Roster{}
	t.race.Reset()
	t.tick = 0

	t.metrics.TrackerRunning.Set(0)
	t.metrics.RetiredCars.Set(0)
	t.board.Publish(domain.Snapshot{Active: false, UpdatedAt: t.clock.Now()})
	t.logger.Info("stopped tracking session", "session_key", key, "reason", reason)
}

// runSession fetches the roster once, ticks immediately and then on every
// interval until ctx is cancelled.
func (t *Tracker) runSession(ctx context.Context, epoch uint64) {
	t.loadRoster(ctx, epoch)
	if ctx.Err() != nil {
		return
	}

	ticker := t.clock.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	t.startTick(ctx, epoch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.startTick(ctx, epoch)
		}
	}
}

func (t *Tracker) loadRoster(ctx context.Context, epoch uint64) {
	roster, err := t.feed.Drivers(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Rows fall back to "Car #<id>" labels until the next session.
		t.logger.Error("driver roster fetch failed", "error", err)
		roster = domain.Roster{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch == t.epoch {
		t.roster = roster
		t.logger.Info("driver roster loaded", "drivers", len(roster))
	}
}

func (t *Tracker) startTick(ctx context.Context, epoch uint64) {
	tctx, gen := t.ticks.begin(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.ticks.finish(gen)
		if err := t.runTick(tctx, epoch, gen); err != nil {
			t.logger.Debug("leaderboard tick not applied", "error", err)
		}
	}()
}

// runTick performs one joint fetch and applies it. Failures are already
// counted and logged; the returned error says why nothing was published.
func (t *Tracker) runTick(ctx context.Context, epoch, gen uint64) error {
	start := t.clock.Now()

	intervals, positions, err := t.fetchTick(ctx)
	if err != nil {
		if ctx.Err() != nil {
			t.metrics.Ticks.WithLabelValues("stale").Inc()
			return ctx.Err()
		}
		t.metrics.Ticks.WithLabelValues("failed").Inc()
		t.logger.Error("leaderboard tick failed, keeping previous ranking", "error", err)
		return err
	}

	if err := t.apply(epoch, gen, intervals, positions); err != nil {
		return err
	}
	t.metrics.TickDuration.Observe(t.clock.Since(start).Seconds())
	return nil
}

// fetchTick issues the interval and position requests together and waits for
// both, so one ranking never mixes feeds from different ticks.
func (t *Tracker) fetchTick(ctx context.Context) ([]domain.IntervalSample, []domain.PositionSample, error) {
	var (
		intervals []domain.IntervalSample
		positions []domain.PositionSample
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if intervals, err = t.feed.Intervals(gctx); err != nil {
			return fmt.Errorf("fetch intervals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if positions, err = t.feed.Positions(gctx); err != nil {
			return fmt.Errorf("fetch positions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return intervals, positions, nil
}

var errStaleTick = errors.New("stale tick")

func (t *Tracker) apply(epoch, gen uint64, intervals []domain.IntervalSample, positions []domain.PositionSample) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || epoch != t.epoch || !t.ticks.isCurrent(gen) {
		t.metrics.Ticks.WithLabelValues("stale").Inc()
		return errStaleTick
	}
	if len(domain.LatestIntervals(intervals)) == 0 && t.race.HasTimedCars() {
		t.metrics.Ticks.WithLabelValues("empty").Inc()
		t.logger.Warn("interval feed returned no cars, keeping previous ranking", "session_key", sessionKey(t.session))
		return ErrEmptySnapshot
	}

	ranking := domain.Reconcile(domain.TickInput{
		Intervals: intervals,
		Positions: positions,
		Roster:    t.roster,
	}, t.race, t.cfg.Options)
	t.tick++

	session := *t.session
	t.board.Publish(domain.Snapshot{
		Active:    true,
		Session:   &session,
		Roster:    t.roster.Clone(),
		Entries:   ranking,
		Tick:      t.tick,
		UpdatedAt: t.clock.Now(),
	})

	t.metrics.Ticks.WithLabelValues("accepted").Inc()
	t.metrics.RetiredCars.Set(float64(t.race.Retired.Len()))
	t.logger.Debug("leaderboard updated", "session_key", session.Key, "tick", t.tick, "cars", len(ranking), "retired", t.race.Retired.Len())
	return nil
}
