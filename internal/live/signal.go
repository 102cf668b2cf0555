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
)

// DefaultSessionPollInterval is how often the session signal is recomputed.
const DefaultSessionPollInterval = 15 * time.Second

// SessionSource lists the sessions the signal chooses from.
type SessionSource interface {
	Sessions(ctx context.Context) ([]domain.Session, error)
}

// Detector picks the live session, if any, from a sessions response.
type Detector func(sessions []domain.Session, now time.Time) (domain.Session, bool)

// StatusDetector treats the most recent session as live when its status is
// a known in-progress token.
func StatusDetector(sessions []domain.Session, _ time.Time) (domain.Session, bool) {
	s, ok := domain.MostRecent(sessions)
	if !ok || !s.HasLiveStatus() {
		return domain.Session{}, false
	}
	return s, true
}

// WindowDetector treats the most recent session as live while now is inside
// its scheduled start and end.
func WindowDetector(sessions []domain.Session, now time.Time) (domain.Session, bool) {
	s, ok := domain.MostRecent(sessions)
	if !ok || !s.InWindow(now) {
		return domain.Session{}, false
	}
	return s, true
}

// DetectorByName returns the detector for a SESSION_DETECTION value.
func DetectorByName(name string) (Detector, error) {
	switch name {
	case "", "status":
		return StatusDetector, nil
	case "window":
		return WindowDetector, nil
	default:
		return nil, fmt.Errorf("unknown session detection %q", name)
	}
}

// SignalState is the outcome of the most recent applied session poll.
type SignalState struct {
	Active      bool            `json:"active"`
	Session     *domain.Session `json:"session,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
}

// Signal polls the session source and reports whether a session is live.
type Signal struct {
	source   SessionSource
	detect   Detector
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	polls latest
	wg    sync.WaitGroup

	// applyMu serializes state changes and subscriber calls.
	applyMu  sync.Mutex
	stopped  bool
	onChange func(SignalState)

	mu    sync.RWMutex
	state SignalState
}

// NewSignal creates a session signal. A nil detector means StatusDetector.
func NewSignal(source SessionSource, detect Detector, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Signal {
	if detect == nil {
		detect = StatusDetector
	}
	if interval <= 0 {
		interval = DefaultSessionPollInterval
	}
	return &Signal{
		source:   source,
		detect:   detect,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Subscribe registers fn to receive every applied state, in poll order.
// It must be called before Run.
func (s *Signal) Subscribe(fn func(SignalState)) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.onChange = fn
}

// State returns the current signal state.
func (s *Signal) State() SignalState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CheckReadiness returns nil once the first poll has completed.
func (s *Signal) CheckReadiness(_ context.Context) error {
	if s.State().LastChecked.IsZero() {
		return errors.New("session status has not been checked yet")
	}
	return nil
}

// Run polls immediately and then on every interval until ctx is cancelled.
// On return no further state is applied.
func (s *Signal) Run(ctx context.Context) error {
	s.logger.Info("session signal started", "interval", s.interval)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.startPoll(ctx)
	for {
		select {
		case <-ctx.Done():
			s.stop()
			s.logger.Info("session signal stopped", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.startPoll(ctx)
		}
	}
}

func (s *Signal) startPoll(ctx context.Context) {
	pctx, gen := s.polls.begin(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.polls.finish(gen)
		s.poll(pctx, gen)
	}()
}

func (s *Signal) poll(ctx context.Context, gen uint64) {
	sessions, err := s.source.Sessions(ctx)
	if ctx.Err() != nil {
		// Superseded by a newer poll or shutting down.
		return
	}

	now := s.clock.Now()
	state := SignalState{LastChecked: now}
	switch {
	case err != nil:
		s.logger.Error("session status check failed", "error", err)
		s.metrics.SessionPolls.WithLabelValues("error").Inc()
	default:
		if session, ok := s.detect(sessions, now); ok {
			state.Active = true
			state.Session = &session
			s.metrics.SessionPolls.WithLabelValues("active").Inc()
		} else {
			s.metrics.SessionPolls.WithLabelValues("inactive").Inc()
		}
	}

	s.apply(gen, state)
}

// apply stores state and notifies the subscriber unless gen has been
// superseded or the signal has stopped.
func (s *Signal) apply(gen uint64, state SignalState) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if s.stopped || !s.polls.isCurrent(gen) {
		return false
	}

	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if state.Active {
		s.metrics.SessionActive.Set(1)
	} else {
		s.metrics.SessionActive.Set(0)
	}
	if prev.Active != state.Active || sessionKey(prev.Session) != sessionKey(state.Session) {
		s.logger.Info("session signal changed", "active", state.Active, "session_key", sessionKey(state.Session))
	}

	if s.onChange != nil {
		s.onChange(state)
	}
	return true
}

func (s *Signal) stop() {
	s.applyMu.Lock()
	s.stopped = true
	s.applyMu.Unlock()

	s.polls.stop()
	s.wg.Wait()
}

func sessionKey(s *domain.Session) int {
	if s == nil {
		return 0
	}
	return s.Key
}
