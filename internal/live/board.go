package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
	"github.com/couchcryptid/f1-live-leaderboard/internal/observability"
)

const defaultQueueSize = 64

// Publisher delivers accepted snapshots to one presentation sink.
type Publisher interface {
	Publish(ctx context.Context, snap domain.Snapshot) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, snap domain.Snapshot) error

func (f PublisherFunc) Publish(ctx context.Context, snap domain.Snapshot) error { return f(ctx, snap) }

type namedPublisher struct {
	name string
	pub  Publisher
}

// Board holds the current leaderboard snapshot and fans every new one out to
// its publishers in order.
type Board struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	queue   chan domain.Snapshot

	mu      sync.RWMutex
	current domain.Snapshot
	sinks   []namedPublisher
}

// NewBoard creates an empty, inactive board.
func NewBoard(logger *slog.Logger, metrics *observability.Metrics) *Board {
	return &Board{
		logger:  logger,
		metrics: metrics,
		queue:   make(chan domain.Snapshot, defaultQueueSize),
		current: domain.Snapshot{Entries: []domain.RankingEntry{}},
	}
}

// AddPublisher registers a sink under name, used in logs and metrics.
func (b *Board) AddPublisher(name string, p Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, namedPublisher{name: name, pub: p})
}

// Snapshot returns the current snapshot.
func (b *Board) Snapshot() domain.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Publish replaces the current snapshot and queues it for the publishers.
// It never blocks; when the queue is full the snapshot is dropped for the
// sinks but still becomes current.
func (b *Board) Publish(snap domain.Snapshot) {
	if snap.Entries == nil {
		snap.Entries = []domain.RankingEntry{}
	}

	b.mu.Lock()
	b.current = snap
	b.mu.Unlock()

	b.metrics.RankingSize.Set(float64(len(snap.Entries)))

	select {
	case b.queue <- snap:
	default:
		b.metrics.PublishDropped.Inc()
		b.logger.Warn("publish queue full, dropping snapshot", "tick", snap.Tick, "session_key", snap.SessionKey())
	}
}

// Run delivers queued snapshots until ctx is cancelled.
func (b *Board) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-b.queue:
			b.deliver(ctx, snap)
		}
	}
}

func (b *Board) deliver(ctx context.Context, snap domain.Snapshot) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.pub.Publish(ctx, snap); err != nil {
			if ctx.Err() != nil {
				return
			}
			b.metrics.PublishErrors.WithLabelValues(s.name).Inc()
			b.logger.Error("publish snapshot failed", "sink", s.name, "error", err, "tick", snap.Tick)
		}
	}
}
