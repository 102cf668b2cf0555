package live

import (
	"context"
	"sync"
)

// latest hands out generation tokens for one poll source. Beginning a new
// generation cancels the previous one.
type latest struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func (l *latest) begin(parent context.Context) (context.Context, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	l.gen++
	l.cancel = cancel
	return ctx, l.gen
}

func (l *latest) isCurrent(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

// finish releases the context of gen if it is still the newest.
func (l *latest) finish(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen == gen && l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// stop cancels any in-flight generation and invalidates its token.
func (l *latest) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
}
