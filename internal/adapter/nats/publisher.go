// Package nats publishes leaderboard snapshots to a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
	"github.com/nats-io/nats.go"
)

const (
	maxReconnects = -1
	reconnectWait = 2 * time.Second
)

// Publisher sends each snapshot as one core NATS message. Delivery is
// at-most-once; subscribers that miss a message catch up on the next tick.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials url and returns a publisher for subject.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("f1-live-leaderboard"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", "error", err)
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl(), "subject", subject)
	return &Publisher{nc: nc, subject: subject, logger: logger}, nil
}

// Publish sends snap to the configured subject.
func (p *Publisher) Publish(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := newMessage(p.subject, snap)
	if err != nil {
		return err
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	err := p.nc.Drain()
	if err != nil {
		p.nc.Close()
	}
	return err
}

func newMessage(subject string, snap domain.Snapshot) (*nats.Msg, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("serialize snapshot: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Session-Key", strconv.Itoa(snap.SessionKey()))
	msg.Header.Set("Tick", strconv.FormatUint(snap.Tick, 10))
	return msg, nil
}
