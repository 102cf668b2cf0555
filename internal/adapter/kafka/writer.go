package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/f1-live-leaderboard/internal/config"
	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces leaderboard snapshots to a Kafka topic.
// It implements live.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured leaderboard topic.
// Messages are hashed on the session key so one session stays ordered in a
// single partition.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes one snapshot.
func (w *Writer) Publish(ctx context.Context, snap domain.Snapshot) error {
	msg, err := serializeToMessage(snap, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write leaderboard snapshot: %w", err)
	}
	w.logger.Debug("snapshot published to kafka", "topic", w.writer.Topic, "session_key", snap.SessionKey(), "tick", snap.Tick)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Snapshot into a Kafka message.
func serializeToMessage(snap domain.Snapshot, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot: %w", err)
	}
	key := strconv.Itoa(snap.SessionKey())
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "session_key", Value: []byte(key)},
			{Key: "tick", Value: []byte(strconv.FormatUint(snap.Tick, 10))},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
