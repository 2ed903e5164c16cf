// Package eventbus publishes the synchronizer's outbound BlockEvent and
// doubles as the progress-event message queue, both backed by NATS
// JetStream. Adapted from the teacher's internal/nats/publisher.go:
// same connect/stream-creation/dedup shape, repointed at sync progress
// and block-advance subjects instead of Polymarket trade events.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	streamName           = "LBRY_SYNC"
	streamSubjectPattern = "LBRYSYNC.>"
	streamCreateTimeout  = 10 * time.Second
)

// BlockEvent is emitted once per advance cycle that moved the tip.
type BlockEvent struct {
	Height uint64 `json:"height"`
}

// Bus publishes BlockEvents and progress events onto NATS JetStream.
type Bus struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	logger *zerolog.Logger
	prefix string
}

// New connects to NATS and ensures the sync stream exists.
func New(natsURL string, persistDuration time.Duration, subjectPrefix string, logger *zerolog.Logger) (*Bus, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("lbry-sync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamCreateTimeout)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{streamSubjectPattern},
		MaxAge:     persistDuration,
		Storage:    jetstream.FileStorage,
		Duplicates: 20 * time.Minute,
		Retention:  jetstream.LimitsPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	logger.Info().Str("stream", streamName).Msg("event bus initialized")

	return &Bus{js: js, nc: nc, logger: logger, prefix: subjectPrefix}, nil
}

// PublishBlockEvent emits BlockEvent{height} once per cycle that advanced the tip.
func (b *Bus) PublishBlockEvent(ctx context.Context, height uint64) error {
	subject := fmt.Sprintf("%s.block", b.prefix)
	data, err := json.Marshal(BlockEvent{Height: height})
	if err != nil {
		return fmt.Errorf("failed to marshal block event: %w", err)
	}
	msgID := fmt.Sprintf("block-%d", height)
	if _, err := b.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("failed to publish block event: %w", err)
	}
	b.logger.Info().Uint64("height", height).Msg("block event published")
	return nil
}

// Publish implements progress.Sink, publishing a progress event
// asynchronously. No message ID is set, so JetStream does not
// deduplicate progress events; only block events carry one.
func (b *Bus) Publish(ctx context.Context, event string, payload map[string]any) error {
	subject := fmt.Sprintf("%s.progress.%s", b.prefix, event)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal progress payload: %w", err)
	}
	if _, err := b.js.PublishAsync(subject, data); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}
	return nil
}

// Healthy reports whether the NATS connection is up.
func (b *Bus) Healthy() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close closes the NATS connection.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
		b.logger.Info().Msg("event bus closed")
	}
}
