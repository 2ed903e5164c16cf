// Command lbry-notify is a lightweight BlockEvent subscriber: it
// consumes the synchronizer's block-advance subject from NATS
// JetStream and logs each one, standing in for any downstream consumer
// that only cares about "the tip moved to height N".
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lbryio/lbry-sync/internal/eventbus"
	"github.com/lbryio/lbry-sync/internal/obs"
)

const serviceName = "lbry-notify"

var blockEventsConsumed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "lbry_notify_block_events_consumed_total",
	Help: "Total number of block events consumed from NATS",
})

func main() {
	logger := obs.InitLogger(serviceName)
	logger.Info().Msg("starting block event notifier")

	cfg := obs.InitConfig(logger, "config.toml")
	obs.UpdateLogLevel(cfg, logger)

	nc, err := nats.Connect(cfg.String("nats.url"), nats.Name(serviceName))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create JetStream context")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subject := fmt.Sprintf("%s.block", cfg.String("nats.subject_prefix"))
	consumer, err := js.CreateOrUpdateConsumer(ctx, "LBRY_SYNC", jetstream.ConsumerConfig{
		Durable:       "lbry-notify",
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create consumer")
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		var evt eventbus.BlockEvent
		if err := json.Unmarshal(msg.Data(), &evt); err != nil {
			logger.Error().Err(err).Msg("failed to decode block event")
			msg.Nak()
			return
		}
		blockEventsConsumed.Inc()
		logger.Info().Uint64("height", evt.Height).Msg("block event received")
		msg.Ack()
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start consuming")
	}
	defer consumeCtx.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("received shutdown signal")

	cancel()
	logger.Info().Msg("shutdown complete")
}
