package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-bot/warden/automod/engine"

	"github.com/carlmjohnson/versioninfo"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Receives decoded message events. Implemented by *engine.Engine.
type Handler interface {
	OnMessage(evt *engine.MessageEvent) bool
}

var _ Handler = (*engine.Engine)(nil)

// Reads chat message events (JSON encoded engine.MessageEvent) from a Kafka topic and hands them to the engine.
//
// Offsets are committed once an event has been queued with the engine. Redelivered events map onto the same ledger record, so at-least-once delivery is safe.
type KafkaConsumer struct {
	Brokers []string
	Topic   string
	Group   string
	Handler Handler
	Logger  *slog.Logger

	// optional extra client options, eg for tests
	Opts []kgo.Opt
}

func (kc *KafkaConsumer) client() (*kgo.Client, error) {
	group := kc.Group
	if group == "" {
		group = "warden-automod"
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(kc.Brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(kc.Topic),
		kgo.ClientID(fmt.Sprintf("warden/%s", versioninfo.Short())),
		kgo.AutoCommitMarks(),
		kgo.FetchMaxWait(time.Second),
		kgo.OnPartitionsRevoked(func(ctx context.Context, cl *kgo.Client, _ map[string][]int32) {
			if err := cl.CommitMarkedOffsets(ctx); err != nil {
				kc.Logger.Error("committing offsets on revoke", "err", err)
			}
		}),
	}
	opts = append(opts, kc.Opts...)
	return kgo.NewClient(opts...)
}

func (kc *KafkaConsumer) Run(ctx context.Context) error {
	if kc.Handler == nil {
		return fmt.Errorf("nil handler")
	}
	if kc.Logger == nil {
		kc.Logger = slog.Default()
	}
	if len(kc.Brokers) == 0 || kc.Topic == "" {
		return fmt.Errorf("kafka brokers and topic are required")
	}

	cl, err := kc.client()
	if err != nil {
		return fmt.Errorf("creating kafka client: %w", err)
	}
	defer cl.Close()
	kc.Logger.Info("consuming message events", "brokers", kc.Brokers, "topic", kc.Topic)

	for {
		fetches := cl.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			consumerRecords.WithLabelValues("fetch_error").Inc()
			kc.Logger.Error("kafka fetch failed", "topic", topic, "partition", partition, "err", err)
		})

		stop := false
		fetches.EachRecord(func(rec *kgo.Record) {
			if stop {
				return
			}
			if !kc.handleRecord(rec) {
				// engine is shutting down; leave the rest for the next consumer
				stop = true
				return
			}
			cl.MarkCommitRecords(rec)
		})
		if stop {
			break
		}
	}

	// the poll context is done, so commit with a fresh one
	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cl.CommitMarkedOffsets(cctx); err != nil {
		kc.Logger.Error("committing final offsets", "err", err)
	}
	return nil
}

// Returns false only if the handler stopped accepting events. Undecodable records are logged and skipped.
func (kc *KafkaConsumer) handleRecord(rec *kgo.Record) bool {
	var evt engine.MessageEvent
	if err := json.Unmarshal(rec.Value, &evt); err != nil {
		consumerRecords.WithLabelValues("invalid").Inc()
		kc.Logger.Warn("skipping undecodable message event", "partition", rec.Partition, "offset", rec.Offset, "err", err)
		return true
	}
	if err := evt.Validate(); err != nil {
		consumerRecords.WithLabelValues("invalid").Inc()
		kc.Logger.Warn("skipping invalid message event", "partition", rec.Partition, "offset", rec.Offset, "err", err)
		return true
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = rec.Timestamp
	}
	if !kc.Handler.OnMessage(&evt) {
		return false
	}
	consumerRecords.WithLabelValues("ok").Inc()
	return true
}
