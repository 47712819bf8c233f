// Package relay drains the audit outbox into Kafka. Running the relay as a
// separate loop keeps event emission transactional with the database while
// Kafka delivery is at-least-once; consumers dedupe on the event ID.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/KaripeHS/serenity-sub009/pkg/platform/audit"
)

const (
	defaultTopic     = "evv.audit.events"
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// Relay polls the outbox and publishes pending entries.
type Relay struct {
	outbox    audit.Outbox
	client    *kgo.Client
	produce   func(ctx context.Context, record *kgo.Record) error
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// Option configures the Relay.
type Option func(*Relay)

func WithTopic(topic string) Option {
	return func(r *Relay) { r.topic = topic }
}

func WithInterval(interval time.Duration) Option {
	return func(r *Relay) { r.interval = interval }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// New connects to the brokers and ensures the audit topic exists.
func New(ctx context.Context, brokers []string, outbox audit.Outbox, opts ...Option) (*Relay, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(10*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	r := &Relay{
		outbox:    outbox,
		client:    client,
		topic:     defaultTopic,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	r.produce = func(ctx context.Context, record *kgo.Record) error {
		return r.client.ProduceSync(ctx, record).FirstErr()
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.ensureTopic(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return r, nil
}

func (r *Relay) ensureTopic(ctx context.Context) error {
	adm := kadm.NewClient(r.client)
	resp, err := adm.CreateTopic(ctx, 1, 1, nil, r.topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	// Already-exists is fine; any other per-topic error is not.
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create audit topic %s: %w", r.topic, resp.Err)
	}
	return nil
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.client.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "audit relay drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	entries, err := r.outbox.ListPending(ctx, r.batchSize)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		record := &kgo.Record{
			Topic: r.topic,
			Key:   []byte(entry.AggregateID),
			Value: entry.Payload,
		}
		if err := r.produce(ctx, record); err != nil {
			return fmt.Errorf("produce audit event %s: %w", entry.ID, err)
		}
		if err := r.outbox.MarkPublished(ctx, entry.ID); err != nil {
			return err
		}
	}
	return nil
}
