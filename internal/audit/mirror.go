package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"custodian/internal/platform/config"
)

// Mirror fans committed audit entries out to a Kafka topic so downstream
// consumers (compliance, ops) see changes without polling the store. The
// store remains the source of truth: mirror losses never affect a commit.
type Mirror struct {
	inbox chan Entry
}

// NewMirror returns a mirror with a bounded inbox. Offer never blocks; when
// the inbox is full the entry is dropped (the persisted log still has it).
func NewMirror(buffer int) *Mirror {
	if buffer <= 0 {
		buffer = 256
	}
	return &Mirror{inbox: make(chan Entry, buffer)}
}

// Offer enqueues an entry for publishing, dropping it if the worker is
// behind.
func (m *Mirror) Offer(entry Entry) {
	select {
	case m.inbox <- entry:
	default:
	}
}

// mirrorPayload is the JSON structure published to Kafka. Field names match
// the stored entry so consumers can treat both sources alike.
type mirrorPayload struct {
	ID        string         `json:"_id"`
	Doc       string         `json:"doc"`
	Doctype   string         `json:"doctype"`
	Changed   map[string]any `json:"changed"`
	Deleted   []string       `json:"deleted"`
	Timestamp string         `json:"timestamp"`
	Operator  string         `json:"operator,omitempty"`
}

// Worker drains a mirror's inbox with a small pool of publishers.
type Worker struct {
	mirror  *Mirror
	client  *kgo.Client
	topic   string
	workers int
	logger  *log.Logger
}

// NewWorker connects a Kafka producer for the configured brokers and topic.
func NewWorker(cfg config.KafkaConfig, mirror *Mirror, logger *log.Logger) (*Worker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{mirror: mirror, client: client, topic: cfg.Topic, workers: 2, logger: logger}, nil
}

// Run publishes entries until the context is cancelled. Publish failures are
// logged and the entry is dropped; the persisted log is authoritative.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case entry := <-w.mirror.inbox:
					if err := w.publish(ctx, entry); err != nil {
						w.logger.Printf("mirror audit entry %s: %v", entry.ID, err)
					}
				}
			}
		})
	}
	return g.Wait()
}

func (w *Worker) publish(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(mirrorPayload{
		ID:        entry.ID,
		Doc:       entry.Doc,
		Doctype:   entry.Doctype,
		Changed:   entry.Changed,
		Deleted:   entry.Deleted,
		Timestamp: entry.Timestamp,
		Operator:  entry.Operator,
	})
	if err != nil {
		return fmt.Errorf("marshal mirror payload: %w", err)
	}
	record := &kgo.Record{Topic: w.topic, Key: []byte(entry.Doc), Value: payload}
	return w.client.ProduceSync(ctx, record).FirstErr()
}

// Close flushes buffered records and releases the producer.
func (w *Worker) Close(ctx context.Context) error {
	if err := w.client.Flush(ctx); err != nil {
		return err
	}
	w.client.Close()
	return nil
}
