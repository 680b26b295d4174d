package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/cardflow/service/metrics"
	"github.com/brojonat/cardflow/service/payment"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the JetStream stream for payment events.
	StreamName = "PAYMENTS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "payments.>"

	// StreamRetention is how long events are retained. The pipeline is a
	// session-scoped demo, so a day is plenty.
	StreamRetention = 24 * time.Hour
)

// StepSubject returns the subject step events for a record are published to.
func StepSubject(recordID string) string {
	return fmt.Sprintf("payments.pipeline.%s", recordID)
}

// SettlementSubject returns the subject settlement events for a record are
// published to.
func SettlementSubject(recordID string) string {
	return fmt.Sprintf("payments.settled.%s", recordID)
}

// JetStreamPublisher publishes pipeline events to NATS JetStream. It
// implements payment.EventPublisher.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a new JetStream publisher. It connects to NATS and
// ensures the stream exists. If m is nil, no metrics are recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("cardflow-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		p.logger.Debug("JetStream stream already exists", "stream", StreamName)
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Payment pipeline step and settlement events",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishStep publishes a pipeline step event.
func (p *JetStreamPublisher) PublishStep(ctx context.Context, event *payment.StepEvent) error {
	return p.publish(ctx, "step", StepSubject(event.RecordID), event)
}

// PublishSettlement publishes a terminal settlement event.
func (p *JetStreamPublisher) PublishSettlement(ctx context.Context, event *payment.SettlementEvent) error {
	return p.publish(ctx, "settlement", SettlementSubject(event.RecordID), event)
}

func (p *JetStreamPublisher) publish(ctx context.Context, kind, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		if p.metrics != nil {
			p.metrics.RecordNATSPublish(kind, "error")
		}
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(kind, "success")
	}

	p.logger.Debug("published payment event",
		"kind", kind,
		"subject", subject,
	)
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
