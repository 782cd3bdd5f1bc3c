package pipeline

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
	apperrors "github.com/leadforge/lead-processing-pipeline/pkg/errors"
	"github.com/leadforge/lead-processing-pipeline/pkg/metrics"
	"github.com/leadforge/lead-processing-pipeline/pkg/tracing"
)

// Broker is the slice of the rabbit client the pipeline engine needs. It is
// an interface so the engine can be tested without a broker.
type Broker interface {
	Publish(ctx context.Context, queue string, pub amqp.Publishing) error
	Consume(queue string) (<-chan amqp.Delivery, error)
	Reconnected() <-chan struct{}
}

// Publisher is handed to stage handlers for forwarding leads downstream.
type Publisher interface {
	PublishLead(ctx context.Context, queue string, l *lead.Lead) error
}

type leadPublisher struct {
	broker  Broker
	metrics *metrics.Metrics
}

// NewPublisher wraps a broker handle in the lead envelope codec, propagating
// the current trace ID into the message headers.
func NewPublisher(broker Broker, m *metrics.Metrics) Publisher {
	return &leadPublisher{broker: broker, metrics: m}
}

func (p *leadPublisher) PublishLead(ctx context.Context, queue string, l *lead.Lead) error {
	pub, err := lead.Encode(l)
	if err != nil {
		return err
	}
	if traceID := tracing.TraceIDFromContext(ctx); traceID != "" {
		pub.Headers[lead.HeaderTraceID] = traceID
	}
	if err := p.broker.Publish(ctx, queue, pub); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrBrokerUnavailable, err)
	}
	if p.metrics != nil {
		p.metrics.MessagesPublished.WithLabelValues(queue).Inc()
	}
	return nil
}
