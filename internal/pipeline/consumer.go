package pipeline

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/leadforge/lead-processing-pipeline/internal/lead"
	"github.com/leadforge/lead-processing-pipeline/pkg/config"
	apperrors "github.com/leadforge/lead-processing-pipeline/pkg/errors"
	"github.com/leadforge/lead-processing-pipeline/pkg/logger"
	"github.com/leadforge/lead-processing-pipeline/pkg/metrics"
	"github.com/leadforge/lead-processing-pipeline/pkg/resilience"
	"github.com/leadforge/lead-processing-pipeline/pkg/tracing"
)

// Handler transforms one lead. It may publish follow-on messages through pub
// before returning. A nil return acknowledges the message; a permanent error
// dead-letters it immediately; a transient error is retried with backoff and
// dead-lettered only after the attempts are exhausted.
type Handler func(ctx context.Context, l *lead.Lead, pub Publisher) error

// Consumer is the reusable pull-one-message, run-one-transform engine used
// identically by all four stages. Deliveries are handled serially; the
// broker's prefetch bound caps how many are in flight.
type Consumer struct {
	broker  Broker
	route   Route
	handler Handler
	cfg     config.PipelineConfig
	metrics *metrics.Metrics
	pub     Publisher
	logger  *slog.Logger
}

// NewConsumer binds a stage handler to its input queue.
func NewConsumer(broker Broker, route Route, handler Handler, cfg config.PipelineConfig, m *metrics.Metrics) *Consumer {
	if cfg.ResubscribeDelay <= 0 {
		cfg.ResubscribeDelay = 5 * time.Second
	}
	return &Consumer{
		broker:  broker,
		route:   route,
		handler: handler,
		cfg:     cfg,
		metrics: m,
		pub:     NewPublisher(broker, m),
		logger:  logger.WithStage(string(route.Stage), route.Input),
	}
}

// Start subscribes to the input queue and processes deliveries until ctx is
// cancelled. When the broker connection is replaced after a reconnect, the
// subscription is re-registered on the new channel automatically.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		if ctx.Err() != nil {
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}

		deliveries, err := c.broker.Consume(c.route.Input)
		if err != nil {
			c.logger.Error("failed to subscribe, waiting for connection", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-c.broker.Reconnected():
			case <-time.After(c.cfg.ResubscribeDelay):
			}
			continue
		}

		reconnected := c.broker.Reconnected()
	deliveryLoop:
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			case <-reconnected:
				c.logger.Warn("channel replaced, re-registering subscription")
				break deliveryLoop
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn("delivery channel closed, re-registering subscription")
					break deliveryLoop
				}
				c.process(ctx, d)
			}
		}
	}
}

// process runs the full per-message protocol: decode, handle with bounded
// retry for transient failures, then ack or dead-letter. One delivery
// completes before the next is taken.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	if c.metrics != nil {
		c.metrics.MessagesConsumed.WithLabelValues(c.route.Input).Inc()
	}

	l, err := lead.Decode(d)
	if err != nil {
		c.logger.Error("dropping undecodable message", "error", err)
		c.reject(ctx, d, "decode", err)
		return
	}

	ctx, span := tracing.StartSpan(ctx, "stage."+string(c.route.Stage), lead.TraceID(d))
	span.SetAttr("email", l.Email)

	start := time.Now()
	attempts := 0
	err = resilience.Retry(ctx, string(c.route.Stage), resilience.RetryConfig{
		MaxAttempts:  c.cfg.RetryMaxAttempts,
		InitialDelay: c.cfg.RetryInitialDelay,
		MaxDelay:     c.cfg.RetryMaxDelay,
		RetryIf: func(err error) bool {
			return !apperrors.IsPermanent(err)
		},
	}, func() error {
		attempts++
		return c.handler(ctx, l, c.pub)
	})
	if c.metrics != nil {
		c.metrics.HandlerDuration.WithLabelValues(string(c.route.Stage)).Observe(time.Since(start).Seconds())
		if attempts > 1 {
			c.metrics.HandlerRetries.WithLabelValues(string(c.route.Stage)).Add(float64(attempts - 1))
		}
	}
	span.End()
	span.Log()

	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("ack failed", "email", l.Email, "error", ackErr)
			return
		}
		if c.metrics != nil {
			c.metrics.MessagesAcked.WithLabelValues(c.route.Input).Inc()
		}
		return
	}

	// A cancelled context means shutdown interrupted the handler, not that the
	// handler failed. Leave the delivery unacked: the broker redelivers it to
	// the next consumer instead of it being dead-lettered or dropped.
	if ctx.Err() != nil {
		c.logger.Warn("handling interrupted by shutdown, leaving message for redelivery",
			"email", l.Email,
			"error", err,
		)
		return
	}

	reason := "retry_exhausted"
	if apperrors.IsPermanent(err) {
		reason = "permanent"
	}
	c.logger.Error("handler failed", "email", l.Email, "reason", reason, "error", err)
	c.reject(ctx, d, reason, err)
}

// reject removes a failed message from the input queue. With dead-lettering
// enabled the original payload is captured on the dead-letter queue before
// the ack; otherwise the message is nacked without requeue and permanently
// dropped, which is the topology's poison-message guard.
func (c *Consumer) reject(ctx context.Context, d amqp.Delivery, reason string, cause error) {
	if !c.cfg.DeadLetter {
		if err := d.Nack(false, false); err != nil {
			c.logger.Error("nack failed", "error", err)
		}
		if c.metrics != nil {
			c.metrics.MessagesDeadLettered.WithLabelValues(c.route.Input, reason+"_dropped").Inc()
		}
		return
	}

	// Original headers first so the attribution below always wins, even when
	// an inbound message already carries stale attribution from a past trip
	// through the dead-letter queue.
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers["x-failed-stage"] = string(c.route.Stage)
	headers["x-failure-reason"] = cause.Error()
	pub := amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         d.Body,
	}
	if err := c.broker.Publish(ctx, QueueDeadLetter, pub); err != nil {
		// The dead-letter capture itself failed; drop without requeue so a
		// poison message cannot wedge the queue.
		c.logger.Error("dead-letter publish failed, dropping message", "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("nack failed", "error", nackErr)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		c.logger.Error("ack after dead-letter failed", "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.MessagesDeadLettered.WithLabelValues(c.route.Input, reason).Inc()
	}
}
