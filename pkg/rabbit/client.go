// Package rabbit owns the logical connection to RabbitMQ, backed by
// rabbitmq/amqp091-go. Connect returns a ready-to-use client synchronously;
// queue assertion, prefetch, and indefinite fixed-interval reconnection are
// handled internally. The client is the single shared handle a stage process
// uses for both consuming and publishing.
package rabbit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/leadforge/lead-processing-pipeline/pkg/config"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultPrefetch       = 8
)

// brokerChannel is the slice of *amqp.Channel the client uses.
type brokerChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// brokerConnection is the slice of *amqp.Connection the client uses.
type brokerConnection interface {
	Channel() (brokerChannel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// dialFunc opens one broker connection. It is a seam so the reconnect
// machinery can be driven in tests without a live broker.
type dialFunc func(url string) (brokerConnection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (brokerChannel, error) {
	return c.Connection.Channel()
}

func amqpDial(url string) (brokerConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// Client is a supervised AMQP connection plus channel. The channel is
// replaced wholesale on reconnect; callers obtain the current one through
// Publish and Consume and learn about replacement via Reconnected.
type Client struct {
	cfg    config.RabbitConfig
	queues []string
	dialer dialFunc
	logger *slog.Logger

	mu   sync.RWMutex
	conn brokerConnection
	ch   brokerChannel
	gen  chan struct{}

	onReconnect func()
	reconnects  atomic.Int64

	closed atomic.Bool
	done   chan struct{}
}

// Connect dials the broker and asserts every queue in queues as durable
// (idempotent: asserting an existing queue is a no-op). It blocks until the
// first successful connection, retrying at the fixed configured interval
// indefinitely, and only gives up when ctx is cancelled. Once connected, a
// supervisor keeps the connection alive forever: any mid-session drop
// triggers re-dials of the same URL at the same fixed interval, with no
// backoff growth and no retry bound.
func Connect(ctx context.Context, cfg config.RabbitConfig, queues ...string) (*Client, error) {
	return connect(ctx, cfg, amqpDial, queues...)
}

func connect(ctx context.Context, cfg config.RabbitConfig, dialer dialFunc, queues ...string) (*Client, error) {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}

	c := &Client{
		cfg:    cfg,
		queues: queues,
		dialer: dialer,
		logger: slog.Default().With("component", "rabbit"),
		done:   make(chan struct{}),
	}

	for {
		conn, ch, err := c.dial()
		if err == nil {
			c.conn = conn
			c.ch = ch
			c.gen = make(chan struct{})
			c.logger.Info("connected to rabbitmq", "queues", len(queues))
			go c.supervise()
			return c, nil
		}
		c.logger.Error("failed to connect to rabbitmq, retrying",
			"error", err,
			"delay", cfg.ReconnectDelay,
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connecting to rabbitmq: %w", ctx.Err())
		case <-time.After(cfg.ReconnectDelay):
		}
	}
}

// dial performs one connection attempt: open connection and channel, assert
// all queues durable, apply the prefetch bound.
func (c *Client) dial() (brokerConnection, brokerChannel, error) {
	conn, err := c.dialer(c.cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("opening channel: %w", err)
	}
	for _, queue := range c.queues {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("declaring queue %s: %w", queue, err)
		}
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("setting prefetch: %w", err)
	}
	return conn, ch, nil
}

// supervise watches for connection loss and re-dials until recovered or the
// client is closed.
func (c *Client) supervise() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.done:
			return
		case amqpErr := <-closeCh:
			if c.closed.Load() {
				return
			}
			c.logger.Warn("rabbitmq connection closed, reconnecting",
				"error", amqpErr,
				"delay", c.cfg.ReconnectDelay,
			)
			if !c.redial() {
				return
			}
		}
	}
}

// redial loops until a new connection is established, swapping the channel
// under the lock and closing the old generation marker so consumers
// re-register. Returns false only when the client is shut down.
func (c *Client) redial() bool {
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(c.cfg.ReconnectDelay):
		}
		conn, ch, err := c.dial()
		if err != nil {
			c.logger.Error("reconnect attempt failed",
				"error", err,
				"delay", c.cfg.ReconnectDelay,
			)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.ch = ch
		old := c.gen
		c.gen = make(chan struct{})
		fn := c.onReconnect
		c.mu.Unlock()

		close(old)
		c.reconnects.Add(1)
		if fn != nil {
			fn()
		}
		c.logger.Info("reconnected to rabbitmq", "reconnects", c.reconnects.Load())
		return true
	}
}

// OnReconnect registers a callback invoked after every successful reconnect.
func (c *Client) OnReconnect(fn func()) {
	c.mu.Lock()
	c.onReconnect = fn
	c.mu.Unlock()
}

// Reconnected returns a channel that is closed when the underlying AMQP
// channel is replaced. Consumers select on it to re-register subscriptions.
func (c *Client) Reconnected() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Publish sends a message to the given queue via the default exchange.
func (c *Client) Publish(ctx context.Context, queue string, pub amqp.Publishing) error {
	c.mu.RLock()
	ch := c.ch
	c.mu.RUnlock()

	if c.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PublishTimeout)
		defer cancel()
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return fmt.Errorf("publishing to %s: %w", queue, err)
	}
	return nil
}

// Consume registers a manual-ack subscription on the given queue using the
// current channel. The returned delivery channel dies with the channel; call
// again after Reconnected fires.
func (c *Client) Consume(queue string) (<-chan amqp.Delivery, error) {
	c.mu.RLock()
	ch := c.ch
	c.mu.RUnlock()

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consuming from %s: %w", queue, err)
	}
	return deliveries, nil
}

// IsReady reports whether the client currently holds a live connection.
func (c *Client) IsReady() bool {
	if c.closed.Load() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Reconnects returns the number of successful reconnections since startup.
func (c *Client) Reconnects() int64 {
	return c.reconnects.Load()
}

// Close tears down the connection. In-flight unacknowledged deliveries are
// abandoned and become eligible for redelivery.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
