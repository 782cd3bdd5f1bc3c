package rabbit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/leadforge/lead-processing-pipeline/pkg/config"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	durable    []bool
	prefetch   int
	deliveries chan amqp.Delivery
	published  []string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery)}
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name)
	f.durable = append(f.durable, durable)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, _ amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, key)
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error { return nil }

type fakeConnection struct {
	ch     *fakeChannel
	notify chan *amqp.Error
	closed atomic.Bool
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{ch: newFakeChannel(), notify: make(chan *amqp.Error, 1)}
}

func (f *fakeConnection) Channel() (brokerChannel, error) { return f.ch, nil }

func (f *fakeConnection) NotifyClose(chan *amqp.Error) chan *amqp.Error { return f.notify }

func (f *fakeConnection) IsClosed() bool { return f.closed.Load() }

func (f *fakeConnection) Close() error {
	f.closed.Store(true)
	return nil
}

func testRabbitConfig() config.RabbitConfig {
	return config.RabbitConfig{
		URL:            "amqp://test",
		Prefetch:       4,
		ReconnectDelay: 10 * time.Millisecond,
	}
}

func TestConnectDeclaresDurableQueuesAndPrefetch(t *testing.T) {
	conn := newFakeConnection()
	dialer := func(string) (brokerConnection, error) { return conn, nil }

	client, err := connect(context.Background(), testRabbitConfig(), dialer, "lead.validation", "lead.deadletter")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if len(conn.ch.declared) != 2 || conn.ch.declared[0] != "lead.validation" || conn.ch.declared[1] != "lead.deadletter" {
		t.Errorf("declared queues = %v", conn.ch.declared)
	}
	for i, durable := range conn.ch.durable {
		if !durable {
			t.Errorf("queue %s declared non-durable", conn.ch.declared[i])
		}
	}
	if conn.ch.prefetch != 4 {
		t.Errorf("prefetch = %d, want 4", conn.ch.prefetch)
	}
	if !client.IsReady() {
		t.Error("client not ready after connect")
	}
}

func TestConnectRetriesUntilBrokerAvailable(t *testing.T) {
	conn := newFakeConnection()
	var dials atomic.Int64
	dialer := func(string) (brokerConnection, error) {
		if dials.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return conn, nil
	}

	client, err := connect(context.Background(), testRabbitConfig(), dialer, "lead.validation")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if dials.Load() != 3 {
		t.Errorf("dial attempts = %d, want 3", dials.Load())
	}
}

func TestConnectGivesUpOnlyWhenContextCancelled(t *testing.T) {
	dialer := func(string) (brokerConnection, error) { return nil, errors.New("connection refused") }
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := connect(ctx, testRabbitConfig(), dialer, "lead.validation")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestReconnectConvergence(t *testing.T) {
	first := newFakeConnection()
	second := newFakeConnection()
	var dials atomic.Int64
	dialer := func(string) (brokerConnection, error) {
		switch dials.Add(1) {
		case 1:
			return first, nil
		case 2:
			// One failed re-dial before the broker comes back.
			return nil, errors.New("connection refused")
		default:
			return second, nil
		}
	}

	client, err := connect(context.Background(), testRabbitConfig(), dialer, "lead.validation")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	oldGen := client.Reconnected()
	reconnected := make(chan struct{}, 1)
	client.OnReconnect(func() { reconnected <- struct{}{} })

	first.notify <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker restart"}

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never reconnected after connection loss")
	}

	select {
	case <-oldGen:
	default:
		t.Error("Reconnected channel from before the drop was not closed")
	}
	if got := client.Reconnects(); got != 1 {
		t.Errorf("Reconnects = %d, want 1", got)
	}
	if dials.Load() != 3 {
		t.Errorf("dial attempts = %d, want 3 (initial, one failure, recovery)", dials.Load())
	}
	if !client.IsReady() {
		t.Error("client not ready after reconnect")
	}

	// The new channel serves queue assertion and subscriptions.
	if len(second.ch.declared) == 0 {
		t.Error("queues not re-asserted on the new connection")
	}
	if _, err := client.Consume("lead.validation"); err != nil {
		t.Errorf("Consume after reconnect: %v", err)
	}
	if err := client.Publish(context.Background(), "lead.validation", amqp.Publishing{}); err != nil {
		t.Errorf("Publish after reconnect: %v", err)
	}
	second.ch.mu.Lock()
	published := len(second.ch.published)
	second.ch.mu.Unlock()
	if published != 1 {
		t.Errorf("publishes on new channel = %d, want 1", published)
	}
}

func TestCloseStopsSupervisor(t *testing.T) {
	conn := newFakeConnection()
	var dials atomic.Int64
	dialer := func(string) (brokerConnection, error) {
		dials.Add(1)
		return conn, nil
	}

	client, err := connect(context.Background(), testRabbitConfig(), dialer, "lead.validation")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if client.IsReady() {
		t.Error("client ready after Close")
	}

	// A close notification after shutdown must not trigger re-dials.
	select {
	case conn.notify <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "gone"}:
	default:
	}
	time.Sleep(50 * time.Millisecond)
	if dials.Load() != 1 {
		t.Errorf("dial attempts after Close = %d, want 1", dials.Load())
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
