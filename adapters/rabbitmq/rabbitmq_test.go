package rabbitmq_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-chain-relay/adapters/rabbitmq"
	"github.com/next-trace/scg-chain-relay/contract/bus"
	berr "github.com/next-trace/scg-chain-relay/contract/errors"
)

type qreq struct{ ID string }

func (qreq) ExpectedResponse() any { return &qresp{} }

type qresp struct{ Value string }

type unbound struct{}

// fakeBroker routes publishes straight to consumers of the target queue,
// standing in for a broker in-process.
type fakeBroker struct {
	mu     sync.Mutex
	queues map[string]chan amqp.Delivery
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queues: map[string]chan amqp.Delivery{}}
}

func (f *fakeBroker) queue(name string) chan amqp.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, ok := f.queues[name]
	if !ok {
		q = make(chan amqp.Delivery, 16)
		f.queues[name] = q
	}

	return q
}

func (f *fakeBroker) Declare(queue string, _ bool) error {
	f.queue(queue)
	return nil
}

func (f *fakeBroker) Consume(queue string) (<-chan amqp.Delivery, error) {
	return f.queue(queue), nil
}

func (f *fakeBroker) Publish(_ context.Context, key string, pub amqp.Publishing) error {
	f.queue(key) <- amqp.Delivery{
		Body:          pub.Body,
		CorrelationId: pub.CorrelationId,
		ReplyTo:       pub.ReplyTo,
	}

	return nil
}

func TestRequestResponseRoundTrip(t *testing.T) {
	broker := newFakeBroker()

	// both sides share one broker, as they would share one RabbitMQ
	server := rabbitmq.New(broker, "chain.provider", "server")
	client := rabbitmq.New(broker, "chain.provider", "client")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stream, err := server.Stream(ctx, qreq{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	go func() {
		for env := range stream {
			req := env.Request.(qreq)
			_ = server.Broadcast(ctx, qresp{Value: "got " + req.ID}, env.ReplyTo)
		}
	}()

	raw, err := client.Request(ctx, qreq{ID: "r9"}, bus.BroadcastConfig{Subject: "chain.provider"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	resp, ok := raw.(qresp)
	if !ok || resp.Value != "got r9" {
		t.Fatalf("bad response: %#v", raw)
	}
}

func TestConcurrentRequestsCorrelate(t *testing.T) {
	broker := newFakeBroker()
	server := rabbitmq.New(broker, "chain.provider", "server")
	client := rabbitmq.New(broker, "chain.provider", "client")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := server.Stream(ctx, qreq{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	go func() {
		for env := range stream {
			req := env.Request.(qreq)
			_ = server.Broadcast(ctx, qresp{Value: req.ID}, env.ReplyTo)
		}
	}()

	results := make(chan error, 8)

	for i := 0; i < 8; i++ {
		go func(id string) {
			raw, err := client.Request(ctx, qreq{ID: id}, bus.BroadcastConfig{Subject: "chain.provider"})
			if err == nil && raw.(qresp).Value != id {
				err = errors.New("crossed responses")
			}

			results <- err
		}(string(rune('a' + i)))
	}

	for i := 0; i < 8; i++ {
		if err := <-results; err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestRequestHonorsContext(t *testing.T) {
	client := rabbitmq.New(newFakeBroker(), "chain.provider", "client")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Request(ctx, qreq{ID: "x"}, bus.BroadcastConfig{Subject: "chain.provider"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
}

func TestRequestRejectsUnboundType(t *testing.T) {
	client := rabbitmq.New(newFakeBroker(), "chain.provider", "client")

	_, err := client.Request(context.Background(), unbound{}, bus.BroadcastConfig{Subject: "chain.provider"})
	if !errors.Is(err, berr.ErrUnboundRequest) {
		t.Fatalf("want ErrUnboundRequest, got %v", err)
	}
}

func TestBroadcastRejectsBadToken(t *testing.T) {
	server := rabbitmq.New(newFakeBroker(), "chain.provider", "server")

	err := server.Broadcast(context.Background(), qresp{}, "nope")
	if !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}
}

func TestStreamDecodeSkipsGarbage(t *testing.T) {
	broker := newFakeBroker()
	server := rabbitmq.New(broker, "chain.provider", "server")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stream, err := server.Stream(ctx, qreq{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	_ = broker.Publish(ctx, "chain.provider.qreq", amqp.Publishing{Body: []byte("{nope")})

	good, _ := json.Marshal(qreq{ID: "ok"})
	_ = broker.Publish(ctx, "chain.provider.qreq", amqp.Publishing{Body: good})

	select {
	case env := <-stream:
		if env.Request.(qreq).ID != "ok" {
			t.Fatalf("bad request: %+v", env.Request)
		}
	case <-ctx.Done():
		t.Fatal("garbage blocked the stream")
	}
}
