package inmemory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/next-trace/scg-chain-relay/adapters/inmemory"
	"github.com/next-trace/scg-chain-relay/contract/bus"
	berr "github.com/next-trace/scg-chain-relay/contract/errors"
)

type ping struct{ N int }

type pong struct{ N int }

func TestRequestResponse(t *testing.T) {
	ep, cleanup := inmemory.New()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stream, err := ep.Stream(ctx, ping{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	go func() {
		for env := range stream {
			req := env.Request.(ping)
			_ = ep.Broadcast(ctx, pong{N: req.N}, env.ReplyTo)
		}
	}()

	raw, err := ep.Request(ctx, ping{N: 7}, bus.BroadcastConfig{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if raw.(pong).N != 7 {
		t.Fatalf("bad response: %+v", raw)
	}
}

func TestStreamOrderIsFIFO(t *testing.T) {
	ep, cleanup := inmemory.New()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stream, err := ep.Stream(ctx, ping{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := 0; i < 5; i++ {
			shortCtx, cancelShort := context.WithTimeout(ctx, 100*time.Millisecond)
			// fire-and-forget: nobody answers, the send itself is the point
			_, _ = ep.Request(shortCtx, ping{N: i}, bus.BroadcastConfig{})
			cancelShort()
		}
	}()

	for i := 0; i < 5; i++ {
		select {
		case env := <-stream:
			if env.Request.(ping).N != i {
				t.Fatalf("out of order: want %d, got %+v", i, env.Request)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for stream")
		}
	}

	<-done
}

func TestRequestHonorsContext(t *testing.T) {
	ep, cleanup := inmemory.New()
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// no subscriber: the request must not hang past its context
	_, err := ep.Request(ctx, ping{N: 1}, bus.BroadcastConfig{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
}

func TestClosedEndpoint(t *testing.T) {
	ep, cleanup := inmemory.New()
	cleanup()

	if _, err := ep.Stream(context.Background(), ping{}); !errors.Is(err, berr.ErrEndpointClosed) {
		t.Fatalf("stream on closed endpoint: %v", err)
	}

	if _, err := ep.Request(context.Background(), ping{}, bus.BroadcastConfig{}); !errors.Is(err, berr.ErrEndpointClosed) {
		t.Fatalf("request on closed endpoint: %v", err)
	}
}

func TestBroadcastRejectsBadToken(t *testing.T) {
	ep, cleanup := inmemory.New()
	defer cleanup()

	err := ep.Broadcast(context.Background(), pong{}, "not-a-channel")
	if !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}
}
