// Package inmemory provides an in-process bus endpoint with full
// request/response correlation. It is the endpoint used by tests, the memory
// package, and examples; no broker required.
package inmemory

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/next-trace/scg-chain-relay/contract/bus"
	berr "github.com/next-trace/scg-chain-relay/contract/errors"
)

// streamBuffer bounds how far publishers can run ahead of a slow consumer
// before Request blocks on delivery.
const streamBuffer = 16

// Endpoint is a thread-safe in-memory implementation of bus.Endpoint.
// Requests are routed to the one stream registered for their type; replies
// travel over a per-call channel carried as the opaque addressing token.
type Endpoint struct {
	mu      sync.Mutex
	streams map[reflect.Type]chan bus.Envelope
	closed  chan struct{}
	once    sync.Once
}

// Ensure Endpoint implements the contract.
var _ bus.Endpoint = (*Endpoint)(nil)

// New creates an in-memory endpoint and a cleanup that shuts it down.
func New() (*Endpoint, func()) {
	e := &Endpoint{
		streams: make(map[reflect.Type]chan bus.Envelope),
		closed:  make(chan struct{}),
	}

	return e, e.close
}

func (e *Endpoint) close() {
	// Stream channels are left open: publishers select on closed before
	// sending, so closing the signal channel alone shuts everything down
	// without racing an in-flight send.
	e.once.Do(func() { close(e.closed) })
}

// Stream returns the live request stream for sample's type, creating it on
// first use. The returned channel closes when ctx is cancelled or the
// endpoint shuts down.
func (e *Endpoint) Stream(ctx context.Context, sample any) (<-chan bus.Envelope, error) {
	select {
	case <-e.closed:
		return nil, fmt.Errorf("stream %T: %w", sample, berr.ErrEndpointClosed)
	default:
	}

	in := e.streamFor(reflect.TypeOf(sample))
	out := make(chan bus.Envelope)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.closed:
				return
			case env := <-in:
				select {
				case out <- env:
				case <-ctx.Done():
					return
				case <-e.closed:
					return
				}
			}
		}
	}()

	return out, nil
}

func (e *Endpoint) streamFor(t reflect.Type) chan bus.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.streams[t]
	if !ok {
		ch = make(chan bus.Envelope, streamBuffer)
		e.streams[t] = ch
	}

	return ch
}

// Broadcast delivers a response to the reply channel carried by replyTo.
func (e *Endpoint) Broadcast(ctx context.Context, response any, replyTo bus.ReplyTo) error {
	reply, ok := replyTo.(chan any)
	if !ok {
		return fmt.Errorf("broadcast %T: bad reply token %T: %w", response, replyTo, berr.ErrPublishFailed)
	}

	select {
	case reply <- response:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request publishes req to the stream for its type and waits for the one
// correlated response. The target config is unused in-process; routing is by
// request type alone.
func (e *Endpoint) Request(ctx context.Context, req any, _ bus.BroadcastConfig) (any, error) {
	select {
	case <-e.closed:
		return nil, fmt.Errorf("request %T: %w", req, berr.ErrEndpointClosed)
	default:
	}

	// Buffered so a respondent is never blocked on an abandoned call.
	reply := make(chan any, 1)
	in := e.streamFor(reflect.TypeOf(req))

	select {
	case in <- bus.Envelope{Request: req, ReplyTo: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.closed:
		return nil, fmt.Errorf("request %T: %w", req, berr.ErrEndpointClosed)
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.closed:
		return nil, fmt.Errorf("request %T: %w", req, berr.ErrEndpointClosed)
	}
}
