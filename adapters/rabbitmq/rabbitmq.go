package rabbitmq

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/next-trace/scg-chain-relay/contract/bus"
	berr "github.com/next-trace/scg-chain-relay/contract/errors"
)

// Broker is the minimal slice of an AMQP channel the endpoint needs.
// Tests can provide a fake; NewWithAMQPConn wires a real channel.
type Broker interface {
	// Declare ensures a queue exists. Exclusive queues are deleted with the
	// connection; request queues are shared and survive it.
	Declare(queue string, exclusive bool) error
	Consume(queue string) (<-chan amqp.Delivery, error)
	Publish(ctx context.Context, key string, pub amqp.Publishing) error
}

// replyAddress routes a response back to the requester's reply queue.
type replyAddress struct {
	queue  string
	corrID string
}

// Endpoint implements bus.Endpoint over RabbitMQ.
type Endpoint struct {
	broker  Broker
	subject string // request queue prefix shared by both sides
	replyQ  string

	mu      sync.Mutex
	pending map[string]chan []byte
	started bool
}

// Ensure Endpoint implements the contract.
var _ bus.Endpoint = (*Endpoint)(nil)

// New creates an endpoint over the provided broker. The reply queue is named
// after name so concurrent endpoints never share one.
func New(b Broker, subject, name string) *Endpoint {
	return &Endpoint{
		broker:  b,
		subject: subject,
		replyQ:  "replies." + name + "." + randomID(),
		pending: make(map[string]chan []byte),
	}
}

// Stream consumes the queue for sample's request type. The delivery's
// reply-to queue and correlation id become the envelope's addressing token.
func (e *Endpoint) Stream(ctx context.Context, sample any) (<-chan bus.Envelope, error) {
	queue := queueFor(e.subject, sample)

	if err := e.broker.Declare(queue, false); err != nil {
		return nil, fmt.Errorf("rabbitmq declare %s: %w", queue, errors.Join(berr.ErrSubscribeFailed, err))
	}

	deliveries, err := e.broker.Consume(queue)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consume %s: %w", queue, errors.Join(berr.ErrSubscribeFailed, err))
	}

	out := make(chan bus.Envelope)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				req, err := decodeAs(sample, d.Body)
				if err != nil {
					continue
				}

				env := bus.Envelope{
					Request: req,
					ReplyTo: replyAddress{queue: d.ReplyTo, corrID: d.CorrelationId},
				}

				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Broadcast publishes a response to the reply queue carried by replyTo.
func (e *Endpoint) Broadcast(ctx context.Context, response any, replyTo bus.ReplyTo) error {
	addr, ok := replyTo.(replyAddress)
	if !ok || addr.queue == "" {
		return fmt.Errorf("rabbitmq broadcast %T: bad reply token %T: %w", response, replyTo, berr.ErrPublishFailed)
	}

	body, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("rabbitmq broadcast serialize: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	pub := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: addr.corrID,
		Body:          body,
	}

	if err := e.broker.Publish(ctx, addr.queue, pub); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq broadcast %s: %w", addr.queue, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

// Request publishes req to its request queue with this endpoint's reply
// queue and a fresh correlation id, then waits for the matching reply.
func (e *Endpoint) Request(ctx context.Context, req any, target bus.BroadcastConfig) (any, error) {
	cor, ok := req.(bus.Correlated)
	if !ok {
		return nil, fmt.Errorf("rabbitmq request %T: %w", req, berr.ErrUnboundRequest)
	}

	if err := e.ensureReplyConsumer(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq request serialize: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	corrID := randomID()
	reply := make(chan []byte, 1)

	e.mu.Lock()
	e.pending[corrID] = reply
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.pending, corrID)
		e.mu.Unlock()
	}()

	pub := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: corrID,
		ReplyTo:       e.replyQ,
		Body:          body,
	}

	if err := e.broker.Publish(ctx, queueFor(target.Subject, req), pub); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("rabbitmq request %T: %w", req, errors.Join(berr.ErrPublishFailed, err))
	}

	select {
	case raw := <-reply:
		ptr := cor.ExpectedResponse()
		if err := json.Unmarshal(raw, ptr); err != nil {
			return nil, fmt.Errorf("rabbitmq response decode: %w", errors.Join(berr.ErrSerializationFailed, err))
		}

		return reflect.ValueOf(ptr).Elem().Interface(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ensureReplyConsumer declares and consumes the endpoint's reply queue once,
// routing deliveries to pending requests by correlation id.
func (e *Endpoint) ensureReplyConsumer() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	if err := e.broker.Declare(e.replyQ, true); err != nil {
		return fmt.Errorf("rabbitmq declare %s: %w", e.replyQ, errors.Join(berr.ErrSubscribeFailed, err))
	}

	deliveries, err := e.broker.Consume(e.replyQ)
	if err != nil {
		return fmt.Errorf("rabbitmq consume %s: %w", e.replyQ, errors.Join(berr.ErrSubscribeFailed, err))
	}

	go func() {
		for d := range deliveries {
			e.mu.Lock()
			reply, ok := e.pending[d.CorrelationId]
			e.mu.Unlock()

			if ok {
				// Non-blocking: a duplicate reply must not stall the router.
				select {
				case reply <- d.Body:
				default:
				}
			}
		}
	}()

	e.started = true

	return nil
}

// helpers

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" {
		name = t.String()
	}

	return name
}

func queueFor(prefix string, v any) string {
	if prefix == "" {
		return typeName(v)
	}

	return prefix + "." + typeName(v)
}

func decodeAs(sample any, data []byte) (any, error) {
	ptr := reflect.New(reflect.TypeOf(sample))
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}

	return ptr.Elem().Interface(), nil
}

func randomID() string {
	var b [8]byte

	_, _ = rand.Read(b[:]) //nolint:errcheck // crypto/rand.Read does not fail in practice

	return hex.EncodeToString(b[:])
}
