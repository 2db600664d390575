// Package nats provides a bus endpoint over NATS. Request subjects are
// derived from the target subject and the request type name; correlation
// rides on NATS's native request/reply, with the reply subject acting as the
// opaque addressing token.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/nats-io/nats.go"

	"github.com/next-trace/scg-chain-relay/contract/bus"
	berr "github.com/next-trace/scg-chain-relay/contract/errors"
)

// streamBuffer is the per-subscription message buffer handed to ChanSubscribe.
const streamBuffer = 64

// Unsubscriber detaches one subscription.
type Unsubscriber interface {
	Unsubscribe() error
}

// Conn is the minimal slice of a NATS connection the endpoint needs.
// Tests can provide a fake; NewWithNATS wires a real connection.
type Conn interface {
	ChanSubscribe(subj string, ch chan *nats.Msg) (Unsubscriber, error)
	PublishMsg(m *nats.Msg) error
	RequestMsgWithContext(ctx context.Context, m *nats.Msg) (*nats.Msg, error)
}

// Endpoint implements bus.Endpoint over a NATS connection.
type Endpoint struct {
	conn    Conn
	subject string // subject prefix this endpoint serves and targets by default
}

// Ensure Endpoint implements the contract.
var _ bus.Endpoint = (*Endpoint)(nil)

// New creates an endpoint over the provided connection. subject is the
// well-known prefix incoming request subscriptions are bound under; it must
// match the BroadcastConfig requesters use.
func New(c Conn, subject string) *Endpoint {
	return &Endpoint{conn: c, subject: subject}
}

// Stream subscribes to the subject for sample's request type and decodes
// each incoming message into a request value. The reply subject of each
// message becomes the envelope's addressing token.
func (e *Endpoint) Stream(ctx context.Context, sample any) (<-chan bus.Envelope, error) {
	subj := subjectFor(e.subject, sample)

	msgs := make(chan *nats.Msg, streamBuffer)

	sub, err := e.conn.ChanSubscribe(subj, msgs)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subj, errors.Join(berr.ErrSubscribeFailed, err))
	}

	out := make(chan bus.Envelope)

	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()

		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}

				req, err := decodeAs(sample, m.Data)
				if err != nil {
					// Undecodable payloads are dropped; the sender's own
					// timeout reports the lost request.
					continue
				}

				select {
				case out <- bus.Envelope{Request: req, ReplyTo: m.Reply}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Broadcast publishes a response to the reply subject carried by replyTo.
func (e *Endpoint) Broadcast(_ context.Context, response any, replyTo bus.ReplyTo) error {
	subj, ok := replyTo.(string)
	if !ok || subj == "" {
		return fmt.Errorf("nats broadcast %T: bad reply token %T: %w", response, replyTo, berr.ErrPublishFailed)
	}

	body, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("nats broadcast serialize: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	if err := e.conn.PublishMsg(&nats.Msg{Subject: subj, Data: body}); err != nil {
		return fmt.Errorf("nats broadcast %s: %w", subj, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

// Request publishes req toward target and waits for the one correlated
// reply, decoded into the response type bound to req.
func (e *Endpoint) Request(ctx context.Context, req any, target bus.BroadcastConfig) (any, error) {
	cor, ok := req.(bus.Correlated)
	if !ok {
		return nil, fmt.Errorf("nats request %T: %w", req, berr.ErrUnboundRequest)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("nats request serialize: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	msg := &nats.Msg{Subject: subjectFor(target.Subject, req), Data: body}

	reply, err := e.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("nats request %T: %w", req, errors.Join(berr.ErrNoAnswer, err))
		}

		return nil, fmt.Errorf("nats request %T: %w", req, errors.Join(berr.ErrPublishFailed, err))
	}

	ptr := cor.ExpectedResponse()
	if err := json.Unmarshal(reply.Data, ptr); err != nil {
		return nil, fmt.Errorf("nats response decode: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	return reflect.ValueOf(ptr).Elem().Interface(), nil
}

// helpers

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" { // unnamed (e.g., map/struct literal)
		name = t.String()
	}

	return name
}

func subjectFor(prefix string, v any) string {
	if prefix == "" {
		return typeName(v)
	}

	return prefix + "." + typeName(v)
}

// decodeAs unmarshals data into a fresh value of sample's type.
func decodeAs(sample any, data []byte) (any, error) {
	ptr := reflect.New(reflect.TypeOf(sample))
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}

	return ptr.Elem().Interface(), nil
}
