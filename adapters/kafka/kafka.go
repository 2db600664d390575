// Package kafka provides a bus endpoint over Kafka using franz-go.
// Requests travel on one topic per request type; replies come back on a
// per-endpoint reply topic and are matched by a correlation-id header.
package kafka

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/next-trace/scg-chain-relay/contract/bus"
	berr "github.com/next-trace/scg-chain-relay/contract/errors"
)

const (
	hdrReplyTo     = "reply-to"
	hdrCorrelation = "correlation-id"

	streamBuffer = 64
)

// Client is the minimal slice of a franz-go client the endpoint needs.
// Tests can provide a fake; NewWithKgo wires a real client. The client must
// already be consuming the endpoint's reply topic.
type Client interface {
	PollFetches(ctx context.Context) kgo.Fetches
	AddConsumeTopics(topics ...string)
	ProduceSync(ctx context.Context, recs ...*kgo.Record) kgo.ProduceResults
	Close()
}

var _ Client = (*kgo.Client)(nil)

type Config struct {
	Brokers  []string
	ClientID string
	Subject  string // well-known provider-side topic prefix
	Name     string // distinguishes this endpoint's reply topic
	TLS      *tls.Config
}

// replyAddress routes a response back to the requester's reply topic.
type replyAddress struct {
	topic  string
	corrID string
}

type streamSub struct {
	ctx    context.Context
	sample any
	out    chan bus.Envelope
}

// Endpoint implements bus.Endpoint over a franz-go client. One poll loop
// routes fetched records either to the stream registered for their topic or
// to the pending request matching their correlation id.
type Endpoint struct {
	cl         Client
	subject    string
	replyTopic string

	mu      sync.Mutex
	pending map[string]chan []byte
	streams map[string]*streamSub
	closed  chan struct{}
}

// Ensure Endpoint implements the contract.
var _ bus.Endpoint = (*Endpoint)(nil)

// New creates an endpoint over the provided client and starts its poll loop.
// The returned cleanup closes the client and stops the loop. name
// distinguishes this endpoint's reply topic; an empty name gets a random one.
func New(c Client, subject, name string) (*Endpoint, func()) {
	e := &Endpoint{
		cl:         c,
		subject:    subject,
		replyTopic: replyTopicFor(subject, name),
		pending:    make(map[string]chan []byte),
		streams:    make(map[string]*streamSub),
		closed:     make(chan struct{}),
	}

	go e.poll()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			close(e.closed)
			c.Close()
		})
	}

	return e, cleanup
}

// NewWithKgo builds a real franz-go client and an endpoint over it.
func NewWithKgo(cfg Config) (*Endpoint, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", berr.ErrSubscribeFailed)
	}

	if cfg.Name == "" {
		cfg.Name = randomID()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(replyTopicFor(cfg.Subject, cfg.Name)),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrSubscribeFailed, err)
	}

	ep, cleanup := New(cl, cfg.Subject, cfg.Name)

	return ep, cleanup, nil
}

// poll is the endpoint's single consumer loop. It is also the only writer to
// stream channels, so it alone closes them.
func (e *Endpoint) poll() {
	defer func() {
		e.mu.Lock()
		for topic, sub := range e.streams {
			close(sub.out)
			delete(e.streams, topic)
		}
		e.mu.Unlock()
	}()

	for {
		fetches := e.cl.PollFetches(context.Background())
		if fetches.IsClientClosed() {
			return
		}

		select {
		case <-e.closed:
			return
		default:
		}

		fetches.EachRecord(e.route)
	}
}

func (e *Endpoint) route(rec *kgo.Record) {
	if rec.Topic == e.replyTopic {
		e.mu.Lock()
		reply, ok := e.pending[headerValue(rec, hdrCorrelation)]
		e.mu.Unlock()

		if ok {
			// Non-blocking: a duplicate reply must not stall the poll loop.
			select {
			case reply <- rec.Value:
			default:
			}
		}

		return
	}

	e.mu.Lock()
	sub, ok := e.streams[rec.Topic]
	if ok && sub.ctx.Err() != nil {
		// Dead registration. This goroutine is the sole sender on stream
		// channels, so it alone may close them.
		delete(e.streams, rec.Topic)
		close(sub.out)
		e.mu.Unlock()

		return
	}
	e.mu.Unlock()

	if !ok {
		return
	}

	req, err := decodeAs(sub.sample, rec.Value)
	if err != nil {
		return
	}

	env := bus.Envelope{
		Request: req,
		ReplyTo: replyAddress{topic: headerValue(rec, hdrReplyTo), corrID: headerValue(rec, hdrCorrelation)},
	}

	select {
	case sub.out <- env:
	case <-sub.ctx.Done():
	case <-e.closed:
	}
}

// Stream registers a consumer for sample's request topic. A registration
// whose ctx has been cancelled no longer counts as open; a new Stream for the
// same type replaces it.
func (e *Endpoint) Stream(ctx context.Context, sample any) (<-chan bus.Envelope, error) {
	select {
	case <-e.closed:
		return nil, fmt.Errorf("kafka stream %T: %w", sample, berr.ErrEndpointClosed)
	default:
	}

	topic := topicFor(e.subject, sample)
	sub := &streamSub{ctx: ctx, sample: sample, out: make(chan bus.Envelope, streamBuffer)}

	e.mu.Lock()
	if old, exists := e.streams[topic]; exists && old.ctx.Err() == nil {
		e.mu.Unlock()

		return nil, fmt.Errorf("kafka stream %s already open: %w", topic, berr.ErrSubscribeFailed)
	}
	// A replaced dead stream's channel is left open: its consumer is gone,
	// and the poll loop stops sending once the entry is swapped out.
	e.streams[topic] = sub
	e.mu.Unlock()

	e.cl.AddConsumeTopics(topic)

	return sub.out, nil
}

// Broadcast produces a response to the reply topic carried by replyTo.
func (e *Endpoint) Broadcast(ctx context.Context, response any, replyTo bus.ReplyTo) error {
	addr, ok := replyTo.(replyAddress)
	if !ok || addr.topic == "" {
		return fmt.Errorf("kafka broadcast %T: bad reply token %T: %w", response, replyTo, berr.ErrPublishFailed)
	}

	body, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("kafka broadcast serialize: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	rec := &kgo.Record{
		Topic:   addr.topic,
		Value:   body,
		Headers: []kgo.RecordHeader{{Key: hdrCorrelation, Value: []byte(addr.corrID)}},
	}

	if err := e.cl.ProduceSync(ctx, rec).FirstErr(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("kafka broadcast %s: %w", addr.topic, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

// Request produces req to its request topic with this endpoint's reply topic
// and a fresh correlation id, then waits for the matching reply.
func (e *Endpoint) Request(ctx context.Context, req any, target bus.BroadcastConfig) (any, error) {
	cor, ok := req.(bus.Correlated)
	if !ok {
		return nil, fmt.Errorf("kafka request %T: %w", req, berr.ErrUnboundRequest)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("kafka request serialize: %w", errors.Join(berr.ErrSerializationFailed, err))
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

	rec := &kgo.Record{
		Topic: topicFor(target.Subject, req),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: hdrReplyTo, Value: []byte(e.replyTopic)},
			{Key: hdrCorrelation, Value: []byte(corrID)},
		},
	}

	if err := e.cl.ProduceSync(ctx, rec).FirstErr(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("kafka request %T: %w", req, errors.Join(berr.ErrPublishFailed, err))
	}

	select {
	case raw := <-reply:
		ptr := cor.ExpectedResponse()
		if err := json.Unmarshal(raw, ptr); err != nil {
			return nil, fmt.Errorf("kafka response decode: %w", errors.Join(berr.ErrSerializationFailed, err))
		}

		return reflect.ValueOf(ptr).Elem().Interface(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.closed:
		return nil, fmt.Errorf("kafka request %T: %w", req, berr.ErrEndpointClosed)
	}
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

func topicFor(prefix string, v any) string {
	if prefix == "" {
		return typeName(v)
	}

	return prefix + "." + typeName(v)
}

func replyTopicFor(prefix, name string) string {
	if name == "" {
		name = randomID()
	}

	if prefix == "" {
		return "replies." + name
	}

	return prefix + ".replies." + name
}

func headerValue(rec *kgo.Record, key string) string {
	for _, h := range rec.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}

	return ""
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
