// Package bus defines the event bus capabilities the relay consumes.
// It is deliberately minimal and tech-agnostic; concrete transports live in
// the adapters packages (in-memory, NATS, RabbitMQ, Kafka).
package bus

import "context"

// ReplyTo is the opaque addressing token attached to an incoming request.
// It identifies where the correlated response must be delivered. The relay
// never inspects it; it only hands it back to Broadcast unchanged.
type ReplyTo any

// Envelope wraps one incoming request with its addressing token.
type Envelope struct {
	// Request is the decoded request event value.
	Request any
	// ReplyTo routes the response back to the request's originator.
	ReplyTo ReplyTo
}

// BroadcastConfig identifies the well-known target requests are sent toward.
// It is fixed per deployment, not per call: every query kind in this system
// shares the same provider-side target.
type BroadcastConfig struct {
	// Subject is the subject/topic/queue prefix the provider side listens on.
	Subject string
}

// Correlated is implemented by every request event. ExpectedResponse returns
// a pointer to a zero value of the one response type statically bound to the
// request type. The binding is a property of the type, never of field values.
//
// Endpoints use it to know what shape to decode a correlated reply into.
type Correlated interface {
	ExpectedResponse() any
}

// Endpoint is the bus boundary: typed subscription streams, addressed
// broadcast, and a publish-and-correlate request primitive.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Endpoint interface {
	// Stream returns a live, unbounded sequence of incoming requests whose
	// type matches sample. The channel is closed when ctx is cancelled or the
	// endpoint shuts down. Within one stream, requests arrive in the order
	// the bus delivers them.
	Stream(ctx context.Context, sample any) (<-chan Envelope, error)

	// Broadcast publishes a response to the location identified by replyTo.
	Broadcast(ctx context.Context, response any, replyTo ReplyTo) error

	// Request publishes req toward target and suspends until the one
	// correlated response arrives or ctx fires. The result is a value of the
	// response type bound to req. Timeout and cancellation policy belong to
	// the caller's ctx; Request never hangs past it.
	Request(ctx context.Context, req any, target BroadcastConfig) (any, error)
}
