package errors

// Error codes for the relay contracts. Keep stable; used across adapters and
// the bridge, and by callers that need to tell "never got an answer" apart
// from "got an answer that was an error".
const (
	ErrCodeNoAnswer            = "chainrelay.no_answer"
	ErrCodeUnexpectedResponse  = "chainrelay.unexpected_response"
	ErrCodeUnboundRequest      = "chainrelay.unbound_request"
	ErrCodeSubscribeFailed     = "chainrelay.subscribe_failed"
	ErrCodePublishFailed       = "chainrelay.publish_failed"
	ErrCodeSerializationFailed = "chainrelay.serialization_failed"
	ErrCodeEndpointClosed      = "chainrelay.endpoint_closed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	// ErrNoAnswer marks a request that never got a correlated response:
	// timeout, cancellation, or no responder on the other side.
	ErrNoAnswer = Code(ErrCodeNoAnswer)
	// ErrUnexpectedResponse marks a correlated response of the wrong type.
	// Given the static request/response binding this should be impossible;
	// it is an internal-consistency failure, not a normal error path.
	ErrUnexpectedResponse = Code(ErrCodeUnexpectedResponse)
	// ErrUnboundRequest marks a request value that carries no response binding.
	ErrUnboundRequest      = Code(ErrCodeUnboundRequest)
	ErrSubscribeFailed     = Code(ErrCodeSubscribeFailed)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrEndpointClosed      = Code(ErrCodeEndpointClosed)
)
