package bridge

// The request/response event catalog. Each request type is bound to exactly
// one response type via ExpectedResponse; the binding is a property of the
// type and never depends on field values. Both the relay and the facade rely
// on it, and endpoints use it to decode correlated replies off the wire.

import (
	"github.com/next-trace/scg-chain-relay/contract/bus"
	"github.com/next-trace/scg-chain-relay/contract/chain"
)

// Request is implemented by every request event in the catalog.
type Request interface {
	bus.Correlated
}

// Response is implemented by every response event in the catalog. A response
// carries either its payload or a remote error, never both.
type Response interface {
	// Err returns the captured provider failure, or nil on success.
	Err() error
}

// RemoteError is a provider failure captured as data so it can cross the bus
// boundary and be re-raised on the consumer side.
type RemoteError struct {
	Message string `json:"message"`
}

func (e *RemoteError) Error() string { return e.Message }

// Remote converts a provider error into its transportable form. A nil error
// stays nil so success responses serialize without an error field.
func Remote(err error) *RemoteError {
	if err == nil {
		return nil
	}

	return &RemoteError{Message: err.Error()}
}

// remoteErr is shared by all response types. The explicit nil check keeps a
// typed nil pointer from leaking into the error interface.
func remoteErr(e *RemoteError) error {
	if e == nil {
		return nil
	}

	return e
}

// Responses

type BlockHeaderResponse struct {
	Header *chain.Header `json:"header,omitempty"`
	Error  *RemoteError  `json:"error,omitempty"`
}

func (r BlockHeaderResponse) Err() error { return remoteErr(r.Error) }

type BlockBodyResponse struct {
	Body  *chain.BlockBody `json:"body,omitempty"`
	Error *RemoteError     `json:"error,omitempty"`
}

func (r BlockBodyResponse) Err() error { return remoteErr(r.Error) }

type ReceiptsResponse struct {
	Receipts []chain.Receipt `json:"receipts,omitempty"`
	Error    *RemoteError    `json:"error,omitempty"`
}

func (r ReceiptsResponse) Err() error { return remoteErr(r.Error) }

type AccountResponse struct {
	Account *chain.Account `json:"account,omitempty"`
	Error   *RemoteError   `json:"error,omitempty"`
}

func (r AccountResponse) Err() error { return remoteErr(r.Error) }

type ContractCodeResponse struct {
	Code  []byte       `json:"code,omitempty"`
	Error *RemoteError `json:"error,omitempty"`
}

func (r ContractCodeResponse) Err() error { return remoteErr(r.Error) }

// Requests

type GetBlockHeaderByHashRequest struct {
	BlockHash chain.Hash `json:"block_hash"`
}

func (GetBlockHeaderByHashRequest) ExpectedResponse() any { return &BlockHeaderResponse{} }

type GetBlockBodyByHashRequest struct {
	BlockHash chain.Hash `json:"block_hash"`
}

func (GetBlockBodyByHashRequest) ExpectedResponse() any { return &BlockBodyResponse{} }

type GetReceiptsRequest struct {
	BlockHash chain.Hash `json:"block_hash"`
}

func (GetReceiptsRequest) ExpectedResponse() any { return &ReceiptsResponse{} }

type GetAccountRequest struct {
	BlockHash chain.Hash    `json:"block_hash"`
	Address   chain.Address `json:"address"`
}

func (GetAccountRequest) ExpectedResponse() any { return &AccountResponse{} }

type GetContractCodeRequest struct {
	BlockHash chain.Hash    `json:"block_hash"`
	Address   chain.Address `json:"address"`
}

func (GetContractCodeRequest) ExpectedResponse() any { return &ContractCodeResponse{} }

// Catalog lists one zero value of every request type. Adapters and tests use
// it to enumerate the full contract.
func Catalog() []Request {
	return []Request{
		GetBlockHeaderByHashRequest{},
		GetBlockBodyByHashRequest{},
		GetReceiptsRequest{},
		GetAccountRequest{},
		GetContractCodeRequest{},
	}
}

// ToProvider is the well-known broadcast target all query kinds share. Both
// sides of a deployment must be configured with the same subject.
var ToProvider = bus.BroadcastConfig{Subject: "chain.provider"}
