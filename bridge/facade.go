package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/next-trace/scg-chain-relay/contract/bus"
	"github.com/next-trace/scg-chain-relay/contract/chain"
	berr "github.com/next-trace/scg-chain-relay/contract/errors"
)

// Chain is the consumer-side facade: it implements chain.LightChain over the
// event bus, so callers use it exactly as they would use the real provider.
// A provider failure captured on the other side is re-raised here at the call
// site that issued the query; transport failures surface as coded errors.
type Chain struct {
	bus    bus.Endpoint
	target bus.BroadcastConfig
}

// Compile-time interface check.
var _ chain.LightChain = (*Chain)(nil)

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithTarget overrides the well-known provider-side target.
func WithTarget(target bus.BroadcastConfig) ChainOption {
	return func(c *Chain) { c.target = target }
}

// NewChain builds a facade over the given endpoint, targeting ToProvider
// unless overridden.
func NewChain(ep bus.Endpoint, opts ...ChainOption) *Chain {
	c := &Chain{bus: ep, target: ToProvider}
	for _, o := range opts {
		o(c)
	}

	return c
}

func (c *Chain) BlockHeaderByHash(ctx context.Context, blockHash chain.Hash) (*chain.Header, error) {
	resp, err := ask[GetBlockHeaderByHashRequest, BlockHeaderResponse](
		ctx, c, GetBlockHeaderByHashRequest{BlockHash: blockHash})
	if err != nil {
		return nil, err
	}

	return resp.Header, nil
}

func (c *Chain) BlockBodyByHash(ctx context.Context, blockHash chain.Hash) (*chain.BlockBody, error) {
	resp, err := ask[GetBlockBodyByHashRequest, BlockBodyResponse](
		ctx, c, GetBlockBodyByHashRequest{BlockHash: blockHash})
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

func (c *Chain) Receipts(ctx context.Context, blockHash chain.Hash) ([]chain.Receipt, error) {
	resp, err := ask[GetReceiptsRequest, ReceiptsResponse](
		ctx, c, GetReceiptsRequest{BlockHash: blockHash})
	if err != nil {
		return nil, err
	}

	return resp.Receipts, nil
}

func (c *Chain) Account(ctx context.Context, blockHash chain.Hash, address chain.Address) (*chain.Account, error) {
	resp, err := ask[GetAccountRequest, AccountResponse](
		ctx, c, GetAccountRequest{BlockHash: blockHash, Address: address})
	if err != nil {
		return nil, err
	}

	return resp.Account, nil
}

func (c *Chain) ContractCode(ctx context.Context, blockHash chain.Hash, address chain.Address) ([]byte, error) {
	resp, err := ask[GetContractCodeRequest, ContractCodeResponse](
		ctx, c, GetContractCodeRequest{BlockHash: blockHash, Address: address})
	if err != nil {
		return nil, err
	}

	return resp.Code, nil
}

// ask performs one request/response round trip. The type arguments pin the
// static request/response binding at the call site; a correlated value of any
// other type is an internal-consistency failure.
func ask[Req Request, Resp Response](ctx context.Context, c *Chain, req Req) (Resp, error) {
	var zero Resp

	raw, err := c.bus.Request(ctx, req, c.target)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("request %T: %w", req, errors.Join(berr.ErrNoAnswer, err))
		}

		return zero, fmt.Errorf("request %T: %w", req, err)
	}

	resp, ok := raw.(Resp)
	if !ok {
		return zero, fmt.Errorf("request %T: correlated %T: %w", req, raw, berr.ErrUnexpectedResponse)
	}

	if rerr := resp.Err(); rerr != nil {
		// Re-raise the provider failure exactly as a direct call would.
		return zero, rerr
	}

	return resp, nil
}
