package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/next-trace/scg-chain-relay/contract/bus"
	"github.com/next-trace/scg-chain-relay/contract/chain"
	"github.com/next-trace/scg-chain-relay/service"
)

// Relay answers chain-data requests from the bus. It subscribes to every
// request type in the catalog, delegates each request to the real provider,
// and broadcasts the response back to the request's origin. Provider failures
// become response data; they never terminate a loop.
type Relay struct {
	chain chain.LightChain
	bus   bus.Endpoint
	log   *slog.Logger
}

// NewRelay builds a relay over the given provider and endpoint.
// A nil logger falls back to slog.Default().
func NewRelay(provider chain.LightChain, ep bus.Endpoint, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{chain: provider, bus: ep, log: logger}
}

// Tasks returns one long-running task per query kind. Each runs its own
// consume-dispatch-respond loop, so a stalled provider call for one kind
// never delays any other kind. Register them with a service.Group to start
// and stop the relay as a unit.
func (r *Relay) Tasks() []service.Task {
	return []service.Task{
		{Name: "get-block-header-by-hash", Run: r.handleBlockHeaderRequests},
		{Name: "get-block-body-by-hash", Run: r.handleBlockBodyRequests},
		{Name: "get-receipts", Run: r.handleReceiptsRequests},
		{Name: "get-account", Run: r.handleAccountRequests},
		{Name: "get-contract-code", Run: r.handleContractCodeRequests},
	}
}

func (r *Relay) handleBlockHeaderRequests(ctx context.Context) error {
	return serve(ctx, r, func(ctx context.Context, req GetBlockHeaderByHashRequest) BlockHeaderResponse {
		header, err := r.chain.BlockHeaderByHash(ctx, req.BlockHash)
		return BlockHeaderResponse{Header: header, Error: Remote(err)}
	})
}

func (r *Relay) handleBlockBodyRequests(ctx context.Context) error {
	return serve(ctx, r, func(ctx context.Context, req GetBlockBodyByHashRequest) BlockBodyResponse {
		body, err := r.chain.BlockBodyByHash(ctx, req.BlockHash)
		return BlockBodyResponse{Body: body, Error: Remote(err)}
	})
}

func (r *Relay) handleReceiptsRequests(ctx context.Context) error {
	return serve(ctx, r, func(ctx context.Context, req GetReceiptsRequest) ReceiptsResponse {
		receipts, err := r.chain.Receipts(ctx, req.BlockHash)
		return ReceiptsResponse{Receipts: receipts, Error: Remote(err)}
	})
}

func (r *Relay) handleAccountRequests(ctx context.Context) error {
	return serve(ctx, r, func(ctx context.Context, req GetAccountRequest) AccountResponse {
		account, err := r.chain.Account(ctx, req.BlockHash, req.Address)
		return AccountResponse{Account: account, Error: Remote(err)}
	})
}

func (r *Relay) handleContractCodeRequests(ctx context.Context) error {
	return serve(ctx, r, func(ctx context.Context, req GetContractCodeRequest) ContractCodeResponse {
		code, err := r.chain.ContractCode(ctx, req.BlockHash, req.Address)
		return ContractCodeResponse{Code: code, Error: Remote(err)}
	})
}

// serve runs one query kind's loop: consume the request stream, let handle
// capture the provider result (success or failure) as a response value, and
// broadcast it to the request's origin. It returns only on cancellation or
// when the stream closes.
func serve[Req Request, Resp Response](
	ctx context.Context,
	r *Relay,
	handle func(context.Context, Req) Resp,
) error {
	var sample Req

	stream, err := r.bus.Stream(ctx, sample)
	if err != nil {
		return fmt.Errorf("stream %T: %w", sample, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-stream:
			if !ok {
				return nil
			}

			req, ok := env.Request.(Req)
			if !ok {
				r.log.Warn("dropping request of unexpected type",
					"want", fmt.Sprintf("%T", sample), "got", fmt.Sprintf("%T", env.Request))

				continue
			}

			resp := handle(ctx, req)

			if err := r.bus.Broadcast(ctx, resp, env.ReplyTo); err != nil {
				// The requester's own timeout covers the lost answer.
				r.log.Warn("respond failed",
					"request", fmt.Sprintf("%T", req), "err", err)
			}
		}
	}
}
