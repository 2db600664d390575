package memory

import (
	"context"
	"log/slog"

	"github.com/next-trace/scg-chain-relay/adapters/inmemory"
	"github.com/next-trace/scg-chain-relay/bridge"
	"github.com/next-trace/scg-chain-relay/contract/chain"
	"github.com/next-trace/scg-chain-relay/service"
)

// New wires a complete in-process relay over the in-memory endpoint: it
// starts one relay task per query kind against provider and returns a facade
// implementing chain.LightChain along with a cleanup that stops everything.
func New(provider chain.LightChain, logger *slog.Logger) (chain.LightChain, func()) { //nolint:ireturn
	ep, closeEndpoint := inmemory.New()

	relay := bridge.NewRelay(provider, ep, logger)
	group := service.NewGroup("chain-relay", logger, relay.Tasks()...)
	group.Start(context.Background())

	cleanup := func() {
		group.Stop()
		closeEndpoint()
	}

	return bridge.NewChain(ep), cleanup
}
