package memory_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/next-trace/scg-chain-relay/contract/chain"
	"github.com/next-trace/scg-chain-relay/memory"
)

type fixedChain struct {
	header *chain.Header
}

func (f *fixedChain) BlockHeaderByHash(context.Context, chain.Hash) (*chain.Header, error) {
	return f.header, nil
}

func (f *fixedChain) BlockBodyByHash(context.Context, chain.Hash) (*chain.BlockBody, error) {
	return nil, errors.New("no body")
}

func (f *fixedChain) Receipts(context.Context, chain.Hash) ([]chain.Receipt, error) {
	return nil, errors.New("no receipts")
}

func (f *fixedChain) Account(context.Context, chain.Hash, chain.Address) (*chain.Account, error) {
	return nil, errors.New("no account")
}

func (f *fixedChain) ContractCode(context.Context, chain.Hash, chain.Address) ([]byte, error) {
	return nil, errors.New("no code")
}

func TestNewWiresFacadeToProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	provider := &fixedChain{header: &chain.Header{Number: 11}}

	light, cleanup := memory.New(provider, logger)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	header, err := light.BlockHeaderByHash(ctx, chain.Hash{0x01})
	if err != nil {
		t.Fatalf("header: %v", err)
	}

	if header.Number != 11 {
		t.Fatalf("header mismatch: %+v", header)
	}

	if _, err := light.Receipts(ctx, chain.Hash{0x01}); err == nil || err.Error() != "no receipts" {
		t.Fatalf("want provider failure, got %v", err)
	}
}

func TestCleanupStopsRelay(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	light, cleanup := memory.New(&fixedChain{header: &chain.Header{}}, logger)
	cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := light.BlockHeaderByHash(ctx, chain.Hash{0x01}); err == nil {
		t.Fatal("call after cleanup must fail")
	}
}
