// Package chain defines the chain-data value types relayed across the bus
// and the LightChain query interface both sides of the relay share.
//
// All payload formats are opaque to the relay itself; the types here exist
// so adapters can serialize them and callers can consume them.
package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
)

// HashSize is the byte length of a block or transaction hash.
const HashSize = 32

// AddressSize is the byte length of an account address.
const AddressSize = 20

// Hash is a fixed-size chain hash. It encodes as lowercase hex in JSON.
type Hash [HashSize]byte

// HexToHash parses a hex string (with or without 0x prefix) into a Hash.
func HexToHash(s string) (Hash, error) {
	var h Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return Hash{}, err
	}

	return h, nil
}

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// MarshalText implements encoding.TextMarshaler, which encoding/json uses.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	return unmarshalHex(h[:], text, "hash")
}

// Address is a fixed-size account address. It encodes as lowercase hex in JSON.
type Address [AddressSize]byte

// HexToAddress parses a hex string (with or without 0x prefix) into an Address.
func HexToAddress(s string) (Address, error) {
	var a Address
	if err := a.UnmarshalText([]byte(s)); err != nil {
		return Address{}, err
	}

	return a, nil
}

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	return unmarshalHex(a[:], text, "address")
}

func unmarshalHex(dst []byte, text []byte, label string) error {
	s := string(text)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode %s %q: %w", label, string(text), err)
	}

	if len(raw) != len(dst) {
		return fmt.Errorf("decode %s: want %d bytes, got %d", label, len(dst), len(raw))
	}

	copy(dst, raw)

	return nil
}

// Header is a block header.
type Header struct {
	ParentHash Hash   `json:"parent_hash"`
	StateRoot  Hash   `json:"state_root"`
	Number     uint64 `json:"number"`
	Time       uint64 `json:"time"`
	Extra      []byte `json:"extra,omitempty"`
}

// BlockBody holds the transactions of one block, each as opaque encoded bytes.
type BlockBody struct {
	Transactions [][]byte `json:"transactions"`
	Uncles       []Hash   `json:"uncles,omitempty"`
}

// Receipt is the execution receipt of one transaction.
type Receipt struct {
	TxHash  Hash   `json:"tx_hash"`
	Status  uint64 `json:"status"`
	GasUsed uint64 `json:"gas_used"`
}

// Account is the state record of one account at a given block.
type Account struct {
	Nonce       uint64   `json:"nonce"`
	Balance     *big.Int `json:"balance"`
	StorageRoot Hash     `json:"storage_root"`
	CodeHash    Hash     `json:"code_hash"`
}

// LightChain is the logical chain-data query interface. The real provider
// implements it against the network; the bridge facade implements it over the
// event bus so callers cannot tell the difference.
//
// Every operation may suspend on I/O and must honor ctx cancellation.
// Implementations must be safe for concurrent use by multiple goroutines.
type LightChain interface {
	// BlockHeaderByHash returns the header of the block with the given hash.
	BlockHeaderByHash(ctx context.Context, blockHash Hash) (*Header, error)

	// BlockBodyByHash returns the body of the block with the given hash.
	BlockBodyByHash(ctx context.Context, blockHash Hash) (*BlockBody, error)

	// Receipts returns the receipts of the block with the given hash, in
	// transaction order.
	Receipts(ctx context.Context, blockHash Hash) ([]Receipt, error)

	// Account returns the account record for address at the given block.
	Account(ctx context.Context, blockHash Hash, address Address) (*Account, error)

	// ContractCode returns the contract code for address at the given block.
	ContractCode(ctx context.Context, blockHash Hash, address Address) ([]byte, error)
}
