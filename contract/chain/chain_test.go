package chain_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/next-trace/scg-chain-relay/contract/chain"
)

func TestHexToHash(t *testing.T) {
	want := chain.Hash{0xaa, 0xbb}

	h, err := chain.HexToHash("0xaabb" + "00000000000000000000000000000000000000000000000000000000" + "0000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if h != want {
		t.Fatalf("got %s", h)
	}

	if _, err := chain.HexToHash("0x1234"); err == nil {
		t.Fatal("expected length error")
	}

	if _, err := chain.HexToHash("zz"); err == nil {
		t.Fatal("expected hex error")
	}
}

func TestHashJSON(t *testing.T) {
	h := chain.Hash{0x01, 0x02}

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got chain.Hash
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got != h {
		t.Fatalf("round-trip mismatch: %s != %s", got, h)
	}
}

func TestAddressJSON(t *testing.T) {
	a := chain.Address{0xde, 0xad}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got chain.Address
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got != a {
		t.Fatalf("round-trip mismatch: %s != %s", got, a)
	}
}

func TestAccountJSON(t *testing.T) {
	acct := chain.Account{
		Nonce:    9,
		Balance:  big.NewInt(123456789),
		CodeHash: chain.Hash{0x0c},
	}

	data, err := json.Marshal(acct)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got chain.Account
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Nonce != acct.Nonce || got.Balance.Cmp(acct.Balance) != 0 || got.CodeHash != acct.CodeHash {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}
