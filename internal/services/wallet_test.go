package services

import (
	"strings"
	"testing"

	bip39 "github.com/tyler-smith/go-bip39"

	"didex/internal/ledger"
)

func TestDeriveDIDDeterministic(t *testing.T) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		t.Fatalf("entropy: %v", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		t.Fatalf("mnemonic: %v", err)
	}

	did1, err := DeriveDID(mnemonic)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	did2, err := DeriveDID(mnemonic)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if did1 != did2 {
		t.Fatalf("expected deterministic DID, got %s and %s", did1, did2)
	}
	if !strings.HasPrefix(did1, "did:tron:T") {
		t.Fatalf("unexpected DID format: %s", did1)
	}
	addr := strings.TrimPrefix(did1, "did:tron:")
	if !ledger.ValidTronAddress(addr) {
		t.Fatalf("derived address is invalid: %s", addr)
	}
}

func TestDeriveDIDInvalidMnemonic(t *testing.T) {
	if _, err := DeriveDID("not a mnemonic"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeriveDIDDistinct(t *testing.T) {
	m1, _ := bip39.NewMnemonic(mustEntropy(t))
	m2, _ := bip39.NewMnemonic(mustEntropy(t))
	if m1 == m2 {
		t.Skip("entropy collision")
	}
	did1, err := DeriveDID(m1)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	did2, err := DeriveDID(m2)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if did1 == did2 {
		t.Fatalf("different mnemonics produced the same DID %s", did1)
	}
}

func mustEntropy(t *testing.T) []byte {
	t.Helper()
	b, err := bip39.NewEntropy(128)
	if err != nil {
		t.Fatalf("entropy: %v", err)
	}
	return b
}
