package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMakeDID(t *testing.T) {
	if got := MakeDID("tron", "Tabc"); got != "did:tron:Tabc" {
		t.Fatalf("got %q", got)
	}
}

func TestDIDAddress(t *testing.T) {
	cases := map[string]string{
		"did:tron:Tabc": "Tabc",
		"Tabc":          "Tabc",
		"did:ethereum:0xdeadbeef": "0xdeadbeef",
	}
	for in, want := range cases {
		if got := DIDAddress(in); got != want {
			t.Fatalf("DIDAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDealStatusRank(t *testing.T) {
	order := []DealStatus{
		DealStatusWaitDeposit,
		DealStatusProcessing,
		DealStatusAppeal,
		DealStatusSuccess,
	}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("%s must rank above %s", order[i], order[i-1])
		}
	}
	if !DealStatusResolvedSender.IsTerminal() || !DealStatusResolvedReceiver.IsTerminal() || !DealStatusSuccess.IsTerminal() {
		t.Fatal("terminal statuses misreported")
	}
	if DealStatusProcessing.IsTerminal() {
		t.Fatal("processing is not terminal")
	}
}

func TestCommissionersSum(t *testing.T) {
	cs := Commissioners{
		{Address: "Ta", Amount: decimal.RequireFromString("1.5")},
		{Address: "Tb", Amount: decimal.RequireFromString("2.25")},
	}
	if !cs.Sum().Equal(decimal.RequireFromString("3.75")) {
		t.Fatalf("sum = %s", cs.Sum())
	}
	var empty Commissioners
	if !empty.Sum().IsZero() {
		t.Fatalf("empty sum = %s", empty.Sum())
	}
}
