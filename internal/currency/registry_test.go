package currency

import (
	"math/big"
	"testing"
)

func TestRegistryLookups(t *testing.T) {
	reg := NewRegistry()

	d, ok := reg.BySymbol("cKES")
	if !ok {
		t.Fatalf("expected cKES descriptor")
	}
	if !d.Active || d.Country != "Kenya" {
		t.Fatalf("unexpected descriptor: %+v", d)
	}

	if reg.IsActive("cNGN") {
		t.Fatalf("cNGN must not be active")
	}

	active := reg.Active()
	if len(active) != 7 {
		t.Fatalf("expected 7 active currencies, got %d", len(active))
	}

	found, ok := reg.ByAddress(d.TokenAddress())
	if !ok || found.Symbol != "cKES" {
		t.Fatalf("address lookup failed: %+v", found)
	}
}

func TestMatchCurrencyPriority(t *testing.T) {
	reg := NewRegistry()

	cases := []struct {
		text   string
		symbol string
	}{
		{"send 100 ceur to kenya", "cEUR"},
		{"convert 20 euro", "cEUR"},
		{"send 5 shilling home", "cKES"},
		{"move 12 creal now", "cREAL"},
	}
	for _, tc := range cases {
		symbol, ok := reg.MatchCurrency(tc.text)
		if !ok || symbol != tc.symbol {
			t.Fatalf("text %q: expected %s, got %s (%v)", tc.text, tc.symbol, symbol, ok)
		}
	}

	if _, ok := reg.MatchCurrency("send fifty to kenya"); ok {
		t.Fatalf("expected no currency match")
	}
}

func TestMatchCountry(t *testing.T) {
	reg := NewRegistry()

	symbol, ok := reg.MatchCountry("send $50 to kenya")
	if !ok || symbol != "cKES" {
		t.Fatalf("expected cKES, got %s (%v)", symbol, ok)
	}

	symbol, ok = reg.MatchCountry("wire money to my mom in philippines")
	if !ok || symbol != "PUSO" {
		t.Fatalf("expected PUSO, got %s (%v)", symbol, ok)
	}
}

func TestAlternateFor(t *testing.T) {
	reg := NewRegistry()
	if reg.AlternateFor("cUSD") != "cEUR" {
		t.Fatalf("alternate for cUSD must be cEUR")
	}
	if reg.AlternateFor("cKES") != "cUSD" {
		t.Fatalf("alternate for non-base must be cUSD")
	}
}

func TestToUnits(t *testing.T) {
	units, err := ToUnits(50, 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected, _ := new(big.Int).SetString("50000000000000000000", 10)
	if units.Cmp(expected) != 0 {
		t.Fatalf("expected %s, got %s", expected, units)
	}

	units, err = ToUnits(0.5, 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected, _ = new(big.Int).SetString("500000000000000000", 10)
	if units.Cmp(expected) != 0 {
		t.Fatalf("expected %s, got %s", expected, units)
	}

	if _, err := ToUnits(-1, 18); err == nil {
		t.Fatalf("expected error for negative amount")
	}

	if got := FromUnits(expected, 18); got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}
