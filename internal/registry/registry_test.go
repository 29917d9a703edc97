package registry

import (
	"testing"

	"github.com/jabez4jc/openalgo-gsheets/internal/market"
)

func TestAddListingBuildsBindings(t *testing.T) {
	table := New()
	added := table.AddListing("Watch", [][]string{
		{"Exchange", "Symbol", "LTP"},
		{"NSE", "RELIANCE"},
		{" NSE ", " TCS "}, // whitespace trimmed
		{"", "INFY"},       // missing exchange, skipped
		{"NSE", ""},        // missing symbol, skipped
		{"NSE"},            // short row, skipped
		{"BSE", "SENSEX"},
	}, "")

	if added != 3 {
		t.Fatalf("added = %d, want 3", added)
	}
	b, ok := table.Resolve(market.NewKey("NSE", "TCS"))
	if !ok {
		t.Fatal("TCS binding missing")
	}
	if b.Row != 3 || b.Sheet != "Watch" {
		t.Errorf("TCS binding = %+v, want Watch row 3", b)
	}
	if b, _ := table.Resolve(market.NewKey("BSE", "SENSEX")); b.Row != 7 {
		t.Errorf("SENSEX row = %d, want 7 (row numbering keeps skipped rows)", b.Row)
	}
	if _, ok := table.Resolve(market.NewKey("NSE", "INFY")); ok {
		t.Error("invalid row must not bind")
	}
}

func TestAddListingExchangeFilter(t *testing.T) {
	table := New()
	added := table.AddListing("Equity", [][]string{
		{"Exchange", "Symbol"},
		{"NSE", "RELIANCE"},
		{"MCX", "GOLD"},
	}, "NSE")

	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if _, ok := table.Resolve(market.NewKey("MCX", "GOLD")); ok {
		t.Error("exchange mismatch must be skipped")
	}
}

func TestAddListingDuplicateLastWins(t *testing.T) {
	table := New()
	table.AddListing("A", [][]string{
		{"Exchange", "Symbol"},
		{"NSE", "RELIANCE"},
	}, "")
	table.AddListing("B", [][]string{
		{"Exchange", "Symbol"},
		{"NSE", "RELIANCE"},
	}, "")

	if table.Len() != 1 {
		t.Fatalf("len = %d, want 1", table.Len())
	}
	b, _ := table.Resolve(market.NewKey("NSE", "RELIANCE"))
	if b.Sheet != "B" {
		t.Errorf("binding sheet = %s, want B (last wins)", b.Sheet)
	}
}

func TestResolveIsStable(t *testing.T) {
	table := New()
	table.AddListing("Watch", [][]string{
		{"Exchange", "Symbol"},
		{"NSE", "RELIANCE"},
	}, "")

	first, _ := table.Resolve(market.NewKey("NSE", "RELIANCE"))
	for i := 0; i < 10; i++ {
		again, ok := table.Resolve(market.NewKey("NSE", "RELIANCE"))
		if !ok || again != first {
			t.Fatalf("resolution changed: %+v vs %+v", again, first)
		}
	}
}
