package matching

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/internal/market"
)

func newTestMarket() *market.Market {
	m := market.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "test", nil, rand.New(rand.NewPCG(1, 2)))
	m.SetTick(10) // advance past MinOrderAge for any order posted at tick 0
	return m
}

func postOffer(t *testing.T, m *market.Market, price, energy float64, seller string) {
	t.Helper()
	m.SetTick(0)
	if _, err := m.PostOffer(decimal.NewFromFloat(price), decimal.NewFromFloat(energy), seller, "", nil, nil); err != nil {
		t.Fatalf("PostOffer: %v", err)
	}
}

func postBid(t *testing.T, m *market.Market, price, energy float64, buyer string) {
	t.Helper()
	m.SetTick(0)
	if _, err := m.PostBid(decimal.NewFromFloat(price), decimal.NewFromFloat(energy), buyer, "", nil, nil); err != nil {
		t.Fatalf("PostBid: %v", err)
	}
}

func TestOneSidedAcceptDemand(t *testing.T) {
	t.Parallel()
	m := newTestMarket()
	postOffer(t, m, 20, 2, "seller-1")
	m.SetTick(10)

	trades, err := (OneSided{}).AcceptDemand(m, "buyer-1", decimal.NewFromFloat(2))
	if err != nil {
		t.Fatalf("AcceptDemand: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if !trades[0].TradeRate.Equal(decimal.NewFromFloat(10)) {
		t.Errorf("TradeRate = %v, want 10", trades[0].TradeRate)
	}
}

func TestOneSidedClear(t *testing.T) {
	t.Parallel()
	m := newTestMarket()
	postOffer(t, m, 20, 2, "seller-1") // rate 10
	postBid(t, m, 12, 2, "buyer-1")
	m.SetTick(10)

	trades, err := (OneSided{}).Clear(m)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if !trades[0].TradeRate.Equal(decimal.NewFromFloat(10)) {
		t.Errorf("TradeRate = %v, want 10 (the offer's own rate)", trades[0].TradeRate)
	}
	if len(m.Bids()) != 0 {
		t.Error("the filled bid should have been removed from the book")
	}
}

func TestNewResolvesConfiguredAlgorithm(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"one_sided", "pay_as_bid", "pay_as_clear"} {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
	if _, err := New("bogus"); err == nil {
		t.Error("expected an error for an unknown clearing algorithm")
	}
}

func TestPayAsBidClearing(t *testing.T) {
	t.Parallel()
	m := newTestMarket()
	postOffer(t, m, 10, 2, "seller-1") // rate 5
	postBid(t, m, 24, 2, "buyer-1")    // rate 12
	m.SetTick(10)

	trades, err := (PayAsBid{}).Clear(m)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if !trades[0].TradeRate.Equal(decimal.NewFromFloat(12)) {
		t.Errorf("TradeRate = %v, want 12 (bid rate)", trades[0].TradeRate)
	}
}

// Scenario 3: pay-as-clear with 3 offers {1,2,3 kWh at 5,10,15} and 3 bids
// {1,2,3 kWh at 20,12,8}: p* = 10, clearing 3 kWh of offers against 3 kWh
// of bids, all at rate 10.
func TestPayAsClearScenario(t *testing.T) {
	t.Parallel()
	m := newTestMarket()
	postOffer(t, m, 5, 1, "seller-1")
	postOffer(t, m, 20, 2, "seller-2")  // rate 10
	postOffer(t, m, 45, 3, "seller-3")  // rate 15
	postBid(t, m, 20, 1, "buyer-1")     // rate 20
	postBid(t, m, 24, 2, "buyer-2")     // rate 12
	postBid(t, m, 24, 3, "buyer-3")     // rate 8
	m.SetTick(10)

	trades, err := (PayAsClear{}).Clear(m)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(trades) == 0 {
		t.Fatal("expected at least one trade")
	}
	totalEnergy := decimal.Zero
	for _, tr := range trades {
		if !tr.TradeRate.Equal(decimal.NewFromFloat(10)) {
			t.Errorf("trade rate = %v, want 10", tr.TradeRate)
		}
		totalEnergy = totalEnergy.Add(tr.Energy)
	}
	if !totalEnergy.Equal(decimal.NewFromFloat(3)) {
		t.Errorf("total cleared energy = %v, want 3", totalEnergy)
	}
}
