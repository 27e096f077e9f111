package futures

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/internal/market"
)

func newTestFutureMarket() *Market {
	return New(HorizonDay, nil, rand.New(rand.NewPCG(1, 1)))
}

// Scenario 6: future-market rotation. A day-forward market created at
// 2022-06-13 00:00 holds 168 hourly slots; after a 24h rotation, the first
// 24 slots are gone and the horizon is extended by 24 hours, preserving
// the 168-slot count invariant.
func TestRotateExtendsAndTrims(t *testing.T) {
	t.Parallel()
	m := newTestFutureMarket()
	start := time.Date(2022, 6, 13, 0, 0, 0, 0, time.UTC)

	m.Rotate(start)
	if len(m.Slots()) != 168 {
		t.Fatalf("after initial rotate: len(Slots()) = %d, want 168", len(m.Slots()))
	}

	nextDay := start.AddDate(0, 0, 1)
	m.Rotate(nextDay)
	if len(m.Slots()) != 168 {
		t.Fatalf("after 24h rotate: len(Slots()) = %d, want 168", len(m.Slots()))
	}
	if _, ok := m.slots[start]; ok {
		t.Error("original first slot should have been dropped")
	}
}

// Law: idempotent rotation. Calling rotate twice at the same instant
// leaves state identical.
func TestRotateIdempotent(t *testing.T) {
	t.Parallel()
	m := newTestFutureMarket()
	start := time.Date(2022, 6, 13, 0, 0, 0, 0, time.UTC)

	m.Rotate(start)
	before := len(m.Slots())
	m.Rotate(start)
	after := len(m.Slots())
	if before != after {
		t.Errorf("rotate not idempotent: before=%d after=%d", before, after)
	}
}

// Open-question fix: DeleteOffer must remove from the offer-slot mapping,
// not the bid-slot mapping.
func TestDeleteOfferRemovesFromOfferMapping(t *testing.T) {
	t.Parallel()
	m := newTestFutureMarket()
	slot := time.Date(2022, 6, 13, 1, 0, 0, 0, time.UTC)
	m.Rotate(slot)

	offer, err := m.Offer(slot, decimal.NewFromFloat(10), decimal.NewFromFloat(1), "seller-1", "", nil, nil)
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	bid, err := m.Bid(slot, decimal.NewFromFloat(10), decimal.NewFromFloat(1), "buyer-1", "", nil, nil)
	if err != nil {
		t.Fatalf("Bid: %v", err)
	}

	if err := m.DeleteOffer(slot, offer.ID); err != nil {
		t.Fatalf("DeleteOffer: %v", err)
	}

	for _, id := range m.slotOfferMapping[slot] {
		if id == offer.ID {
			t.Error("offer id still present in slotOfferMapping after delete")
		}
	}
	found := false
	for _, id := range m.slotBidMapping[slot] {
		if id == bid.ID {
			found = true
		}
	}
	if !found {
		t.Error("unrelated bid id was removed from slotBidMapping")
	}
}

// Open-question fix: AcceptOffer must return the Trade instance.
func TestAcceptOfferReturnsTradeInstance(t *testing.T) {
	t.Parallel()
	m := newTestFutureMarket()
	slot := time.Date(2022, 6, 13, 1, 0, 0, 0, time.UTC)
	m.Rotate(slot)

	offer, err := m.Offer(slot, decimal.NewFromFloat(10), decimal.NewFromFloat(1), "seller-1", "", nil, nil)
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}

	trade, err := m.AcceptOffer(slot, offer.ID, market.AcceptOfferParams{Buyer: "buyer-1"})
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if trade.Energy.IsZero() {
		t.Error("AcceptOffer returned a zero-value trade instead of the real trade")
	}
	if trade.Offer.ID != offer.ID {
		t.Errorf("trade.Offer.ID = %q, want %q", trade.Offer.ID, offer.ID)
	}
}
