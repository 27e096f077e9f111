package futures

import (
	"math/rand/v2"
	"time"

	"gridsim/internal/fees"
	"gridsim/internal/market"
)

// Settlement holds the retroactively-opened market used to true up the
// difference between a device's forecast and realized energy for a past
// slot. Its per-slot books are ordinary market.Market instances that accept
// any offer or bid, and they apply the Settlement's own GridFees,
// independent of the spot market's.
type Settlement struct {
	GridFees []fees.Calculator
	rng      *rand.Rand
	slots    map[time.Time]*market.Market
}

// NewSettlement constructs an empty settlement market.
func NewSettlement(gridFees []fees.Calculator, rng *rand.Rand) *Settlement {
	return &Settlement{GridFees: gridFees, rng: rng, slots: make(map[time.Time]*market.Market)}
}

// Open creates (or returns the existing) settlement sub-market for a past
// slot. The slot must already have elapsed in the spot market; Settlement
// does not itself enforce that — the scheduler does, since only it knows
// which slots are past.
func (s *Settlement) Open(slot time.Time) *market.Market {
	mkt, ok := s.slots[slot]
	if !ok {
		mkt = market.New(slot, "settlement", s.GridFees, s.rng)
		s.slots[slot] = mkt
	}
	return mkt
}

// Close marks a settlement slot's market readonly and removes it from the
// open set, keeping memory bounded to the slots actively being trued up.
func (s *Settlement) Close(slot time.Time) {
	if mkt, ok := s.slots[slot]; ok {
		mkt.Close()
		delete(s.slots, slot)
	}
}
