// Package futures implements the future and settlement markets: per-slot
// sub-books keyed by a time slot, rotated on every spot market cycle, plus
// a retroactive settlement market for forecast/realized true-up.
//
// Grounded directly on the source FutureMarket, with two deliberate
// deviations from its behavior — see DESIGN.md's Open Question
// resolutions:
//   - DeleteOffer removes from the offer-slot map (the source removes from
//     the bid-slot map, which reads as a bug).
//   - AcceptBid/AcceptOffer return the constructed Trade (the source
//     returns the Trade type itself, which also reads as a bug).
package futures

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/internal/fees"
	"gridsim/internal/market"
	"gridsim/pkg/orders"
)

// Horizon identifies one of the four future-market look-ahead windows.
type Horizon string

const (
	HorizonDay   Horizon = "day"   // next 7×24 hourly slots
	HorizonWeek  Horizon = "week"  // next 52 weekly slots, 7 days apart from the first future slot (not moved to a Monday)
	HorizonMonth Horizon = "month" // next 24 monthly slots, one month apart from the first future slot (not moved to day 1)
	HorizonYear  Horizon = "year"  // next 5 yearly slots, one year apart from the first future slot (not moved to Jan 1)
)

// slotCounts maps each horizon to the number of forward slots it keeps and
// the step between slots.
var slotCounts = map[Horizon]struct {
	count int
	step  func(time.Time) time.Time
}{
	HorizonDay:   {168, func(t time.Time) time.Time { return t.Add(time.Hour) }},
	HorizonWeek:  {52, func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }},
	HorizonMonth: {24, func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
	HorizonYear:  {5, func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
}

// Market holds one future-horizon's per-slot sub-books. Each slot's Offers,
// Bids, and Trades are backed by an independent market.Market so that all
// the ordinary order-book invariants (readonly, no-shared-ids, accounting)
// apply per slot exactly as they do for the spot market.
type Market struct {
	Horizon  Horizon
	GridFees []fees.Calculator
	rng      *rand.Rand

	slots map[time.Time]*market.Market

	// slotOfferMapping/slotBidMapping mirror the source's
	// slot_offer_mapping/slot_bid_mapping: per-slot order id lists, kept
	// alongside the per-slot market.Market's own book for O(1) "all
	// offers for this slot" queries without scanning every slot.
	slotOfferMapping map[time.Time][]string
	slotBidMapping   map[time.Time][]string
	slotTradeIDs     map[time.Time][]string
}

// New constructs an empty future market for the given horizon.
func New(horizon Horizon, gridFees []fees.Calculator, rng *rand.Rand) *Market {
	return &Market{
		Horizon:          horizon,
		GridFees:         gridFees,
		rng:              rng,
		slots:            make(map[time.Time]*market.Market),
		slotOfferMapping: make(map[time.Time][]string),
		slotBidMapping:   make(map[time.Time][]string),
		slotTradeIDs:     make(map[time.Time][]string),
	}
}

// Slots returns the time slots currently held open.
func (m *Market) Slots() []time.Time {
	out := make([]time.Time, 0, len(m.slots))
	for t := range m.slots {
		out = append(out, t)
	}
	return out
}

// slotMarket returns the per-slot order book market, creating it if this is the
// first reference (used when constructing a brand-new forward slot).
func (m *Market) slotMarket(slot time.Time) *market.Market {
	mkt, ok := m.slots[slot]
	if !ok {
		mkt = market.New(slot, fmt.Sprintf("future-%s-%s", m.Horizon, slot.Format(time.RFC3339)), m.GridFees, m.rng)
		m.slots[slot] = mkt
	}
	return mkt
}

// Rotate creates any missing forward slots up to the horizon starting at
// firstFutureSlot, then deletes any slot strictly before it. Calling
// Rotate twice with the same firstFutureSlot is idempotent: the second
// call finds every slot already present and nothing to delete.
func (m *Market) Rotate(firstFutureSlot time.Time) {
	m.createSlots(firstFutureSlot)
	m.deleteOldSlots(firstFutureSlot)
}

func (m *Market) createSlots(firstFutureSlot time.Time) {
	cfg := slotCounts[m.Horizon]
	slot := firstFutureSlot
	for i := 0; i < cfg.count; i++ {
		if _, ok := m.slots[slot]; !ok {
			m.slotMarket(slot)
		}
		slot = cfg.step(slot)
	}
}

func (m *Market) deleteOldSlots(firstFutureSlot time.Time) {
	for slot := range m.slots {
		if slot.Before(firstFutureSlot) {
			delete(m.slots, slot)
			delete(m.slotOfferMapping, slot)
			delete(m.slotBidMapping, slot)
			delete(m.slotTradeIDs, slot)
		}
	}
}

// Offer posts a new offer into the sub-book for the given slot.
func (m *Market) Offer(slot time.Time, price, energy decimal.Decimal, seller, sellerOrigin string, attrs orders.Attributes, reqs orders.Requirements) (orders.Offer, error) {
	o, err := m.slotMarket(slot).PostOffer(price, energy, seller, sellerOrigin, attrs, reqs)
	if err != nil {
		return orders.Offer{}, err
	}
	m.slotOfferMapping[slot] = append(m.slotOfferMapping[slot], o.ID)
	return o, nil
}

// Bid posts a new bid into the sub-book for the given slot.
func (m *Market) Bid(slot time.Time, price, energy decimal.Decimal, buyer, buyerOrigin string, attrs orders.Attributes, reqs orders.Requirements) (orders.Bid, error) {
	b, err := m.slotMarket(slot).PostBid(price, energy, buyer, buyerOrigin, attrs, reqs)
	if err != nil {
		return orders.Bid{}, err
	}
	m.slotBidMapping[slot] = append(m.slotBidMapping[slot], b.ID)
	return b, nil
}

// DeleteOffer removes an offer from its slot's offer-id list and its
// underlying sub-book. Deliberately deletes from the offer map, not the
// bid map — see the package doc comment.
func (m *Market) DeleteOffer(slot time.Time, offerID string) error {
	mkt, ok := m.slots[slot]
	if !ok {
		return fmt.Errorf("delete offer: unknown slot %s: %w", slot, orders.ErrOfferNotFound)
	}
	if err := mkt.DeleteOffer(offerID); err != nil {
		return err
	}
	m.slotOfferMapping[slot] = removeID(m.slotOfferMapping[slot], offerID)
	return nil
}

// DeleteBid removes a bid from its slot's bid-id list and its underlying
// sub-book.
func (m *Market) DeleteBid(slot time.Time, bidID string) error {
	mkt, ok := m.slots[slot]
	if !ok {
		return fmt.Errorf("delete bid: unknown slot %s: %w", slot, orders.ErrBidNotFound)
	}
	if err := mkt.DeleteBid(bidID); err != nil {
		return err
	}
	m.slotBidMapping[slot] = removeID(m.slotBidMapping[slot], bidID)
	return nil
}

// AcceptOffer clears an offer in the given slot and returns the trade
// instance produced.
func (m *Market) AcceptOffer(slot time.Time, offerID string, p market.AcceptOfferParams) (orders.Trade, error) {
	mkt, ok := m.slots[slot]
	if !ok {
		return orders.Trade{}, fmt.Errorf("accept offer: unknown slot %s: %w", slot, orders.ErrOfferNotFound)
	}
	trade, err := mkt.AcceptOffer(offerID, p)
	if err != nil {
		return orders.Trade{}, err
	}
	m.slotTradeIDs[slot] = append(m.slotTradeIDs[slot], trade.ID)
	return trade, nil
}

// AcceptBid clears a bid in the given slot and returns the trade instance
// produced.
func (m *Market) AcceptBid(slot time.Time, bidID string, p market.AcceptBidParams) (orders.Trade, error) {
	mkt, ok := m.slots[slot]
	if !ok {
		return orders.Trade{}, fmt.Errorf("accept bid: unknown slot %s: %w", slot, orders.ErrBidNotFound)
	}
	trade, err := mkt.AcceptBid(bidID, p)
	if err != nil {
		return orders.Trade{}, err
	}
	m.slotTradeIDs[slot] = append(m.slotTradeIDs[slot], trade.ID)
	return trade, nil
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
