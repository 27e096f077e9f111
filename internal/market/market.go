// Package market implements the per-slot order book: posting and deleting
// offers/bids, accepting them into trades, accounting, and the event
// notification bus that drives the rest of the simulation.
package market

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/internal/fees"
	"gridsim/pkg/orders"
)

// MinOrderAge is the minimum number of ticks that must elapse between an
// order's posting tick and the tick in which it may be matched.
const MinOrderAge = 2

// Market is the per-slot order book for one Area. The zero value is not
// usable; construct with New.
type Market struct {
	TimeSlot time.Time
	Name     string
	GridFees []fees.Calculator

	offers map[string]orders.Offer
	bids   map[string]orders.Bid
	trades []orders.Trade

	postedTick  map[string]int // order id -> tick it was posted in
	currentTick int

	accounting map[string]decimal.Decimal
	ious       map[string]map[string]decimal.Decimal

	// minOfferPrice/maxOfferPrice are recomputed over the whole open offer
	// book by updateMinMaxOfferPrices. Exposed as two independent reductions —
	// see DESIGN.md for why this deliberately diverges from the source's
	// double-assignment of min_offer_price.
	minOfferPrice decimal.Decimal
	maxOfferPrice decimal.Decimal
	haveOffers    bool

	readonly bool

	events *bus
}

// New constructs an open (non-readonly) Market for the given slot.
func New(timeSlot time.Time, name string, gridFees []fees.Calculator, rng *rand.Rand) *Market {
	return &Market{
		TimeSlot:   timeSlot,
		Name:       name,
		GridFees:   gridFees,
		offers:     make(map[string]orders.Offer),
		bids:       make(map[string]orders.Bid),
		postedTick: make(map[string]int),
		accounting: make(map[string]decimal.Decimal),
		ious:       make(map[string]map[string]decimal.Decimal),
		events:     newBus(rng),
	}
}

// Subscribe registers a listener for all market events.
func (m *Market) Subscribe(l Listener) {
	m.events.subscribe(l)
}

// SetTick records the scheduler's current tick, used to enforce MinOrderAge.
func (m *Market) SetTick(tick int) {
	m.currentTick = tick
}

// ReadOnly reports whether the market accepts mutation.
func (m *Market) ReadOnly() bool {
	return m.readonly
}

// Close marks the market readonly; no further mutators will succeed.
func (m *Market) Close() {
	m.readonly = true
}

// Offer looks up a live offer by id.
func (m *Market) Offer(id string) (orders.Offer, bool) {
	o, ok := m.offers[id]
	return o, ok
}

// Bid looks up a live bid by id.
func (m *Market) Bid(id string) (orders.Bid, bool) {
	b, ok := m.bids[id]
	return b, ok
}

// Offers returns a snapshot slice of all currently open offers.
func (m *Market) Offers() []orders.Offer {
	out := make([]orders.Offer, 0, len(m.offers))
	for _, o := range m.offers {
		out = append(out, o)
	}
	return out
}

// Bids returns a snapshot slice of all currently open bids.
func (m *Market) Bids() []orders.Bid {
	out := make([]orders.Bid, 0, len(m.bids))
	for _, b := range m.bids {
		out = append(out, b)
	}
	return out
}

// Trades returns the trades settled so far in this market.
func (m *Market) Trades() []orders.Trade {
	out := make([]orders.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// Accounting returns a snapshot of the per-actor energy ledger.
func (m *Market) Accounting() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m.accounting))
	for k, v := range m.accounting {
		out[k] = v
	}
	return out
}

// IOUs returns a snapshot of buyer->seller->price owed.
func (m *Market) IOUs() map[string]map[string]decimal.Decimal {
	out := make(map[string]map[string]decimal.Decimal, len(m.ious))
	for buyer, sellers := range m.ious {
		inner := make(map[string]decimal.Decimal, len(sellers))
		for s, v := range sellers {
			inner[s] = v
		}
		out[buyer] = inner
	}
	return out
}

// PostedTick returns the tick an order was posted in, or -1 if unknown.
func (m *Market) PostedTick(id string) int {
	tick, ok := m.postedTick[id]
	if !ok {
		return -1
	}
	return tick
}

// OrderAge returns how many ticks have elapsed since the order with the
// given id was posted. Returns -1 if the id is unknown.
func (m *Market) OrderAge(id string) int {
	tick, ok := m.postedTick[id]
	if !ok {
		return -1
	}
	return m.currentTick - tick
}

// MinOfferPrice returns the lowest open offer's rate, or zero if no offers
// are open.
func (m *Market) MinOfferPrice() decimal.Decimal {
	return m.minOfferPrice
}

// MaxOfferPrice returns the highest open offer's rate, or zero if no offers
// are open.
func (m *Market) MaxOfferPrice() decimal.Decimal {
	return m.maxOfferPrice
}

// AvgOfferPrice is the mean per-unit rate across all open offers.
func (m *Market) AvgOfferPrice() decimal.Decimal {
	if len(m.offers) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, o := range m.offers {
		sum = sum.Add(o.Rate())
	}
	return sum.Div(decimal.NewFromInt(int64(len(m.offers))))
}

// AvgTradePrice is the energy-weighted average settlement rate: Σ price / Σ energy.
func (m *Market) AvgTradePrice() decimal.Decimal {
	if len(m.trades) == 0 {
		return decimal.Zero
	}
	sumPrice := decimal.Zero
	sumEnergy := decimal.Zero
	for _, t := range m.trades {
		sumPrice = sumPrice.Add(t.Price())
		sumEnergy = sumEnergy.Add(t.Energy)
	}
	if sumEnergy.IsZero() {
		return decimal.Zero
	}
	return sumPrice.Div(sumEnergy)
}

func (m *Market) updateMinMaxOfferPrices() {
	if len(m.offers) == 0 {
		m.haveOffers = false
		m.minOfferPrice = decimal.Zero
		m.maxOfferPrice = decimal.Zero
		return
	}
	first := true
	for _, o := range m.offers {
		rate := o.Rate()
		if first {
			m.minOfferPrice = rate
			m.maxOfferPrice = rate
			first = false
			continue
		}
		if rate.LessThan(m.minOfferPrice) {
			m.minOfferPrice = rate
		}
		if rate.GreaterThan(m.maxOfferPrice) {
			m.maxOfferPrice = rate
		}
	}
	m.haveOffers = true
}

// PostOffer adds a new offer to the book.
func (m *Market) PostOffer(price, energy decimal.Decimal, seller, sellerOrigin string, attrs orders.Attributes, reqs orders.Requirements) (orders.Offer, error) {
	if m.readonly {
		return orders.Offer{}, fmt.Errorf("post offer: %w", orders.ErrMarketReadOnly)
	}
	if energy.LessThanOrEqual(decimal.Zero) || price.LessThan(decimal.Zero) {
		return orders.Offer{}, fmt.Errorf("post offer: %w", orders.ErrInvalidOffer)
	}
	o := orders.Offer{
		ID:            orders.NewID(),
		TimeSlot:      m.TimeSlot,
		Price:         price,
		Energy:        energy,
		Seller:        seller,
		SellerOrigin:  sellerOrigin,
		OriginalPrice: price,
		Attributes:    attrs,
		Requirements:  reqs,
	}
	m.offers[o.ID] = o
	m.postedTick[o.ID] = m.currentTick
	m.updateMinMaxOfferPrices()
	m.events.notify(Event{Type: EventOffer, Offer: &o})
	return o, nil
}

// PostBid adds a new bid to the book.
func (m *Market) PostBid(price, energy decimal.Decimal, buyer, buyerOrigin string, attrs orders.Attributes, reqs orders.Requirements) (orders.Bid, error) {
	if m.readonly {
		return orders.Bid{}, fmt.Errorf("post bid: %w", orders.ErrMarketReadOnly)
	}
	if energy.LessThanOrEqual(decimal.Zero) || price.LessThan(decimal.Zero) {
		return orders.Bid{}, fmt.Errorf("post bid: %w", orders.ErrInvalidBid)
	}
	b := orders.Bid{
		ID:            orders.NewID(),
		TimeSlot:      m.TimeSlot,
		Price:         price,
		Energy:        energy,
		Buyer:         buyer,
		BuyerOrigin:   buyerOrigin,
		OriginalPrice: price,
		Attributes:    attrs,
		Requirements:  reqs,
	}
	m.bids[b.ID] = b
	m.postedTick[b.ID] = m.currentTick
	m.events.notify(Event{Type: EventBid, Bid: &b})
	return b, nil
}

// DeleteOffer removes an open offer from the book.
func (m *Market) DeleteOffer(id string) error {
	if m.readonly {
		return fmt.Errorf("delete offer: %w", orders.ErrMarketReadOnly)
	}
	o, ok := m.offers[id]
	if !ok {
		return fmt.Errorf("delete offer %s: %w", id, orders.ErrOfferNotFound)
	}
	delete(m.offers, id)
	delete(m.postedTick, id)
	m.updateMinMaxOfferPrices()
	m.events.notify(Event{Type: EventOfferDeleted, Offer: &o})
	return nil
}

// DeleteBid removes an open bid from the book.
func (m *Market) DeleteBid(id string) error {
	if m.readonly {
		return fmt.Errorf("delete bid: %w", orders.ErrMarketReadOnly)
	}
	b, ok := m.bids[id]
	if !ok {
		return fmt.Errorf("delete bid %s: %w", id, orders.ErrBidNotFound)
	}
	delete(m.bids, id)
	delete(m.postedTick, id)
	m.events.notify(Event{Type: EventBidDeleted, Bid: &b})
	return nil
}

// AcceptOfferParams configures AcceptOffer. A zero Energy means accept the
// offer's full remaining energy. A zero TradeRate means settle at the
// offer's own rate (pay-as-offer); matching engines that need pay-as-bid or
// pay-as-clear semantics pass an explicit TradeRate.
type AcceptOfferParams struct {
	Energy      decimal.Decimal
	Buyer       string
	BuyerOrigin string
	TradeRate   decimal.Decimal
	FeePrice    decimal.Decimal
}

// AcceptOffer clears (all or part of) an offer against a buyer, recording a
// Trade and updating accounting/IOUs. On a partial accept, the unfilled
// remainder is re-inserted as a residual offer and OFFER_CHANGED is
// broadcast strictly before TRADE.
func (m *Market) AcceptOffer(offerID string, p AcceptOfferParams) (orders.Trade, error) {
	if m.readonly {
		return orders.Trade{}, fmt.Errorf("accept offer: %w", orders.ErrMarketReadOnly)
	}
	offer, ok := m.offers[offerID]
	if !ok {
		return orders.Trade{}, fmt.Errorf("accept offer %s: %w", offerID, orders.ErrOfferNotFound)
	}

	energy := p.Energy
	if energy.IsZero() {
		energy = offer.Energy
	}
	if energy.GreaterThan(offer.Energy) {
		return orders.Trade{}, fmt.Errorf("accept offer %s: energy %s exceeds offer energy %s: %w",
			offerID, energy, offer.Energy, orders.ErrInvalidTrade)
	}

	tradeRate := p.TradeRate
	if tradeRate.IsZero() {
		tradeRate = offer.Rate()
	}

	delete(m.offers, offerID)
	delete(m.postedTick, offerID)

	var residual *orders.Offer
	if energy.LessThan(offer.Energy) {
		residualEnergy := offer.Energy.Sub(energy)
		r := orders.Offer{
			ID:             orders.NewID(),
			TimeSlot:       offer.TimeSlot,
			Price:          offer.Price.Mul(residualEnergy).Div(offer.Energy),
			Energy:         residualEnergy,
			Seller:         offer.Seller,
			SellerOrigin:   offer.SellerOrigin,
			SellerOriginID: offer.SellerOriginID,
			SellerID:       offer.SellerID,
			OriginalPrice:  offer.OriginalPrice.Mul(residualEnergy).Div(offer.Energy),
			Attributes:     offer.Attributes,
			Requirements:   offer.Requirements,
		}
		m.offers[r.ID] = r
		m.postedTick[r.ID] = m.currentTick
		residual = &r
		m.updateMinMaxOfferPrices()
		m.events.notify(Event{Type: EventOfferChanged, Offer: &offer, ResidualOffer: residual})
	} else {
		m.updateMinMaxOfferPrices()
	}

	trade := orders.Trade{
		ID:            orders.NewID(),
		TimeSlot:      m.TimeSlot,
		Seller:        offer.Seller,
		SellerOrigin:  offer.SellerOrigin,
		Buyer:         p.Buyer,
		BuyerOrigin:   p.BuyerOrigin,
		Offer:         offer,
		TradeRate:     tradeRate,
		Energy:        energy,
		FeePrice:      p.FeePrice,
	}
	if residual != nil {
		trade.ResidualOfferID = residual.ID
	}
	m.applyTradeAccounting(trade)
	m.trades = append(m.trades, trade)
	m.events.notify(Event{Type: EventTrade, Trade: &trade})
	return trade, nil
}

// AcceptBidParams configures AcceptBid. Symmetric to AcceptOfferParams.
type AcceptBidParams struct {
	Energy       decimal.Decimal
	Seller       string
	SellerOrigin string
	TradeRate    decimal.Decimal
	FeePrice     decimal.Decimal
}

// AcceptBid clears (all or part of) a bid against a seller. Symmetric to
// AcceptOffer.
func (m *Market) AcceptBid(bidID string, p AcceptBidParams) (orders.Trade, error) {
	if m.readonly {
		return orders.Trade{}, fmt.Errorf("accept bid: %w", orders.ErrMarketReadOnly)
	}
	bid, ok := m.bids[bidID]
	if !ok {
		return orders.Trade{}, fmt.Errorf("accept bid %s: %w", bidID, orders.ErrBidNotFound)
	}

	energy := p.Energy
	if energy.IsZero() {
		energy = bid.Energy
	}
	if energy.GreaterThan(bid.Energy) {
		return orders.Trade{}, fmt.Errorf("accept bid %s: energy %s exceeds bid energy %s: %w",
			bidID, energy, bid.Energy, orders.ErrInvalidTrade)
	}

	tradeRate := p.TradeRate
	if tradeRate.IsZero() {
		tradeRate = bid.Rate()
	}

	delete(m.bids, bidID)
	delete(m.postedTick, bidID)

	var residual *orders.Bid
	if energy.LessThan(bid.Energy) {
		residualEnergy := bid.Energy.Sub(energy)
		r := orders.Bid{
			ID:            orders.NewID(),
			TimeSlot:      bid.TimeSlot,
			Price:         bid.Price.Mul(residualEnergy).Div(bid.Energy),
			Energy:        residualEnergy,
			Buyer:         bid.Buyer,
			BuyerOrigin:   bid.BuyerOrigin,
			BuyerOriginID: bid.BuyerOriginID,
			BuyerID:       bid.BuyerID,
			OriginalPrice: bid.OriginalPrice.Mul(residualEnergy).Div(bid.Energy),
			Attributes:    bid.Attributes,
			Requirements:  bid.Requirements,
		}
		m.bids[r.ID] = r
		m.postedTick[r.ID] = m.currentTick
		residual = &r
		m.events.notify(Event{Type: EventBidChanged, Bid: &bid, ResidualBid: residual})
	}

	trade := orders.Trade{
		ID:           orders.NewID(),
		TimeSlot:     m.TimeSlot,
		Seller:       p.Seller,
		SellerOrigin: p.SellerOrigin,
		Buyer:        bid.Buyer,
		BuyerOrigin:  bid.BuyerOrigin,
		Bid:          &bid,
		TradeRate:    tradeRate,
		Energy:       energy,
		FeePrice:     p.FeePrice,
	}
	if residual != nil {
		trade.ResidualBidID = residual.ID
	}
	m.applyTradeAccounting(trade)
	m.trades = append(m.trades, trade)
	m.events.notify(Event{Type: EventTrade, Trade: &trade})
	return trade, nil
}

func (m *Market) applyTradeAccounting(t orders.Trade) {
	m.accounting[t.Seller] = m.accounting[t.Seller].Sub(t.Energy)
	m.accounting[t.Buyer] = m.accounting[t.Buyer].Add(t.Energy)

	if _, ok := m.ious[t.Buyer]; !ok {
		m.ious[t.Buyer] = make(map[string]decimal.Decimal)
	}
	m.ious[t.Buyer][t.Seller] = m.ious[t.Buyer][t.Seller].Add(t.Price())
}
