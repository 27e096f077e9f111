package matching

import (
	"sort"

	"github.com/shopspring/decimal"

	"gridsim/internal/market"
	"gridsim/pkg/orders"
)

// PayAsClear implements uniform-price clearing: the supply and demand
// curves are built from the open order book, their intersection rate p* is
// found, and every bid with rate >= p* and offer with rate <= p* clears at
// p*.
type PayAsClear struct{}

func (PayAsClear) Clear(m *market.Market) ([]orders.Trade, error) {
	if m.ReadOnly() {
		return nil, nil
	}

	offers := eligibleOffers(m)
	bids := eligibleBids(m)
	sort.Slice(offers, func(i, j int) bool { return offers[i].Rate().LessThan(offers[j].Rate()) })
	sort.Slice(bids, func(i, j int) bool { return bids[i].Rate().GreaterThan(bids[j].Rate()) })

	n := 0
	for n < len(offers) && n < len(bids) && offers[n].Rate().LessThanOrEqual(bids[n].Rate()) {
		n++
	}
	if n == 0 {
		return nil, nil
	}

	// p* is the marginal offer's rate: the lowest rate that still clears
	// the maximal matched energy, since offers[n-1].Rate() <= bids[n-1].Rate()
	// and (when a next order exists on both sides) offers[n].Rate() >
	// bids[n].Rate() pins the crossing there. Only when one side runs out
	// of orders exactly at n — so the curves end without ever crossing
	// back over — is the crossing genuinely vertical/ambiguous, and the
	// midpoint of the last matched pair is used instead.
	var pStar decimal.Decimal
	if n < len(offers) && n < len(bids) {
		pStar = offers[n-1].Rate()
	} else {
		pStar = offers[n-1].Rate().Add(bids[n-1].Rate()).Div(decimal.NewFromInt(2))
	}

	var eligibleOffersAtClear []orders.Offer
	for _, o := range offers {
		if o.Rate().LessThanOrEqual(pStar) {
			eligibleOffersAtClear = append(eligibleOffersAtClear, o)
		}
	}
	var eligibleBidsAtClear []orders.Bid
	for _, b := range bids {
		if b.Rate().GreaterThanOrEqual(pStar) {
			eligibleBidsAtClear = append(eligibleBidsAtClear, b)
		}
	}

	// Tie-break: largest-energy order first, then earliest id.
	sort.Slice(eligibleOffersAtClear, func(i, j int) bool {
		a, b := eligibleOffersAtClear[i], eligibleOffersAtClear[j]
		if !a.Energy.Equal(b.Energy) {
			return a.Energy.GreaterThan(b.Energy)
		}
		return a.ID < b.ID
	})
	sort.Slice(eligibleBidsAtClear, func(i, j int) bool {
		a, b := eligibleBidsAtClear[i], eligibleBidsAtClear[j]
		if !a.Energy.Equal(b.Energy) {
			return a.Energy.GreaterThan(b.Energy)
		}
		return a.ID < b.ID
	})

	supply := decimal.Zero
	for _, o := range eligibleOffersAtClear {
		supply = supply.Add(o.Energy)
	}
	demand := decimal.Zero
	for _, b := range eligibleBidsAtClear {
		demand = demand.Add(b.Energy)
	}
	selected := supply
	if demand.LessThan(selected) {
		selected = demand
	}

	var trades []orders.Trade
	oi, bi := 0, 0
	remaining := selected
	for remaining.GreaterThan(decimal.Zero) && oi < len(eligibleOffersAtClear) && bi < len(eligibleBidsAtClear) {
		offer := eligibleOffersAtClear[oi]
		bid := eligibleBidsAtClear[bi]
		energy := offer.Energy
		if bid.Energy.LessThan(energy) {
			energy = bid.Energy
		}
		if remaining.LessThan(energy) {
			energy = remaining
		}

		trade, err := m.AcceptOffer(offer.ID, market.AcceptOfferParams{
			Energy:    energy,
			Buyer:     bid.Buyer,
			TradeRate: pStar,
		})
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)
		remaining = remaining.Sub(energy)

		offer.Energy = offer.Energy.Sub(energy)
		bid.Energy = bid.Energy.Sub(energy)
		if offer.Energy.LessThanOrEqual(decimal.Zero) {
			oi++
		} else if trade.ResidualOfferID != "" {
			eligibleOffersAtClear[oi].ID = trade.ResidualOfferID
			eligibleOffersAtClear[oi].Energy = offer.Energy
		}
		if bid.Energy.LessThanOrEqual(decimal.Zero) {
			bi++
		} else {
			eligibleBidsAtClear[bi].Energy = bid.Energy
		}
	}
	return trades, nil
}

func eligibleOffers(m *market.Market) []orders.Offer {
	var out []orders.Offer
	for _, o := range m.Offers() {
		if m.OrderAge(o.ID) >= market.MinOrderAge {
			out = append(out, o)
		}
	}
	return out
}

func eligibleBids(m *market.Market) []orders.Bid {
	var out []orders.Bid
	for _, b := range m.Bids() {
		if m.OrderAge(b.ID) >= market.MinOrderAge {
			out = append(out, b)
		}
	}
	return out
}
