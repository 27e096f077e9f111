package matching

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"gridsim/internal/market"
	"gridsim/pkg/orders"
)

// OneSided implements pay-as-offer clearing: each open bid stands for a
// buyer's demand and is filled from the cheapest eligible offers first,
// each at its own posted rate.
type OneSided struct{}

// Clear implements Engine for one-sided (pay-as-offer) markets: every open,
// age-eligible bid is treated as a standing demand request and filled via
// AcceptDemand, cheapest offers first, each trade settling at its own
// offer's posted rate rather than a uniform or bid-matched rate.
func (o OneSided) Clear(m *market.Market) ([]orders.Trade, error) {
	if m.ReadOnly() {
		return nil, nil
	}
	var trades []orders.Trade
	for _, b := range eligibleBids(m) {
		ts, err := o.AcceptDemand(m, b.Buyer, b.Energy)
		trades = append(trades, ts...)
		if err != nil {
			return trades, err
		}
		if err := m.DeleteBid(b.ID); err != nil {
			return trades, err
		}
	}
	return trades, nil
}

// AcceptDemand fills energy worth of demand for buyer from the cheapest
// offers available, splitting the last offer touched into a residual if it
// is only partially consumed. Returns every trade produced, in the order
// the offers were consumed.
func (OneSided) AcceptDemand(m *market.Market, buyer string, energy decimal.Decimal) ([]orders.Trade, error) {
	if m.ReadOnly() {
		return nil, fmt.Errorf("accept demand: %w", orders.ErrMarketReadOnly)
	}

	tree := sortedOffers(m)
	rates := tree.Keys()
	sort.Slice(rates, func(i, j int) bool { return rates[i].LessThan(rates[j]) })

	remaining := energy
	var trades []orders.Trade
	for _, rate := range rates {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		offersAtRate, _ := tree.Get(rate)
		sort.Slice(offersAtRate, func(i, j int) bool {
			return m.PostedTick(offersAtRate[i].ID) < m.PostedTick(offersAtRate[j].ID)
		})
		for _, o := range offersAtRate {
			if remaining.LessThanOrEqual(decimal.Zero) {
				break
			}
			take := o.Energy
			if take.GreaterThan(remaining) {
				take = remaining
			}
			trade, err := m.AcceptOffer(o.ID, market.AcceptOfferParams{
				Energy: take,
				Buyer:  buyer,
			})
			if err != nil {
				return trades, err
			}
			trades = append(trades, trade)
			remaining = remaining.Sub(take)
		}
	}
	return trades, nil
}
