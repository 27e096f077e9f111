package market

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gridsim/pkg/orders"
)

// Recommendation is one proposed match from an external matcher or a
// matching engine's clearing plan: a set of bids and offers to be cleared
// together at trade_rate for selected_energy.
type Recommendation struct {
	MarketID        string
	BidIDs          []string
	OfferIDs        []string
	TradeRate       decimal.Decimal
	SelectedEnergy  decimal.Decimal
}

// ValidateBidOfferMatch runs the pre-flight checks required before a
// recommendation may be applied: the market must be open, every referenced
// order must still be present, aggregate energy must cover the selection,
// and trade_rate must sit between the offer and bid rates.
func (m *Market) ValidateBidOfferMatch(rec Recommendation) error {
	if m.readonly {
		return fmt.Errorf("validate recommendation: %w", orders.ErrMarketReadOnly)
	}

	sumBidEnergy := decimal.Zero
	minBidRate := decimal.Decimal{}
	first := true
	for _, id := range rec.BidIDs {
		b, ok := m.bids[id]
		if !ok {
			return fmt.Errorf("validate recommendation: bid %s: %w", id, orders.ErrBidNotFound)
		}
		sumBidEnergy = sumBidEnergy.Add(b.Energy)
		if first || b.Rate().LessThan(minBidRate) {
			minBidRate = b.Rate()
		}
		first = false
	}

	sumOfferEnergy := decimal.Zero
	maxOfferRate := decimal.Decimal{}
	first = true
	for _, id := range rec.OfferIDs {
		o, ok := m.offers[id]
		if !ok {
			return fmt.Errorf("validate recommendation: offer %s: %w", id, orders.ErrOfferNotFound)
		}
		sumOfferEnergy = sumOfferEnergy.Add(o.Energy)
		if first || o.Rate().GreaterThan(maxOfferRate) {
			maxOfferRate = o.Rate()
		}
		first = false
	}

	if sumBidEnergy.LessThan(rec.SelectedEnergy) || sumOfferEnergy.LessThan(rec.SelectedEnergy) {
		return fmt.Errorf("validate recommendation: insufficient energy: %w", orders.ErrInvalidBidOfferPair)
	}
	if rec.TradeRate.GreaterThan(minBidRate) || rec.TradeRate.LessThan(maxOfferRate) {
		return fmt.Errorf("validate recommendation: trade_rate %s out of [%s,%s]: %w",
			rec.TradeRate, maxOfferRate, minBidRate, orders.ErrInvalidBidOfferPair)
	}
	return nil
}

// MatchRecommendations applies a batch of recommendations atomically: every
// recommendation is validated first, and if any fails, nothing in the batch
// is applied. On success, trades are produced recommendation by
// recommendation, consuming offers and bids in the order their ids are
// listed.
func (m *Market) MatchRecommendations(recs []Recommendation) ([]orders.Trade, error) {
	for _, rec := range recs {
		if err := m.ValidateBidOfferMatch(rec); err != nil {
			return nil, err
		}
	}

	var trades []orders.Trade
	for _, rec := range recs {
		remaining := rec.SelectedEnergy
		for _, offerID := range rec.OfferIDs {
			if remaining.LessThanOrEqual(decimal.Zero) {
				break
			}
			offer := m.offers[offerID]
			take := offer.Energy
			if take.GreaterThan(remaining) {
				take = remaining
			}
			for _, bidID := range rec.BidIDs {
				if take.LessThanOrEqual(decimal.Zero) {
					break
				}
				bid, ok := m.bids[bidID]
				if !ok {
					continue
				}
				energy := bid.Energy
				if energy.GreaterThan(take) {
					energy = take
				}
				trade, err := m.AcceptOffer(offerID, AcceptOfferParams{
					Energy:    energy,
					Buyer:     bid.Buyer,
					TradeRate: rec.TradeRate,
				})
				if err != nil {
					return trades, err
				}
				trades = append(trades, trade)
				take = take.Sub(energy)
				remaining = remaining.Sub(energy)
				if trade.ResidualOfferID != "" {
					offerID = trade.ResidualOfferID
				}
			}
		}
	}
	return trades, nil
}
