package matching

import (
	"sort"

	"github.com/shopspring/decimal"

	"gridsim/internal/market"
	"gridsim/pkg/orders"
)

// PayAsBid implements two-sided discriminatory clearing: offers ascending
// are matched against bids descending; each compatible pair settles at the
// bid's rate.
type PayAsBid struct{}

func (PayAsBid) Clear(m *market.Market) ([]orders.Trade, error) {
	if m.ReadOnly() {
		return nil, nil
	}

	offerTree := sortedOffers(m)
	bidTree := sortedBids(m)

	offerRates := offerTree.Keys()
	sort.Slice(offerRates, func(i, j int) bool { return offerRates[i].LessThan(offerRates[j]) })
	bidRates := bidTree.Keys()
	sort.Slice(bidRates, func(i, j int) bool { return bidRates[i].GreaterThan(bidRates[j]) })

	var trades []orders.Trade
	bi := 0
	for _, offerRate := range offerRates {
		offersAtRate, _ := offerTree.Get(offerRate)
		sort.Slice(offersAtRate, func(i, j int) bool {
			return m.PostedTick(offersAtRate[i].ID) < m.PostedTick(offersAtRate[j].ID)
		})
		for _, offer := range offersAtRate {
			offerID := offer.ID
			offerRemaining := offer.Energy
			for offerRemaining.GreaterThan(decimal.Zero) && bi < len(bidRates) {
				bidRate := bidRates[bi]
				if offerRate.GreaterThan(bidRate) {
					// no more compatible bids at this or lower rates
					break
				}
				bidsAtRate, _ := bidTree.Get(bidRate)
				if len(bidsAtRate) == 0 {
					bi++
					continue
				}
				bid := bidsAtRate[0]
				energy := bid.Energy
				if energy.GreaterThan(offerRemaining) {
					energy = offerRemaining
				}
				trade, err := m.AcceptOffer(offerID, market.AcceptOfferParams{
					Energy:    energy,
					Buyer:     bid.Buyer,
					TradeRate: bidRate,
				})
				if err != nil {
					return trades, err
				}
				trades = append(trades, trade)
				offerRemaining = offerRemaining.Sub(energy)
				if trade.ResidualOfferID != "" {
					offerID = trade.ResidualOfferID
				}

				remainingBidEnergy := bid.Energy.Sub(energy)
				if remainingBidEnergy.LessThanOrEqual(decimal.Zero) {
					bidsAtRate = bidsAtRate[1:]
					bidTree.Put(bidRate, bidsAtRate)
					if len(bidsAtRate) == 0 {
						bi++
					}
				} else {
					bid.Energy = remainingBidEnergy
					bidsAtRate[0] = bid
					bidTree.Put(bidRate, bidsAtRate)
				}
			}
		}
	}
	return trades, nil
}
