package strategy

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/internal/area"
	"gridsim/pkg/orders"
)

// defaultCommercialOffers mirrors original_source's COMMERCIAL_OFFERS
// constant: the number of offers a commercial producer keeps live per
// market cycle.
const defaultCommercialOffers = 3

// CommercialProducer posts a fixed number of offers at a constant energy
// rate — no rate updater, unlike the template strategies below. It reposts
// one offer whenever it sells (event_trade) and refreshes its whole batch
// on every market cycle, grounded directly on
// original_source's CommercialStrategy.
type CommercialProducer struct {
	Base

	Name         string
	EnergyMinWh  float64
	EnergyMaxWh  float64
	EnergyPrice  decimal.Decimal // price per kWh

	rng *rand.Rand
}

// NewCommercialProducer constructs a commercial producer. energyMinWh must
// not exceed energyMaxWh (both in Wh; equal values give a fixed size).
func NewCommercialProducer(name string, energyMinWh, energyMaxWh float64, energyPrice decimal.Decimal, rng *rand.Rand) (*CommercialProducer, error) {
	if energyMinWh > energyMaxWh {
		return nil, fmt.Errorf("commercial producer %q: energy range min %.2f > max %.2f", name, energyMinWh, energyMaxWh)
	}
	if energyPrice.IsNegative() {
		return nil, fmt.Errorf("commercial producer %q: energy price must be non-negative", name)
	}
	return &CommercialProducer{
		Name:        name,
		EnergyMinWh: energyMinWh,
		EnergyMaxWh: energyMaxWh,
		EnergyPrice: energyPrice,
		rng:         rng,
	}, nil
}

func (c *CommercialProducer) randomEnergyKWh() decimal.Decimal {
	span := c.EnergyMaxWh - c.EnergyMinWh
	wh := c.EnergyMinWh
	if span > 0 {
		wh += c.rng.Float64() * span
	}
	return decimal.NewFromFloat(wh / 1000)
}

func (c *CommercialProducer) postOffer(a *area.Node) {
	m := a.Market
	if m == nil {
		return
	}
	energy := c.randomEnergyKWh()
	price := energy.Mul(c.EnergyPrice)
	m.PostOffer(price, energy, c.Name, "", nil, nil)
}

// OnActivate posts the initial batch of offers into the market the area
// trades in (a.Market, which for a leaf is its parent's market).
func (c *CommercialProducer) OnActivate(a *area.Node) {
	for i := 0; i < defaultCommercialOffers; i++ {
		c.postOffer(a)
	}
}

// OnTrade reposts exactly one replacement offer when this producer was the
// seller in a cleared trade, keeping its live-offer count roughly constant.
func (c *CommercialProducer) OnTrade(a *area.Node, t orders.Trade) {
	if t.Seller == c.Name {
		c.postOffer(a)
	}
}

// OnMarketCycle refreshes the full batch of offers for the new slot.
func (c *CommercialProducer) OnMarketCycle(a *area.Node, slot time.Time) {
	for i := 0; i < defaultCommercialOffers; i++ {
		c.postOffer(a)
	}
}
