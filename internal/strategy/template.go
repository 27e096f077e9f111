package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"gridsim/internal/area"
	"gridsim/internal/rateupdater"
)

// TemplateLoad consumes energy: it posts bids for its forecast consumption
// each market cycle, pricing the bid through a rateupdater.Updater that
// moves the rate from InitialRate toward FinalRate and caps it at FinalRate
// (LimitMax, since a buyer's willingness-to-pay only ever increases toward
// its ceiling). The bid is posted once per market cycle at the updater's
// current rate; it is not re-posted as the slot progresses.
type TemplateLoad struct {
	Base

	Name        string
	Forecast    <-chan float64 // Wh per slot, externally supplied
	Updater     *rateupdater.Updater
	InitialRate decimal.Decimal
	FinalRate   decimal.Decimal
}

// NewTemplateLoad wires a consumption forecast and rate-update profile.
func NewTemplateLoad(name string, forecast <-chan float64, slotLength, updateInterval time.Duration) *TemplateLoad {
	return &TemplateLoad{
		Name:     name,
		Forecast: forecast,
		Updater:  rateupdater.New(rateupdater.LimitMax, slotLength, updateInterval),
	}
}

func (l *TemplateLoad) OnMarketCycle(a *area.Node, slot time.Time) {
	m := a.Market
	if m == nil {
		return
	}
	l.Updater.Populate(slot, rateupdater.Profile{InitialRate: l.InitialRate, FinalRate: l.FinalRate, FitToLimit: true})
	energyWh, ok := <-l.Forecast
	if !ok || energyWh <= 0 {
		return
	}
	energy := decimal.NewFromFloat(energyWh / 1000)
	rate := l.Updater.Rate(slot)
	m.PostBid(energy.Mul(rate), energy, l.Name, "", nil, nil)
}

// TemplatePV produces energy from a forecast irradiance-driven sequence,
// pricing its offer through a rateupdater.Updater that moves the rate down
// from an initial ceiling toward a final floor (LimitMin) — sell cheaper
// rather than go unmatched. The offer is posted once per market cycle at
// the updater's current rate; it is not re-posted as the slot progresses.
type TemplatePV struct {
	Base

	Name        string
	Forecast    <-chan float64
	Updater     *rateupdater.Updater
	InitialRate decimal.Decimal
	FinalRate   decimal.Decimal
}

func NewTemplatePV(name string, forecast <-chan float64, slotLength, updateInterval time.Duration) *TemplatePV {
	return &TemplatePV{
		Name:     name,
		Forecast: forecast,
		Updater:  rateupdater.New(rateupdater.LimitMin, slotLength, updateInterval),
	}
}

func (p *TemplatePV) OnMarketCycle(a *area.Node, slot time.Time) {
	m := a.Market
	if m == nil {
		return
	}
	p.Updater.Populate(slot, rateupdater.Profile{InitialRate: p.InitialRate, FinalRate: p.FinalRate, FitToLimit: true})
	energyWh, ok := <-p.Forecast
	if !ok || energyWh <= 0 {
		return
	}
	energy := decimal.NewFromFloat(energyWh / 1000)
	rate := p.Updater.Rate(slot)
	m.PostOffer(energy.Mul(rate), energy, p.Name, "", nil, nil)
}

// TemplateStorage alternates between posting an offer (discharging surplus
// capacity) and a bid (charging from cheap supply), depending on its
// current state of charge. The charge/discharge decision itself stays
// external (reported via SetStateOfCharge); this type only shapes the
// resulting order.
type TemplateStorage struct {
	Base

	Name            string
	CapacityKWh     float64
	stateOfChargeKWh float64
	BreakEvenSell   decimal.Decimal
	BreakEvenBuy    decimal.Decimal
}

func NewTemplateStorage(name string, capacityKWh float64, breakEvenSell, breakEvenBuy decimal.Decimal) *TemplateStorage {
	return &TemplateStorage{Name: name, CapacityKWh: capacityKWh, BreakEvenSell: breakEvenSell, BreakEvenBuy: breakEvenBuy}
}

// SetStateOfCharge records the externally-modeled battery state ahead of
// the next market cycle.
func (s *TemplateStorage) SetStateOfCharge(kwh float64) { s.stateOfChargeKWh = kwh }

func (s *TemplateStorage) OnMarketCycle(a *area.Node, slot time.Time) {
	m := a.Market
	if m == nil {
		return
	}
	switch {
	case s.stateOfChargeKWh > s.CapacityKWh*0.5:
		energy := decimal.NewFromFloat(s.stateOfChargeKWh - s.CapacityKWh*0.5)
		m.PostOffer(energy.Mul(s.BreakEvenSell), energy, s.Name, "", nil, nil)
	case s.stateOfChargeKWh < s.CapacityKWh*0.2:
		energy := decimal.NewFromFloat(s.CapacityKWh*0.2 - s.stateOfChargeKWh)
		m.PostBid(energy.Mul(s.BreakEvenBuy), energy, s.Name, "", nil, nil)
	}
}

// FiniteDieselGenerator offers a bounded quantity of energy per slot at a
// fixed rate, independent of a rate-update walk (its cost structure is
// flat fuel cost, not a market-pressure curve).
type FiniteDieselGenerator struct {
	Base

	Name         string
	MaxEnergyKWh float64
	Rate         decimal.Decimal
}

func NewFiniteDieselGenerator(name string, maxEnergyKWh float64, rate decimal.Decimal) *FiniteDieselGenerator {
	return &FiniteDieselGenerator{Name: name, MaxEnergyKWh: maxEnergyKWh, Rate: rate}
}

func (g *FiniteDieselGenerator) OnMarketCycle(a *area.Node, slot time.Time) {
	m := a.Market
	if m == nil || g.MaxEnergyKWh <= 0 {
		return
	}
	energy := decimal.NewFromFloat(g.MaxEnergyKWh)
	m.PostOffer(energy.Mul(g.Rate), energy, g.Name, "", nil, nil)
}

// MarketMaker posts an always-available offer at a configured rate,
// providing a price backstop so every market has a highest-price seller of
// last resort.
type MarketMaker struct {
	Base

	Name        string
	EnergyKWh   float64
	Rate        decimal.Decimal
}

func NewMarketMaker(name string, energyKWh float64, rate decimal.Decimal) *MarketMaker {
	return &MarketMaker{Name: name, EnergyKWh: energyKWh, Rate: rate}
}

func (mm *MarketMaker) OnMarketCycle(a *area.Node, slot time.Time) {
	m := a.Market
	if m == nil {
		return
	}
	energy := decimal.NewFromFloat(mm.EnergyKWh)
	m.PostOffer(energy.Mul(mm.Rate), energy, mm.Name, "", nil, nil)
}

// InfiniteBus is both a sink and a source at fixed rates — the
// grid-connection fallback. Each market cycle it posts one offer and one
// bid, each of EnergyKWh.
type InfiniteBus struct {
	Base

	Name      string
	SellRate  decimal.Decimal
	BuyRate   decimal.Decimal
	EnergyKWh float64
}

func NewInfiniteBus(name string, sellRate, buyRate decimal.Decimal, energyKWh float64) *InfiniteBus {
	return &InfiniteBus{Name: name, SellRate: sellRate, BuyRate: buyRate, EnergyKWh: energyKWh}
}

func (b *InfiniteBus) OnMarketCycle(a *area.Node, slot time.Time) {
	m := a.Market
	if m == nil {
		return
	}
	energy := decimal.NewFromFloat(b.EnergyKWh)
	m.PostOffer(energy.Mul(b.SellRate), energy, b.Name, "", nil, nil)
	m.PostBid(energy.Mul(b.BuyRate), energy, b.Name, "", nil, nil)
}
