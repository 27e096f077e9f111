// Package strategy holds the concrete leaf device behaviors a scenario
// tree can instantiate. Device physics (the forecast sequence each
// strategy consumes) stays an external collaborator per spec; these types
// wire rate/energy decisions into the area/market layer the way
// original_source's strategy classes do.
package strategy

import (
	"time"

	"gridsim/internal/area"
	"gridsim/pkg/orders"
)

// Base gives a strategy every area.Strategy hook as a no-op, so a concrete
// type only needs to override what it cares about.
type Base struct{}

func (Base) OnActivate(a *area.Node)                   {}
func (Base) OnTick(a *area.Node, tick int)              {}
func (Base) OnMarketCycle(a *area.Node, slot time.Time) {}
func (Base) OnTrade(a *area.Node, t orders.Trade)       {}
func (Base) OnOfferDeleted(a *area.Node, offerID string) {}
func (Base) ProduceForecast(slot time.Time) <-chan float64 {
	ch := make(chan float64)
	close(ch)
	return ch
}
