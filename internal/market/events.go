package market

import (
	"math/rand/v2"
	"sync"

	"gridsim/pkg/orders"
)

// EventType enumerates the notifications a Market broadcasts to subscribers.
type EventType string

const (
	EventOffer        EventType = "OFFER"
	EventOfferChanged EventType = "OFFER_CHANGED"
	EventOfferDeleted EventType = "OFFER_DELETED"
	EventBid          EventType = "BID"
	EventBidChanged   EventType = "BID_CHANGED"
	EventBidDeleted   EventType = "BID_DELETED"
	EventTrade        EventType = "TRADE"
	EventMarketCycle  EventType = "MARKET_CYCLE"
)

// Event is the payload delivered to subscribers. Only the fields relevant
// to Type are populated.
type Event struct {
	Type          EventType
	Offer         *orders.Offer
	ResidualOffer *orders.Offer
	Bid           *orders.Bid
	ResidualBid   *orders.Bid
	Trade         *orders.Trade
}

// Listener receives market events. Implementations must not block; a
// listener that needs to do slow work should hand the event off to its own
// goroutine.
type Listener func(Event)

// bus is the per-market notification dispatcher: a registration list fired
// in randomized order to avoid listener-registration-order bias, grounded
// on the register/unregister/broadcast shape of the teacher's dashboard Hub
// but invoked synchronously since all market mutation happens on the
// scheduler thread.
type bus struct {
	mu        sync.Mutex
	listeners []Listener
	rng       *rand.Rand
}

func newBus(rng *rand.Rand) *bus {
	return &bus{rng: rng}
}

func (b *bus) subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *bus) notify(ev Event) {
	b.mu.Lock()
	order := b.rng.Perm(len(b.listeners))
	listeners := b.listeners
	b.mu.Unlock()

	for _, idx := range order {
		listeners[idx](ev)
	}
}
