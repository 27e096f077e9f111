// Package extmatcher implements the external bid/offer matching protocol:
// an in-process pub/sub broker over three logical topics
// (matching-data, recommendations, events), grounded on
// original_source's ExternalMatcher (channel names, event enum,
// validate-then-apply-in-bulk semantics) and the teacher's Hub
// register/unregister/broadcast loop, adapted from a live WebSocket
// transport to buffered Go channels since the wire layer is out of scope.
package extmatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"gridsim/internal/market"
	"gridsim/pkg/orders"
)

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// Event is the external-matcher event enum, mirroring
// ExternalMatcherEventsEnum.
type Event string

const (
	EventMatchingDataResponse Event = "matching_data_response"
	EventMatch                Event = "match"
	EventTick                 Event = "tick"
	EventMarketCycle          Event = "market_cycle"
	EventFinish               Event = "finish"
)

// MatchingDataRequest asks for the open bids/offers of a set of markets,
// optionally filtered by energy_type attribute.
type MatchingDataRequest struct {
	MarketIDs  []string
	EnergyType string
}

// MarketOrders is one market's open bids/offers in wire form.
type MarketOrders struct {
	Bids   []orders.BidWire  `json:"bids"`
	Offers []orders.OfferWire `json:"offers"`
}

// MatchingDataResponse answers a MatchingDataRequest.
type MatchingDataResponse struct {
	Event        Event                   `json:"event"`
	MatchingData map[string]MarketOrders `json:"matching_data"`
}

// Recommendation is one proposed bid/offer pairing, exactly as submitted
// by an external matching client.
type Recommendation struct {
	MarketID      string   `json:"market_id"`
	BidIDs        []string `json:"bids"`
	OfferIDs      []string `json:"offers"`
	TradeRate     float64  `json:"trade_rate"`
	SelectedEnergy float64 `json:"selected_energy"`
}

// MatchResponse reports the bulk recommendation-matching outcome.
type MatchResponse struct {
	Event   Event  `json:"event"`
	Status  string `json:"status"` // "success" or "fail"
	Message string `json:"message,omitempty"`
}

// Hub is the in-process broker: markets register themselves so matching
// clients can query/match against them, and scheduler ticks/cycles get
// republished on the events topic. Grounded on the teacher's ws Hub, using
// buffered channels as the topics instead of WebSocket broadcast.
type Hub struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	markets map[string]*market.Market // market id -> market, "registered" areas

	events chan []byte // EventTick/EventMarketCycle/EventFinish, JSON-encoded
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With("component", "extmatcher-hub"),
		markets: make(map[string]*market.Market),
		events:  make(chan []byte, 256),
	}
}

// RegisterMarket makes a market visible to matching-data queries and
// recommendation matching under the given id.
func (h *Hub) RegisterMarket(id string, m *market.Market) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.markets[id] = m
}

// UnregisterMarket removes a market once its slot has closed.
func (h *Hub) UnregisterMarket(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.markets, id)
}

// Events returns the channel events are published to; callers subscribe
// by ranging over it.
func (h *Hub) Events() <-chan []byte {
	return h.events
}

func (h *Hub) publishEvent(ev Event) {
	data, err := json.Marshal(map[string]Event{"event": ev})
	if err != nil {
		h.logger.Error("marshal event failed", "error", err)
		return
	}
	select {
	case h.events <- data:
	default:
		h.logger.Warn("events channel full, dropping event", "event", ev)
	}
}

// PublishTick publishes the per-tick event.
func (h *Hub) PublishTick() { h.publishEvent(EventTick) }

// PublishMarketCycle publishes the per-slot market-cycle event.
func (h *Hub) PublishMarketCycle() { h.publishEvent(EventMarketCycle) }

// PublishFinish publishes the end-of-run event.
func (h *Hub) PublishFinish() { h.publishEvent(EventFinish) }

// MatchingData answers a matching-data request with every registered
// market's open bids/offers, applying the energy_type attribute filter if
// set, mirroring ExternalMatcher.publish_matching_data.
func (h *Hub) MatchingData(req MatchingDataRequest) MatchingDataResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()

	want := make(map[string]bool, len(req.MarketIDs))
	for _, id := range req.MarketIDs {
		want[id] = true
	}

	resp := MatchingDataResponse{Event: EventMatchingDataResponse, MatchingData: make(map[string]MarketOrders)}
	for id, m := range h.markets {
		if len(want) > 0 && !want[id] {
			continue
		}
		bids := m.Bids()
		bidsWire := make([]orders.BidWire, 0, len(bids))
		for _, b := range bids {
			bidsWire = append(bidsWire, b.ToWire())
		}
		offers := m.Offers()
		offersWire := make([]orders.OfferWire, 0, len(offers))
		for _, o := range offers {
			if req.EnergyType != "" && o.Attributes["energy_type"] != req.EnergyType {
				continue
			}
			offersWire = append(offersWire, o.ToWire())
		}
		resp.MatchingData[id] = MarketOrders{Bids: bidsWire, Offers: offersWire}
	}
	return resp
}

// MatchRecommendations validates every recommendation against its market
// (order existence, market open) and, only if every single one passes,
// applies them all via market.MatchRecommendations — any pair that fails
// validation cancels the whole batch, mirroring
// ExternalMatcher.match_recommendations / _get_validated_recommendations.
func (h *Hub) MatchRecommendations(ctx context.Context, recs []Recommendation) MatchResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()

	byMarket := make(map[string][]market.Recommendation)
	for _, r := range recs {
		m, ok := h.markets[r.MarketID]
		if !ok || m.ReadOnly() {
			return MatchResponse{Event: EventMatch, Status: "fail", Message: "validation error"}
		}
		byMarket[r.MarketID] = append(byMarket[r.MarketID], market.Recommendation{
			MarketID:       r.MarketID,
			BidIDs:         r.BidIDs,
			OfferIDs:       r.OfferIDs,
			TradeRate:      decimalFromFloat(r.TradeRate),
			SelectedEnergy: decimalFromFloat(r.SelectedEnergy),
		})
	}

	for marketID, marketRecs := range byMarket {
		m := h.markets[marketID]
		for _, rec := range marketRecs {
			if err := m.ValidateBidOfferMatch(rec); err != nil {
				return MatchResponse{Event: EventMatch, Status: "fail", Message: "validation error"}
			}
		}
	}

	for marketID, marketRecs := range byMarket {
		select {
		case <-ctx.Done():
			return MatchResponse{Event: EventMatch, Status: "fail", Message: ctx.Err().Error()}
		default:
		}
		m := h.markets[marketID]
		if _, err := m.MatchRecommendations(marketRecs); err != nil {
			return MatchResponse{Event: EventMatch, Status: "fail", Message: "validation error"}
		}
	}
	return MatchResponse{Event: EventMatch, Status: "success"}
}
