package extmatcher

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/internal/market"
)

func newTestHub(t *testing.T) (*Hub, *market.Market) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := market.New(slot, "test-market", nil, rand.New(rand.NewPCG(1, 1)))
	hub.RegisterMarket("test-market", m)
	return hub, m
}

func TestMatchingDataReturnsOpenOrders(t *testing.T) {
	t.Parallel()
	hub, m := newTestHub(t)
	m.PostOffer(decimal.NewFromInt(10), decimal.NewFromInt(1), "seller-1", "", nil, nil)
	m.PostBid(decimal.NewFromInt(10), decimal.NewFromInt(1), "buyer-1", "", nil, nil)

	resp := hub.MatchingData(MatchingDataRequest{})
	if resp.Event != EventMatchingDataResponse {
		t.Errorf("Event = %v, want %v", resp.Event, EventMatchingDataResponse)
	}
	data, ok := resp.MatchingData["test-market"]
	if !ok {
		t.Fatal("expected test-market in matching data")
	}
	if len(data.Offers) != 1 || len(data.Bids) != 1 {
		t.Errorf("got %d offers, %d bids; want 1, 1", len(data.Offers), len(data.Bids))
	}
}

func TestMatchingDataFiltersByEnergyType(t *testing.T) {
	t.Parallel()
	hub, m := newTestHub(t)
	m.PostOffer(decimal.NewFromInt(10), decimal.NewFromInt(1), "seller-solar", "", map[string]string{"energy_type": "solar"}, nil)
	m.PostOffer(decimal.NewFromInt(10), decimal.NewFromInt(1), "seller-wind", "", map[string]string{"energy_type": "wind"}, nil)

	resp := hub.MatchingData(MatchingDataRequest{EnergyType: "solar"})
	data := resp.MatchingData["test-market"]
	if len(data.Offers) != 1 || data.Offers[0].Seller != "seller-solar" {
		t.Errorf("expected exactly the solar offer, got %+v", data.Offers)
	}
}

func TestMatchRecommendationsFailsForUnknownMarket(t *testing.T) {
	t.Parallel()
	hub, _ := newTestHub(t)
	resp := hub.MatchRecommendations(context.Background(), []Recommendation{{MarketID: "does-not-exist"}})
	if resp.Status != "fail" {
		t.Errorf("Status = %q, want fail", resp.Status)
	}
}

func TestMatchRecommendationsAppliesValidBatch(t *testing.T) {
	t.Parallel()
	hub, m := newTestHub(t)
	offer, err := m.PostOffer(decimal.NewFromInt(10), decimal.NewFromInt(1), "seller-1", "", nil, nil)
	if err != nil {
		t.Fatalf("PostOffer: %v", err)
	}
	bid, err := m.PostBid(decimal.NewFromInt(10), decimal.NewFromInt(1), "buyer-1", "", nil, nil)
	if err != nil {
		t.Fatalf("PostBid: %v", err)
	}
	m.SetTick(market.MinOrderAge)

	resp := hub.MatchRecommendations(context.Background(), []Recommendation{{
		MarketID:       "test-market",
		BidIDs:         []string{bid.ID},
		OfferIDs:       []string{offer.ID},
		TradeRate:      10,
		SelectedEnergy: 1,
	}})
	if resp.Status != "success" {
		t.Errorf("Status = %q, want success; message=%q", resp.Status, resp.Message)
	}
	if len(m.Trades()) != 1 {
		t.Errorf("len(Trades()) = %d, want 1", len(m.Trades()))
	}
}
