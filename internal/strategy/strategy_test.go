package strategy

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/internal/area"
	"gridsim/pkg/orders"
)

func newLeaf(t *testing.T) (*area.Tree, int) {
	t.Helper()
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tree := area.NewTree("grid", slot, nil, rand.New(rand.NewPCG(1, 1)))
	leaf := tree.AddChild(0, "producer-1", slot, nil, false, nil)
	return tree, leaf
}

func TestCommercialProducerRejectsInvalidEnergyRange(t *testing.T) {
	t.Parallel()
	_, err := NewCommercialProducer("p1", 80, 20, decimal.NewFromInt(1), rand.New(rand.NewPCG(1, 1)))
	if err == nil {
		t.Fatal("expected error for min > max energy range")
	}
}

func TestCommercialProducerPostsInitialBatchOnActivate(t *testing.T) {
	t.Parallel()
	tree, leafIdx := newLeaf(t)
	cp, err := NewCommercialProducer("producer-1", 20, 80, decimal.NewFromInt(30), rand.New(rand.NewPCG(2, 2)))
	if err != nil {
		t.Fatalf("NewCommercialProducer: %v", err)
	}
	tree.SetStrategy(leafIdx, cp)
	node := tree.Nodes[leafIdx]
	node.Market = tree.Nodes[0].Market // leaf trades in parent's market; attach for direct inspection

	cp.OnActivate(node)

	offers := tree.Nodes[0].Market.Offers()
	if len(offers) != defaultCommercialOffers {
		t.Errorf("len(offers) = %d, want %d", len(offers), defaultCommercialOffers)
	}
	for _, o := range offers {
		if o.Seller != "producer-1" {
			t.Errorf("offer seller = %q, want producer-1", o.Seller)
		}
	}
}

func TestCommercialProducerRepostsOnlyWhenItWasSeller(t *testing.T) {
	t.Parallel()
	tree, leafIdx := newLeaf(t)
	cp, err := NewCommercialProducer("producer-1", 20, 80, decimal.NewFromInt(30), rand.New(rand.NewPCG(2, 2)))
	if err != nil {
		t.Fatalf("NewCommercialProducer: %v", err)
	}
	node := tree.Nodes[leafIdx]
	node.Market = tree.Nodes[0].Market
	m := node.Market
	before := len(m.Offers())

	cp.OnTrade(node, orders.Trade{Seller: "someone-else"})
	if len(m.Offers()) != before {
		t.Error("should not repost when producer was not the seller")
	}

	cp.OnTrade(node, orders.Trade{Seller: "producer-1"})
	if len(m.Offers()) != before+1 {
		t.Error("should repost exactly one offer when producer was the seller")
	}
}

func TestTemplateLoadPostsBidFromForecast(t *testing.T) {
	t.Parallel()
	tree, leafIdx := newLeaf(t)
	forecast := make(chan float64, 1)
	forecast <- 500 // Wh
	close(forecast)

	load := NewTemplateLoad("house-1", forecast, 15*time.Minute, time.Minute)
	load.InitialRate = decimal.NewFromInt(30)
	load.FinalRate = decimal.NewFromInt(10)
	node := tree.Nodes[leafIdx]
	node.Market = tree.Nodes[0].Market

	load.OnMarketCycle(node, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	bids := node.Market.Bids()
	if len(bids) != 1 {
		t.Fatalf("len(bids) = %d, want 1", len(bids))
	}
	if !bids[0].Energy.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("bid energy = %v, want 0.5", bids[0].Energy)
	}
}
