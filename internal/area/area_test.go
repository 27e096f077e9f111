package area

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/internal/fees"
	"gridsim/pkg/orders"
)

type recordingStrategy struct {
	activated   bool
	ticks       []int
	cycles      []time.Time
	trades      []orders.Trade
	offersGone  []string
}

func (r *recordingStrategy) OnActivate(a *Node)                 { r.activated = true }
func (r *recordingStrategy) OnTick(a *Node, tick int)           { r.ticks = append(r.ticks, tick) }
func (r *recordingStrategy) OnMarketCycle(a *Node, slot time.Time) { r.cycles = append(r.cycles, slot) }
func (r *recordingStrategy) OnTrade(a *Node, t orders.Trade)     { r.trades = append(r.trades, t) }
func (r *recordingStrategy) OnOfferDeleted(a *Node, offerID string) {
	r.offersGone = append(r.offersGone, offerID)
}
func (r *recordingStrategy) ProduceForecast(slot time.Time) <-chan float64 {
	ch := make(chan float64, 1)
	ch <- 0
	close(ch)
	return ch
}

func TestAddChildWithOwnMarketCreatesIAA(t *testing.T) {
	t.Parallel()
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 1))
	tree := NewTree("grid", slot, nil, rng)

	houseIdx := tree.AddChild(0, "house", slot, nil, true, fees.ConstantFee{FeeConst: decimal.NewFromFloat(1)})

	node := tree.Nodes[houseIdx]
	if node.Market == nil {
		t.Fatal("expected own market on inner node")
	}
	if node.Agent == nil {
		t.Fatal("expected IAA agent bridging house to grid")
	}
	if node.ParentIdx != 0 {
		t.Errorf("ParentIdx = %d, want 0", node.ParentIdx)
	}
	if len(tree.Nodes[0].ChildIdx) != 1 || tree.Nodes[0].ChildIdx[0] != houseIdx {
		t.Error("root ChildIdx should reference the new node")
	}
}

func TestTradingMarketFallsBackToParent(t *testing.T) {
	t.Parallel()
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 1))
	tree := NewTree("grid", slot, nil, rng)
	leafIdx := tree.AddChild(0, "pv-1", slot, nil, false, nil)

	m := tree.TradingMarket(leafIdx)
	if m != tree.Nodes[0].Market {
		t.Error("leaf without own market should trade in its parent's market")
	}
}

func TestActivateTickMarketCycleDispatchToStrategies(t *testing.T) {
	t.Parallel()
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 1))
	tree := NewTree("grid", slot, nil, rng)
	leafIdx := tree.AddChild(0, "pv-1", slot, nil, false, nil)
	rec := &recordingStrategy{}
	tree.SetStrategy(leafIdx, rec)

	tree.Activate()
	tree.Tick(5)
	tree.MarketCycle(slot)

	if !rec.activated {
		t.Error("OnActivate not called")
	}
	if len(rec.ticks) != 1 || rec.ticks[0] != 5 {
		t.Errorf("ticks = %v, want [5]", rec.ticks)
	}
	if len(rec.cycles) != 1 {
		t.Errorf("cycles = %v, want 1 entry", rec.cycles)
	}
}

func TestRotateSealsAndReplacesOwningMarkets(t *testing.T) {
	t.Parallel()
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 1))
	tree := NewTree("grid", slot, nil, rng)
	houseIdx := tree.AddChild(0, "house", slot, nil, true, fees.ConstantFee{FeeConst: decimal.NewFromFloat(1)})
	leafIdx := tree.AddChild(houseIdx, "pv-1", slot, nil, false, nil)

	oldRoot := tree.Nodes[0].Market
	oldHouse := tree.Nodes[houseIdx].Market

	next := slot.Add(15 * time.Minute)
	tree.Rotate(next, 10)

	if !oldRoot.ReadOnly() || !oldHouse.ReadOnly() {
		t.Error("rotating should seal the previous slot's owning markets readonly")
	}
	if tree.Nodes[0].Market == oldRoot || tree.Nodes[houseIdx].Market == oldHouse {
		t.Error("rotating should replace each owning node's market with a fresh one")
	}
	if len(tree.Nodes[0].PastMarkets) != 1 || tree.Nodes[0].PastMarkets[0] != oldRoot {
		t.Error("the sealed root market should be archived to PastMarkets")
	}
	if tree.Nodes[houseIdx].Agent.Parent != tree.Nodes[0].Market {
		t.Error("house's rebuilt agent should bridge to the new root market")
	}
	if tree.Nodes[leafIdx].Market != tree.Nodes[houseIdx].Market {
		t.Error("leaf should follow its parent to the new market after rotation")
	}
}

func TestRotatePastMarketsRingIsBounded(t *testing.T) {
	t.Parallel()
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 1))
	tree := NewTree("grid", slot, nil, rng)

	for i := 0; i < 5; i++ {
		slot = slot.Add(15 * time.Minute)
		tree.Rotate(slot, 2)
	}
	if len(tree.Nodes[0].PastMarkets) != 2 {
		t.Errorf("PastMarkets length = %d, want 2", len(tree.Nodes[0].PastMarkets))
	}
}

func TestLeavesExcludesInnerNodes(t *testing.T) {
	t.Parallel()
	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 1))
	tree := NewTree("grid", slot, nil, rng)
	houseIdx := tree.AddChild(0, "house", slot, nil, true, fees.ConstantFee{FeeConst: decimal.NewFromFloat(1)})
	leafIdx := tree.AddChild(houseIdx, "pv-1", slot, nil, false, nil)

	leaves := tree.Leaves()
	if len(leaves) != 1 || leaves[0] != leafIdx {
		t.Errorf("Leaves() = %v, want [%d]", leaves, leafIdx)
	}
}
