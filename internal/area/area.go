// Package area implements the hierarchical microgrid area tree: an
// arena-backed tree of areas, each either a leaf running a Strategy or an
// inner node bridging its children's spot market to its own via an
// inter-area agent.
//
// Arena-based (parent/child indices into a flat slice) rather than
// pointer-linked, so the tree can be built bottom-up from a parsed
// scenario description without worrying about cyclic references.
package area

import (
	"math/rand/v2"
	"time"

	"gridsim/internal/fees"
	"gridsim/internal/iaa"
	"gridsim/internal/market"
	"gridsim/pkg/orders"
)

// Strategy is the capability set a leaf area's device behavior implements.
// Every method is a no-op hook; a concrete strategy implements only the
// ones relevant to it (most embed Base from the strategy package to
// get the rest for free).
type Strategy interface {
	OnActivate(a *Node)
	OnTick(a *Node, tick int)
	OnMarketCycle(a *Node, slot time.Time)
	OnTrade(a *Node, t orders.Trade)
	OnOfferDeleted(a *Node, offerID string)
	// ProduceForecast returns the next forecast energy value (Wh) for the
	// given future slot. The physics model producing this sequence is an
	// external collaborator; Strategy only consumes it.
	ProduceForecast(slot time.Time) <-chan float64
}

// Node is one area in the tree: either an inner node (len(ChildIdx) > 0,
// Agent != nil) bridging children to its own spot market, or a leaf
// (Strategy != nil) trading directly in its parent's market.
type Node struct {
	Name       string
	ParentIdx  int // -1 for the root
	ChildIdx   []int

	Market      *market.Market   // the market this node trades in: its own for inner nodes, its parent's for leaves
	PastMarkets []*market.Market // bounded ring of this node's own sealed markets, most recent last (inner nodes only)
	Agent       *iaa.Agent       // set on inner nodes: bridges ChildIdx markets up to Market
	Strategy    Strategy         // set on leaves
}

// Tree is the arena holding every Node; index 0 is always the root.
type Tree struct {
	Nodes    []*Node
	gridFees []fees.Calculator
	rng      *rand.Rand
}

// NewTree constructs an empty tree with the given root name.
func NewTree(rootName string, slot time.Time, gridFees []fees.Calculator, rng *rand.Rand) *Tree {
	root := &Node{
		Name:      rootName,
		ParentIdx: -1,
		Market:    market.New(slot, rootName, gridFees, rng),
	}
	return &Tree{Nodes: []*Node{root}, gridFees: gridFees, rng: rng}
}

// AddChild appends a new child area under parentIdx and returns its index.
// If ownMarket is true the child gets its own market.Market and an IAA
// bridging it to the parent (an inner node); otherwise it is a leaf that
// will trade directly in the parent's market once a Strategy is attached.
func (t *Tree) AddChild(parentIdx int, name string, slot time.Time, gridFees []fees.Calculator, ownMarket bool, hopFee fees.Calculator) int {
	idx := len(t.Nodes)
	n := &Node{Name: name, ParentIdx: parentIdx}
	if ownMarket {
		n.Market = market.New(slot, name, gridFees, t.rng)
		n.Agent = iaa.New(t.Nodes[parentIdx].Market, n.Market, hopFee)
	} else {
		// A leaf has no market of its own; it trades directly in its
		// parent's, so Market is populated here rather than left nil.
		n.Market = t.Nodes[parentIdx].Market
	}
	t.Nodes = append(t.Nodes, n)
	t.Nodes[parentIdx].ChildIdx = append(t.Nodes[parentIdx].ChildIdx, idx)
	return idx
}

// SetStrategy attaches a leaf strategy to the node at idx.
func (t *Tree) SetStrategy(idx int, s Strategy) {
	t.Nodes[idx].Strategy = s
}

// TradingMarket returns the market.Market a leaf at idx posts orders into:
// its own market if it has one, else its parent's.
func (t *Tree) TradingMarket(idx int) *market.Market {
	n := t.Nodes[idx]
	if n.Market != nil {
		return n.Market
	}
	if n.ParentIdx >= 0 {
		return t.Nodes[n.ParentIdx].Market
	}
	return nil
}

// Activate calls OnActivate on every leaf strategy, in tree order.
func (t *Tree) Activate() {
	for _, n := range t.Nodes {
		if n.Strategy != nil {
			n.Strategy.OnActivate(n)
		}
	}
}

// Tick calls OnTick on every leaf strategy, in tree order.
func (t *Tree) Tick(tick int) {
	for _, n := range t.Nodes {
		if n.Strategy != nil {
			n.Strategy.OnTick(n, tick)
		}
	}
}

// MarketCycle calls OnMarketCycle on every leaf strategy, in tree order.
func (t *Tree) MarketCycle(slot time.Time) {
	for _, n := range t.Nodes {
		if n.Strategy != nil {
			n.Strategy.OnMarketCycle(n, slot)
		}
	}
}

// Rotate seals every node's own market readonly, archives it into that
// node's bounded past-markets ring (dropping the oldest once keepPast is
// exceeded), and replaces it with a fresh market for slot. Leaves are
// re-pointed at their parent's new market and inner-node agents are rebuilt
// to bridge the new market pair.
//
// Relies on the same invariant AddChild maintains: a node's parent always
// appears earlier in t.Nodes, so iterating in index order guarantees a
// parent's market is already rotated by the time its children are visited.
func (t *Tree) Rotate(slot time.Time, keepPast int) {
	for i, n := range t.Nodes {
		ownsMarket := i == 0 || n.Agent != nil
		if !ownsMarket {
			n.Market = t.Nodes[n.ParentIdx].Market
			continue
		}

		old := n.Market
		old.Close()
		n.PastMarkets = append(n.PastMarkets, old)
		if over := len(n.PastMarkets) - keepPast; keepPast > 0 && over > 0 {
			n.PastMarkets = n.PastMarkets[over:]
		}

		n.Market = market.New(slot, n.Name, t.gridFees, t.rng)
		if n.Agent != nil {
			n.Agent = iaa.New(t.Nodes[n.ParentIdx].Market, n.Market, n.Agent.Fee)
		}
	}
}

// Leaves returns the indices of every node without children.
func (t *Tree) Leaves() []int {
	var out []int
	for i, n := range t.Nodes {
		if len(n.ChildIdx) == 0 {
			out = append(out, i)
		}
	}
	return out
}
