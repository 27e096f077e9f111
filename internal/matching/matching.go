// Package matching implements the three pluggable clearing algorithms that
// run against a market.Market's order book: one-sided (pay-as-offer),
// two-sided pay-as-bid, and two-sided pay-as-clear (uniform).
package matching

import (
	"fmt"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/shopspring/decimal"

	"gridsim/internal/market"
	"gridsim/pkg/orders"
)

// Engine clears a two-sided market's open bids against its open offers and
// returns the trades produced. Implementations must never clear against a
// readonly market and must respect market.MinOrderAge.
type Engine interface {
	Clear(m *market.Market) ([]orders.Trade, error)
}

// New resolves the configured clearing algorithm name to its Engine.
func New(algorithm string) (Engine, error) {
	switch algorithm {
	case "one_sided":
		return OneSided{}, nil
	case "pay_as_bid":
		return PayAsBid{}, nil
	case "pay_as_clear":
		return PayAsClear{}, nil
	default:
		return nil, fmt.Errorf("matching: unknown clearing algorithm %q", algorithm)
	}
}

func decimalCmp(a, b decimal.Decimal) int {
	return a.Cmp(b)
}

// matchable reports whether an order posted at the given age is eligible
// to participate in this tick's clearing.
func matchable(age int) bool {
	return age >= market.MinOrderAge
}

// sortedOffers returns open, age-eligible offers keyed by ascending rate in
// a red-black tree, grounded on the price-sorted order book idiom used for
// O(log n) best-price access. Offers sharing a rate are collected in a
// slice at that key in the order Market.Offers returns them, which is not
// posting order.
func sortedOffers(m *market.Market) *rbt.Tree[decimal.Decimal, []orders.Offer] {
	tree := rbt.NewWith[decimal.Decimal, []orders.Offer](decimalCmp)
	for _, o := range m.Offers() {
		if !matchable(m.OrderAge(o.ID)) {
			continue
		}
		rate := o.Rate()
		existing, _ := tree.Get(rate)
		tree.Put(rate, append(existing, o))
	}
	return tree
}

// sortedBids returns open, age-eligible bids keyed by rate (ascending in
// the tree; callers needing descending order iterate from the right).
func sortedBids(m *market.Market) *rbt.Tree[decimal.Decimal, []orders.Bid] {
	tree := rbt.NewWith[decimal.Decimal, []orders.Bid](decimalCmp)
	for _, b := range m.Bids() {
		if !matchable(m.OrderAge(b.ID)) {
			continue
		}
		rate := b.Rate()
		existing, _ := tree.Get(rate)
		tree.Put(rate, append(existing, b))
	}
	return tree
}
