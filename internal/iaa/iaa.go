// Package iaa implements the Inter-Area Agent: the component that sits on
// every inner (non-leaf) Area and forwards child offers/bids into the
// parent market, then chains any resulting trade back down to the child
// that originated it.
package iaa

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gridsim/internal/fees"
	"gridsim/internal/market"
	"gridsim/pkg/orders"
)

// Agent forwards orders from a child market into a parent market, applying
// this area's grid fee on the way up, and chains trades back down.
//
// Locking: neither Agent nor market.Market takes any lock; both rely on the
// scheduler calling ForwardOffer/ChainTrade only from its single mutation
// thread.
type Agent struct {
	Parent *market.Market
	Child  *market.Market
	Fee    fees.Calculator

	// childOfferID -> parentOfferID and the reverse, for the upward pipe.
	offerUp   map[string]string
	offerDown map[string]string
	// childBidID -> parentBidID and the reverse, for the downward pipe.
	bidUp   map[string]string
	bidDown map[string]string
}

// New constructs an Agent wiring a child market up to a parent market
// through the given hop fee.
func New(parent, child *market.Market, fee fees.Calculator) *Agent {
	return &Agent{
		Parent:    parent,
		Child:     child,
		Fee:       fee,
		offerUp:   make(map[string]string),
		offerDown: make(map[string]string),
		bidUp:     make(map[string]string),
		bidDown:   make(map[string]string),
	}
}

// ForwardOffer posts a mirror of a child offer into the parent market, with
// its rate adjusted by this hop's fee, honoring MIN_OFFER_AGE before
// forwarding (to avoid cycle amplification across repeated forwarding
// passes within the same tick).
func (a *Agent) ForwardOffer(childOffer orders.Offer) (orders.Offer, error) {
	if a.Child.OrderAge(childOffer.ID) < market.MinOrderAge {
		return orders.Offer{}, fmt.Errorf("forward offer %s: too young to forward", childOffer.ID)
	}
	forwardedRate := a.Fee.Apply(childOffer.Rate())
	forwardedPrice := forwardedRate.Mul(childOffer.Energy)

	parentOffer, err := a.Parent.PostOffer(forwardedPrice, childOffer.Energy, childOffer.Seller, childOffer.SellerOrigin, childOffer.Attributes, childOffer.Requirements)
	if err != nil {
		return orders.Offer{}, fmt.Errorf("forward offer %s: %w", childOffer.ID, err)
	}
	a.offerUp[childOffer.ID] = parentOffer.ID
	a.offerDown[parentOffer.ID] = childOffer.ID
	return parentOffer, nil
}

// ForwardBid is the downward-pipe symmetric operation for two-sided
// markets: a parent bid is mirrored down into the child market.
func (a *Agent) ForwardBid(parentBid orders.Bid) (orders.Bid, error) {
	if a.Parent.OrderAge(parentBid.ID) < market.MinOrderAge {
		return orders.Bid{}, fmt.Errorf("forward bid %s: too young to forward", parentBid.ID)
	}
	// The child sees a less generous rate by the same hop fee, inverted:
	// a buyer-facing rate of R at the parent implies the child-facing
	// ceiling is R with the fee backed out.
	childRate := a.unapplyFee(parentBid.Rate())
	childPrice := childRate.Mul(parentBid.Energy)

	childBid, err := a.Child.PostBid(childPrice, parentBid.Energy, parentBid.Buyer, parentBid.BuyerOrigin, parentBid.Attributes, parentBid.Requirements)
	if err != nil {
		return orders.Bid{}, fmt.Errorf("forward bid %s: %w", parentBid.ID, err)
	}
	a.bidDown[parentBid.ID] = childBid.ID
	a.bidUp[childBid.ID] = parentBid.ID
	return childBid, nil
}

// ForwardEligibleOffers forwards every open child offer that is old enough
// to forward and has not already been forwarded this slot, skipping the
// rest rather than erroring, since "too young" and "already up" are both
// expected steady-state conditions on a tick where only some orders have
// aged past MinOrderAge.
func (a *Agent) ForwardEligibleOffers() ([]orders.Offer, error) {
	var forwarded []orders.Offer
	for _, co := range a.Child.Offers() {
		if _, already := a.offerUp[co.ID]; already {
			continue
		}
		if a.Child.OrderAge(co.ID) < market.MinOrderAge {
			continue
		}
		po, err := a.ForwardOffer(co)
		if err != nil {
			return forwarded, err
		}
		forwarded = append(forwarded, po)
	}
	return forwarded, nil
}

// ForwardEligibleBids is the downward-pipe symmetric operation.
func (a *Agent) ForwardEligibleBids() ([]orders.Bid, error) {
	var forwarded []orders.Bid
	for _, pb := range a.Parent.Bids() {
		if _, already := a.bidDown[pb.ID]; already {
			continue
		}
		if a.Parent.OrderAge(pb.ID) < market.MinOrderAge {
			continue
		}
		cb, err := a.ForwardBid(pb)
		if err != nil {
			return forwarded, err
		}
		forwarded = append(forwarded, cb)
	}
	return forwarded, nil
}

// ForwardedBy reports whether parentOfferID currently maps back to a child
// offer through this agent, i.e. whether this is the agent responsible for
// chaining a trade against that parent offer down to its origin.
func (a *Agent) ForwardedBy(parentOfferID string) bool {
	_, ok := a.offerDown[parentOfferID]
	return ok
}

func (a *Agent) unapplyFee(rate decimal.Decimal) decimal.Decimal {
	switch f := a.Fee.(type) {
	case fees.ConstantFee:
		return rate.Sub(f.FeeConst)
	case fees.PercentageFee:
		return rate.Div(decimal.NewFromInt(1).Add(f.FeePercentage))
	default:
		return rate
	}
}

// ChainTrade is called after a forwarded offer is accepted in the parent
// market: it accepts the original child offer on behalf of the true buyer,
// constructing a child-side trade whose fee_price equals this hop's fee.
// Partial fills propagate as residuals on both sides with the same split
// ratio. If the child side cannot be accepted, ChainTrade returns an error
// (see rollback); the parent-side trade stays recorded in the parent market.
func (a *Agent) ChainTrade(parentTrade orders.Trade) (orders.Trade, error) {
	childOfferID, ok := a.offerDown[parentTrade.Offer.ID]
	if !ok {
		return orders.Trade{}, a.rollback(parentTrade, fmt.Errorf("chain trade: no child offer mapped to parent offer %s", parentTrade.Offer.ID))
	}

	childOffer, ok := a.Child.Offer(childOfferID)
	if !ok {
		return orders.Trade{}, a.rollback(parentTrade, fmt.Errorf("chain trade: child offer %s vanished: %w", childOfferID, orders.ErrOfferNotFound))
	}

	sellerRate := childOffer.Rate()
	buyerRate := parentTrade.TradeRate
	feePrice := fees.FeePrice(parentTrade.Energy, sellerRate, buyerRate)

	childTrade, err := a.Child.AcceptOffer(childOfferID, market.AcceptOfferParams{
		Energy:    parentTrade.Energy,
		Buyer:     parentTrade.Buyer,
		TradeRate: sellerRate,
		FeePrice:  feePrice,
	})
	if err != nil {
		return orders.Trade{}, a.rollback(parentTrade, fmt.Errorf("chain trade: child accept failed: %w", err))
	}

	if childTrade.ResidualOfferID != "" {
		// Keep the forwarding map pointed at the new residual so a later
		// chained trade on the remainder resolves correctly. offerDown is
		// keyed by parent offer id, so the parent's own residual (not the
		// child's) is the key the next ChainTrade call will look up.
		delete(a.offerDown, parentTrade.Offer.ID)
		a.offerDown[parentTrade.ResidualOfferID] = childTrade.ResidualOfferID
	}
	return childTrade, nil
}

// rollback is invoked when chaining fails after the parent-side trade has
// already been recorded. It wraps the cause with the parent trade's id and
// returns it; it does not undo the parent trade, and the scheduler only
// logs the error.
func (a *Agent) rollback(parentTrade orders.Trade, cause error) error {
	return fmt.Errorf("rollback parent trade %s: %w", parentTrade.ID, cause)
}
