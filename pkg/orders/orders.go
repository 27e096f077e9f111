// Package orders defines the order-book value types shared across every
// market, matching, and IAA package — offers, bids, trades, and the
// residuals left behind by partial fills. It has no dependency on any
// internal package, so it can be imported by any layer.
package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side identifies whether an order model participates as a seller or buyer.
type Side string

const (
	SideOffer Side = "offer"
	SideBid   Side = "bid"
)

// Attributes carries free-form, matcher-visible metadata about an offer or
// bid (energy type, certification, panel brand, ...). It is opaque to the
// market and matching engines; only strategies and external matchers
// interpret it.
type Attributes map[string]string

// Requirements is a list of acceptable counter-party constraints. Each
// element is a flat key/value map (e.g. {"energy_type": "PV"}); an order
// matches a requirement set if it satisfies at least one element.
type Requirements []map[string]string

// Offer is a standing sell order resting in a Market's order book.
type Offer struct {
	ID             string
	TimeSlot       time.Time
	Price          decimal.Decimal // total price for Energy, not per-unit rate
	Energy         decimal.Decimal // kWh
	Seller         string
	SellerOrigin   string
	SellerOriginID string
	SellerID       string
	OriginalPrice  decimal.Decimal // price before fee adaptation, for fee accounting
	Attributes     Attributes
	Requirements   Requirements
}

// Rate returns the offer's price per unit of energy.
func (o Offer) Rate() decimal.Decimal {
	if o.Energy.IsZero() {
		return decimal.Zero
	}
	return o.Price.Div(o.Energy)
}

// Bid is a standing buy order resting in a two-sided Market's order book.
type Bid struct {
	ID            string
	TimeSlot      time.Time
	Price         decimal.Decimal
	Energy        decimal.Decimal
	Buyer         string
	BuyerOrigin   string
	BuyerOriginID string
	BuyerID       string
	OriginalPrice decimal.Decimal
	Attributes    Attributes
	Requirements  Requirements
}

// Rate returns the bid's price per unit of energy.
func (b Bid) Rate() decimal.Decimal {
	if b.Energy.IsZero() {
		return decimal.Zero
	}
	return b.Price.Div(b.Energy)
}

// Trade is the immutable record of a cleared match between a seller and a
// buyer for a given slot. TradeRate is the settlement rate actually paid,
// which may differ from either the offer's or the bid's posted rate
// depending on the matching engine's pricing rule (pay-as-offer,
// pay-as-bid, or pay-as-clear).
type Trade struct {
	ID              string
	TimeSlot        time.Time
	Seller          string
	SellerOrigin    string
	SellerOriginID  string
	SellerID        string
	Buyer           string
	BuyerOrigin     string
	BuyerOriginID   string
	BuyerID         string
	Offer           Offer
	Bid             *Bid // set only for trades made through Market.AcceptBid; nil otherwise
	TradeRate       decimal.Decimal
	Energy          decimal.Decimal
	FeePrice        decimal.Decimal // total grid fee collected across the trade path
	ResidualOfferID string          // non-empty if the offer was partially filled
	ResidualBidID   string          // non-empty if the bid was partially filled
}

// Price returns the total settlement amount for the trade (TradeRate × Energy).
func (t Trade) Price() decimal.Decimal {
	return t.TradeRate.Mul(t.Energy)
}

// OrderResidual describes the new order created to represent the unfilled
// remainder of a partially-accepted offer or bid, alongside the ID of the
// original order it replaces.
type OrderResidual struct {
	OriginalID string
	ResidualID string
	Side       Side
}

// NewID returns a fresh order/trade identifier.
func NewID() string {
	return uuid.NewString()
}
