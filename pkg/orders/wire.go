package orders

import "time"

// OfferWire and BidWire are the JSON wire representations of Offer/Bid used
// by the external matcher protocol (see internal/extmatcher). Declared as
// plain structs, rather than maps, so that encoding/json emits a stable
// field order regardless of map iteration.
type OfferWire struct {
	ID       string  `json:"id"`
	TimeSlot string  `json:"time_slot"`
	Price    string  `json:"price"`
	Energy   string  `json:"energy"`
	Seller   string  `json:"seller"`
	Rate     string  `json:"energy_rate"`
	Attrs    Attributes   `json:"attributes,omitempty"`
	Reqs     Requirements `json:"requirements,omitempty"`
}

type BidWire struct {
	ID       string       `json:"id"`
	TimeSlot string       `json:"time_slot"`
	Price    string       `json:"price"`
	Energy   string       `json:"energy"`
	Buyer    string       `json:"buyer"`
	Rate     string       `json:"energy_rate"`
	Attrs    Attributes   `json:"attributes,omitempty"`
	Reqs     Requirements `json:"requirements,omitempty"`
}

// ToWire converts an Offer into its stable JSON representation.
func (o Offer) ToWire() OfferWire {
	return OfferWire{
		ID:       o.ID,
		TimeSlot: o.TimeSlot.Format(time.RFC3339),
		Price:    o.Price.String(),
		Energy:   o.Energy.String(),
		Seller:   o.Seller,
		Rate:     o.Rate().String(),
		Attrs:    o.Attributes,
		Reqs:     o.Requirements,
	}
}

// ToWire converts a Bid into its stable JSON representation.
func (b Bid) ToWire() BidWire {
	return BidWire{
		ID:       b.ID,
		TimeSlot: b.TimeSlot.Format(time.RFC3339),
		Price:    b.Price.String(),
		Energy:   b.Energy.String(),
		Buyer:    b.Buyer,
		Rate:     b.Rate().String(),
		Attrs:    b.Attributes,
		Reqs:     b.Requirements,
	}
}

// TradeWire is the JSON wire representation of a cleared Trade.
type TradeWire struct {
	ID        string `json:"id"`
	TimeSlot  string `json:"time_slot"`
	Seller    string `json:"seller"`
	Buyer     string `json:"buyer"`
	OfferID   string `json:"offer_id"`
	BidID     string `json:"bid_id,omitempty"`
	TradeRate string `json:"trade_rate"`
	Energy    string `json:"energy"`
	Price     string `json:"price"`
	FeePrice  string `json:"fee_price"`
}

// ToWire converts a Trade into its stable JSON representation.
func (t Trade) ToWire() TradeWire {
	w := TradeWire{
		ID:        t.ID,
		TimeSlot:  t.TimeSlot.Format(time.RFC3339),
		Seller:    t.Seller,
		Buyer:     t.Buyer,
		OfferID:   t.Offer.ID,
		TradeRate: t.TradeRate.String(),
		Energy:    t.Energy.String(),
		Price:     t.Price().String(),
		FeePrice:  t.FeePrice.String(),
	}
	if t.Bid != nil {
		w.BidID = t.Bid.ID
	}
	return w
}
