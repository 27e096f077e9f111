package orders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestOfferRate(t *testing.T) {
	t.Parallel()

	o := Offer{
		Price:  decimal.NewFromFloat(3.0),
		Energy: decimal.NewFromFloat(1.5),
	}
	want := decimal.NewFromFloat(2.0)
	if !o.Rate().Equal(want) {
		t.Errorf("Rate() = %v, want %v", o.Rate(), want)
	}
}

func TestOfferRateZeroEnergy(t *testing.T) {
	t.Parallel()

	o := Offer{Price: decimal.NewFromFloat(3.0), Energy: decimal.Zero}
	if !o.Rate().Equal(decimal.Zero) {
		t.Errorf("Rate() with zero energy = %v, want 0", o.Rate())
	}
}

func TestTradePrice(t *testing.T) {
	t.Parallel()

	tr := Trade{
		TradeRate: decimal.NewFromFloat(0.25),
		Energy:    decimal.NewFromFloat(4),
	}
	want := decimal.NewFromFloat(1.0)
	if !tr.Price().Equal(want) {
		t.Errorf("Price() = %v, want %v", tr.Price(), want)
	}
}

func TestOfferToWireStableFields(t *testing.T) {
	t.Parallel()

	slot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o := Offer{
		ID:       "offer-1",
		TimeSlot: slot,
		Price:    decimal.NewFromFloat(2),
		Energy:   decimal.NewFromFloat(1),
		Seller:   "house-1",
	}
	w := o.ToWire()
	if w.ID != "offer-1" || w.Seller != "house-1" {
		t.Errorf("ToWire() lost fields: %+v", w)
	}
	if w.Rate != "2" {
		t.Errorf("ToWire() rate = %q, want %q", w.Rate, "2")
	}
}
