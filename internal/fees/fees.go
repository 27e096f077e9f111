// Package fees implements the grid-fee calculator: constant and percentage
// fee stacking across the inter-area hops a trade traverses.
package fees

import "github.com/shopspring/decimal"

// Type enumerates the two supported grid-fee models.
type Type string

const (
	Constant   Type = "constant"
	Percentage Type = "percentage"
)

// Calculator applies one hop's fee to a seller-side rate, returning the
// rate the next hop up (toward the buyer) sees.
type Calculator interface {
	Type() Type
	// Apply returns the buyer-facing rate for this hop given the
	// seller-facing rate arriving from below.
	Apply(sellerRate decimal.Decimal) decimal.Decimal
}

// ConstantFee adds a flat currency amount per kWh at this hop.
type ConstantFee struct {
	FeeConst decimal.Decimal
}

func (ConstantFee) Type() Type { return Constant }

func (f ConstantFee) Apply(sellerRate decimal.Decimal) decimal.Decimal {
	return sellerRate.Add(f.FeeConst)
}

// PercentageFee multiplies the rate by (1 + pct) at this hop.
type PercentageFee struct {
	FeePercentage decimal.Decimal // e.g. 0.03 for 3%
}

func (PercentageFee) Type() Type { return Percentage }

func (f PercentageFee) Apply(sellerRate decimal.Decimal) decimal.Decimal {
	return sellerRate.Mul(decimal.NewFromInt(1).Add(f.FeePercentage))
}

// ComposePath applies each hop's fee in order, from the seller outward to
// the buyer, and returns the final buyer-facing rate plus the rate at each
// intermediate hop (index 0 = seller rate, last = buyer rate). The caller
// uses the endpoints to compute fee_price = energy * (buyerRate - sellerRate).
func ComposePath(sellerRate decimal.Decimal, hops []Calculator) []decimal.Decimal {
	rates := make([]decimal.Decimal, 0, len(hops)+1)
	rates = append(rates, sellerRate)
	rate := sellerRate
	for _, hop := range hops {
		rate = hop.Apply(rate)
		rates = append(rates, rate)
	}
	return rates
}

// FeePrice computes the total fee collected across a trade path for the
// given traded energy: energy * (buyerRate - sellerRate).
func FeePrice(energy decimal.Decimal, sellerRate, buyerRate decimal.Decimal) decimal.Decimal {
	return energy.Mul(buyerRate.Sub(sellerRate))
}
