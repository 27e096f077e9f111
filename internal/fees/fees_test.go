package fees

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestConstantFeeApply(t *testing.T) {
	t.Parallel()

	f := ConstantFee{FeeConst: decimal.NewFromFloat(0.02)}
	got := f.Apply(decimal.NewFromFloat(0.10))
	want := decimal.NewFromFloat(0.12)
	if !got.Equal(want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
}

func TestPercentageFeeApply(t *testing.T) {
	t.Parallel()

	f := PercentageFee{FeePercentage: decimal.NewFromFloat(0.10)}
	got := f.Apply(decimal.NewFromFloat(0.20))
	want := decimal.NewFromFloat(0.22)
	if !got.Equal(want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
}

func TestComposePathMultiHop(t *testing.T) {
	t.Parallel()

	hops := []Calculator{
		ConstantFee{FeeConst: decimal.NewFromFloat(0.01)},
		PercentageFee{FeePercentage: decimal.NewFromFloat(0.05)},
	}
	rates := ComposePath(decimal.NewFromFloat(0.10), hops)
	if len(rates) != 3 {
		t.Fatalf("len(rates) = %d, want 3", len(rates))
	}
	// 0.10 -> +0.01 = 0.11 -> *1.05 = 0.1155
	want := decimal.NewFromFloat(0.1155)
	if !rates[2].Equal(want) {
		t.Errorf("final rate = %v, want %v", rates[2], want)
	}
}

func TestFeePriceAccumulation(t *testing.T) {
	t.Parallel()

	energy := decimal.NewFromFloat(3)
	sellerRate := decimal.NewFromFloat(0.10)
	buyerRate := decimal.NewFromFloat(0.1155)
	got := FeePrice(energy, sellerRate, buyerRate)
	want := decimal.NewFromFloat(0.0465)
	if !got.Equal(want) {
		t.Errorf("FeePrice() = %v, want %v", got, want)
	}
}
