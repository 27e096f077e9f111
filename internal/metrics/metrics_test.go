package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncTradesIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(tradesTotal.WithLabelValues("grid"))
	IncTrades("grid")
	after := testutil.ToFloat64(tradesTotal.WithLabelValues("grid"))
	if after != before+1 {
		t.Errorf("tradesTotal[grid] = %v, want %v", after, before+1)
	}
}

func TestSetAvgTradeRateOverwrites(t *testing.T) {
	SetAvgTradeRate("grid", 12.5)
	if got := testutil.ToFloat64(avgTradeRate.WithLabelValues("grid")); got != 12.5 {
		t.Errorf("avgTradeRate[grid] = %v, want 12.5", got)
	}
	SetAvgTradeRate("grid", 7.0)
	if got := testutil.ToFloat64(avgTradeRate.WithLabelValues("grid")); got != 7.0 {
		t.Errorf("avgTradeRate[grid] = %v, want 7.0 after overwrite", got)
	}
}

func TestHandlerReturnsNonNil(t *testing.T) {
	if Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}
