// Package metrics exposes Prometheus counters/gauges for the running
// simulation. Grounded on chidi150c-coinbase's prometheus/client_golang
// usage (registered in init, served by an HTTP handler at /metrics) — the
// teacher repo itself has no metrics package. The scheduler and markets do
// not call the increment functions; cmd/gridsim wires in only Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridsim_trades_total",
			Help: "Trades cleared, by market.",
		},
		[]string{"market"},
	)

	tradedEnergyKWh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridsim_traded_energy_kwh_total",
			Help: "Energy traded in kWh, by market.",
		},
		[]string{"market"},
	)

	ordersPostedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridsim_orders_posted_total",
			Help: "Offers/bids posted, by market and side.",
		},
		[]string{"market", "side"},
	)

	avgTradeRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridsim_avg_trade_rate",
			Help: "Average trade rate of the most recently cleared slot, by market.",
		},
		[]string{"market"},
	)

	ticksProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridsim_ticks_processed_total",
			Help: "Scheduler ticks processed.",
		},
	)

	externalMatcherTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridsim_external_matcher_timeouts_total",
			Help: "Times the external matcher round trip exceeded its timeout.",
		},
	)
)

func init() {
	prometheus.MustRegister(tradesTotal, tradedEnergyKWh, ordersPostedTotal)
	prometheus.MustRegister(avgTradeRate)
	prometheus.MustRegister(ticksProcessed, externalMatcherTimeouts)
}

// IncTrades records one cleared trade for a market.
func IncTrades(market string) { tradesTotal.WithLabelValues(market).Inc() }

// AddTradedEnergy accumulates traded energy (kWh) for a market.
func AddTradedEnergy(market string, kwh float64) {
	tradedEnergyKWh.WithLabelValues(market).Add(kwh)
}

// IncOrdersPosted records one offer or bid posted into a market.
func IncOrdersPosted(market, side string) {
	ordersPostedTotal.WithLabelValues(market, side).Inc()
}

// SetAvgTradeRate reports the average trade rate for a market's most
// recently cleared slot.
func SetAvgTradeRate(market string, rate float64) {
	avgTradeRate.WithLabelValues(market).Set(rate)
}

// IncTick records one scheduler tick processed.
func IncTick() { ticksProcessed.Inc() }

// IncExternalMatcherTimeout records one external-matcher round trip that
// exceeded its timeout and fell back to an empty result.
func IncExternalMatcherTimeout() { externalMatcherTimeouts.Inc() }

// Handler returns the HTTP handler serving the Prometheus exposition
// format at the configured metrics address.
func Handler() http.Handler {
	return promhttp.Handler()
}
