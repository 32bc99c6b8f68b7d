// Package metrics exposes the operational counters of the consolidator.
// All the record helpers are no-ops until StartMetricsHTTPServer runs, so
// library code can call them unconditionally.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func initMetrics() {
	if !initialized {
		registerer = prometheus.DefaultRegisterer
		counters = make(map[string]*prometheus.CounterVec)
		histograms = make(map[string]*prometheus.HistogramVec)
		initialized = true
	}

	registerCounter(prometheus.CounterOpts{Name: metricRouteCount}, labelRouteCase, labelDestChain)
	registerCounter(prometheus.CounterOpts{Name: metricRouteSourceLegs}, labelDestChain)
	registerCounter(prometheus.CounterOpts{Name: metricRouteNoPathCount}, labelDestChain)
	registerHistogram(prometheus.HistogramOpts{Name: metricQuoteLatency}, labelQuoteProvider)
	registerCounter(prometheus.CounterOpts{Name: metricQuoteFailureCount}, labelQuoteProvider, labelQuoteFailureMessage)
	registerCounter(prometheus.CounterOpts{Name: metricSettlementDepositCount}, labelChainID)
	registerCounter(prometheus.CounterOpts{Name: metricSettlementEventCount}, labelChainID, labelEventKind)
	registerHistogram(prometheus.HistogramOpts{Name: metricSettlementWaitTime}, labelChainID)
	registerCounter(prometheus.CounterOpts{Name: metricLegResultCount}, labelChainID, labelLegStatus)
}

// RecordRoute counts one resolved route by its shape (transfer, swap,
// bridge, bridge_swap or scatter_gather) together with how many source
// chains fund it.
func RecordRoute(routeCase string, destChainID uint64, sourceLegs int) {
	destChain := strconv.FormatUint(destChainID, 10)
	counterInc(metricRouteCount, map[string]string{labelRouteCase: routeCase, labelDestChain: destChain})
	for i := 0; i < sourceLegs; i++ {
		counterInc(metricRouteSourceLegs, map[string]string{labelDestChain: destChain})
	}
}

// RecordRouteNotFound counts a resolution that ended with no viable path.
func RecordRouteNotFound(destChainID uint64) {
	counterInc(metricRouteNoPathCount, map[string]string{labelDestChain: strconv.FormatUint(destChainID, 10)})
}

// RecordQuoteLatency records one provider round trip in milliseconds.
func RecordQuoteLatency(provider string, latency time.Duration) {
	histogramObserve(metricQuoteLatency, float64(latency/time.Millisecond), map[string]string{labelQuoteProvider: provider})
}

// RecordQuoteFailure counts a provider failure by its message.
func RecordQuoteFailure(provider, msg string) {
	counterInc(metricQuoteFailureCount, map[string]string{labelQuoteProvider: provider, labelQuoteFailureMessage: msg})
}

// RecordSettlementDeposit counts one bridge-delivered deposit on a chain.
func RecordSettlementDeposit(chainID uint64) {
	counterInc(metricSettlementDepositCount, map[string]string{labelChainID: strconv.FormatUint(chainID, 10)})
}

// RecordSettlementEvent counts one terminal settlement event (executed or
// refunded) and the time the job spent accumulating.
func RecordSettlementEvent(chainID uint64, kind string, waited time.Duration) {
	chain := strconv.FormatUint(chainID, 10)
	counterInc(metricSettlementEventCount, map[string]string{labelChainID: chain, labelEventKind: kind})
	histogramObserve(metricSettlementWaitTime, float64(waited/time.Second), map[string]string{labelChainID: chain})
}

// RecordLegResult counts one dispatched leg reaching a final submission state.
func RecordLegResult(chainID uint64, status string) {
	counterInc(metricLegResultCount, map[string]string{labelChainID: strconv.FormatUint(chainID, 10), labelLegStatus: status})
}
