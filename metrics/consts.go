package metrics

const (
	metricsEndpoint = "/metrics"
)

// Metric types
const (
	typeGauge     = "gauge"
	typeCounter   = "counter"
	typeHistogram = "histogram"
)

// Metric names and labels
const (
	prefix = "flightpath_consolidator_"

	prefixRoute            = prefix + "route_"
	metricRouteCount       = prefixRoute + "count"
	metricRouteSourceLegs  = prefixRoute + "source_legs"
	metricRouteNoPathCount = prefixRoute + "no_path_count"
	labelRouteCase         = "case"
	labelDestChain         = "dest_chain"

	prefixQuote              = prefix + "quote_"
	metricQuoteLatency       = prefixQuote + "latency_ms"
	metricQuoteFailureCount  = prefixQuote + "failure_count"
	labelQuoteProvider       = "provider"
	labelQuoteFailureMessage = "msg"

	prefixSettlement             = prefix + "settlement_"
	metricSettlementDepositCount = prefixSettlement + "deposit_count"
	metricSettlementEventCount   = prefixSettlement + "event_count"
	metricSettlementWaitTime     = prefixSettlement + "wait_time_sec"
	labelChainID                 = "chain_id"
	labelEventKind               = "kind"

	prefixLeg            = prefix + "leg_"
	metricLegResultCount = prefixLeg + "result_count"
	labelLegStatus       = "status"
)
