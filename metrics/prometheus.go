package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/flightpath-fi/consolidator-service/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mutex       sync.RWMutex
	registerer  prometheus.Registerer
	initialized bool

	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
)

func getLogger(metricName, metricType string) *log.Logger {
	return log.WithFields("metricName", metricName, "metricType", metricType)
}

// StartMetricsHTTPServer initializes the metrics registry and starts the
// prometheus metrics HTTP server. It blocks until the server stops.
func StartMetricsHTTPServer(c Config) {
	if !c.Enabled {
		return
	}

	initMetrics()

	mux := http.NewServeMux()
	mux.Handle(metricsEndpoint, promhttp.Handler())
	srv := &http.Server{
		Addr:        ":" + c.Port,
		Handler:     mux,
		ReadTimeout: 5 * time.Second, //nolint:gomnd
	}

	if err := srv.ListenAndServe(); err != nil {
		log.Errorf("serve metrics http server error: %v", err)
	}
}

func registerCounter(opt prometheus.CounterOpts, labelNames ...string) {
	logger := getLogger(opt.Name, typeCounter)
	if !initialized {
		return
	}
	mutex.Lock()
	defer mutex.Unlock()

	if _, ok := counters[opt.Name]; ok {
		return
	}

	collector := prometheus.NewCounterVec(opt, labelNames)
	if err := registerer.Register(collector); err != nil {
		logger.Errorf("metrics register error: %v", err)
		return
	}
	counters[opt.Name] = collector
}

func counterInc(name string, labelValues map[string]string) {
	if !initialized {
		return
	}

	c, ok := counters[name]
	if !ok {
		getLogger(name, typeCounter).Errorf("collector not found")
		return
	}
	c.With(labelValues).Inc()
}

func registerHistogram(opt prometheus.HistogramOpts, labelNames ...string) {
	logger := getLogger(opt.Name, typeHistogram)
	if !initialized {
		return
	}
	mutex.Lock()
	defer mutex.Unlock()

	if _, ok := histograms[opt.Name]; ok {
		return
	}

	collector := prometheus.NewHistogramVec(opt, labelNames)
	if err := registerer.Register(collector); err != nil {
		logger.Errorf("metrics register error: %v", err)
		return
	}
	histograms[opt.Name] = collector
}

func histogramObserve(name string, value float64, labelValues map[string]string) {
	if !initialized {
		return
	}

	c, ok := histograms[name]
	if !ok {
		getLogger(name, typeHistogram).Errorf("collector not found")
		return
	}
	c.With(labelValues).Observe(value)
}
