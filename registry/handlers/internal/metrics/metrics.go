package metrics

import (
	"strconv"
	"time"

	"github.com/bkrepo/registry/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestDurationHist *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec

	timeSince = time.Since // for test purposes only
)

const (
	subsystem = "http"

	routeLabel  = "route"
	methodLabel = "method"
	codeLabel   = "code"

	requestDurationName = "request_duration_seconds"
	requestDurationDesc = "A histogram of latencies for API requests, by route."
	requestTotalName    = "requests_total"
	requestTotalDesc    = "A counter of API requests, by route, method and response code."
)

func init() {
	requestDurationHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      requestDurationName,
			Help:      requestDurationDesc,
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 5, 15, 60},
		},
		[]string{routeLabel, methodLabel},
	)

	requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      requestTotalName,
			Help:      requestTotalDesc,
		},
		[]string{routeLabel, methodLabel, codeLabel},
	)

	prometheus.MustRegister(requestDurationHist)
	prometheus.MustRegister(requestTotal)
}

// Request records a completed API request on the named route.
func Request(route, method string, code int, start time.Time) {
	requestDurationHist.WithLabelValues(route, method).Observe(timeSince(start).Seconds())
	requestTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}
