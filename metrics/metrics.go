package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "enclave_signer"

var (
	registry = prometheus.NewRegistry()

	exchangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exchanges_total",
		Help:      "Request/response exchanges with the enclave by request kind and outcome.",
	}, []string{"request", "outcome"})

	exchangeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "exchange_duration_seconds",
		Help:      "Latency of enclave exchanges.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"request"})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Signer API requests by route and status code.",
	}, []string{"route", "code"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		exchangesTotal,
		exchangeDuration,
		httpRequestsTotal,
	)
}

// RecordExchange counts one enclave exchange. outcome is "ok" or the error kind.
func RecordExchange(request, outcome string, duration time.Duration) {
	exchangesTotal.WithLabelValues(request, outcome).Inc()
	exchangeDuration.WithLabelValues(request).Observe(duration.Seconds())
}

// RecordHTTPRequest counts one API request under its numeric status code.
func RecordHTTPRequest(route string, code int) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the metrics registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// MetricsServer exposes Handler on its own listener.
type MetricsServer struct {
	*http.Server
}

// New builds a MetricsServer serving /metrics on addr.
func New(addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &MetricsServer{
		Server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}
