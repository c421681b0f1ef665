package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "records_total", Help: "Raw records decoded from upstream streams"},
		[]string{"stream"},
	)
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frames_dropped_total", Help: "Upstream frames that could not be decoded"},
		[]string{"stream"},
	)
	NormalizeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "normalize_errors_total", Help: "Records dropped by the normalizer"},
		[]string{"reason"},
	)
	EventsClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_classified_total", Help: "Classified events by category"},
		[]string{"category"},
	)
	EventsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "events_suppressed_total", Help: "Trivial events kept out of the hub"},
	)
	SubscriberDrops = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "subscriber_drops_total", Help: "Events evicted from full subscriber buffers"},
	)
	AdapterRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "adapter_restarts_total", Help: "Upstream adapter reconnect attempts"},
		[]string{"stream"},
	)
	AdapterState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "adapter_state", Help: "Adapter state: 0 stopped, 1 connecting, 2 running, 3 failed"},
		[]string{"stream"},
	)
	FeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "feed_clients", Help: "Connected dashboard viewers"},
	)
)

func init() {
	prometheus.MustRegister(
		RecordsTotal, FramesDropped, NormalizeErrors, EventsClassified, EventsSuppressed,
		SubscriberDrops, AdapterRestarts, AdapterState, FeedClients,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
