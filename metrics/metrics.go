package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for both worker pools.
type Metrics struct {
	Registry        *prometheus.Registry
	PagesTotal      prometheus.Counter
	ProductsTotal   *prometheus.CounterVec
	ImagesTotal     *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	RequestDuration prometheus.Histogram
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_listing_pages_total",
			Help: "Total listing pages fetched across all categories.",
		},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_products_total",
			Help: "Product outcomes by result (ingested, skipped, failed).",
		},
		[]string{"outcome"},
	)
	images := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_images_total",
			Help: "Image pipeline outcomes by result (uploaded, skipped, failed).",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_errors_total",
			Help: "Errors by classification.",
		},
		[]string{"error_type"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_request_duration_seconds",
			Help:    "Upstream HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(pages, products, images, errorsTotal, requestDuration)

	return &Metrics{
		Registry:        registry,
		PagesTotal:      pages,
		ProductsTotal:   products,
		ImagesTotal:     images,
		ErrorsTotal:     errorsTotal,
		RequestDuration: requestDuration,
	}
}

// IncPage increments the listing page counter.
func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncProduct records a product outcome.
func (m *Metrics) IncProduct(outcome string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(outcome).Inc()
}

// IncImage records an image pipeline outcome.
func (m *Metrics) IncImage(outcome string) {
	if m == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(outcome).Inc()
}

// IncError records an error by classification.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveDuration records one upstream request latency.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve starts a metrics listener on addr; it returns immediately.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go srv.ListenAndServe()
	return srv
}
