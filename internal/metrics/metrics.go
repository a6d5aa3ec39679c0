package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sorting holds the bag lifecycle and HTTP metrics. A nil *Sorting is a no-op.
type Sorting struct {
	bagsCreated     *prometheus.CounterVec
	bagsProcessed   *prometheus.CounterVec
	sortedBagStatus *prometheus.CounterVec
	wizardCommits   *prometheus.CounterVec
	catalogCache    *prometheus.CounterVec
	shipmentUpdates *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Sorting {
	if reg == nil {
		return &Sorting{}
	}
	m := &Sorting{
		bagsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorting_bags_created_total",
			Help: "Bags created, by socket code and source.",
		}, []string{"socket", "source"}),
		bagsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorting_bags_processed_total",
			Help: "Bags marked processed, by trigger (manual or auto).",
		}, []string{"trigger"}),
		sortedBagStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorting_sorted_bag_status_total",
			Help: "Sorted bag saves, by resulting status.",
		}, []string{"status"}),
		wizardCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorting_wizard_commits_total",
			Help: "Wizard commit attempts, by result.",
		}, []string{"result"}),
		catalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorting_catalog_cache_total",
			Help: "Catalog lookup cache results.",
		}, []string{"result"}),
		shipmentUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorting_shipment_updates_total",
			Help: "Shipment status updates consumed from kafka, by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sorting_http_requests_total",
			Help: "HTTP requests, by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sorting_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.bagsCreated, m.bagsProcessed, m.sortedBagStatus, m.wizardCommits,
		m.catalogCache, m.shipmentUpdates, m.httpRequests, m.httpDuration,
	)
	return m
}

func (m *Sorting) BagCreated(socket, source string) {
	if m == nil || m.bagsCreated == nil {
		return
	}
	m.bagsCreated.WithLabelValues(normalizeLabel(socket), normalizeLabel(source)).Inc()
}

func (m *Sorting) BagProcessed(auto bool) {
	if m == nil || m.bagsProcessed == nil {
		return
	}
	trigger := "manual"
	if auto {
		trigger = "auto"
	}
	m.bagsProcessed.WithLabelValues(trigger).Inc()
}

func (m *Sorting) SortedBagSaved(status string) {
	if m == nil || m.sortedBagStatus == nil {
		return
	}
	m.sortedBagStatus.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Sorting) WizardCommit(result string) {
	if m == nil || m.wizardCommits == nil {
		return
	}
	m.wizardCommits.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Sorting) CatalogCache(hit bool) {
	if m == nil || m.catalogCache == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.catalogCache.WithLabelValues(result).Inc()
}

func (m *Sorting) ShipmentUpdate(result string) {
	if m == nil || m.shipmentUpdates == nil {
		return
	}
	m.shipmentUpdates.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Sorting) ObserveHTTP(method, route string, code int, took time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	route = normalizeLabel(route)
	m.httpRequests.WithLabelValues(method, route, codeLabel(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func codeLabel(code int) string {
	if code == 0 {
		code = 200
	}
	return strconv.Itoa(code)
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
