package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Global collector instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Link-consistency metrics
	PropagationRuns    prometheus.Counter
	PropagationSkipped prometheus.Counter
	LinksRenamed       prometheus.Counter
	ConfusedLabels     prometheus.Counter
	ExcludedUsageNodes prometheus.Counter

	// Collaborator metrics
	Notifications *prometheus.CounterVec
	Broadcasts    *prometheus.CounterVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	// Use singleton pattern to avoid duplicate registration in tests
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	propagationRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "label_propagation_runs_total",
		Help:      "Total number of output label propagation runs",
	})

	propagationSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "label_propagation_skipped_total",
		Help:      "Propagation runs skipped because the label surface did not change",
	})

	linksRenamed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "links_renamed_total",
		Help:      "Total number of relations rewritten during label propagation",
	})

	confusedLabels := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "confused_labels_total",
		Help:      "Labels whose rename was ambiguous and therefore skipped",
	})

	excludedUsageNodes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "excluded_usage_nodes_total",
		Help:      "Input nodes excluded from usage scans due to undecodable or mismatching configuration",
	})

	notifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Audit notifications emitted, by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	broadcasts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_broadcasts_total",
			Help:      "Cluster lifecycle broadcasts, by event",
		},
		[]string{"event"},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		propagationRuns,
		propagationSkipped,
		linksRenamed,
		confusedLabels,
		excludedUsageNodes,
		notifications,
		broadcasts,
	)

	globalCollector = &Collector{
		registry:           registry,
		HTTPRequests:       httpRequests,
		HTTPDuration:       httpDuration,
		PropagationRuns:    propagationRuns,
		PropagationSkipped: propagationSkipped,
		LinksRenamed:       linksRenamed,
		ConfusedLabels:     confusedLabels,
		ExcludedUsageNodes: excludedUsageNodes,
		Notifications:      notifications,
		Broadcasts:         broadcasts,
	}
	return globalCollector
}

// Registry exposes the collector's registry for the /metrics handler
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
