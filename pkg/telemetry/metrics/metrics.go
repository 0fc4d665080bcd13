// Package metrics exposes the router's Prometheus metrics.
//
// All metrics live under the scribe_router namespace:
//
//	scribe_router_route_decisions_total{action}
//	scribe_router_classifier_duration_seconds
//	scribe_router_classifier_failures_total
//	scribe_router_registry_operations_total{operation, outcome}
//	scribe_router_approvals_pending
//	scribe_router_approval_resolutions_total{decision}
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hivemind-hq/scribe/pkg/approvals"
	"hivemind-hq/scribe/pkg/routing"
	"hivemind-hq/scribe/pkg/spaces"
)

const (
	namespace = "scribe"
	subsystem = "router"
)

// Collector owns the router's metric instances and their registry.
type Collector struct {
	registry *prometheus.Registry

	routeDecisions      *prometheus.CounterVec
	classifierDuration  prometheus.Histogram
	classifierFailures  prometheus.Counter
	registryOperations  *prometheus.CounterVec
	approvalsPending    prometheus.Gauge
	approvalResolutions *prometheus.CounterVec
}

// NewCollector creates and registers the router metrics. If registry is nil
// a fresh one is used.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,

		routeDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "route_decisions_total",
				Help:      "Routing verdicts by action",
			},
			[]string{"action"},
		),

		classifierDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "classifier_duration_seconds",
				Help:      "Duration of classifier evaluations in seconds",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
			},
		),

		classifierFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "classifier_failures_total",
				Help:      "Classifier evaluations that returned an error",
			},
		),

		registryOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "registry_operations_total",
				Help:      "Registry operations by name and outcome",
			},
			[]string{"operation", "outcome"},
		),

		approvalsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "approvals_pending",
				Help:      "Approvals currently waiting for a decision",
			},
		),

		approvalResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "approval_resolutions_total",
				Help:      "Approval resolutions by decision",
			},
			[]string{"decision"},
		),
	}

	registry.MustRegister(
		c.routeDecisions,
		c.classifierDuration,
		c.classifierFailures,
		c.registryOperations,
		c.approvalsPending,
		c.approvalResolutions,
	)

	return c
}

// RouteDecision counts one routing verdict. Implements routing.Observer.
func (c *Collector) RouteDecision(action routing.Action) {
	c.routeDecisions.WithLabelValues(string(action)).Inc()
}

// ClassifierCall records one classifier evaluation. Implements
// routing.Observer.
func (c *Collector) ClassifierCall(duration time.Duration, failed bool) {
	c.classifierDuration.Observe(duration.Seconds())
	if failed {
		c.classifierFailures.Inc()
	}
}

// RegistryOperation counts one registry call, outcome "ok" or "error".
// Implements spaces.Observer.
func (c *Collector) RegistryOperation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.registryOperations.WithLabelValues(operation, outcome).Inc()
}

// ApprovalQueued tracks a new pending approval. Implements
// routing.Observer.
func (c *Collector) ApprovalQueued() {
	c.approvalsPending.Inc()
}

// ApprovalResolved tracks an approval leaving the queue. Implements
// approvals.Observer.
func (c *Collector) ApprovalResolved(decision string) {
	c.approvalsPending.Dec()
	c.approvalResolutions.WithLabelValues(decision).Inc()
}

// SetPendingApprovals overwrites the pending gauge, used when reconciling
// against the store at startup.
func (c *Collector) SetPendingApprovals(n int) {
	c.approvalsPending.Set(float64(n))
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

var (
	_ routing.Observer   = (*Collector)(nil)
	_ spaces.Observer    = (*Collector)(nil)
	_ approvals.Observer = (*Collector)(nil)
)
