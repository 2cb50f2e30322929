// Package metrics exposes Prometheus counters for the publication workflow
// and gauges for stored totals.
package metrics

import (
	"context"
	"net/http"

	metricsstore "github.com/dalemusser/assistanthub/internal/app/store/metrics"
	"github.com/dalemusser/assistanthub/internal/app/system/timeouts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
)

// Step outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped" // object already existed
	OutcomeFailed  = "failed"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	sagaSteps      *prometheus.CounterVec
	sagaRuns       *prometheus.CounterVec
	memberRemovals *prometheus.CounterVec
}

// New registers the workflow collectors. When db is non-nil, stored totals
// are exported as gauges read at scrape time.
func New(db *mongo.Database) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sagaSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistanthub_publish_steps_total",
			Help: "Publication steps executed, by step and outcome",
		}, []string{"step", "outcome"}),
		sagaRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistanthub_publish_runs_total",
			Help: "Publication flows, by operation and outcome",
		}, []string{"operation", "outcome"}),
		memberRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistanthub_group_member_removals_total",
			Help: "Group member removals during soft delete, by outcome",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.sagaSteps, m.sagaRuns, m.memberRemovals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if db != nil {
		m.registry.MustRegister(newCountsCollector(db))
	}
	return m
}

// Step counts one executed publication step. Safe on a nil receiver.
func (m *Metrics) Step(step, outcome string) {
	if m == nil {
		return
	}
	m.sagaSteps.WithLabelValues(step, outcome).Inc()
}

// Run counts one finished publication flow. Safe on a nil receiver.
func (m *Metrics) Run(operation, outcome string) {
	if m == nil {
		return
	}
	m.sagaRuns.WithLabelValues(operation, outcome).Inc()
}

// MemberRemoval counts one group member removal attempt. Safe on a nil receiver.
func (m *Metrics) MemberRemoval(outcome string) {
	if m == nil {
		return
	}
	m.memberRemovals.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// countsCollector reads stored totals on every scrape.
type countsCollector struct {
	db            *mongo.Database
	organizations *prometheus.Desc
	assistants    *prometheus.Desc
	published     *prometheus.Desc
}

func newCountsCollector(db *mongo.Database) *countsCollector {
	return &countsCollector{
		db: db,
		organizations: prometheus.NewDesc("assistanthub_organizations",
			"Organizations stored", nil, nil),
		assistants: prometheus.NewDesc("assistanthub_assistants",
			"Assistants stored, by status", []string{"status"}, nil),
		published: prometheus.NewDesc("assistanthub_assistants_published",
			"Assistants with a routing key", nil, nil),
	}
}

func (c *countsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.organizations
	ch <- c.assistants
	ch <- c.published
}

func (c *countsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Short())
	defer cancel()

	counts := metricsstore.FetchCounts(ctx, c.db)
	ch <- prometheus.MustNewConstMetric(c.organizations, prometheus.GaugeValue, float64(counts.Organizations))
	ch <- prometheus.MustNewConstMetric(c.assistants, prometheus.GaugeValue, float64(counts.Assistants), "active")
	ch <- prometheus.MustNewConstMetric(c.assistants, prometheus.GaugeValue, float64(counts.Deleted), "deleted")
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.GaugeValue, float64(counts.Published))
}
