package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tokligence/tokligence-iosched/internal/device"
)

const namespace = "iosched"

// Fleet is the set of devices exported as metrics.
type Fleet interface {
	Snapshots() []device.Snapshot
}

// Collector exposes per-queue scheduler counters. Values are read from a
// fresh snapshot on every scrape, so nothing is kept in sync with dispatch.
type Collector struct {
	fleet Fleet

	enqueued *prometheus.Desc
	dequeued *prometheus.Desc
	backlog  *prometheus.Desc
	merges   *prometheus.Desc
	active   *prometheus.Desc
}

// NewCollector creates a collector over fleet.
func NewCollector(fleet Fleet) *Collector {
	labels := []string{"device", "queue"}
	return &Collector{
		fleet: fleet,
		enqueued: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "enqueued_total"),
			"Requests ever added to the queue.", labels, nil),
		dequeued: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "dequeued_total"),
			"Requests ever removed from the queue by dispatch or merge.", labels, nil),
		backlog: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "backlog"),
			"Requests currently resident in the queue.", labels, nil),
		merges: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "merges_total"),
			"Requests absorbed into a neighbour.", []string{"device"}, nil),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "active"),
			"1 while the device accepts requests.", []string{"device"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.enqueued
	ch <- c.dequeued
	ch <- c.backlog
	ch <- c.merges
	ch <- c.active
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, snap := range c.fleet.Snapshots() {
		for _, q := range snap.Queues {
			ch <- prometheus.MustNewConstMetric(c.enqueued, prometheus.CounterValue, float64(q.Enqueued), snap.Name, q.Name)
			ch <- prometheus.MustNewConstMetric(c.dequeued, prometheus.CounterValue, float64(q.Dequeued), snap.Name, q.Name)
			ch <- prometheus.MustNewConstMetric(c.backlog, prometheus.GaugeValue, float64(q.Backlog), snap.Name, q.Name)
		}
		ch <- prometheus.MustNewConstMetric(c.merges, prometheus.CounterValue, float64(snap.Merges), snap.Name)
		active := 0.0
		if snap.Active {
			active = 1
		}
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, active, snap.Name)
	}
}

// ReportCounter exposes the reporter's counts.
type ReportCounter interface {
	Counts() (reported, suppressed uint64)
}

// Registry is a private prometheus registry for one daemon.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry registers the queue collector plus Go runtime and process
// collectors.
func NewRegistry(fleet Fleet) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(fleet),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{reg: reg}
}

// WatchReporter exports the reporter's run and suppression counts.
func (r *Registry) WatchReporter(rc ReportCounter) {
	factory := promauto.With(r.reg)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reporter",
		Name:      "reports_total",
		Help:      "Snapshot reports written.",
	}, func() float64 {
		n, _ := rc.Counts()
		return float64(n)
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reporter",
		Name:      "suppressed_total",
		Help:      "Snapshot reports dropped by the rate limiter.",
	}, func() float64 {
		_, n := rc.Counts()
		return float64(n)
	})
}

// Gatherer exposes the underlying registry for tests and embedding.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
