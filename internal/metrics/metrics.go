// Package metrics exposes Compound Pi's runtime counters as Prometheus
// metrics. The dynamic "how many repeaters/transactions are outstanding
// right now" gauge is a custom prometheus.Collector modeled on
// runZeroInc-sockstats' TCPInfoCollector: a mutex-guarded map of tracked
// objects with Describe/Collect instead of per-TCP_INFO-field gauges.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// OutstandingCollector tracks a named set of in-flight asynchronous
// operations (server response repeaters keyed by seqno, client
// transactions keyed by a correlation id) and reports the live count per
// kind as a gauge on each Collect, the same shape as a connection tracker
// that reports live connection count rather than exporting one metric per
// tracked item.
type OutstandingCollector struct {
	mu    sync.Mutex
	kinds map[string]map[string]struct{}
	desc  *prometheus.Desc
}

// NewOutstandingCollector builds a collector exposing one gauge per kind
// under the given fully-qualified metric name, labeled by "kind".
func NewOutstandingCollector(name, help string) *OutstandingCollector {
	return &OutstandingCollector{
		kinds: make(map[string]map[string]struct{}),
		desc:  prometheus.NewDesc(name, help, []string{"kind"}, nil),
	}
}

func (c *OutstandingCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.desc
}

func (c *OutstandingCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for kind, ids := range c.kinds {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(len(ids)), kind)
	}
}

// Track registers id as outstanding under kind.
func (c *OutstandingCollector) Track(kind, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.kinds[kind]
	if !ok {
		set = make(map[string]struct{})
		c.kinds[kind] = set
	}
	set[id] = struct{}{}
}

// Untrack removes id from the outstanding set for kind.
func (c *OutstandingCollector) Untrack(kind, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.kinds[kind]; ok {
		delete(set, id)
	}
}

// Registry bundles the collector above with the static counters/histograms
// Compound Pi's server and client register at startup.
type Registry struct {
	Outstanding *OutstandingCollector

	TransactionsTotal  *prometheus.CounterVec
	TransactionLatency *prometheus.HistogramVec
	DownloadBytesTotal prometheus.Counter
	WarningsTotal      *prometheus.CounterVec
}

// NewRegistry creates and registers Compound Pi's metrics against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests, multiple
// servers in one process) or prometheus.DefaultRegisterer in production.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Outstanding: NewOutstandingCollector(
			"compoundpi_outstanding",
			"Number of in-flight repeaters/transactions by kind.",
		),
		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compoundpi_transactions_total",
			Help: "Completed client transactions by command and outcome.",
		}, []string{"command", "outcome"}),
		TransactionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compoundpi_transaction_latency_seconds",
			Help:    "Wall-clock time from transaction issue to completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		DownloadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compoundpi_download_bytes_total",
			Help: "Bytes received over the TCP download transport.",
		}),
		WarningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compoundpi_warnings_total",
			Help: "Non-fatal per-packet warnings observed by the client.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		r.Outstanding,
		r.TransactionsTotal,
		r.TransactionLatency,
		r.DownloadBytesTotal,
		r.WarningsTotal,
	)
	return r
}
