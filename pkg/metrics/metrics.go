// Package metrics exposes collection activity as Prometheus metrics and keeps
// an in-memory log of slow operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "fongo"
	subsystem = "collection"
)

// Operation labels
const (
	OpInsert        = "insert"
	OpFind          = "find"
	OpCount         = "count"
	OpDistinct      = "distinct"
	OpUpdate        = "update"
	OpReplace       = "replace"
	OpFindAndModify = "find_and_modify"
	OpDelete        = "delete"
	OpCreateIndex   = "create_index"
	OpDropIndex     = "drop_index"
)

// Collector holds the Prometheus collectors of one database. Collectors are
// registered with the registerer given to NewCollector; a nil registerer
// keeps them unregistered.
type Collector struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	indexUse   *prometheus.CounterVec
	documents  *prometheus.GaugeVec
}

// NewCollector creates the collectors and registers them with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operations_total",
				Help:      "Total number of collection operations",
			},
			[]string{"collection", "operation"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_errors_total",
				Help:      "Total number of failed collection operations by error kind",
			},
			[]string{"collection", "operation", "kind"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Collection operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"operation"},
		),
		indexUse: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "index_selections_total",
				Help:      "Number of reads answered by each index; scan is true for full scans",
			},
			[]string{"collection", "index", "scan"},
		),
		documents: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "documents",
				Help:      "Number of documents stored in the collection",
			},
			[]string{"collection"},
		),
	}
}

// ObserveOperation counts an operation and its latency. kind is empty on
// success and names the error kind otherwise.
func (c *Collector) ObserveOperation(collection, operation string, start time.Time, kind string) {
	c.operations.WithLabelValues(collection, operation).Inc()
	c.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if kind != "" {
		c.failures.WithLabelValues(collection, operation, kind).Inc()
	}
}

// IndexSelected counts a read answered by index
func (c *Collector) IndexSelected(collection, index string, scan bool) {
	s := "false"
	if scan {
		s = "true"
	}
	c.indexUse.WithLabelValues(collection, index, s).Inc()
}

// SetDocuments records the current size of a collection
func (c *Collector) SetDocuments(collection string, n int) {
	c.documents.WithLabelValues(collection).Set(float64(n))
}

// ForgetCollection removes the series of a dropped collection
func (c *Collector) ForgetCollection(collection string) {
	labels := prometheus.Labels{"collection": collection}
	c.operations.DeletePartialMatch(labels)
	c.failures.DeletePartialMatch(labels)
	c.indexUse.DeletePartialMatch(labels)
	c.documents.DeletePartialMatch(labels)
}
