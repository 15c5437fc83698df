// Package metrics holds the pipeline counters. They live on their own
// registry so embedding programs can choose whether to expose them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MetricRecordsParsed        = "records_parsed_total"
	MetricRecordsRejected      = "records_rejected_total"
	MetricProductsFlushed      = "products_flushed_total"
	MetricMembershipsWritten   = "memberships_written_total"
	MetricMembershipsSkipped   = "memberships_skipped_total"
	MetricReviewsWritten       = "reviews_written_total"
	MetricFlushes              = "flushes_total"
	MetricCategoriesPersisted  = "categories_persisted_total"
	MetricCategoryEdges        = "category_edges_total"
	MetricCategoryEdgesSkipped = "category_edges_skipped_total"
	MetricRelatedPairs         = "related_pairs_total"
	MetricStageSeconds         = "stage_duration_seconds"
)

const namespace = "metaload"

var Registry = prometheus.NewRegistry()

var CounterRecordsParsed = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricRecordsParsed,
		Help:      "Records read from the corpus in the load pass.",
	},
)

var CounterRecordsRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricRecordsRejected,
		Help:      "Records dropped for a missing required field.",
	},
	[]string{
		"reason",
	},
)

var CounterProductsFlushed = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricProductsFlushed,
		Help:      "Product rows upserted.",
	},
)

var CounterMembershipsWritten = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricMembershipsWritten,
		Help:      "Product to category rows written.",
	},
)

var CounterMembershipsSkipped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricMembershipsSkipped,
		Help:      "Chain nodes on a record that did not resolve to a category.",
	},
)

var CounterReviewsWritten = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricReviewsWritten,
		Help:      "Review rows written.",
	},
)

var CounterFlushes = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricFlushes,
		Help:      "Committed load units.",
	},
)

var CounterCategoriesPersisted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricCategoriesPersisted,
		Help:      "Distinct category keys sent to the store.",
	},
)

var CounterCategoryEdges = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricCategoryEdges,
		Help:      "Parent/child category edges written.",
	},
)

var CounterCategoryEdgesSkipped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricCategoryEdgesSkipped,
		Help:      "Category edges dropped before writing.",
	},
	[]string{
		"reason",
	},
)

var CounterRelatedPairs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      MetricRelatedPairs,
		Help:      "Candidate related pairs by outcome.",
	},
	[]string{
		"outcome",
	},
)

var GaugeStageSeconds = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      MetricStageSeconds,
		Help:      "Wall time of the last run of each pipeline stage.",
	},
	[]string{
		"stage",
	},
)

func init() {
	Registry.MustRegister(CounterRecordsParsed)
	Registry.MustRegister(CounterRecordsRejected)
	Registry.MustRegister(CounterProductsFlushed)
	Registry.MustRegister(CounterMembershipsWritten)
	Registry.MustRegister(CounterMembershipsSkipped)
	Registry.MustRegister(CounterReviewsWritten)
	Registry.MustRegister(CounterFlushes)
	Registry.MustRegister(CounterCategoriesPersisted)
	Registry.MustRegister(CounterCategoryEdges)
	Registry.MustRegister(CounterCategoryEdgesSkipped)
	Registry.MustRegister(CounterRelatedPairs)
	Registry.MustRegister(GaugeStageSeconds)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
