package gotdd

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// nodesInterned counts node table misses that allocated a new node
	nodesInterned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tdd_nodes_interned_total",
		Help: "Total nodes allocated in TDD node tables",
	})

	// internHits counts intern calls answered by an existing node
	internHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tdd_intern_hits_total",
		Help: "Total intern calls that returned an existing node",
	})

	// liveNodes tracks nodes held by all node tables
	liveNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tdd_table_nodes",
		Help: "Nodes currently held by TDD node tables",
	})

	// tableResets counts node table resets
	tableResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tdd_table_resets_total",
		Help: "Total node table resets",
	})

	// opDuration tracks top-level operation latency
	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tdd_operation_duration_seconds",
		Help:    "TDD operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12), // 10µs to ~40s
	}, []string{"op"})
)

// observe records the duration of op since start.
func observe(op string, start time.Time) {
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
