package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates scan counters across all readers sharing it. A nil
// *Metrics disables collection.
type Metrics struct {
	rowsRead        prometheus.Counter
	rowsRetained    prometheus.Counter
	rowGroupsOpened prometheus.Counter
	blockBytes      prometheus.Histogram
}

// NewMetrics registers scan metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rowsRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: "stripescan",
			Name:      "rows_read_total",
			Help:      "Candidate rows evaluated by column readers.",
		}),
		rowsRetained: f.NewCounter(prometheus.CounterOpts{
			Namespace: "stripescan",
			Name:      "rows_retained_total",
			Help:      "Rows retained after filtering.",
		}),
		rowGroupsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: "stripescan",
			Name:      "row_groups_opened_total",
			Help:      "Row groups whose streams were actually opened.",
		}),
		blockBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stripescan",
			Name:      "block_bytes",
			Help:      "Size of produced column blocks in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}
}

func (m *Metrics) observeRead(read, retained int) {
	if m == nil {
		return
	}
	m.rowsRead.Add(float64(read))
	m.rowsRetained.Add(float64(retained))
}

func (m *Metrics) observeOpen() {
	if m == nil {
		return
	}
	m.rowGroupsOpened.Inc()
}

func (m *Metrics) observeBlock(bytes int64) {
	if m == nil {
		return
	}
	m.blockBytes.Observe(float64(bytes))
}
