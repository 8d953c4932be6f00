package harness

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a Harness as one summary per operation, named
// <namespace>_operation_duration_seconds with an "op" label.
func (h *Harness) Collector(namespace string) prometheus.Collector {
	return &collector{
		h: h,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "operation", "duration_seconds"),
			"Latency of timed operations (nearest-rank quantiles).",
			[]string{"op"}, nil,
		),
	}
}

type collector struct {
	h    *Harness
	desc *prometheus.Desc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, op := range c.h.Ops() {
		s := c.h.Summary(op)
		ch <- prometheus.MustNewConstSummary(
			c.desc,
			uint64(s.Count),
			s.Sum.Seconds(),
			map[float64]float64{
				0.5:  s.P50.Seconds(),
				0.95: s.P95.Seconds(),
				0.99: s.P99.Seconds(),
			},
			op,
		)
	}
}
