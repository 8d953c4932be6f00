// Package harness accumulates latency samples and reduces them to order
// statistics. Percentiles use nearest-rank selection on a sorted copy of the
// samples: the smallest sample whose rank covers a fraction p of the run,
// zero-based index ceil(p*n)-1, no interpolation. This differs from
// floor(p*(n-1)) selection for some n: four samples at p=0.99 give index 3.
package harness

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Sample is one timed operation.
type Sample struct {
	Op       string
	Duration time.Duration
}

// Summary holds the statistics of a set of samples.
type Summary struct {
	Count int
	Mean  time.Duration
	Min   time.Duration
	Max   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Sum   time.Duration
}

// Harness is safe for concurrent use.
type Harness struct {
	mu      sync.Mutex
	samples []Sample
}

func New() *Harness {
	return &Harness{}
}

// Record appends d, truncated to microseconds. Negative durations are
// recorded as zero.
func (h *Harness) Record(op string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Microsecond)

	h.mu.Lock()
	h.samples = append(h.samples, Sample{Op: op, Duration: d})
	h.mu.Unlock()
}

// Time runs fn, records its elapsed time under op and returns fn's error.
func (h *Harness) Time(op string, fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	h.Record(op, elapsed)
	return elapsed, err
}

// Len returns the number of recorded samples.
func (h *Harness) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

// Samples returns a copy of the samples in arrival order.
func (h *Harness) Samples() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Sample, len(h.samples))
	copy(out, h.samples)
	return out
}

// Ops returns the distinct operation names in order of first appearance.
func (h *Harness) Ops() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	var ops []string
	for _, s := range h.samples {
		if _, ok := seen[s.Op]; !ok {
			seen[s.Op] = struct{}{}
			ops = append(ops, s.Op)
		}
	}
	return ops
}

// Reset drops all samples.
func (h *Harness) Reset() {
	h.mu.Lock()
	h.samples = nil
	h.mu.Unlock()
}

// Percentile returns the nearest-rank p-quantile over all samples.
func (h *Harness) Percentile(p float64) time.Duration {
	return Percentile(h.durations(""), p)
}

// Mean returns the arithmetic mean over all samples.
func (h *Harness) Mean() time.Duration {
	return Mean(h.durations(""))
}

// Summary reduces the samples of op. An empty op selects every sample.
func (h *Harness) Summary(op string) Summary {
	return Summarize(h.durations(op))
}

func (h *Harness) durations(op string) []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Duration, 0, len(h.samples))
	for _, s := range h.samples {
		if op == "" || s.Op == op {
			out = append(out, s.Duration)
		}
	}
	return out
}

// Percentile returns the nearest-rank p-quantile of a sorted copy of ds, or
// zero when ds is empty. p is clamped to [0, 1].
func Percentile(ds []time.Duration, p float64) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[rank(len(sorted), p)]
}

func rank(n int, p float64) int {
	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	// rankEpsilon keeps 0.95*100 from rounding up to rank 96.
	i := int(math.Ceil(p*float64(n)-rankEpsilon)) - 1
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}

const rankEpsilon = 1e-9

// Mean returns the arithmetic mean of ds, or zero when ds is empty.
func Mean(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

// Summarize computes every statistic from one sort of ds.
func Summarize(ds []time.Duration) Summary {
	if len(ds) == 0 {
		return Summary{}
	}
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	n := len(sorted)
	return Summary{
		Count: n,
		Sum:   sum,
		Mean:  sum / time.Duration(n),
		Min:   sorted[0],
		Max:   sorted[n-1],
		P50:   sorted[rank(n, 0.50)],
		P95:   sorted[rank(n, 0.95)],
		P99:   sorted[rank(n, 0.99)],
	}
}

// Throughput returns bytes per second. The caller must not pass a zero duration.
func Throughput(bytes int64, d time.Duration) float64 {
	return float64(bytes) / d.Seconds()
}
