package metric

import (
	"strconv"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
)

// quantiles exposed by Latency.
var quantiles = []float64{0.5, 0.95, 0.99}

// Latency tracks a distribution of durations in a t-digest and exposes its
// quantiles as gauges.
type Latency struct {
	name string
	desc *prometheus.Desc

	m      sync.Mutex
	digest *tdigest.TDigest
	count  uint64
	max    time.Duration
}

// NewLatency creates a tracker. name becomes part of the metric name.
func NewLatency(name, help string) *Latency {
	return &Latency{
		name: name,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name+"_seconds"),
			help,
			[]string{"quantile"},
			nil,
		),
		digest: tdigest.NewWithCompression(100),
	}
}

// Observe adds a sample.
func (l *Latency) Observe(d time.Duration) {
	l.m.Lock()
	defer l.m.Unlock()
	l.digest.Add(d.Seconds(), 1)
	l.count++
	if d > l.max {
		l.max = d
	}
}

// Quantile returns the estimated q quantile.
func (l *Latency) Quantile(q float64) time.Duration {
	l.m.Lock()
	defer l.m.Unlock()
	if l.count == 0 {
		return 0
	}
	return time.Duration(l.digest.Quantile(q) * float64(time.Second))
}

// Count returns number of samples.
func (l *Latency) Count() uint64 {
	l.m.Lock()
	defer l.m.Unlock()
	return l.count
}

// Max returns the largest sample.
func (l *Latency) Max() time.Duration {
	l.m.Lock()
	defer l.m.Unlock()
	return l.max
}

// Reset drops all samples.
func (l *Latency) Reset() {
	l.m.Lock()
	defer l.m.Unlock()
	l.digest = tdigest.NewWithCompression(100)
	l.count = 0
	l.max = 0
}

// Describe implements prometheus.Collector.
func (l *Latency) Describe(ch chan<- *prometheus.Desc) {
	ch <- l.desc
}

// Collect implements prometheus.Collector.
func (l *Latency) Collect(ch chan<- prometheus.Metric) {
	for _, q := range quantiles {
		ch <- prometheus.MustNewConstMetric(
			l.desc,
			prometheus.GaugeValue,
			l.Quantile(q).Seconds(),
			strconv.FormatFloat(q, 'f', -1, 64),
		)
	}
}

// ResetFunc returns new Measure closure. This closure is needed to postpone
// capture until the component is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures the time elapsed since its previous call.
type MeasureFunc func()

// Meter creates a closure that feeds intervals between calls into l.
func Meter(l *Latency) ResetFunc {
	return func() MeasureFunc {
		calledAt := time.Now()
		return func() {
			now := time.Now()
			l.Observe(now.Sub(calledAt))
			calledAt = now
		}
	}
}
