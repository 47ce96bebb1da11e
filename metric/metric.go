// Package metric exposes pipeline metrics to Prometheus.
//
// Vectors are package level and are updated whether registered or not,
// Register makes them visible to a registry.
package metric

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "playout"

var (
	reservoirOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reservoir_occupancy",
			Help:      "Queued bytes (encoded) or jiffies (decoded) per reservoir",
		},
		[]string{"reservoir"},
	)

	reservoirStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reservoir_streams",
			Help:      "Queued streams per reservoir",
		},
		[]string{"reservoir"},
	)

	rampsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ramps_total",
			Help:      "Ramps started per element and direction",
		},
		[]string{"element", "direction"},
	)

	starvationTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "starvation_total",
			Help:      "Unplanned underruns detected by the starvation monitor",
		},
	)

	buffering = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffering",
			Help:      "1 while the starvation monitor is buffering",
		},
	)

	haltsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "halts_total",
			Help:      "Halts emitted per originating element",
		},
		[]string{"origin"},
	)

	poolInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_in_use",
			Help:      "Messages taken from each pool",
		},
		[]string{"kind"},
	)

	state = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current pipeline state",
		},
		[]string{"state"},
	)
)

// Register adds all pipeline metrics to r. Metrics that are already
// registered are skipped.
func Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		reservoirOccupancy,
		reservoirStreams,
		rampsTotal,
		starvationTotal,
		buffering,
		haltsTotal,
		poolInUse,
		state,
	} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Gauges of a single reservoir.
type Gauges struct {
	Occupancy prometheus.Gauge
	Streams   prometheus.Gauge
}

// Reservoir returns gauges for the named reservoir.
func Reservoir(name string) Gauges {
	return Gauges{
		Occupancy: reservoirOccupancy.WithLabelValues(name),
		Streams:   reservoirStreams.WithLabelValues(name),
	}
}

// Set updates both gauges.
func (g Gauges) Set(occupancy uint64, streams int) {
	g.Occupancy.Set(float64(occupancy))
	g.Streams.Set(float64(streams))
}

// Ramp counts a ramp started by element.
func Ramp(element, direction string) {
	rampsTotal.WithLabelValues(element, direction).Inc()
}

// Starvation counts an unplanned underrun.
func Starvation() {
	starvationTotal.Inc()
}

// Buffering sets the buffering gauge.
func Buffering(b bool) {
	if b {
		buffering.Set(1)
		return
	}
	buffering.Set(0)
}

// Halt counts a halt emitted by origin.
func Halt(origin string) {
	haltsTotal.WithLabelValues(origin).Inc()
}

// PoolInUse sets number of taken messages of a kind.
func PoolInUse(kind string, n int) {
	poolInUse.WithLabelValues(kind).Set(float64(n))
}

// State marks current as the only active state out of all.
func State(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		state.WithLabelValues(s).Set(v)
	}
}
