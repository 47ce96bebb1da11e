package metric_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/playout/metric"
)

func TestRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	assert.NoError(t, metric.Register(r))
	// second registration is skipped
	assert.NoError(t, metric.Register(r))
}

func TestReservoir(t *testing.T) {
	g := metric.Reservoir("test")
	g.Set(1024, 3)
	assert.Equal(t, 1024.0, testutil.ToFloat64(g.Occupancy))
	assert.Equal(t, 3.0, testutil.ToFloat64(g.Streams))
}

func TestLatency(t *testing.T) {
	l := metric.NewLatency("test_latency", "test latency")
	for i := 1; i <= 100; i++ {
		l.Observe(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, uint64(100), l.Count())
	assert.Equal(t, 100*time.Millisecond, l.Max())
	p50 := l.Quantile(0.5)
	assert.InDelta(t, float64(50*time.Millisecond), float64(p50), float64(3*time.Millisecond))
	assert.True(t, l.Quantile(0.99) > p50)

	r := prometheus.NewRegistry()
	assert.NoError(t, r.Register(l))
	assert.Equal(t, 3, testutil.CollectAndCount(l))

	l.Reset()
	assert.Equal(t, uint64(0), l.Count())
	assert.Equal(t, time.Duration(0), l.Quantile(0.5))
}

func TestMeter(t *testing.T) {
	tests := []struct {
		routines int
		calls    int
	}{
		{
			routines: 1,
			calls:    10,
		},
		{
			routines: 4,
			calls:    25,
		},
	}
	for _, c := range tests {
		l := metric.NewLatency("meter", "meter")
		wg := &sync.WaitGroup{}
		wg.Add(c.routines)
		for i := 0; i < c.routines; i++ {
			go func(measure metric.MeasureFunc) {
				defer wg.Done()
				for j := 0; j < c.calls; j++ {
					measure()
				}
			}(metric.Meter(l)())
		}
		wg.Wait()
		assert.Equal(t, uint64(c.routines*c.calls), l.Count())
	}
}
