package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(true)

	c.Hit()
	c.Hit()
	c.Miss()
	c.Set()
	c.Delete()
	c.DeleteN(3)
	c.Error()

	s := c.Stats()
	assert.Equal(t, int64(2), s.Operations.Hits)
	assert.Equal(t, int64(1), s.Operations.Misses)
	assert.Equal(t, int64(1), s.Operations.Sets)
	assert.Equal(t, int64(4), s.Operations.Deletes)
	assert.Equal(t, int64(1), s.Operations.Errors)
}

func TestCollectorAvgLatency(t *testing.T) {
	c := NewCollector(true)

	c.Observe(10 * time.Millisecond)
	c.Observe(30 * time.Millisecond)

	s := c.Stats()
	assert.Equal(t, 20*time.Millisecond, s.Performance.AvgLatency)
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector(true)

	c.Hit()
	c.Set()
	c.Observe(time.Millisecond)
	c.Reset()

	s := c.Stats()
	assert.Zero(t, s.Operations.Hits)
	assert.Zero(t, s.Operations.Sets)
	assert.Zero(t, s.Performance.AvgLatency)
}

func TestCollectorDisabled(t *testing.T) {
	c := NewCollector(false)

	c.Hit()
	c.Miss()
	c.Error()
	c.Observe(time.Second)

	s := c.Stats()
	assert.Zero(t, s.Operations.Hits)
	assert.Zero(t, s.Operations.Misses)
	assert.Zero(t, s.Operations.Errors)
	assert.Zero(t, s.Performance.AvgLatency)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector(true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Hit()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5000), c.Stats().Operations.Hits)
}

func TestMemoryUsedPopulated(t *testing.T) {
	c := NewCollector(true)
	// RSS of a running test process should never be zero.
	assert.NotZero(t, c.Stats().Memory.Used)
}

func TestPrometheusCollector(t *testing.T) {
	c := NewCollector(true)
	c.Hit()
	c.Miss()
	c.Miss()

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewPrometheusCollector(c)))

	families, err := reg.Gather()
	require.NoError(t, err)

	found := map[string]float64{}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			if m.GetCounter() != nil {
				found[fam.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), found["projcache_hits_total"])
	assert.Equal(t, float64(2), found["projcache_misses_total"])
}
