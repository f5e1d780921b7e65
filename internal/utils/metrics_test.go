package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < 3; i++ {
		mc.IncrementRequests()
	}
	mc.IncrementErrors()
	for i := 1; i <= 100; i++ {
		mc.AddOperationLatency("approve", time.Duration(i)*time.Millisecond)
	}

	snap := mc.Snapshot()
	assert.EqualValues(t, 3, snap.Requests)
	assert.EqualValues(t, 1, snap.Errors)

	stats, ok := snap.Operations["approve"]
	require.True(t, ok)
	assert.Equal(t, 100, stats.Count)
	assert.Equal(t, 96*time.Millisecond, stats.P95)
	assert.Equal(t, 100*time.Millisecond, stats.Max)
	assert.Equal(t, 50500*time.Microsecond, stats.Mean)
}

func TestMetricsKeepsBoundedWindow(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < maxSamples+10; i++ {
		mc.AddOperationLatency("like", time.Duration(i))
	}

	stats := mc.Snapshot().Operations["like"]
	assert.Equal(t, maxSamples, stats.Count)
	assert.Equal(t, time.Duration(maxSamples+9), stats.Max)
}

func TestMetricsConcurrentUse(t *testing.T) {
	mc := NewMetricsCollector()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				mc.IncrementRequests()
				mc.AddOperationLatency("create", time.Microsecond)
				_ = mc.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := mc.Snapshot()
	assert.EqualValues(t, 500, snap.Requests)
	assert.Equal(t, 500, snap.Operations["create"].Count)
}
