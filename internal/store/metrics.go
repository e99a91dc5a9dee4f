package store

import (
	"sync"
	"sync/atomic"
)

const (
	// MetricSearchSession counts pathfinding searches that touched the store.
	MetricSearchSession = "s"
	// MetricDatabase counts database operations attempted.
	MetricDatabase = "db"
	// MetricDatabaseRetries counts database transaction retries due to
	// contention (serialization failure or deadlock).
	MetricDatabaseRetries = "dbr"
)

// Metrics is a tiny counter registry, enough for the segment store to report
// retry pressure without pulling in a full metrics client library.
type Metrics struct {
	counters sync.Map
}

// NewMetrics returns an empty Metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc increments the counter for key and returns its new value.
func (m *Metrics) Inc(key string) int64 {
	v, _ := m.counters.LoadOrStore(key, new(int64))
	counter := v.(*int64) //nolint:forcetypeassert
	return atomic.AddInt64(counter, 1)
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	out := map[string]int64{}
	m.counters.Range(func(key, value any) bool {
		out[key.(string)] = atomic.LoadInt64(value.(*int64)) //nolint:forcetypeassert
		return true
	})
	return out
}
