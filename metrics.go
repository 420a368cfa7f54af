package gravix

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    upsertCounter prometheus.Counter
//	    getHistogram  prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordUpsert(duration time.Duration, err error) {
//	    p.upsertCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordGet is called after each get operation.
	// found reports whether the key was present, duration is the time taken.
	RecordGet(found bool, duration time.Duration)

	// RecordUpsert is called after each upsert operation.
	// duration is the total time taken, err is nil if successful.
	RecordUpsert(duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordIterate is called after each full or partial iteration.
	// yielded is the number of records handed to the caller.
	RecordIterate(yielded int, duration time.Duration)

	// RecordGrowth is called after each table growth cycle.
	// buckets is the new bucket count, err is nil if successful.
	RecordGrowth(buckets int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(bool, time.Duration)          {}
func (NoopMetricsCollector) RecordUpsert(time.Duration, error)      {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)      {}
func (NoopMetricsCollector) RecordIterate(int, time.Duration)       {}
func (NoopMetricsCollector) RecordGrowth(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCount         atomic.Int64
	GetMisses        atomic.Int64
	GetTotalNanos    atomic.Int64
	UpsertCount      atomic.Int64
	UpsertErrors     atomic.Int64
	UpsertTotalNanos atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	DeleteTotalNanos atomic.Int64
	IterateCount     atomic.Int64
	IterateYielded   atomic.Int64
	GrowthCount      atomic.Int64
	GrowthErrors     atomic.Int64
	GrowthTotalNanos atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(found bool, duration time.Duration) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if !found {
		b.GetMisses.Add(1)
	}
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	b.DeleteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordIterate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIterate(yielded int, duration time.Duration) {
	b.IterateCount.Add(1)
	b.IterateYielded.Add(int64(yielded))
}

// RecordGrowth implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGrowth(buckets int, duration time.Duration, err error) {
	b.GrowthCount.Add(1)
	b.GrowthTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GrowthErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetCount:       b.GetCount.Load(),
		GetMisses:      b.GetMisses.Load(),
		GetAvgNanos:    avgNanos(b.GetTotalNanos.Load(), b.GetCount.Load()),
		UpsertCount:    b.UpsertCount.Load(),
		UpsertErrors:   b.UpsertErrors.Load(),
		UpsertAvgNanos: avgNanos(b.UpsertTotalNanos.Load(), b.UpsertCount.Load()),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
		DeleteAvgNanos: avgNanos(b.DeleteTotalNanos.Load(), b.DeleteCount.Load()),
		IterateCount:   b.IterateCount.Load(),
		IterateYielded: b.IterateYielded.Load(),
		GrowthCount:    b.GrowthCount.Load(),
		GrowthErrors:   b.GrowthErrors.Load(),
		GrowthAvgNanos: avgNanos(b.GrowthTotalNanos.Load(), b.GrowthCount.Load()),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GetCount       int64
	GetMisses      int64
	GetAvgNanos    int64
	UpsertCount    int64
	UpsertErrors   int64
	UpsertAvgNanos int64
	DeleteCount    int64
	DeleteErrors   int64
	DeleteAvgNanos int64
	IterateCount   int64
	IterateYielded int64
	GrowthCount    int64
	GrowthErrors   int64
	GrowthAvgNanos int64
}
