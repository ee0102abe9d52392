package semkv

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a ready-made adapter.
type MetricsCollector interface {
	// RecordPut is called after each put operation.
	// duration is the total time taken, err is nil if successful.
	RecordPut(duration time.Duration, err error)

	// RecordGet is called after each get operation.
	RecordGet(duration time.Duration, err error)

	// RecordRemove is called after each remove operation.
	RecordRemove(duration time.Duration, err error)

	// RecordSearch is called after each k-NN or range search.
	// k is the number of neighbors requested (0 for range searches).
	RecordSearch(k int, duration time.Duration, err error)

	// RecordCommit is called after each commit with the bytes written.
	RecordCommit(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(time.Duration, error)           {}
func (NoopMetricsCollector) RecordGet(time.Duration, error)           {}
func (NoopMetricsCollector) RecordRemove(time.Duration, error)        {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordCommit(int64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PutCount         atomic.Int64
	PutErrors        atomic.Int64
	PutTotalNanos    atomic.Int64
	GetCount         atomic.Int64
	GetErrors        atomic.Int64
	RemoveCount      atomic.Int64
	RemoveErrors     atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitBytes      atomic.Int64
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(_ time.Duration, err error) {
	b.GetCount.Add(1)
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(_ time.Duration, err error) {
	b.RemoveCount.Add(1)
	if err != nil {
		b.RemoveErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(bytes int64, _ time.Duration, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
		return
	}
	b.CommitBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PutCount:       b.PutCount.Load(),
		PutErrors:      b.PutErrors.Load(),
		PutAvgNanos:    avg(b.PutTotalNanos.Load(), b.PutCount.Load()),
		GetCount:       b.GetCount.Load(),
		GetErrors:      b.GetErrors.Load(),
		RemoveCount:    b.RemoveCount.Load(),
		RemoveErrors:   b.RemoveErrors.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		CommitCount:    b.CommitCount.Load(),
		CommitErrors:   b.CommitErrors.Load(),
		CommitBytes:    b.CommitBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PutCount       int64
	PutErrors      int64
	PutAvgNanos    int64
	GetCount       int64
	GetErrors      int64
	RemoveCount    int64
	RemoveErrors   int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	CommitCount    int64
	CommitErrors   int64
	CommitBytes    int64
}
