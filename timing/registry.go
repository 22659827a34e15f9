// Package timing accumulates per-operation execution-time statistics. It is
// the in-memory core of the debug toolkit: callers mark the start and end of
// named operations and the registry aggregates total time, call count, and
// average time per name.
package timing

import (
	"sort"
	"sync"
	"time"
)

// A record holds the accumulated timing state of one named operation.
type record struct {
	totalTime time.Duration
	callCount uint64

	// startTime is non-zero while a start has been issued without a
	// matching stop.
	startTime time.Time
}

func (r *record) averageTime() time.Duration {
	if r.callCount == 0 {
		return 0
	}

	return r.totalTime / time.Duration(r.callCount)
}

// TimingStats is an immutable copy of the statistics collected for one
// operation.
type TimingStats struct {
	Name        string
	TotalTime   time.Duration
	CallCount   uint64
	AverageTime time.Duration
}

// TotalMillis returns the total execution time in milliseconds.
func (s TimingStats) TotalMillis() float64 {
	return float64(s.TotalTime) / float64(time.Millisecond)
}

// AverageMillis returns the average execution time in milliseconds.
func (s TimingStats) AverageMillis() float64 {
	return float64(s.AverageTime) / float64(time.Millisecond)
}

// Registry collects timing measurements for named operations. All methods are
// safe to call from multiple goroutines.
type Registry struct {
	lock    sync.Mutex
	enabled bool
	records map[string]*record
}

// NewRegistry creates an empty, enabled Registry.
func NewRegistry() *Registry {
	return &Registry{
		enabled: true,
		records: make(map[string]*record),
	}
}

// Enabled returns whether the registry is currently collecting measurements.
func (r *Registry) Enabled() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.enabled
}

// SetEnabled enables or disables measurement collection. Disabling the
// registry discards all accumulated state, it does not merely suspend
// collection.
func (r *Registry) SetEnabled(enabled bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.enabled = enabled
	if !enabled {
		r.records = make(map[string]*record)
	}
}

// Start marks the beginning of one execution of the named operation. If a
// start has already been issued without a matching stop, the earlier
// in-flight interval is silently discarded and the mark is reset.
func (r *Registry) Start(name string) {
	now := time.Now()

	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.enabled {
		return
	}

	rec, ok := r.records[name]
	if !ok {
		rec = &record{}
		r.records[name] = rec
	}

	rec.startTime = now
}

// Stop marks the end of one execution of the named operation and adds the
// elapsed time to the accumulated total. A stop without a matching start is a
// no-op, so stray instrumentation never disturbs the measured code.
func (r *Registry) Stop(name string) {
	now := time.Now()

	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.enabled {
		return
	}

	rec, ok := r.records[name]
	if !ok || rec.startTime.IsZero() {
		return
	}

	rec.totalTime += now.Sub(rec.startTime)
	rec.callCount++
	rec.startTime = time.Time{}
}

// AverageTime returns the average execution time of the named operation. It
// returns 0 for operations that have never completed.
func (r *Registry) AverageTime(name string) time.Duration {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return 0
	}

	return rec.averageTime()
}

// TotalTime returns the accumulated execution time of the named operation.
func (r *Registry) TotalTime(name string) time.Duration {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return 0
	}

	return rec.totalTime
}

// CallCount returns the number of completed start/stop pairs recorded for the
// named operation. It returns 0 for unknown names.
func (r *Registry) CallCount(name string) uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return 0
	}

	return rec.callCount
}

// Snapshot returns a point-in-time copy of the statistics of all operations,
// sorted by operation name. Mutating the registry afterwards does not affect
// the returned slice.
func (r *Registry) Snapshot() []TimingStats {
	r.lock.Lock()
	defer r.lock.Unlock()

	stats := make([]TimingStats, 0, len(r.records))
	for name, rec := range r.records {
		stats = append(stats, TimingStats{
			Name:        name,
			TotalTime:   rec.totalTime,
			CallCount:   rec.callCount,
			AverageTime: rec.averageTime(),
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Name < stats[j].Name
	})

	return stats
}

// Clear discards all accumulated timing state.
func (r *Registry) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.records = make(map[string]*record)
}
