// Package metrics provides lightweight, lock-free counters for a
// client.Context, using atomic operations so they impose minimal overhead
// on hot paths shared by many concurrent requests.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks aggregate statistics for one client.Context.
//
// All counters are accessed exclusively through atomic operations, which means:
//   - There is no mutex contention no matter how many goroutines share one
//     client.Context.
//   - The struct may be embedded or passed as a pointer without additional
//     synchronisation.
//   - Reads and writes are linearisable: a value read after a write always
//     reflects at least that write.
//
// Fields are uint64 and aligned to 64-bit boundaries to satisfy the
// requirements of sync/atomic on 32-bit platforms.
type Metrics struct {
	// TotalRequests is the number of HTTP requests dispatched since startup.
	TotalRequests uint64

	// Success is the number of requests that received a non-error response.
	Success uint64

	// Failed is the number of requests whose Do call returned an error: a
	// transport failure, too many redirects, a redirect cycle, or an
	// undecodable body. A response of any status code, 4xx and 5xx
	// included, counts as Success instead.
	Failed uint64

	// PoolHits is the number of pool.Acquire calls that were satisfied by
	// an idle pooled connection instead of a fresh dial.
	PoolHits uint64

	// PoolMisses is the number of pool.Acquire calls that required a
	// fresh connect (no idle connection available, or none reusable).
	PoolMisses uint64

	// Connects is the number of connectjob.Job.Dial calls that
	// successfully produced a connection (direct or through a proxy).
	Connects uint64

	// ConnectFailures is the number of connectjob.Job.Dial calls that
	// returned an error.
	ConnectFailures uint64

	// BrokenConnRetries is the number of times request.Client transparently
	// retried a request after a reused pooled connection turned out to be
	// broken (spec.md §4.7's single-retry rule).
	BrokenConnRetries uint64

	// RedirectsFollowed is the number of redirect hops followed across all
	// Do calls.
	RedirectsFollowed uint64

	// startTime records when the metrics instance was created so that
	// RequestsPerSecond can compute a meaningful rate.
	startTime time.Time
}

// NewMetrics creates a Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// IncrementTotal atomically increments the total-requests counter.
func (m *Metrics) IncrementTotal() {
	atomic.AddUint64(&m.TotalRequests, 1)
}

// IncrementSuccess atomically increments the successful-requests counter.
func (m *Metrics) IncrementSuccess() {
	atomic.AddUint64(&m.Success, 1)
}

// IncrementFailed atomically increments the failed-requests counter.
func (m *Metrics) IncrementFailed() {
	atomic.AddUint64(&m.Failed, 1)
}

// IncrementPoolHit atomically increments the pool-hit counter.
func (m *Metrics) IncrementPoolHit() {
	atomic.AddUint64(&m.PoolHits, 1)
}

// IncrementPoolMiss atomically increments the pool-miss counter.
func (m *Metrics) IncrementPoolMiss() {
	atomic.AddUint64(&m.PoolMisses, 1)
}

// IncrementConnect atomically increments the successful-connect counter.
func (m *Metrics) IncrementConnect() {
	atomic.AddUint64(&m.Connects, 1)
}

// IncrementConnectFailure atomically increments the connect-failure counter.
func (m *Metrics) IncrementConnectFailure() {
	atomic.AddUint64(&m.ConnectFailures, 1)
}

// IncrementBrokenConnRetry atomically increments the broken-connection
// retry counter.
func (m *Metrics) IncrementBrokenConnRetry() {
	atomic.AddUint64(&m.BrokenConnRetries, 1)
}

// IncrementRedirect atomically increments the redirects-followed counter.
func (m *Metrics) IncrementRedirect() {
	atomic.AddUint64(&m.RedirectsFollowed, 1)
}

// RequestsPerSecond returns the average request rate since the Metrics
// instance was created.  Returns 0 if no time at all has elapsed since
// creation, to avoid division by zero.
func (m *Metrics) RequestsPerSecond() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&m.TotalRequests)) / elapsed
}

// Snapshot returns a point-in-time copy of the request-outcome counters.
// Because the loads are not performed under a single lock, the snapshot
// may be very slightly inconsistent at nanosecond granularity, which is
// acceptable for monitoring purposes.
func (m *Metrics) Snapshot() (total, success, failed uint64) {
	return atomic.LoadUint64(&m.TotalRequests),
		atomic.LoadUint64(&m.Success),
		atomic.LoadUint64(&m.Failed)
}

// PoolSnapshot returns a point-in-time copy of the pool-related counters.
func (m *Metrics) PoolSnapshot() (hits, misses uint64) {
	return atomic.LoadUint64(&m.PoolHits), atomic.LoadUint64(&m.PoolMisses)
}
