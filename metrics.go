package graphbolt

import (
	"sync/atomic"

	"github.com/atsika/graphbolt/pool"
	"github.com/atsika/graphbolt/retry"
)

// Metrics is the driver-wide instrumentation surface: callers call
// Increment*, collectors read back via Get*. Shape generalized directly
// from aznet.Metrics's atomic-counter interface, extended with the
// pool/routing/retry counters this driver's components emit.
type Metrics interface {
	IncrementConnectionsCreated()
	IncrementConnectionsClosed()
	IncrementConnectionsAcquired()
	IncrementConnectionsReleased()
	IncrementAcquisitionTimeouts()
	IncrementLivenessFailures()
	IncrementBytesSent(n int64)
	IncrementBytesReceived(n int64)
	IncrementRetryAttempts()
	IncrementRetries()
	IncrementRetryFailures()
	IncrementRoutingTableRefreshes()

	GetConnectionsCreated() int64
	GetConnectionsClosed() int64
	GetConnectionsAcquired() int64
	GetConnectionsReleased() int64
	GetAcquisitionTimeouts() int64
	GetLivenessFailures() int64
	GetBytesSent() int64
	GetBytesReceived() int64
	GetRetryAttempts() int64
	GetRetries() int64
	GetRetryFailures() int64
	GetRoutingTableRefreshes() int64
}

// DefaultMetrics implements Metrics with atomic counters, the same
// implementation strategy as aznet.DefaultMetrics.
type DefaultMetrics struct {
	connectionsCreated   int64
	connectionsClosed    int64
	connectionsAcquired  int64
	connectionsReleased  int64
	acquisitionTimeouts  int64
	livenessFailures     int64
	bytesSent            int64
	bytesReceived        int64
	retryAttempts        int64
	retries              int64
	retryFailures        int64
	routingTableRefreshes int64
}

// NewDefaultMetrics builds a zeroed DefaultMetrics.
func NewDefaultMetrics() *DefaultMetrics { return &DefaultMetrics{} }

func (m *DefaultMetrics) IncrementConnectionsCreated()  { atomic.AddInt64(&m.connectionsCreated, 1) }
func (m *DefaultMetrics) IncrementConnectionsClosed()   { atomic.AddInt64(&m.connectionsClosed, 1) }
func (m *DefaultMetrics) IncrementConnectionsAcquired() { atomic.AddInt64(&m.connectionsAcquired, 1) }
func (m *DefaultMetrics) IncrementConnectionsReleased() { atomic.AddInt64(&m.connectionsReleased, 1) }
func (m *DefaultMetrics) IncrementAcquisitionTimeouts() { atomic.AddInt64(&m.acquisitionTimeouts, 1) }
func (m *DefaultMetrics) IncrementLivenessFailures()    { atomic.AddInt64(&m.livenessFailures, 1) }
func (m *DefaultMetrics) IncrementBytesSent(n int64)    { atomic.AddInt64(&m.bytesSent, n) }
func (m *DefaultMetrics) IncrementBytesReceived(n int64) { atomic.AddInt64(&m.bytesReceived, n) }
func (m *DefaultMetrics) IncrementRetryAttempts()       { atomic.AddInt64(&m.retryAttempts, 1) }
func (m *DefaultMetrics) IncrementRetries()              { atomic.AddInt64(&m.retries, 1) }
func (m *DefaultMetrics) IncrementRetryFailures()        { atomic.AddInt64(&m.retryFailures, 1) }
func (m *DefaultMetrics) IncrementRoutingTableRefreshes() {
	atomic.AddInt64(&m.routingTableRefreshes, 1)
}

func (m *DefaultMetrics) GetConnectionsCreated() int64  { return atomic.LoadInt64(&m.connectionsCreated) }
func (m *DefaultMetrics) GetConnectionsClosed() int64   { return atomic.LoadInt64(&m.connectionsClosed) }
func (m *DefaultMetrics) GetConnectionsAcquired() int64 {
	return atomic.LoadInt64(&m.connectionsAcquired)
}
func (m *DefaultMetrics) GetConnectionsReleased() int64 {
	return atomic.LoadInt64(&m.connectionsReleased)
}
func (m *DefaultMetrics) GetAcquisitionTimeouts() int64 {
	return atomic.LoadInt64(&m.acquisitionTimeouts)
}
func (m *DefaultMetrics) GetLivenessFailures() int64 { return atomic.LoadInt64(&m.livenessFailures) }
func (m *DefaultMetrics) GetBytesSent() int64        { return atomic.LoadInt64(&m.bytesSent) }
func (m *DefaultMetrics) GetBytesReceived() int64    { return atomic.LoadInt64(&m.bytesReceived) }
func (m *DefaultMetrics) GetRetryAttempts() int64    { return atomic.LoadInt64(&m.retryAttempts) }
func (m *DefaultMetrics) GetRetries() int64          { return atomic.LoadInt64(&m.retries) }
func (m *DefaultMetrics) GetRetryFailures() int64    { return atomic.LoadInt64(&m.retryFailures) }
func (m *DefaultMetrics) GetRoutingTableRefreshes() int64 {
	return atomic.LoadInt64(&m.routingTableRefreshes)
}

// poolMetricsAdapter satisfies pool.Metrics by forwarding to a Metrics,
// letting the pool package stay free of a dependency on the root package.
type poolMetricsAdapter struct{ m Metrics }

func (a poolMetricsAdapter) IncrementAcquired()        { a.m.IncrementConnectionsAcquired() }
func (a poolMetricsAdapter) IncrementReleased()        { a.m.IncrementConnectionsReleased() }
func (a poolMetricsAdapter) IncrementCreated()         { a.m.IncrementConnectionsCreated() }
func (a poolMetricsAdapter) IncrementClosed()          { a.m.IncrementConnectionsClosed() }
func (a poolMetricsAdapter) IncrementTimeouts()        { a.m.IncrementAcquisitionTimeouts() }
func (a poolMetricsAdapter) IncrementLivenessFailures() { a.m.IncrementLivenessFailures() }

var _ pool.Metrics = poolMetricsAdapter{}

// retryMetricsAdapter satisfies retry.Metrics by forwarding to a Metrics.
type retryMetricsAdapter struct{ m Metrics }

func (a retryMetricsAdapter) IncrementAttempts() { a.m.IncrementRetryAttempts() }
func (a retryMetricsAdapter) IncrementRetries()  { a.m.IncrementRetries() }
func (a retryMetricsAdapter) IncrementFailures() { a.m.IncrementRetryFailures() }

var _ retry.Metrics = retryMetricsAdapter{}
