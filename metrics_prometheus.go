package graphbolt

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetrics implements Metrics on top of prometheus counters,
// proving the interface is genuinely pluggable the way aznet's WithMetrics
// option implies. Library dependency: github.com/prometheus/client_golang
// (carried into this pack by nabbar-golib/prometheus).
type PrometheusMetrics struct {
	connectionsCreated    prometheus.Counter
	connectionsClosed     prometheus.Counter
	connectionsAcquired   prometheus.Counter
	connectionsReleased   prometheus.Counter
	acquisitionTimeouts   prometheus.Counter
	livenessFailures      prometheus.Counter
	bytesSent             prometheus.Counter
	bytesReceived         prometheus.Counter
	retryAttempts         prometheus.Counter
	retries               prometheus.Counter
	retryFailures         prometheus.Counter
	routingTableRefreshes prometheus.Counter
}

// NewPrometheusMetrics builds and registers a PrometheusMetrics on reg. If
// reg is nil, the metrics are left unregistered (useful for tests).
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) *PrometheusMetrics {
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graphbolt",
			Name:      name,
			Help:      help,
		})
		if reg != nil {
			reg.MustRegister(c)
		}
		return c
	}
	return &PrometheusMetrics{
		connectionsCreated:    counter("connections_created_total", "Connections dialed."),
		connectionsClosed:     counter("connections_closed_total", "Connections closed."),
		connectionsAcquired:   counter("connections_acquired_total", "Pool acquisitions."),
		connectionsReleased:   counter("connections_released_total", "Pool releases."),
		acquisitionTimeouts:   counter("acquisition_timeouts_total", "Pool acquisition timeouts."),
		livenessFailures:      counter("liveness_failures_total", "Failed RESET liveness probes."),
		bytesSent:             counter("bytes_sent_total", "Bytes written to the wire."),
		bytesReceived:         counter("bytes_received_total", "Bytes read from the wire."),
		retryAttempts:         counter("retry_attempts_total", "Transaction function invocations."),
		retries:               counter("retries_total", "Retried transaction attempts."),
		retryFailures:         counter("retry_failures_total", "Transactions that exhausted retry."),
		routingTableRefreshes: counter("routing_table_refreshes_total", "ROUTE calls issued."),
	}
}

func (m *PrometheusMetrics) IncrementConnectionsCreated()    { m.connectionsCreated.Inc() }
func (m *PrometheusMetrics) IncrementConnectionsClosed()     { m.connectionsClosed.Inc() }
func (m *PrometheusMetrics) IncrementConnectionsAcquired()   { m.connectionsAcquired.Inc() }
func (m *PrometheusMetrics) IncrementConnectionsReleased()   { m.connectionsReleased.Inc() }
func (m *PrometheusMetrics) IncrementAcquisitionTimeouts()   { m.acquisitionTimeouts.Inc() }
func (m *PrometheusMetrics) IncrementLivenessFailures()      { m.livenessFailures.Inc() }
func (m *PrometheusMetrics) IncrementBytesSent(n int64)      { m.bytesSent.Add(float64(n)) }
func (m *PrometheusMetrics) IncrementBytesReceived(n int64)  { m.bytesReceived.Add(float64(n)) }
func (m *PrometheusMetrics) IncrementRetryAttempts()         { m.retryAttempts.Inc() }
func (m *PrometheusMetrics) IncrementRetries()               { m.retries.Inc() }
func (m *PrometheusMetrics) IncrementRetryFailures()         { m.retryFailures.Inc() }
func (m *PrometheusMetrics) IncrementRoutingTableRefreshes() { m.routingTableRefreshes.Inc() }

// Prometheus counters are write-only from the client's perspective (reads
// go through the /metrics scrape endpoint instead), so the Get* side of
// Metrics reports zero here rather than scraping its own counters back.
func (m *PrometheusMetrics) GetConnectionsCreated() int64    { return 0 }
func (m *PrometheusMetrics) GetConnectionsClosed() int64     { return 0 }
func (m *PrometheusMetrics) GetConnectionsAcquired() int64   { return 0 }
func (m *PrometheusMetrics) GetConnectionsReleased() int64   { return 0 }
func (m *PrometheusMetrics) GetAcquisitionTimeouts() int64   { return 0 }
func (m *PrometheusMetrics) GetLivenessFailures() int64      { return 0 }
func (m *PrometheusMetrics) GetBytesSent() int64             { return 0 }
func (m *PrometheusMetrics) GetBytesReceived() int64         { return 0 }
func (m *PrometheusMetrics) GetRetryAttempts() int64         { return 0 }
func (m *PrometheusMetrics) GetRetries() int64                { return 0 }
func (m *PrometheusMetrics) GetRetryFailures() int64          { return 0 }
func (m *PrometheusMetrics) GetRoutingTableRefreshes() int64 { return 0 }

var _ Metrics = (*PrometheusMetrics)(nil)
