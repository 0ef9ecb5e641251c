package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the signaling service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec
	websocketDroppedTotal  prometheus.Counter

	// Signaling Metrics
	onlineUsers  prometheus.Gauge
	activeRooms  prometheus.Gauge
	roomJoins    *prometheus.CounterVec
	relayedTotal *prometheus.CounterVec

	// Call Metrics
	callsTotal    *prometheus.CounterVec
	callsActive   prometheus.Gauge
	callsDuration *prometheus.HistogramVec

	// Persistence Metrics
	persistJobsTotal     *prometheus.CounterVec
	persistFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics on a dedicated registry labelled with the service name
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket events by name and direction",
				ConstLabels: labels,
			},
			[]string{"event", "direction"},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of error events sent to clients",
				ConstLabels: labels,
			},
			[]string{"event", "code"},
		),
		websocketDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "websocket_dropped_messages_total",
				Help:        "Outbound messages dropped because a client send buffer was full",
				ConstLabels: labels,
			},
		),

		onlineUsers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "signaling_online_users",
				Help:        "Number of registered users in the presence registry",
				ConstLabels: labels,
			},
		),
		activeRooms: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "signaling_active_rooms",
				Help:        "Number of rooms with at least one member",
				ConstLabels: labels,
			},
		),
		roomJoins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_room_joins_total",
				Help:        "Room join attempts by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		relayedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_relayed_total",
				Help:        "Relayed signaling and chat payloads",
				ConstLabels: labels,
			},
			[]string{"event"},
		),

		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Call status transitions",
				ConstLabels: labels,
			},
			[]string{"type", "status"},
		),
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of ringing or accepted calls",
				ConstLabels: labels,
			},
		),
		callsDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "calls_duration_seconds",
				Help:        "Duration of ended calls in seconds",
				ConstLabels: labels,
				Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"type"},
		),

		persistJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_persist_jobs_total",
				Help:        "Background persistence jobs executed",
				ConstLabels: labels,
			},
			[]string{"job"},
		),
		persistFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_persist_failures_total",
				Help:        "Background persistence jobs that failed or were rejected",
				ConstLabels: labels,
			},
			[]string{"job"},
		),
	}
}

// GetRegistry returns the registry served on /metrics
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Register adds extra collectors (e.g. Redis degraded-mode gauges) to the registry
func (m *Metrics) Register(cs ...prometheus.Collector) {
	m.registry.MustRegister(cs...)
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocket Metrics Methods

// SetWebSocketConnections sets the number of active WebSocket connections
func (m *Metrics) SetWebSocketConnections(count int) {
	m.websocketConnections.Set(float64(count))
}

// RecordEvent counts an inbound or outbound signaling event
func (m *Metrics) RecordEvent(event, direction string) {
	m.websocketMessagesTotal.WithLabelValues(event, direction).Inc()
}

// RecordErrorEvent counts an error event sent back to a client
func (m *Metrics) RecordErrorEvent(event, code string) {
	m.websocketErrorsTotal.WithLabelValues(event, code).Inc()
}

// RecordDroppedMessage counts an outbound message dropped for a slow client
func (m *Metrics) RecordDroppedMessage() {
	m.websocketDroppedTotal.Inc()
}

// Signaling Metrics Methods

// SetOnlineUsers sets the presence registry size
func (m *Metrics) SetOnlineUsers(count int) {
	m.onlineUsers.Set(float64(count))
}

// SetActiveRooms sets the number of live rooms
func (m *Metrics) SetActiveRooms(count int) {
	m.activeRooms.Set(float64(count))
}

// RecordRoomJoin records a join attempt outcome (admitted, full)
func (m *Metrics) RecordRoomJoin(outcome string) {
	m.roomJoins.WithLabelValues(outcome).Inc()
}

// RecordRelay records a relayed payload
func (m *Metrics) RecordRelay(event string) {
	m.relayedTotal.WithLabelValues(event).Inc()
}

// Call Metrics Methods

// RecordCall records a call status transition
func (m *Metrics) RecordCall(callType, status string) {
	m.callsTotal.WithLabelValues(callType, status).Inc()
}

// SetActiveCalls sets the number of active calls
func (m *Metrics) SetActiveCalls(count int) {
	m.callsActive.Set(float64(count))
}

// RecordCallDuration records the duration of an ended call
func (m *Metrics) RecordCallDuration(callType string, duration time.Duration) {
	m.callsDuration.WithLabelValues(callType).Observe(duration.Seconds())
}

// Persistence Metrics Methods

// RecordPersistJob records an executed background job
func (m *Metrics) RecordPersistJob(job string) {
	m.persistJobsTotal.WithLabelValues(job).Inc()
}

// RecordPersistFailure records a failed or rejected background job
func (m *Metrics) RecordPersistFailure(job string) {
	m.persistFailuresTotal.WithLabelValues(job).Inc()
}
