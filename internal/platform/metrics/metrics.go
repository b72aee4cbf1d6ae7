package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the stream receiver.
type Metrics struct {
	registry           *prometheus.Registry
	framesDecodedTotal prometheus.Counter
	decodeErrorsTotal  prometheus.Counter
	bytesReceivedTotal prometheus.Counter
	framesDroppedTotal prometheus.Counter
	connectsTotal      prometheus.Counter
	disconnectsTotal   prometheus.Counter
	clientConnected    prometheus.Gauge
	adminRequestsTotal prometheus.Counter
}

// New creates and registers Prometheus metrics for the receiver pipeline.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	framesDecodedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mjpeg_frames_decoded_total",
		Help: "Total number of frames decoded and rendered",
	})
	decodeErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mjpeg_decode_errors_total",
		Help: "Total number of frames that failed to decode",
	})
	bytesReceivedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mjpeg_bytes_received_total",
		Help: "Total number of stream bytes read from the socket",
	})
	framesDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mjpeg_frames_dropped_total",
		Help: "Total number of buffer overflow discards (frames lost to shedding)",
	})
	connectsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mjpeg_connects_total",
		Help: "Total number of accepted sender connections",
	})
	disconnectsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mjpeg_disconnects_total",
		Help: "Total number of sender disconnects and read timeouts",
	})
	clientConnected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mjpeg_client_connected",
		Help: "1 while a sender connection is live, 0 otherwise",
	})
	adminRequestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mjpeg_admin_requests_total",
		Help: "Total number of admin HTTP requests received",
	})

	registry.MustRegister(
		framesDecodedTotal,
		decodeErrorsTotal,
		bytesReceivedTotal,
		framesDroppedTotal,
		connectsTotal,
		disconnectsTotal,
		clientConnected,
		adminRequestsTotal,
	)

	return &Metrics{
		registry:           registry,
		framesDecodedTotal: framesDecodedTotal,
		decodeErrorsTotal:  decodeErrorsTotal,
		bytesReceivedTotal: bytesReceivedTotal,
		framesDroppedTotal: framesDroppedTotal,
		connectsTotal:      connectsTotal,
		disconnectsTotal:   disconnectsTotal,
		clientConnected:    clientConnected,
		adminRequestsTotal: adminRequestsTotal,
	}
}

// IncFramesDecoded increments the decoded frame counter.
func (m *Metrics) IncFramesDecoded() {
	m.framesDecodedTotal.Inc()
}

// IncDecodeErrors increments the decode error counter.
func (m *Metrics) IncDecodeErrors() {
	m.decodeErrorsTotal.Inc()
}

// AddBytesReceived adds n to the received byte counter.
func (m *Metrics) AddBytesReceived(n int) {
	m.bytesReceivedTotal.Add(float64(n))
}

// IncFramesDropped increments the overflow discard counter.
func (m *Metrics) IncFramesDropped() {
	m.framesDroppedTotal.Inc()
}

// IncConnects increments the accepted connection counter.
func (m *Metrics) IncConnects() {
	m.connectsTotal.Inc()
}

// IncDisconnects increments the disconnect counter.
func (m *Metrics) IncDisconnects() {
	m.disconnectsTotal.Inc()
}

// SetClientConnected sets the connection liveness gauge.
func (m *Metrics) SetClientConnected(live bool) {
	if live {
		m.clientConnected.Set(1)
	} else {
		m.clientConnected.Set(0)
	}
}

// IncAdminRequests increments the admin request counter.
func (m *Metrics) IncAdminRequests() {
	m.adminRequestsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
