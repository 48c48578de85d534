package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_ws_frames_total",
			Help: "Inbound WebSocket frames by kind",
		},
		[]string{"kind"},
	)

	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_ws_frames_dropped_total",
			Help: "Frames dropped by the dispatcher",
		},
		[]string{"reason"},
	)

	pongsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connector_ws_pongs_total",
			Help: "Keep-alive pongs sent",
		},
	)

	reconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_ws_reconnects_total",
			Help: "Session reconnect attempts",
		},
		[]string{"session"},
	)

	restRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_rest_requests_total",
			Help: "REST calls by method and outcome",
		},
		[]string{"method", "result"},
	)
)

func init() {
	prometheus.MustRegister(framesTotal)
	prometheus.MustRegister(framesDropped)
	prometheus.MustRegister(pongsTotal)
	prometheus.MustRegister(reconnectsTotal)
	prometheus.MustRegister(restRequests)
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFrame counts one inbound frame by kind.
func RecordFrame(kind string) {
	framesTotal.WithLabelValues(kind).Inc()
}

// RecordDroppedFrame counts a frame dropped by the dispatcher.
// reason: "no_consumer" | "queue_full" | "malformed" | "premature"
func RecordDroppedFrame(reason string) {
	framesDropped.WithLabelValues(reason).Inc()
}

// RecordPong counts one keep-alive pong sent.
func RecordPong() {
	pongsTotal.Inc()
}

// RecordReconnect counts one reconnect attempt for a session.
func RecordReconnect(session string) {
	reconnectsTotal.WithLabelValues(session).Inc()
}

// RecordRestRequest counts a REST call outcome.
// result: "ok" | "exchange_error" | "transport_error"
func RecordRestRequest(method, result string) {
	restRequests.WithLabelValues(method, result).Inc()
}
