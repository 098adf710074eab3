// Package metrics provides Prometheus instrumentation for the campus chat
// client. It exposes a gauge for the connection state, counters for event
// and action throughput, and a histogram for dial latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionState is 0 when disconnected, 1 while connecting and 2
	// once connected.
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campuschat_connection_state",
		Help: "Realtime connection state (0=disconnected, 1=connecting, 2=connected)",
	})

	// ReconnectsTotal counts automatic reconnect attempts after an abnormal
	// closure.
	ReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campuschat_reconnects_total",
		Help: "Total number of automatic reconnect attempts",
	})

	// EventsTotal counts inbound server events, labeled by kind.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campuschat_events_total",
		Help: "Total number of server events received",
	}, []string{"kind"})

	// ActionsTotal counts outbound intents written to the socket.
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campuschat_actions_total",
		Help: "Total number of client actions sent",
	}, []string{"action"})

	// ActionsDropped counts intents discarded because the connection was
	// not live.
	ActionsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campuschat_actions_dropped_total",
		Help: "Total number of client actions dropped while not connected",
	}, []string{"action"})

	// MessagesTotal counts chat messages, labeled by direction: "sent" or
	// "received".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campuschat_messages_total",
		Help: "Total number of chat messages",
	}, []string{"direction"})

	// DialDuration records how long the websocket handshake took.
	DialDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "campuschat_dial_duration_seconds",
		Help:    "Time to establish the realtime connection",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionState,
		ReconnectsTotal,
		EventsTotal,
		ActionsTotal,
		ActionsDropped,
		MessagesTotal,
		DialDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
