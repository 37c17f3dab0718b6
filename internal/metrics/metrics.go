// Package metrics provides Prometheus instrumentation for the room chat
// client. It exposes gauges for open channels and joined sessions, counters
// for message and typing throughput, and a histogram for connect latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChannelsOpen tracks the number of relay channels currently open.
	ChannelsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roomchat_channels_open",
		Help: "Current number of open relay channels",
	})

	// ChannelFailures counts channels that closed because of a transport error.
	ChannelFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roomchat_channel_failures_total",
		Help: "Total number of relay channels lost to transport errors",
	})

	// ConnectLatency records how long establishing a relay channel took.
	ConnectLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomchat_connect_latency_seconds",
		Help:    "Relay channel connect latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// SessionsJoined tracks the number of room sessions in the joined state.
	SessionsJoined = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roomchat_sessions_joined",
		Help: "Current number of joined room sessions",
	})

	// MessagesTotal counts chat messages, labeled by type: "sent",
	// "received", "echo" (own message echoed by the relay, dropped) or
	// "rejected" (failed local validation).
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"})

	// TypingEventsTotal counts typing events, labeled by direction: "out",
	// "throttled", "in" or "ignored" (own name).
	TypingEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_typing_events_total",
		Help: "Total number of typing events processed",
	}, []string{"direction"})

	// InboundDropped counts inbound frames discarded before reaching session
	// state, labeled by reason: "malformed", "stale" or "other_room".
	InboundDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomchat_inbound_dropped_total",
		Help: "Total number of inbound frames dropped",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		ChannelsOpen,
		ChannelFailures,
		ConnectLatency,
		SessionsJoined,
		MessagesTotal,
		TypingEventsTotal,
		InboundDropped,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
