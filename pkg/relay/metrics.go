package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chalkcast_relay_connections",
		Help: "Number of live websocket connections",
	})

	metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chalkcast_relay_sessions",
		Help: "Number of active sessions",
	})

	metricRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chalkcast_relay_messages_routed_total",
		Help: "Total number of relayed messages",
	}, []string{"channel"})

	metricDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chalkcast_relay_messages_dropped_total",
		Help: "Total number of dropped messages",
	}, []string{"reason"})

	metricReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chalkcast_relay_state_replayed_total",
		Help: "Total number of cached state messages replayed to late joiners",
	})
)

const (
	dropMalformed  = "malformed"
	dropUnbound    = "unbound"
	dropNoTarget   = "no_target"
	dropSendFailed = "send_failed"
)
