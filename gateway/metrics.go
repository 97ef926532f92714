package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_dispatched_total",
		Help: "Dispatch frames received, by event kind.",
	}, []string{"event"})

	reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_reconnects_total",
		Help: "Reconnects, by cause.",
	}, []string{"cause"})

	heartbeatLatency = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_heartbeat_latency_seconds",
		Help: "Time between the last heartbeat and its acknowledgement.",
	})

	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_frames_sent_total",
		Help: "Outbound frames, by opcode.",
	}, []string{"op"})
)
