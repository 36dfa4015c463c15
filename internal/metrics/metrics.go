// Package metrics exposes the server's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connections is the number of live socket connections.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "freecord",
		Subsystem: "socket",
		Name:      "connections",
		Help:      "Number of live socket connections.",
	})

	// Broadcasts counts fanout operations by room kind and event name.
	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "freecord",
		Subsystem: "socket",
		Name:      "broadcasts_total",
		Help:      "Broadcast fanouts by room kind and event.",
	}, []string{"kind", "event"})

	// DroppedFrames counts frames dropped on slow subscribers.
	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "freecord",
		Subsystem: "socket",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped because a subscriber's send buffer was full.",
	})

	// BridgePublishes counts HTTP-originated publishes through the fanout
	// bridge, labeled by operation.
	BridgePublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "freecord",
		Subsystem: "bridge",
		Name:      "publishes_total",
		Help:      "Bridge publishes by operation.",
	}, []string{"op"})

	// StalePresenceSwept counts persisted presence rows removed by the
	// staleness sweep.
	StalePresenceSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "freecord",
		Subsystem: "presence",
		Name:      "stale_rows_swept_total",
		Help:      "Persisted presence rows removed for missing heartbeats.",
	})
)
