// Package metrics exposes the service's prometheus collectors. Gauges
// for live objects, counters for traffic; the hub, the handlers, and
// the progress service feed them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WSConnections tracks open WebSocket connections by channel
	// ("room" or "tournament").
	WSConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "convtrainer",
		Name:      "ws_connections",
		Help:      "Open WebSocket connections.",
	}, []string{"channel"})

	// WSMessagesIn counts inbound client frames by message type.
	WSMessagesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convtrainer",
		Name:      "ws_messages_in_total",
		Help:      "Inbound WebSocket messages.",
	}, []string{"type"})

	// WSMessagesDropped counts outbound events shed by the
	// per-connection overflow policy.
	WSMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "convtrainer",
		Name:      "ws_messages_dropped_total",
		Help:      "Outbound events dropped by slow consumers.",
	})

	// GamesEnded counts finished games by mode and end reason.
	GamesEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convtrainer",
		Name:      "games_ended_total",
		Help:      "Finished games.",
	}, []string{"mode", "reason"})

	// ScoresPersisted counts score rows written, by outcome.
	ScoresPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convtrainer",
		Name:      "scores_persisted_total",
		Help:      "Score submissions persisted.",
	}, []string{"outcome"})

	// StoreRetries counts background persistence retries after a store
	// failure.
	StoreRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "convtrainer",
		Name:      "store_retries_total",
		Help:      "Background persistence retries.",
	})
)

// Counter is the live-object count source; the registry implements it.
type Counter interface {
	Counts() (rooms, tournaments int)
}

// RegisterRegistryGauges exports live room and tournament counts from
// the given source.
func RegisterRegistryGauges(c Counter) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "convtrainer",
		Name:      "rooms_live",
		Help:      "Rooms registered, ended-but-retained included.",
	}, func() float64 {
		rooms, _ := c.Counts()
		return float64(rooms)
	})
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "convtrainer",
		Name:      "tournaments_live",
		Help:      "Tournaments registered.",
	}, func() float64 {
		_, tournaments := c.Counts()
		return float64(tournaments)
	})
}

// Handler serves the default registry for the metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
