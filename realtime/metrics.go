package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broker metrikleri. Default registry'ye kaydedilir; /metrics promhttp ile sunar.
var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pitchline",
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Open realtime connections (WebSocket and in-process)",
	})

	subscriptionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pitchline",
		Subsystem: "realtime",
		Name:      "subscriptions",
		Help:      "Active topic subscriptions",
	})

	presenceEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pitchline",
		Subsystem: "realtime",
		Name:      "presence_entries",
		Help:      "Tracked presence metas across all topics",
	})

	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitchline",
		Subsystem: "realtime",
		Name:      "events_delivered_total",
		Help:      "Events queued to connections, by op",
	}, []string{"kind"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitchline",
		Subsystem: "realtime",
		Name:      "events_dropped_total",
		Help:      "Events dropped because a connection send buffer was full",
	})

	changesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitchline",
		Subsystem: "realtime",
		Name:      "changes_published_total",
		Help:      "Row changes published to the broker",
	}, []string{"table", "type"})
)
