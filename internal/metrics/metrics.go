package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivetrap_events_captured_total",
		Help: "Events appended to the capture store, by service.",
	}, []string{"service"})

	FallbackWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivetrap_capture_fallback_writes_total",
		Help: "Events diverted to the append-only fallback file.",
	}, []string{"service"})

	ConnectionsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivetrap_connections_accepted_total",
		Help: "Connections accepted by decoy listeners.",
	}, []string{"decoy"})

	SyncedRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivetrap_sync_rows_total",
		Help: "Rows replicated into the serving store.",
	})

	SyncCycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivetrap_sync_cycle_errors_total",
		Help: "Sync cycles that failed and will be retried.",
	})

	EnrichedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivetrap_enriched_records_total",
		Help: "Records enriched with geoip and threat data.",
	})

	ThreatCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivetrap_threat_cache_hits_total",
		Help: "Threat assessments served from the per-IP cache.",
	})

	ThreatCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivetrap_threat_cache_misses_total",
		Help: "Threat assessments recomputed after a miss or TTL expiry.",
	})
)
