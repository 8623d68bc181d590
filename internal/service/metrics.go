package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_sync_rollbacks_total",
			Help: "Optimistic mutations undone after a remote failure",
		},
		[]string{"resource", "operation"},
	)

	syncRemoteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_sync_remote_failures_total",
			Help: "Remote calls that failed, by resource and operation",
		},
		[]string{"resource", "operation"},
	)

	syncRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_sync_refreshes_total",
			Help: "Refreshes from the backend by result (loaded, empty_ignored, failed, unauthenticated, stale)",
		},
		[]string{"resource", "result"},
	)

	syncStaleDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_sync_stale_results_dropped_total",
			Help: "Remote results discarded because the store was cleared or closed meanwhile",
		},
		[]string{"resource"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_sync_active_sessions",
			Help: "Sync sessions currently held in memory",
		},
	)
)
