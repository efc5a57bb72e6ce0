/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "speakergroups"

var (
	// HubCallsTotal counts hub service calls by service and outcome.
	HubCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hub_calls_total",
		Help:      "Hub media_player service calls by service and outcome.",
	}, []string{"service", "outcome"})

	// HubCallDuration observes hub call latency.
	HubCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "hub_call_duration_seconds",
		Help:      "Hub service call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service"})

	// ReconcileStepsTotal counts reconciliation steps by kind and outcome.
	ReconcileStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_steps_total",
		Help:      "Group reconciliation steps by kind and outcome.",
	}, []string{"kind", "outcome"})

	// ReconcileRunsTotal counts reconciliation runs by status.
	ReconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_runs_total",
		Help:      "Group reconciliation runs by terminal status.",
	}, []string{"status"})

	// ActivePlayerChangesTotal counts changes of the active player by source.
	ActivePlayerChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "active_player_changes_total",
		Help:      "Active player changes by selection source.",
	}, []string{"source"})

	// FeedReconnectsTotal counts hub websocket reconnect attempts.
	FeedReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_reconnects_total",
		Help:      "Hub state feed reconnect attempts.",
	})

	// SnapshotPlayers tracks the number of players in the latest snapshot.
	SnapshotPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_players",
		Help:      "Players in the latest hub snapshot.",
	})

	// DatabaseQueryDuration observes run log queries by operation and table.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "database_query_duration_seconds",
		Help:      "Database query latency by operation and table.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed database operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "database_errors_total",
		Help:      "Database errors by operation and kind.",
	}, []string{"operation", "kind"})

	// DatabaseConnectionsActive tracks open database connections.
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "database_connections_active",
		Help:      "Open database connections.",
	})

	// MaintenanceLeader is 1 while this instance holds the maintenance lease.
	MaintenanceLeader = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "maintenance_leader",
		Help:      "Whether this instance runs maintenance (1) or not (0).",
	}, []string{"instance_id"})

	// MaintenanceLeaderChanges counts lease acquisitions and losses.
	MaintenanceLeaderChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "maintenance_leader_changes_total",
		Help:      "Maintenance lease transitions by direction.",
	}, []string{"instance_id", "transition"})

	// APIRequestsTotal counts API requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "API requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes API latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIWebSocketConnections tracks open /events websocket sessions.
	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_websocket_connections",
		Help:      "Open dashboard event websocket sessions.",
	})

	// APIActiveConnections tracks in-flight API requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "In-flight API requests.",
	})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
