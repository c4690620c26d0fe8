package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ConnectedClients tracks the number of currently registered WebSocket connections
	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "infradash_connected_clients",
			Help: "Number of currently connected dashboard clients",
		},
	)

	// BroadcastsTotal counts events fanned out to all connections
	BroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "infradash_broadcasts_total",
			Help: "Total number of events broadcast to all connections",
		},
	)

	// DroppedConnectionsTotal counts connections removed after a failed send
	DroppedConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "infradash_dropped_connections_total",
			Help: "Total number of connections dropped after a send failure",
		},
	)

	// CommandsTotal counts inbound commands by type
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infradash_commands_total",
			Help: "Total number of inbound commands processed, by command type",
		},
		[]string{"type"},
	)

	// ScenarioStep tracks the current step index of the active scenario run
	ScenarioStep = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "infradash_scenario_step",
			Help: "Current step index of the active scenario run (-1 when idle)",
		},
	)

	// JobRunsTotal counts background job executions by job name and outcome
	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infradash_job_runs_total",
			Help: "Total number of background job executions, by job and result",
		},
		[]string{"job", "result"},
	)
)

func init() {
	// Register metrics with the default registry
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(BroadcastsTotal)
	prometheus.MustRegister(DroppedConnectionsTotal)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(ScenarioStep)
	prometheus.MustRegister(JobRunsTotal)
}
