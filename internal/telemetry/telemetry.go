package telemetry

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pulsegrid/infradash/internal/models"
)

// Metric names generated for every topology component.
const (
	MetricCPUUtilization = "cpu_utilization"
	MetricMemoryUsage    = "memory_usage"
	MetricRequestRate    = "request_rate"
	MetricErrorRate      = "error_rate"
	MetricLatencyMillis  = "latency_ms"
)

// DefaultComponents is the fixed infrastructure topology the generator
// produces metrics for.
func DefaultComponents() []models.Component {
	return []models.Component{
		{Name: "api-gateway", Kind: "gateway"},
		{Name: "auth-service", Kind: "service"},
		{Name: "order-router", Kind: "service"},
		{Name: "matching-engine", Kind: "service"},
		{Name: "market-data-gateway", Kind: "gateway"},
		{Name: "notification-service", Kind: "service"},
		{Name: "payment-db", Kind: "database"},
		{Name: "message-broker", Kind: "broker"},
		{Name: "cache-cluster", Kind: "cache"},
		{Name: "metrics-pipeline", Kind: "pipeline"},
	}
}

// Generator produces synthetic system snapshots and per-component metric
// batches. Values are random but bounded to realistic ranges.
type Generator struct {
	components []models.Component
	rng        *rand.Rand
	mu         sync.Mutex
}

// NewGenerator creates a generator over the given topology. A non-zero
// seed makes output deterministic for tests.
func NewGenerator(components []models.Component, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		components: components,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Components returns the topology this generator covers
func (g *Generator) Components() []models.Component {
	return g.components
}

// Snapshot generates a system-wide snapshot for system_update heartbeats
func (g *Generator) Snapshot() models.SystemSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes := len(g.components) * 4
	return models.SystemSnapshot{
		ActiveNodes:     nodes + g.rng.Intn(nodes/2+1),
		EventsPerSecond: 800 + g.rng.Intn(1700),
		CPUUtilization:  g.between(20, 85),
		MemoryUsage:     g.between(30, 90),
	}
}

// Batch generates one metric record per (component, metric) pair,
// stamped with the given time.
func (g *Generator) Batch(now time.Time) []models.MetricRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	type bounded struct {
		metric string
		lo, hi float64
	}
	ranges := []bounded{
		{MetricCPUUtilization, 10, 90},
		{MetricMemoryUsage, 25, 95},
		{MetricRequestRate, 50, 1200},
		{MetricErrorRate, 0, 5},
		{MetricLatencyMillis, 2, 250},
	}

	records := make([]models.MetricRecord, 0, len(g.components)*len(ranges))
	for _, comp := range g.components {
		for _, r := range ranges {
			records = append(records, models.MetricRecord{
				Component:  comp.Name,
				Metric:     r.metric,
				Value:      g.between(r.lo, r.hi),
				RecordedAt: now,
			})
		}
	}
	return records
}

// between returns a value in [lo, hi), rounded to two decimals.
// Caller holds g.mu.
func (g *Generator) between(lo, hi float64) float64 {
	v := lo + g.rng.Float64()*(hi-lo)
	return float64(int(v*100)) / 100
}
