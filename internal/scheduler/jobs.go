package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pulsegrid/infradash/internal/cache"
	"github.com/pulsegrid/infradash/internal/logging"
	"github.com/pulsegrid/infradash/internal/models"
)

// Default job pacing. The retry delays are deliberately shorter than
// the steady-state intervals.
const (
	DefaultMetricsInterval = 10 * time.Second
	MetricsRetryDelay      = 2 * time.Second
	DefaultHealthInterval  = 30 * time.Second
	HealthRetryDelay       = 5 * time.Second
	DefaultStatusInterval  = 60 * time.Second
	StatusRetryDelay       = 15 * time.Second
)

// BatchSource produces a metric batch for the whole topology
type BatchSource interface {
	Batch(now time.Time) []models.MetricRecord
}

// MetricsSink persists generated metric batches
type MetricsSink interface {
	InsertMetrics(ctx context.Context, records []models.MetricRecord) error
}

// LatestSink receives the freshest per-component values
type LatestSink interface {
	Put(ctx context.Context, entry cache.Entry) error
}

// NewRealtimeMetricsJob builds the shortest-interval job: generate a
// batch for all topology components, persist it, and refresh the
// latest-values cache entry per component.
func NewRealtimeMetricsJob(source BatchSource, sink MetricsSink, latest LatestSink, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultMetricsInterval
	}
	return Job{
		Name:       "realtime-metrics",
		Interval:   interval,
		RetryDelay: MetricsRetryDelay,
		Run: func(ctx context.Context) error {
			now := time.Now().UTC()
			records := source.Batch(now)

			if err := sink.InsertMetrics(ctx, records); err != nil {
				return fmt.Errorf("failed to persist metric batch: %w", err)
			}

			// Fold the batch into one cache entry per component.
			byComponent := make(map[string]map[string]float64)
			for _, rec := range records {
				if byComponent[rec.Component] == nil {
					byComponent[rec.Component] = make(map[string]float64)
				}
				byComponent[rec.Component][rec.Metric] = rec.Value
			}
			for component, values := range byComponent {
				entry := cache.Entry{Component: component, Metrics: values, UpdatedAt: now}
				if err := latest.Put(ctx, entry); err != nil {
					return fmt.Errorf("failed to cache latest values for %s: %w", component, err)
				}
			}
			return nil
		},
	}
}

// Probe describes one external store's connectivity check and recovery
type Probe struct {
	Name      string
	Ping      func(ctx context.Context) error
	Reconnect func(ctx context.Context) error
}

// NewHealthCheckJob builds the medium-interval job: ping every store
// and attempt a reconnect for the ones that fail. A probe that stays
// down makes the run fail, so the next attempt uses the retry delay.
func NewHealthCheckJob(probes []Probe, logStore *logging.LogStore, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return Job{
		Name:       "health-check",
		Interval:   interval,
		RetryDelay: HealthRetryDelay,
		Run: func(ctx context.Context) error {
			var down []string
			for _, probe := range probes {
				err := probe.Ping(ctx)
				if err == nil {
					continue
				}
				logStore.LogAndStore("warning", "Store %s unreachable: %v", probe.Name, err)

				if probe.Reconnect == nil {
					down = append(down, probe.Name)
					continue
				}
				if err := probe.Reconnect(ctx); err != nil {
					logStore.LogAndStore("error", "Reconnect to %s failed: %v", probe.Name, err)
					down = append(down, probe.Name)
				} else {
					logStore.LogAndStore("info", "Reconnected to %s", probe.Name)
				}
			}
			if len(down) > 0 {
				return fmt.Errorf("stores unavailable: %s", strings.Join(down, ", "))
			}
			return nil
		},
	}
}

// RecordCounter reports the aggregate size of the time-series sink
type RecordCounter interface {
	CountMetrics(ctx context.Context) (int64, error)
}

// CacheSizer reports how many components the latest-values cache holds
type CacheSizer interface {
	Len(ctx context.Context) (int, error)
}

// ConnectionCounter reports the number of connected dashboard clients
type ConnectionCounter interface {
	Count() int
}

// NewStatusReportJob builds the long-interval job: read aggregate
// counts from all sinks and emit a structured summary to the log store.
// It has no client-facing effect.
func NewStatusReportJob(records RecordCounter, sizer CacheSizer, connections ConnectionCounter, logStore *logging.LogStore, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	return Job{
		Name:       "status-report",
		Interval:   interval,
		RetryDelay: StatusRetryDelay,
		Run: func(ctx context.Context) error {
			total, err := records.CountMetrics(ctx)
			if err != nil {
				return fmt.Errorf("failed to read metric count: %w", err)
			}
			cached, err := sizer.Len(ctx)
			if err != nil {
				return fmt.Errorf("failed to read cache size: %w", err)
			}

			logStore.LogAndStore("info", "Status report: %d metric records stored, %d components cached, %d clients connected",
				total, cached, connections.Count())
			return nil
		},
	}
}
