package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pulsegrid/infradash/internal/api"
	"github.com/pulsegrid/infradash/internal/cache"
	"github.com/pulsegrid/infradash/internal/dispatch"
	"github.com/pulsegrid/infradash/internal/logging"
	"github.com/pulsegrid/infradash/internal/registry"
	"github.com/pulsegrid/infradash/internal/scenario"
	"github.com/pulsegrid/infradash/internal/scheduler"
	"github.com/pulsegrid/infradash/internal/store"
	"github.com/pulsegrid/infradash/internal/telemetry"
)

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Load .env file if it exists (ignore errors for local development)
	// In production, environment variables should be set directly
	_ = godotenv.Load()

	// Parse command line flags
	port := flag.String("port", getEnv("PORT", "3000"), "Server port")
	scenarioDir := flag.String("scenario-dir", getEnv("SCENARIO_DIR", ""), "Directory of scenario YAML files (built-in catalog when empty)")
	dbConn := flag.String("database", getEnv("DATABASE_URL", "metrics.db"), "Time-series store: SQLite file path or postgres:// URL")
	redisAddr := flag.String("redis", getEnv("REDIS_ADDR", ""), "Redis address for the latest-values cache (in-memory when empty)")
	metricsEvery := flag.Duration("metrics-interval", scheduler.DefaultMetricsInterval, "Realtime metrics job interval")
	healthEvery := flag.Duration("health-interval", scheduler.DefaultHealthInterval, "Health check job interval")
	statusEvery := flag.Duration("status-interval", scheduler.DefaultStatusInterval, "Status report job interval")
	flag.Parse()

	logStore := logging.NewLogStore(10000) // Store up to 10000 log entries

	// Time-series store
	metricStore, err := store.NewMetricStore(*dbConn)
	if err != nil {
		log.Fatalf("Failed to initialize metric store: %v", err)
	}
	defer metricStore.Close()

	// Latest-values cache: Redis when configured, in-memory otherwise
	var latest cache.LatestValues
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		latest = cache.NewRedisCache(client)
		logStore.LogAndStore("info", "Using Redis latest-values cache at %s", *redisAddr)
	} else {
		latest = cache.NewMemoryCache()
	}

	// Scenario catalog
	catalog := scenario.DefaultCatalog()
	if *scenarioDir != "" {
		n, err := catalog.LoadDir(*scenarioDir)
		if err != nil {
			log.Fatalf("Failed to load scenario directory: %v", err)
		}
		logStore.LogAndStore("info", "Loaded %d scenario definitions from %s", n, *scenarioDir)
	}

	// Realtime core
	reg := registry.NewRegistry(logStore)
	engine := scenario.NewEngine(catalog, reg, logStore)
	engine.Start()
	defer engine.Stop()

	generator := telemetry.NewGenerator(telemetry.DefaultComponents(), 0)
	dispatcher := dispatch.NewHandler(reg, engine, generator, logStore, dispatch.DefaultIdleTimeout)

	// Background jobs
	sched := scheduler.NewScheduler(logStore)
	sched.Register(scheduler.NewRealtimeMetricsJob(generator, metricStore, latest, *metricsEvery))
	sched.Register(scheduler.NewHealthCheckJob([]scheduler.Probe{
		{Name: "metric-store", Ping: metricStore.Ping, Reconnect: metricStore.Reconnect},
		{Name: "latest-cache", Ping: latest.Ping},
	}, logStore, *healthEvery))
	sched.Register(scheduler.NewStatusReportJob(metricStore, latest, reg, logStore, *statusEvery))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	defer sched.Stop()

	logStore.LogAndStore("info", "Server starting on port %s", *port)
	logStore.LogAndStore("info", "WebSocket endpoint: ws://localhost:%s/ws", *port)

	// Setup router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Infra Intelligence Dashboard Server"))
	})
	r.Get("/healthz", api.HandleHealthz(map[string]api.Pinger{
		"metric-store": metricStore,
		"latest-cache": latest,
	}))
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint
	r.Get("/ws", dispatcher.HandleWebSocket())

	// API endpoints
	r.Route("/api", func(r chi.Router) {
		r.Get("/connections", api.HandleGetConnections(reg))
		r.Get("/logs", api.HandleGetLogs(logStore))
		r.Get("/playback", api.HandleGetPlayback(engine))
		r.Get("/scenarios", api.HandleGetScenarios(catalog))
		r.Get("/latest", api.HandleGetLatest(latest))
	})

	server := &http.Server{Addr: ":" + *port, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logStore.LogAndStore("error", "HTTP shutdown error: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
	logStore.LogAndStore("info", "Server stopped")
}
