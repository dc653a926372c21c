package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analyzer daemon.
type Metrics struct {
	CandlesStored   *prometheus.CounterVec // labels: instrument, interval
	CandlesRejected prometheus.Counter
	SourceFailures  *prometheus.CounterVec // labels: source
	SyncFailures    prometheus.Counter
	BackfillCandles prometheus.Counter
	WSReconnects    prometheus.Counter

	// Scheduler metrics
	JobRuns     *prometheus.CounterVec // labels: job, status=ok|error
	JobSkips    *prometheus.CounterVec // labels: job
	JobDuration *prometheus.HistogramVec
	SyncAge     *prometheus.GaugeVec // labels: instrument, interval

	// Analysis metrics
	PatternsDetected *prometheus.CounterVec // labels: kind
	SnapshotsBuilt   prometheus.Counter

	// Storage latency
	RedisPublishDur prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_candles_stored_total",
			Help: "Candles written to the store (by instrument, interval)",
		}, []string{"instrument", "interval"}),
		CandlesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_candles_rejected_total",
			Help: "Candles rejected by OHLC sanity validation",
		}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_source_failures_total",
			Help: "Failed fetches per exchange source",
		}, []string{"source"}),
		SyncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_sync_failures_total",
			Help: "Sync cycles where every source failed",
		}),
		BackfillCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_backfill_candles_total",
			Help: "Candles filled into historical gaps",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_ws_reconnects_total",
			Help: "Live stream reconnection attempts",
		}),

		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_job_runs_total",
			Help: "Scheduled job completions (by job, status)",
		}, []string{"job", "status"}),
		JobSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_job_skips_total",
			Help: "Job ticks skipped because the previous run was still going",
		}, []string{"job"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analyzer_job_duration_seconds",
			Help:    "Scheduled job run time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		SyncAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "analyzer_sync_age_seconds",
			Help: "Seconds since the last successful sync (by instrument, interval)",
		}, []string{"instrument", "interval"}),

		PatternsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_patterns_detected_total",
			Help: "Chart pattern detections (by kind)",
		}, []string{"kind"}),
		SnapshotsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_snapshots_built_total",
			Help: "Analytics snapshots published to the registry",
		}),

		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_redis_publish_duration_seconds",
			Help:    "Redis snapshot publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.CandlesStored,
		m.CandlesRejected,
		m.SourceFailures,
		m.SyncFailures,
		m.BackfillCandles,
		m.WSReconnects,
		m.JobRuns,
		m.JobSkips,
		m.JobDuration,
		m.SyncAge,
		m.PatternsDetected,
		m.SnapshotsBuilt,
		m.RedisPublishDur,
		m.SQLiteCommitDur,
	)

	return m
}

// HealthStatus represents the daemon health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastSyncTime   time.Time `json:"last_sync_time"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// Redis is optional; when disabled it never degrades health.
	redisEnabled bool
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(redisEnabled bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:    time.Now(),
		redisEnabled: redisEnabled,
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSyncTime(t time.Time) {
	h.mu.Lock()
	h.LastSyncTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisBad := h.redisEnabled && !h.RedisConnected
	if redisBad || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK && redisBad {
		overallStatus = "unhealthy"
	}

	syncAge := ""
	if !h.LastSyncTime.IsZero() {
		syncAge = time.Since(h.LastSyncTime).Round(time.Second).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		WSConnected     bool    `json:"ws_connected"`
		LastSyncTime    string  `json:"last_sync_time"`
		SyncAge         string  `json:"sync_age"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisEnabled:    h.redisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		WSConnected:     h.WSConnected,
		LastSyncTime:    h.LastSyncTime.Format(time.RFC3339),
		SyncAge:         syncAge,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics, /healthz, and the
// analytics read API.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates the observability server. The analytics handler is
// optional; nil mounts only /metrics and /healthz.
func NewServer(addr string, health *HealthStatus, analytics http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)
	if analytics != nil {
		mux.Handle("/analytics", analytics)
		mux.Handle("/analytics/", analytics)
	}

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
