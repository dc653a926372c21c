package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"crypto-analyzer/config"
	"crypto-analyzer/internal/analytics"
	"crypto-analyzer/internal/backtest"
	"crypto-analyzer/internal/collector"
	"crypto-analyzer/internal/cycle"
	"crypto-analyzer/internal/indicator"
	"crypto-analyzer/internal/logger"
	"crypto-analyzer/internal/metrics"
	"crypto-analyzer/internal/model"
	"crypto-analyzer/internal/notify"
	"crypto-analyzer/internal/pattern"
	"crypto-analyzer/internal/scheduler"
	redisstore "crypto-analyzer/internal/store/redis"
	sqlitestore "crypto-analyzer/internal/store/sqlite"
)

// patternScanWindow is the daily-candle window each detection scan sees;
// wide enough for the 200-period crosses plus warmup.
const patternScanWindow = 250

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[analyticsd] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[analyticsd] config: %v", err)
	}
	logger.Init("analyticsd", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[analyticsd] sqlite init failed: %v", err)
	}
	defer store.Close()

	var publisher *redisstore.Publisher
	if cfg.RedisAddr != "" {
		publisher, err = redisstore.New(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[analyticsd] WARNING: redis init failed: %v (continuing without cache)", err)
			publisher = nil
		} else {
			defer publisher.Close()
			log.Println("[analyticsd] redis publisher ready")
		}
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(cfg.RedisAddr != "")
	health.SetSQLiteOK(true)
	store.OnReject = prom.CandlesRejected.Inc
	store.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }

	// ---- Instruments & per-instrument collectors ----
	knownSources := []string{"binance", "okx", "kraken"}
	instruments, err := config.LoadInstruments(cfg.InstrumentsFile, knownSources)
	if err != nil {
		log.Fatalf("[analyticsd] instruments: %v", err)
	}

	var enabled []config.InstrumentConfig
	collectors := make(map[string]*collector.Collector)
	for _, ic := range instruments {
		if !ic.Enabled {
			log.Printf("[analyticsd] instrument %s disabled, skipping", ic.Symbol)
			continue
		}
		sources := make([]collector.Source, 0, len(ic.Sources))
		for _, name := range ic.Sources {
			sources = append(sources, newSource(name))
		}
		coll, err := collector.New(store, sources...)
		if err != nil {
			log.Fatalf("[analyticsd] collector %s: %v", ic.Symbol, err)
		}
		coll.OnStored = func(instrument string, interval model.Interval, n int) {
			prom.CandlesStored.WithLabelValues(instrument, string(interval)).Add(float64(n))
		}
		coll.OnSourceFailure = func(source string) {
			prom.SourceFailures.WithLabelValues(source).Inc()
		}
		collectors[ic.Symbol] = coll
		enabled = append(enabled, ic)
	}
	if len(enabled) == 0 {
		log.Fatal("[analyticsd] no enabled instruments")
	}

	// ---- Analysis pipeline ----
	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
		log.Printf("[analyticsd] pattern alerts -> webhook")
	}

	registry := analytics.NewRegistry(publisherOrNil(publisher))
	registry.OnPublish = func(d time.Duration) { prom.RedisPublishDur.Observe(d.Seconds()) }

	app := &app{
		cfg:      cfg,
		store:    store,
		registry: registry,
		enricher: pattern.NewEnricher(store, store),
		cycles:   cycle.NewClassifier(store),
		notifier: notifier,
		prom:     prom,
		alerted:  make(map[string]time.Time),
	}

	// ---- HTTP surface ----
	srv := metrics.NewServer(cfg.MetricsAddr, health, analytics.NewHandler(registry))
	srv.Start()
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Scheduler ----
	sched := scheduler.New()
	sched.OnSkip = func(j scheduler.Job) { prom.JobSkips.WithLabelValues(j.Name).Inc() }
	sched.OnDone = func(j scheduler.Job, d time.Duration, err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		prom.JobRuns.WithLabelValues(j.Name, status).Inc()
		prom.JobDuration.WithLabelValues(j.Name).Observe(d.Seconds())
	}

	for _, ic := range enabled {
		ic := ic
		coll := collectors[ic.Symbol]

		for _, iv := range cfg.Intervals {
			iv := iv
			sched.Add(ctx, scheduler.Job{
				Name:       "sync_" + string(iv),
				Instrument: ic.Symbol,
				Every:      cfg.SyncEvery,
				Run: func(ctx context.Context) error {
					n, err := coll.Sync(ctx, ic.Symbol, iv)
					if err != nil {
						prom.SyncFailures.Inc()
						return err
					}
					health.SetLastSyncTime(time.Now())
					slog.Debug("sync complete", "instrument", ic.Symbol, "interval", string(iv), "stored", n)
					return nil
				},
			})
		}

		sched.Add(ctx, scheduler.Job{
			Name:       "analysis",
			Instrument: ic.Symbol,
			Every:      cfg.AnalysisEvery,
			Run:        func(ctx context.Context) error { return app.runAnalysis(ctx, ic.Symbol) },
		})
		sched.Add(ctx, scheduler.Job{
			Name:       "backtest",
			Instrument: ic.Symbol,
			Every:      cfg.BacktestEvery,
			Run:        func(ctx context.Context) error { return app.runBacktest(ctx, ic.Symbol) },
		})
		sched.Add(ctx, scheduler.Job{
			Name:       "backfill",
			Instrument: ic.Symbol,
			Every:      24 * time.Hour,
			Run:        func(ctx context.Context) error { return app.runBackfill(ctx, coll, ic) },
		})
	}

	// Staleness gauge refresher.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, ic := range enabled {
					for _, iv := range cfg.Intervals {
						if t, ok := sched.LastSuccess("sync_"+string(iv), ic.Symbol); ok {
							prom.SyncAge.WithLabelValues(ic.Symbol, string(iv)).Set(time.Since(t).Seconds())
						}
					}
				}
			}
		}
	}()

	// ---- Live stream (optional) ----
	if cfg.LiveStream {
		symbols := make([]string, len(enabled))
		for i, ic := range enabled {
			symbols[i] = ic.Symbol
		}
		ls := collector.NewLiveStream(store, symbols, cfg.Intervals)
		ls.OnReconnect = func() {
			prom.WSReconnects.Inc()
			health.SetWSConnected(false)
		}
		ls.OnCandle = func(instrument string, interval model.Interval) {
			health.SetWSConnected(true)
			prom.CandlesStored.WithLabelValues(instrument, string(interval)).Inc()
		}
		go func() {
			if err := ls.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[analyticsd] live stream exited: %v", err)
			}
		}()
		log.Println("[analyticsd] live kline stream enabled")
	}

	// ---- Initial backfill + first analysis pass ----
	// Tracked separately from the scheduler so shutdown cannot close the
	// store while the seed pass is still writing.
	var seedWG sync.WaitGroup
	seedWG.Add(1)
	go func() {
		defer seedWG.Done()
		for _, ic := range enabled {
			if ctx.Err() != nil {
				return
			}
			coll := collectors[ic.Symbol]
			sched.RunNow(ctx, scheduler.Job{Name: "backfill", Instrument: ic.Symbol,
				Run: func(ctx context.Context) error { return app.runBackfill(ctx, coll, ic) }})
			if err := app.enricher.BackfillHistory(ctx, ic.Symbol, patternScanWindow); err != nil && ctx.Err() == nil {
				log.Printf("[analyticsd] pattern history backfill %s: %v", ic.Symbol, err)
			}
			sched.RunNow(ctx, scheduler.Job{Name: "analysis", Instrument: ic.Symbol,
				Run: func(ctx context.Context) error { return app.runAnalysis(ctx, ic.Symbol) }})
			sched.RunNow(ctx, scheduler.Job{Name: "backtest", Instrument: ic.Symbol,
				Run: func(ctx context.Context) error { return app.runBacktest(ctx, ic.Symbol) }})
		}
		log.Println("[analyticsd] initial backfill and analysis complete")
	}()

	log.Printf("[analyticsd] ready: %d instruments, intervals %v, sync every %s",
		len(enabled), cfg.Intervals, cfg.SyncEvery)

	// ---- Wait for shutdown ----
	<-ctx.Done()
	log.Println("[analyticsd] shutdown signal received, cleaning up...")
	sched.Wait()
	seedWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Stop(shutdownCtx)
	log.Println("[analyticsd] shutdown complete.")
}

func newSource(name string) collector.Source {
	switch name {
	case "okx":
		return collector.NewOKX()
	case "kraken":
		return collector.NewKraken()
	default:
		return collector.NewBinance()
	}
}

// publisherOrNil keeps a typed-nil *Publisher out of the interface.
func publisherOrNil(p *redisstore.Publisher) model.SnapshotPublisher {
	if p == nil {
		return nil
	}
	return p
}

// app binds the analysis jobs to their dependencies.
type app struct {
	cfg      *config.Config
	store    *sqlitestore.Store
	registry *analytics.Registry
	enricher *pattern.Enricher
	cycles   *cycle.Classifier
	notifier notify.Notifier
	prom     *metrics.Metrics

	mu        sync.Mutex
	backtests map[string][]model.BacktestResult
	alerted   map[string]time.Time
}

// runAnalysis rebuilds the full snapshot for one instrument: indicators
// per interval, confluence, pattern scan with alerts, and cycle phase.
func (a *app) runAnalysis(ctx context.Context, instrument string) error {
	now := time.Now().UTC()
	runCtx := logger.WithRunID(ctx, logger.NewRunID("analysis", instrument, now))

	snaps := make(map[model.Interval]model.IndicatorSnapshot, len(a.cfg.Intervals))
	var daily []model.Candle
	for _, iv := range a.cfg.Intervals {
		candles, err := a.store.ReadRange(runCtx, instrument, iv, time.Unix(0, 0).UTC(), now.Add(iv.Step()))
		if err != nil {
			return err
		}
		if iv == model.Interval1d {
			daily = candles
		}
		snap, err := indicator.Compute(instrument, iv, candles)
		if err != nil {
			if errors.Is(err, model.ErrInsufficientHistory) {
				slog.Warn("indicators skipped", append(logger.Attrs(runCtx),
					"instrument", instrument, "interval", string(iv), "reason", err.Error())...)
				continue
			}
			return err
		}
		snaps[iv] = snap
	}
	if len(snaps) == 0 {
		return &model.InsufficientHistoryError{Op: "analysis " + instrument, Need: indicator.MinHistory, Have: len(daily)}
	}

	snapshot := analytics.Snapshot{
		Instrument: instrument,
		UpdatedAt:  now,
		Indicators: snaps,
	}

	if len(daily) > 0 {
		closes := make([]float64, len(daily))
		for i, c := range daily {
			closes[i] = c.Close
		}
		conf := indicator.Confluence(instrument, snaps, closes)
		snapshot.Confluence = &conf

		snapshot.Patterns = a.scanPatterns(runCtx, instrument, daily)
	}

	info, err := a.cycles.Evaluate(runCtx, instrument, now)
	switch {
	case errors.Is(err, model.ErrInsufficientHistory):
		slog.Warn("cycle skipped", append(logger.Attrs(runCtx), "instrument", instrument)...)
	case err != nil:
		return err
	default:
		snapshot.Cycle = &info
	}

	a.mu.Lock()
	snapshot.Backtests = a.backtests[instrument]
	a.mu.Unlock()

	a.registry.Put(runCtx, snapshot)
	a.prom.SnapshotsBuilt.Inc()
	slog.Info("snapshot built", append(logger.Attrs(runCtx),
		"instrument", instrument, "intervals", len(snaps), "patterns", len(snapshot.Patterns))...)
	return nil
}

// scanPatterns detects, enriches, logs, and alerts. Alerting dedupes on
// (instrument, kind, detected_at) so a pattern firing across several
// analysis runs notifies once.
func (a *app) scanPatterns(ctx context.Context, instrument string, daily []model.Candle) []model.Pattern {
	window := daily
	if len(window) > patternScanWindow {
		window = window[len(window)-patternScanWindow:]
	}
	detections := pattern.Detect(instrument, window)
	if len(detections) == 0 {
		return nil
	}

	for i := range detections {
		if err := a.enricher.Enrich(ctx, &detections[i]); err != nil {
			slog.Warn("pattern enrichment failed", "instrument", instrument,
				"kind", string(detections[i].Kind), "err", err.Error())
		}
		a.prom.PatternsDetected.WithLabelValues(string(detections[i].Kind)).Inc()
	}
	if err := a.store.AppendPatterns(ctx, detections); err != nil {
		slog.Warn("pattern log append failed", "instrument", instrument, "err", err.Error())
	}

	for _, d := range detections {
		key := instrument + ":" + string(d.Kind) + ":" + strconv.FormatInt(d.DetectedAt.Unix(), 10)
		a.mu.Lock()
		_, seen := a.alerted[key]
		if !seen {
			a.alerted[key] = time.Now()
		}
		a.mu.Unlock()
		if seen {
			continue
		}
		if err := a.notifier.Send(ctx, notify.FromPattern(d)); err != nil {
			slog.Warn("alert delivery failed", "instrument", instrument,
				"kind", string(d.Kind), "err", err.Error())
		}
	}
	return detections
}

// runBacktest refreshes the strategy comparison over the configured
// lookback and folds it into the current snapshot.
func (a *app) runBacktest(ctx context.Context, instrument string) error {
	now := time.Now().UTC()
	from := now.AddDate(-a.cfg.BacktestYears, 0, 0)
	candles, err := a.store.ReadRange(ctx, instrument, model.Interval1d, from, now)
	if err != nil {
		return err
	}

	results, err := backtest.Compare(instrument, candles, a.cfg.DCABaseAmount, a.cfg.DCACadence, nil)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientHistory) {
			slog.Warn("backtest skipped", "instrument", instrument, "candles", len(candles))
			return nil
		}
		return err
	}

	a.mu.Lock()
	if a.backtests == nil {
		a.backtests = make(map[string][]model.BacktestResult)
	}
	a.backtests[instrument] = results
	a.mu.Unlock()

	a.registry.Update(ctx, instrument, func(s *analytics.Snapshot) {
		s.Backtests = results
		s.UpdatedAt = now
	})
	return nil
}

// runBackfill fills historical gaps back to the instrument's configured
// depth across all enabled intervals.
func (a *app) runBackfill(ctx context.Context, coll *collector.Collector, ic config.InstrumentConfig) error {
	now := time.Now().UTC()
	from := now.AddDate(-ic.BackfillYears, 0, 0)
	var firstErr error
	for _, iv := range a.cfg.Intervals {
		n, err := coll.Backfill(ctx, ic.Symbol, iv, from, now)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("backfill %s %s: %w", ic.Symbol, iv, err)
			}
			continue
		}
		if n > 0 {
			a.prom.BackfillCandles.Add(float64(n))
		}
	}
	return firstErr
}
