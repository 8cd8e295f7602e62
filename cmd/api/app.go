package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/Nastaran-Nourbakhsh/nova/internal/api/handlers"
	"github.com/Nastaran-Nourbakhsh/nova/internal/api/middleware"
	"github.com/Nastaran-Nourbakhsh/nova/internal/config"
	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
	"github.com/Nastaran-Nourbakhsh/nova/internal/observability"
	"github.com/Nastaran-Nourbakhsh/nova/internal/repository"
	"github.com/Nastaran-Nourbakhsh/nova/internal/service"
	"github.com/Nastaran-Nourbakhsh/nova/internal/worker"
	"github.com/Nastaran-Nourbakhsh/nova/internal/workers"
	"github.com/Nastaran-Nourbakhsh/nova/pkg/cache"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	reaper         *worker.RunReaper
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

const queueGaugeInterval = 15 * time.Second

// setupMetrics creates the meter provider and nova metrics when metrics are enabled.
// The http.Handler is non-nil only for the prometheus exporter (scrape endpoint).
// When NewMeterProvider returns nil (unsupported or disabled exporter), returns all nils (metrics disabled).
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, *observability.Metrics, http.Handler, error) {
	mp, promHandler, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("nova"))
	if err != nil {
		err2 := observability.ShutdownMeterProvider(context.Background(), mp)
		if err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, metrics, promHandler, nil
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err           error
		meterProvider *sdkmetric.MeterProvider
		metrics       *observability.Metrics
		promHandler   http.Handler
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metrics, promHandler, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	var (
		matchingMetrics observability.MatchingMetrics
		cacheMetrics    observability.CacheMetrics
		apiMetrics      observability.APIMetrics
	)
	if metrics != nil {
		matchingMetrics = metrics.Matching
		cacheMetrics = metrics.Cache
		apiMetrics = metrics.API
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			if meterProvider != nil {
				if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
					slog.Error("shutdown meter provider after tracer provider error", "error", err2)
				}
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Install TraceContextHandler unconditionally so request_id (and trace_id/span_id when tracing is on) appear in logs.
	defaultHandler := slog.Default().Handler()
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(defaultHandler)))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	jobsRepo := repository.NewJobsRepository(db)
	ringsRepo := repository.NewRingsRepository(db)
	diamondsRepo := repository.NewDiamondsRepository(db)
	featuresRepo := repository.NewFeaturesRepository(db)
	runsRepo := repository.NewMatchingRunsRepository(db)
	pairsRepo := repository.NewPairsRepository(db)

	// Pair sets of DONE runs are immutable, so the cache never invalidates;
	// the LRU bound alone caps memory.
	pairsCache, err := cache.NewLoaderCache[uuid.UUID, []models.DiamondPair](cfg.PairCacheSize, uuid.UUID.String)
	if err != nil {
		shutdownAfterWiringError(tracerProvider, meterProvider, "pairs cache")

		return nil, fmt.Errorf("create pairs cache: %w", err)
	}

	donePairs := service.NewCachingPairsReader(pairsRepo, pairsCache, cacheMetrics)

	runsService := service.NewMatchingRunsService(
		cfg,
		jobsRepo,
		diamondsRepo,
		featuresRepo,
		runsRepo,
		pairsRepo,
		donePairs,
		nil, // riverClient set below after creation
		matchingMetrics,
	)

	// One queued attempt may spend the full solver ceiling plus snapshot
	// reads and the commit; pad the worker timeout accordingly.
	runWorker := workers.NewMatchingRunWorker(runsService, cfg.SolverBudgetCeiling+time.Minute)

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, runWorker)

	queues := map[string]river.QueueConfig{
		service.MatchingQueueName: {MaxWorkers: cfg.MatchingMaxConcurrent},
	}

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues:       queues,
		Workers:      riverWorkers,
		ErrorHandler: &workers.JobErrorHandler{},
	})
	if err != nil {
		shutdownAfterWiringError(tracerProvider, meterProvider, "River client")

		return nil, fmt.Errorf("create River client: %w", err)
	}

	runsService.SetInserter(riverClient)

	jobsService := service.NewJobsService(jobsRepo)
	diamondsService := service.NewDiamondsService(cfg, jobsRepo, ringsRepo, diamondsRepo, featuresRepo)

	jobsHandler := handlers.NewJobsHandler(jobsService)
	ringsHandler := handlers.NewRingsHandler(diamondsService)
	diamondsHandler := handlers.NewDiamondsHandler(diamondsService)
	matchingRunsHandler := handlers.NewMatchingRunsHandler(runsService)
	healthHandler := handlers.NewHealthHandler(db)

	reaper := worker.NewRunReaper(runsRepo, matchingMetrics,
		cfg.ReaperInterval, cfg.RunStallTimeout, cfg.RunOrphanTimeout)

	server := newHTTPServer(
		cfg, healthHandler, jobsHandler, ringsHandler, diamondsHandler, matchingRunsHandler,
		apiMetrics, promHandler, meterProvider, tracerProvider,
	)

	return &App{
		cfg:            cfg,
		db:             db,
		server:         server,
		river:          riverClient,
		reaper:         reaper,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// shutdownAfterWiringError tears down observability providers when NewApp fails
// after they were created. Errors are logged, not returned; the wiring error wins.
func shutdownAfterWiringError(tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider, stage string) {
	if tracer != nil {
		if err := observability.ShutdownTracerProvider(context.Background(), tracer); err != nil {
			slog.Error("shutdown tracer provider after "+stage+" error", "error", err)
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(context.Background(), meter); err != nil {
			slog.Error("shutdown meter provider after "+stage+" error", "error", err)
		}
	}
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health and /metrics, API key on /v1/).
// Handler chain: RequestID -> otelhttp(Logging(mux)) so access logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	jobs *handlers.JobsHandler,
	rings *handlers.RingsHandler,
	diamonds *handlers.DiamondsHandler,
	matchingRuns *handlers.MatchingRunsHandler,
	apiMetrics observability.APIMetrics,
	promHandler http.Handler,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Check)

	if promHandler != nil {
		public.Handle("GET /metrics", promHandler)
	}

	// Scanners push one diamond and one feature row per stone; those two
	// write paths share a limiter so a hot scanner cannot starve reads.
	ingestLimit := middleware.RateLimit(
		rate.NewLimiter(rate.Limit(cfg.IngestRateLimit), cfg.IngestRateBurst),
		apiMetrics,
	)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/jobs", jobs.Create)
	protected.HandleFunc("GET /v1/jobs", jobs.List)
	protected.HandleFunc("GET /v1/jobs/{id}", jobs.Get)
	protected.HandleFunc("POST /v1/jobs/{id}/start", jobs.Start)
	protected.HandleFunc("POST /v1/jobs/{id}/pause", jobs.Pause)
	protected.HandleFunc("POST /v1/jobs/{id}/resume", jobs.Resume)
	protected.HandleFunc("POST /v1/jobs/{id}/complete", jobs.Complete)

	protected.HandleFunc("POST /v1/jobs/{id}/rings", rings.Create)
	protected.HandleFunc("GET /v1/jobs/{id}/rings", rings.List)

	protected.Handle("POST /v1/jobs/{id}/diamonds", ingestLimit(http.HandlerFunc(diamonds.Ingest)))
	protected.HandleFunc("GET /v1/jobs/{id}/diamonds", diamonds.List)
	protected.HandleFunc("GET /v1/diamonds/{id}", diamonds.Get)
	protected.HandleFunc("DELETE /v1/diamonds/{id}", diamonds.Delete)
	protected.Handle("PUT /v1/diamonds/{id}/features", ingestLimit(http.HandlerFunc(diamonds.UpsertFeature)))
	protected.HandleFunc("GET /v1/diamonds/{id}/features", diamonds.GetFeature)

	protected.HandleFunc("POST /v1/jobs/{id}/matching-runs", matchingRuns.Create)
	protected.HandleFunc("POST /v1/jobs/{id}/matching-runs/sync", matchingRuns.CreateSync)
	protected.HandleFunc("GET /v1/jobs/{id}/matching-runs", matchingRuns.List)
	protected.HandleFunc("GET /v1/jobs/{id}/matching-runs/latest", matchingRuns.GetLatest)
	protected.HandleFunc("GET /v1/matching-runs/{id}", matchingRuns.Get)
	protected.HandleFunc("GET /v1/matching-runs/{id}/pairs", matchingRuns.GetPairs)

	var protectedHandler http.Handler = protected
	protectedHandler = middleware.MaxBody(cfg.MaxBodyBytes, apiMetrics)(protectedHandler)
	protectedHandler = middleware.Auth(cfg.APIKey)(protectedHandler)

	mux := http.NewServeMux()
	mux.Handle("/v1/", protectedHandler)
	mux.Handle("/", public)

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks and scrapes to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log (trace_id/span_id in access logs).
	inner := middleware.Logging(mux)
	handler := otelhttp.NewHandler(inner, "nova-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout = 15 * time.Second
		idleTimeout = 60 * time.Second
	)

	// The sync matching endpoint holds the response for up to the solver
	// ceiling, so the write timeout must outlast it.
	writeTimeout := cfg.SolverBudgetCeiling + 30*time.Second

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server, River, and the run reaper, then blocks until ctx is
// cancelled (e.g. signal) or a component fails. When ctx is cancelled or a component
// fails, it cancels the internal worker context so River, the reaper, and the queue
// gauge poller stop before Run returns. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	if a.metrics != nil && a.metrics.Queue != nil {
		go runQueueGaugePoller(workerCtx, a.db, a.metrics.Queue)
	}

	go a.reaper.Start(workerCtx)

	go func() {
		if err := a.river.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelWorkers()

		return err
	case <-ctx.Done():
		cancelWorkers()

		return nil
	}
}

// runQueueGaugePoller periodically updates the matching-queue depth and
// active-run gauges from Postgres.
func runQueueGaugePoller(ctx context.Context, db *pgxpool.Pool, queueMetrics observability.QueueMetrics) {
	ticker := time.NewTicker(queueGaugeInterval)
	defer ticker.Stop()

	update := func() {
		var depth int

		err := db.QueryRow(ctx,
			`SELECT COUNT(*) FROM river_job WHERE queue = $1 AND state IN ($2, $3, $4)`,
			service.MatchingQueueName,
			rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
		).Scan(&depth)
		if err != nil {
			slog.WarnContext(ctx, "queue depth poll failed", "error", err)

			return
		}

		queueMetrics.SetRiverQueueDepth(depth)

		var active int

		err = db.QueryRow(ctx,
			`SELECT COUNT(*) FROM matching_runs WHERE status = $1`,
			models.RunStatusRunning,
		).Scan(&active)
		if err != nil {
			slog.WarnContext(ctx, "active runs poll failed", "error", err)

			return
		}

		queueMetrics.SetActiveRuns(active)
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server and River in order. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when server and River shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
