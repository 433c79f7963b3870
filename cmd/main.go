package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/pitwall/internal/adapters/http/api"
	"github.com/okian/pitwall/internal/adapters/provider"
	app "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/config"
	"github.com/okian/pitwall/internal/featurestore"
	"github.com/okian/pitwall/internal/ingest"
	"github.com/okian/pitwall/internal/models"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

var errPipelineFailed = errors.New("pipeline failed")

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func main() {
	if err := logger.Init(); err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	lg := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		lg.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.GetRegistry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error(ctx, "pitwall exited", logger.Error(err))
		os.Exit(1)
	}
}

// run executes one pipeline run and, when an address is configured, serves
// the read-only API until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, lg logger.Logger) error {
	src, closer, err := newProvider(cfg, lg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctrl, err := newController(cfg, src, lg)
	if err != nil {
		return err
	}

	var srv *http.Server
	if cfg.Addr != "" {
		srv = newServer(ctx, cfg.Addr, ctrl)
		go func() {
			lg.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error(ctx, "HTTP server failed", logger.Error(err))
			}
		}()
	}

	ok := ctrl.RunCompletePipeline(ctx)
	st := ctrl.Status()
	lg.Info(ctx, "pipeline finished",
		logger.Bool("ok", ok),
		logger.String("state", st.State),
		logger.String("run_id", st.RunID),
		logger.Int("rows", st.NRows),
		logger.Int("races", st.NRaces),
		logger.Int("features", st.NFeatures),
		logger.Strings("models", st.ModelsTrained))
	for _, row := range ctrl.CompareModels() {
		lg.Info(ctx, "model comparison",
			logger.String("model", row.Model),
			logger.Float64("mae", row.Metrics["mae"]),
			logger.Float64("rmse", row.Metrics["rmse"]),
			logger.Float64("top3_accuracy", row.Metrics["top3_accuracy"]))
	}

	var runErr error
	if !ok {
		runErr = fmt.Errorf("%w: %s: %w", errPipelineFailed, st.State, ctrl.Err())
	}
	if srv == nil {
		return runErr
	}
	if runErr != nil {
		// keep serving so the failed stage can be inspected
		lg.Error(ctx, "pipeline failed", logger.Error(runErr))
	}

	<-ctx.Done()
	lg.Info(context.Background(), "shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	lg.Info(context.Background(), "server stopped")
	return nil
}

// newProvider builds the configured result provider. The returned closer
// releases the response cache, if any.
func newProvider(cfg *config.Config, lg logger.Logger) (ingest.Provider, io.Closer, error) {
	if cfg.ProviderKind == config.ProviderSynthetic {
		return provider.NewSynthetic(
			provider.WithSeed(cfg.SyntheticSeed),
			provider.WithRounds(cfg.SyntheticRounds),
			provider.WithDrivers(cfg.SyntheticDrivers),
		), nopCloser{}, nil
	}
	opts := []provider.Option{
		provider.WithBaseURL(cfg.ProviderBaseURL),
		provider.WithTimeout(cfg.ProviderTimeout()),
		provider.WithRateLimit(cfg.ProviderRatePerSec, cfg.ProviderBurst),
		provider.WithLogger(lg.Named("provider")),
	}
	var closer io.Closer = nopCloser{}
	if cfg.ProviderCacheDir != "" {
		cache, err := provider.OpenBadgerCache(cfg.ProviderCacheDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open provider cache: %w", err)
		}
		opts = append(opts, provider.WithCache(cache, cfg.ProviderCacheTTL()))
		closer = cache
	}
	return provider.NewErgast(opts...), closer, nil
}

func newController(cfg *config.Config, src ingest.Provider, lg logger.Logger) (*app.Controller, error) {
	filter, err := ingest.NewEventFilter(cfg.EventFilter)
	if err != nil {
		return nil, err
	}
	store, err := featurestore.NewStore(cfg.FeatureStorePath, featurestore.WithLogger(lg.Named("featurestore")))
	if err != nil {
		return nil, err
	}
	loader := ingest.NewLoader(src, ingest.WithFilter(filter), ingest.WithLogger(lg.Named("ingest")))
	return app.New(loader, store,
		app.WithYears(cfg.Seasons()...),
		app.WithFeatureSetName(cfg.FeatureSetName),
		app.WithTestSize(cfg.TestSize),
		app.WithRatingOptions(
			models.WithKFactor(cfg.EloKFactor),
			models.WithInitialRating(cfg.EloInitialRating),
			models.WithUnseenPosition(float64(cfg.UnseenPosition)),
			models.WithRatingLogger(lg.Named("models.elo")),
		),
		app.WithBaselineColumn(cfg.BaselineColumn),
		app.WithEnsembleWeights(cfg.EnsembleWeights),
		app.WithLogger(lg.Named("controller")),
	), nil
}

func newServer(ctx context.Context, addr string, ctrl *app.Controller) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(ctrl, api.DefaultMaxLimit).Register(ctx, mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
