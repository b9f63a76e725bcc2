// Command modelserver serves the demo entities over the ModelSpec routes.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/bitechdev/ModelSpec/pkg/cache"
	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/config"
	"github.com/bitechdev/ModelSpec/pkg/dbmanager"
	"github.com/bitechdev/ModelSpec/pkg/errortracking"
	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/metrics"
	"github.com/bitechdev/ModelSpec/pkg/middleware"
	"github.com/bitechdev/ModelSpec/pkg/modelspec"
	"github.com/bitechdev/ModelSpec/pkg/server"
	"github.com/bitechdev/ModelSpec/pkg/tracing"
)

const healthCheckInterval = 30 * time.Second

func main() {
	configFile := flag.String("config", "", "path to a config file")
	flag.Parse()

	var opts []config.Option
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	cfgMgr := config.NewManagerWithOptions(opts...)
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg, err := cfgMgr.GetConfig()
	if err != nil {
		log.Fatalf("Failed to get configuration: %v", err)
	}

	if err := logger.Configure(cfg.Logger); err != nil {
		log.Fatalf("Failed to configure logger: %v", err)
	}
	logger.Info("ModelSpec server starting")

	if err := run(context.Background(), cfg); err != nil {
		logger.Error("Server failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	tracker, err := errortracking.NewProviderFromConfig(cfg.ErrorTracking)
	if err != nil {
		return err
	}
	logger.InitErrorTracking(tracker)
	defer logger.CloseErrorTracking()

	metricsProvider := metrics.NewProviderFromConfig(cfg.Metrics)
	metrics.SetProvider(metricsProvider)

	shutdownTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return err
	}

	conn, err := dbmanager.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	db := conn.Database()
	if err := migrate(ctx, db); err != nil {
		conn.Close()
		return err
	}
	conn.StartHealthCheck(ctx, healthCheckInterval)

	var counts *cache.CountCache
	if cfg.ModelSpec.CountCache {
		provider, err := cache.NewProviderFromConfig(cfg.Cache)
		if err != nil {
			conn.Close()
			return err
		}
		counts = cache.NewCountCache(provider, cfg.ModelSpec.CountCacheTTL)
	}

	handlerOpts := modelspec.OptionsFromConfig(cfg.ModelSpec)
	handlerOpts.Principal = headerPrincipal
	h := modelspec.NewHandler(db, handlerOpts, counts)
	if err := registerModels(h); err != nil {
		conn.Close()
		return err
	}

	r := mux.NewRouter()
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, metricsProvider.Handler())
	}
	modelspec.SetupMuxRoutes(r, h)

	var handler http.Handler = r
	if cfg.Tracing.Enabled {
		handler = tracing.Middleware(handler)
	}
	handler = middleware.Chain(handler,
		middleware.CORS(middleware.DefaultCORSConfig()),
		middleware.NewRateLimiter(50, 100).WithKeyFunc(userKey).Middleware,
		middleware.NewRequestSizeLimiter(middleware.DefaultMaxRequestSize).Middleware,
	)

	srv, err := server.NewGracefulServer(server.FromConfig(cfg.Server, handler))
	if err != nil {
		conn.Close()
		return err
	}
	r.Handle("/health", srv.HealthCheckHandler(map[string]server.HealthCheck{
		"database": conn.HealthCheck,
	}))
	srv.OnShutdown(shutdownTracer)
	srv.OnShutdown(func(context.Context) error {
		if counts != nil {
			return counts.Provider().Close()
		}
		return nil
	})
	srv.OnShutdown(func(context.Context) error { return conn.Close() })

	return srv.ListenAndServe(ctx)
}

// headerPrincipal trusts X-User-Id and X-User-Role as set by an upstream
// authenticating proxy.
func headerPrincipal(r *http.Request) *common.Principal {
	raw := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if raw == "" {
		return nil
	}
	var id interface{} = raw
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		id = n
	}
	return &common.Principal{
		ID:       id,
		Elevated: strings.EqualFold(r.Header.Get("X-User-Role"), "admin"),
		TimeZone: r.Header.Get("X-Time-Zone"),
	}
}

func userKey(r *http.Request) string {
	if id := r.Header.Get("X-User-Id"); id != "" {
		return "user:" + id
	}
	return ""
}
