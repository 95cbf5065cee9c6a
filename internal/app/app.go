// Package app wires the API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/clubos/internal/domain/money"
	"github.com/xenking/clubos/internal/domain/order"
	"github.com/xenking/clubos/internal/domain/register"
	"github.com/xenking/clubos/internal/domain/scope"
	"github.com/xenking/clubos/internal/handler"
	"github.com/xenking/clubos/internal/storage/postgres"
	"github.com/xenking/clubos/internal/storage/redis"
	"github.com/xenking/clubos/pkg/health"
	"github.com/xenking/clubos/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	if _, err := cfg.Coupon(); err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Facility selection is optional.
	var selections scope.Selections
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		selections = redis.NewSelectionStore(rdb, redis.DefaultSelectionTTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	} else {
		lg.Info("Redis not configured, facility selection disabled")
	}

	healthSvc.Start(ctx, 10*time.Second)

	r, err := newRouter(ctx, cfg, routerDeps{
		pool:       pool,
		selections: selections,
		health:     healthSvc,
		meter:      m.MeterProvider(),
		tracer:     m.TracerProvider(),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:          cfg.CORS.Origins,
				Headers:          []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
			httpmiddleware.Instrument("clubos-api", m),
		),
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// routerDeps are the resources the routes are built on.
type routerDeps struct {
	pool       *pgxpool.Pool
	selections scope.Selections
	health     *health.Health
	meter      metric.MeterProvider
	tracer     trace.TracerProvider
}

// newRouter builds the stores, domain services and the route tree.
func newRouter(ctx context.Context, cfg *Config, d routerDeps) (http.Handler, error) {
	couponValue, err := cfg.Coupon()
	if err != nil {
		return nil, err
	}

	scopeStore := postgres.NewScopeStore(d.pool)
	registerStore := postgres.NewRegisterStore(d.pool)
	orderStore := postgres.NewOrderStore(d.pool)

	resolver := scope.NewResolver(scopeStore, d.selections)
	registers, err := register.NewManager(registerStore, registerStore,
		register.WithMeterProvider(d.meter),
		register.WithTracerProvider(d.tracer),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create register manager")
	}
	orders, err := order.NewService(resolver, registers, orderStore,
		order.WithCalculator(money.NewCalculator(couponValue)),
		order.WithMeterProvider(d.meter),
		order.WithTracerProvider(d.tracer),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	h := handler.NewHandler(registers, orders, resolver)

	r := chi.NewRouter()
	r.Get("/livez", d.health.LiveEndpoint)
	r.Get("/readyz", d.health.ReadyEndpoint)
	r.Route("/api", func(r chi.Router) {
		r.Use(handler.Auth([]byte(cfg.JWTSecret)))
		r.Use(httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: rateLimitKey,
		}))
		r.Mount("/", h.Routes())
	})
	return r, nil
}

// rateLimitKey counts authenticated requests per user.
func rateLimitKey(r *http.Request) string {
	if id, ok := handler.UserID(r.Context()); ok {
		return "user:" + id
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}
