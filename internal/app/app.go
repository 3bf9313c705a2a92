package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Ariya-Dice/tansoo/internal/catalog"
	"github.com/Ariya-Dice/tansoo/internal/checkout"
	"github.com/Ariya-Dice/tansoo/internal/config"
	"github.com/Ariya-Dice/tansoo/internal/event"
	handler "github.com/Ariya-Dice/tansoo/internal/handler/http"
	"github.com/Ariya-Dice/tansoo/internal/service"
	"github.com/Ariya-Dice/tansoo/internal/slot"
	fileslot "github.com/Ariya-Dice/tansoo/internal/slot/file"
	pgslot "github.com/Ariya-Dice/tansoo/internal/slot/postgres"
	redisslot "github.com/Ariya-Dice/tansoo/internal/slot/redis"
	"github.com/Ariya-Dice/tansoo/pkg/database"
	"github.com/Ariya-Dice/tansoo/pkg/health"
	"github.com/Ariya-Dice/tansoo/pkg/httpclient"
	pkgkafka "github.com/Ariya-Dice/tansoo/pkg/kafka"
	"github.com/Ariya-Dice/tansoo/pkg/middleware"
	"github.com/Ariya-Dice/tansoo/pkg/tracing"
)

const serviceName = "cart"

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
	stop           chan struct{}
	background     context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger, stop: make(chan struct{})}

	shutdown, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    "cart-service",
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracerShutdown = shutdown

	database.SetSlowOpLogging(cfg.SlowOpThreshold, logger)
	healthHandler := health.NewHandler()

	cartSlot, err := a.openSlot(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	var publisher event.Publisher = event.Noop{}
	if cfg.EventsEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("no kafka brokers configured, cart events disabled")
	}

	base := httpclient.New(httpclient.Config{
		Timeout:         cfg.DownstreamTimeout,
		MaxRetries:      cfg.DownstreamRetries,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 50,
	})

	var products service.ProductResolver
	if cfg.CatalogURL != "" {
		cb := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("catalog"), logger)
		products = catalog.NewClient(cb, cfg.CatalogURL, cfg.CatalogCacheTTL)
		logger.Info("catalog lookups enabled", slog.String("url", cfg.CatalogURL))
	}

	var orders service.OrderSubmitter
	if cfg.OrderServiceURL != "" {
		cb := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("order"), logger)
		orders = checkout.NewClient(cb, cfg.OrderServiceURL)
		logger.Info("checkout enabled", slog.String("url", cfg.OrderServiceURL))
	}

	cartService := service.NewCartService(cartSlot, products, orders, publisher, service.Limits{
		MaxQuantityPerLine: cfg.MaxQuantityPerLine,
		MaxLines:           cfg.MaxLines,
	}, logger)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins
	cors.AllowCredentials = cfg.CORSAllowCredentials

	router := handler.NewRouter(cartService, healthHandler, logger, handler.RouterConfig{
		ServiceName: serviceName,
		PprofCIDRs:  cfg.PprofCIDRs,
		CORS:        cors,
		RateLimit: middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
			TTL:   10 * time.Minute,
		},
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	}, a.stop)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

// openSlot connects the configured slot backend and registers its health check.
func (a *App) openSlot(ctx context.Context, h *health.Handler) (slot.Slot, error) {
	cfg := a.cfg

	switch cfg.SlotBackend {
	case config.SlotMemory:
		a.logger.Warn("using in-memory cart slot, carts are lost on restart")
		return slot.NewMemory(), nil

	case config.SlotFile:
		s, err := fileslot.New(cfg.SlotFileDir)
		if err != nil {
			return nil, fmt.Errorf("open file slot: %w", err)
		}
		h.Register("slot", s.Ping)
		a.logger.Info("using file cart slot", slog.String("dir", cfg.SlotFileDir))
		return s, nil

	case config.SlotRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPass,
			DB:          cfg.RedisDB,
			PoolSize:    cfg.RedisPoolSize,
			DialTimeout: cfg.RedisTimeout,
			OpTimeout:   cfg.RedisTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		s := redisslot.New(rdb, cfg.RedisKeyPrefix, cfg.CartTTLDuration())
		h.Register("redis", s.Ping)
		a.logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		return s, nil

	case config.SlotPostgres:
		pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
			DSN:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		if err := pgslot.Migrate(ctx, pool, a.logger); err != nil {
			return nil, fmt.Errorf("migrate cart_slots: %w", err)
		}
		database.RegisterPoolMetrics(pool, serviceName)

		s := pgslot.New(pool)
		h.Register("postgres", s.Ping)
		a.startPurge(s)
		a.logger.Info("connected to PostgreSQL")
		return s, nil
	}

	return nil, fmt.Errorf("unknown slot backend %q", cfg.SlotBackend)
}

// startPurge periodically deletes Postgres slots older than the cart TTL.
func (a *App) startPurge(s *pgslot.Slot) {
	ctx, cancel := context.WithCancel(context.Background())
	a.background = cancel

	go func() {
		ticker := time.NewTicker(a.cfg.SlotPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.PurgeOlderThan(ctx, time.Now().Add(-a.cfg.CartTTLDuration()))
				if err != nil {
					a.logger.Error("purge expired carts", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					a.logger.Info("purged expired carts", slog.Int64("count", n))
				}
			}
		}
	}()
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.closeResources()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.closeResources()
	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeResources() {
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
	if a.background != nil {
		a.background()
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}
}
