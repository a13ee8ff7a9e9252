// Command api serves the BikerHUB REST API, its gRPC health endpoint and the
// scheduled maintenance jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MikeMC777/bikerhub/internal/analytics"
	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/cart"
	"github.com/MikeMC777/bikerhub/internal/config"
	"github.com/MikeMC777/bikerhub/internal/events"
	"github.com/MikeMC777/bikerhub/internal/health"
	"github.com/MikeMC777/bikerhub/internal/httpx"
	"github.com/MikeMC777/bikerhub/internal/jobs"
	"github.com/MikeMC777/bikerhub/internal/logger"
	"github.com/MikeMC777/bikerhub/internal/order"
	"github.com/MikeMC777/bikerhub/internal/payment"
	"github.com/MikeMC777/bikerhub/internal/postgres"
	"github.com/MikeMC777/bikerhub/internal/product"
	"github.com/MikeMC777/bikerhub/internal/redisx"
	"github.com/MikeMC777/bikerhub/internal/telemetry"
	"github.com/MikeMC777/bikerhub/internal/upload"
	"github.com/MikeMC777/bikerhub/internal/user"
)

//	@title			BikerHUB API
//	@version		1.0.0
//	@description	Bicycle marketplace backend.
//	@BasePath		/api

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bikerhub: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting BikerHUB API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("grpc_addr", cfg.Server.GRPCAddr),
	)

	tp, err := telemetry.New(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(sctx)
	}()

	pool, err := postgres.Connect(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database.DSN, log); err != nil {
			return err
		}
	}

	rdb := connectRedis(ctx, cfg.Redis, log)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	publisher := newPublisher(cfg.Kafka, log)
	defer func() { _ = publisher.Close() }()

	storage, local, err := newStorage(ctx, cfg.Upload, log)
	if err != nil {
		return err
	}

	a := wire(cfg, log, pool, rdb, publisher, storage)

	checker := health.NewChecker(pool, log)
	if rdb != nil {
		checker.Add("redis", health.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }))
	}
	a.svc.health = checker

	opts := routerOptions{
		cfg:     cfg,
		log:     log,
		limiter: a.limiter,
		tracing: tp.Middleware(cfg.Telemetry.ServiceName),
	}
	if local != nil {
		opts.staticDir = local.Dir()
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(opts, a.svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sched *jobs.Scheduler
	if cfg.Cron.Enabled {
		deps := jobs.Deps{
			Sales:     a.analytics,
			DB:        pool,
			Health:    checker,
			Inventory: a.products,
			Publisher: publisher,
			Orders:    a.orders,
		}
		if local != nil {
			deps.Temp = local
		}
		if sched, err = jobs.New(cfg.Cron, deps, log); err != nil {
			return err
		}
		sched.Start()
	}

	checker.Check(ctx)
	grpcSrv := checker.GRPCServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return health.Serve(gctx, grpcSrv, cfg.Server.GRPCAddr, log)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		checker.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if sched != nil {
			select {
			case <-sched.Stop().Done():
			case <-sctx.Done():
				log.Warn("cron jobs still running at shutdown")
			}
		}
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited gracefully")
	return nil
}

type app struct {
	svc       services
	limiter   httpx.Limiter
	products  *product.PGRepo
	orders    *order.Service
	analytics *analytics.Service
}

// wire builds the domain services, preferring redis backed stores when a
// client is available.
func wire(cfg *config.Config, log *zap.Logger, pool *pgxpool.Pool, rdb *redis.Client, publisher events.Publisher, storage upload.Storage) *app {
	var (
		blacklist   auth.Blacklist
		limiter     httpx.Limiter
		statusCache order.StatusCache
		idem        order.Idempotency
		cartStore   cart.Store
	)
	if rdb != nil {
		prefix := cfg.Redis.KeyPrefix
		blacklist = auth.NewRedisBlacklist(rdb, prefix)
		limiter = httpx.NewRedisLimiter(rdb, prefix, cfg.Security.RateLimitMax, cfg.Security.RateLimitWindow)
		orderStore := order.NewRedisStore(rdb, prefix)
		statusCache, idem = orderStore, orderStore
		cartStore = cart.NewRedisStore(rdb, prefix)
	} else {
		blacklist = auth.NewMemoryBlacklist()
		limiter = httpx.NewMemoryLimiter(cfg.Security.RateLimitMax, cfg.Security.RateLimitWindow)
		orderStore := order.NewMemoryStore()
		statusCache, idem = orderStore, orderStore
		cartStore = cart.NewMemoryStore()
	}

	users := user.NewService(user.NewPGRepo(pool), auth.NewJWTService(cfg.JWT), blacklist, cfg.Security.BcryptCost)
	products := product.NewPGRepo(pool)
	orders := order.NewService(order.NewPGRepo(pool), publisher, statusCache, idem, cfg.Order.TaxRate)

	var online payment.Gateway
	if cfg.Payment.StripeSecretKey != "" {
		online = payment.NewStripeGateway(cfg.Payment.StripeSecretKey, log)
	}
	payments := payment.NewService(payment.NewPGRepo(pool), orders, online)
	orders.SetRefunder(payments)

	uploads := upload.NewService(storage, upload.NewPGRepo(pool), upload.Limits{
		MaxFileSize: cfg.Upload.MaxFileSize,
		MaxFiles:    cfg.Upload.MaxFiles,
		AllowedMIME: cfg.Upload.AllowedMimeTypes,
	})
	stats := analytics.NewService(analytics.NewPGRepo(pool))

	return &app{
		svc: services{
			accounts:  users,
			products:  products,
			orders:    orders,
			payments:  payments,
			uploads:   uploads,
			analytics: stats,
			cart:      cart.NewService(cartStore, products, orders),
		},
		limiter:   limiter,
		products:  products,
		orders:    orders,
		analytics: stats,
	}
}

func migrateUp(dsn string, log *zap.Logger) error {
	m, err := postgres.NewMigrator(dsn, log)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

// connectRedis returns nil when redis is disabled or unreachable; callers
// fall back to in-process stores.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Info("redis disabled, using in-memory stores")
		return nil
	}
	rdb, err := redisx.Connect(ctx, cfg)
	if err != nil {
		log.Warn("redis unavailable, using in-memory stores", zap.Error(err))
		return nil
	}
	return rdb
}

func newPublisher(cfg config.KafkaConfig, log *zap.Logger) events.Publisher {
	if cfg.Enabled && len(cfg.Brokers) > 0 {
		log.Info("publishing events to kafka", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
		return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
	}
	return events.NewLogPublisher(log)
}

// newStorage returns the configured upload backend, plus the local backend
// when it is the one in use.
func newStorage(ctx context.Context, cfg config.UploadConfig, log *zap.Logger) (upload.Storage, *upload.LocalStorage, error) {
	if cfg.Backend == "s3" {
		s, err := upload.NewS3Storage(ctx, cfg.S3, log)
		if err != nil {
			return nil, nil, fmt.Errorf("s3 storage: %w", err)
		}
		return s, nil, nil
	}
	local, err := upload.NewLocalStorage(cfg.Dir, cfg.PublicPath)
	if err != nil {
		return nil, nil, fmt.Errorf("local storage: %w", err)
	}
	return local, local, nil
}
