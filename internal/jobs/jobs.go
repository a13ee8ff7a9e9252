// Package jobs runs the API's periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/analytics"
	"github.com/MikeMC777/bikerhub/internal/config"
	"github.com/MikeMC777/bikerhub/internal/events"
	"github.com/MikeMC777/bikerhub/internal/health"
	"github.com/MikeMC777/bikerhub/internal/logger"
	"github.com/MikeMC777/bikerhub/internal/product"
)

const (
	SpecDailyCleanup    = "0 2 * * *"
	SpecWeeklyAnalytics = "0 3 * * 0"
	SpecMonthlyAnalyze  = "0 4 1 * *"
	SpecHealthCheck     = "*/5 * * * *"
	SpecInventoryCheck  = "0 * * * *"
	SpecExpireOrders    = "*/30 * * * *"
)

const (
	tempMaxAge     = 24 * time.Hour
	lowStockLimit  = 100
	defaultTimeout = 2 * time.Minute
)

var maintainedTables = []string{"users", "products", "orders", "order_items", "payments", "uploads"}

type TempCleaner interface {
	CleanupTemp(maxAge time.Duration, now time.Time) (int, error)
}

type SalesReporter interface {
	LastDays(ctx context.Context, n int) (analytics.Bucket, error)
}

type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

type Inventory interface {
	LowStock(ctx context.Context, limit int) ([]product.Product, error)
}

type OrderExpirer interface {
	ExpireStale(ctx context.Context, ttl time.Duration) (int, error)
}

// Deps are the collaborators the jobs act on. A nil dependency skips its job.
type Deps struct {
	Temp      TempCleaner
	Sales     SalesReporter
	DB        Execer
	Health    HealthChecker
	Inventory Inventory
	Publisher events.Publisher
	Orders    OrderExpirer
}

type Scheduler struct {
	cron *cron.Cron
	deps Deps
	cfg  config.CronConfig
	log  *zap.Logger
	now  func() time.Time
}

// New registers every job on a cron in cfg.Timezone. Nothing runs until Start.
func New(cfg config.CronConfig, deps Deps, log *zap.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("cron timezone %q: %w", cfg.Timezone, err)
	}
	s := &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		deps: deps,
		cfg:  cfg,
		log:  log.Named("cron"),
		now:  time.Now,
	}
	for _, j := range s.jobs() {
		if _, err := s.cron.AddFunc(j.spec, s.wrap(j.name, j.run)); err != nil {
			return nil, fmt.Errorf("register %s: %w", j.name, err)
		}
	}
	return s, nil
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{"daily-cleanup", SpecDailyCleanup, s.CleanupTemp},
		{"weekly-analytics", SpecWeeklyAnalytics, s.WeeklyAnalytics},
		{"monthly-maintenance", SpecMonthlyAnalyze, s.Analyze},
		{"health-check", SpecHealthCheck, s.HealthCheck},
		{"inventory-check", SpecInventoryCheck, s.InventoryCheck},
		{"order-status-updates", SpecExpireOrders, s.ExpireOrders},
	}
}

// wrap bounds a run with a timeout and turns errors and panics into log lines.
func (s *Scheduler) wrap(name string, run func(ctx context.Context) error) func() {
	return func() {
		log := s.log.With(zap.String("job", name))
		defer func() {
			if r := recover(); r != nil {
				log.Error("job panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		ctx = logger.WithContext(ctx, log)

		start := time.Now()
		if err := run(ctx); err != nil {
			log.Error("job failed", zap.Error(err), zap.Duration("took", time.Since(start)))
			return
		}
		log.Debug("job finished", zap.Duration("took", time.Since(start)))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("cron jobs started", zap.Int("jobs", len(s.cron.Entries())), zap.String("timezone", s.cfg.Timezone))
}

// Stop prevents new runs and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

func (s *Scheduler) Entries() []cron.Entry { return s.cron.Entries() }

func (s *Scheduler) CleanupTemp(ctx context.Context) error {
	if s.deps.Temp == nil {
		return nil
	}
	n, err := s.deps.Temp.CleanupTemp(tempMaxAge, s.now())
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("daily cleanup completed", zap.Int("removed_temp_files", n))
	return nil
}

func (s *Scheduler) WeeklyAnalytics(ctx context.Context) error {
	if s.deps.Sales == nil {
		return nil
	}
	b, err := s.deps.Sales.LastDays(ctx, 7)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("weekly analytics generated",
		zap.Int64("orders", b.Orders), zap.String("revenue", b.Revenue.StringFixed(2)))
	return nil
}

func (s *Scheduler) Analyze(ctx context.Context) error {
	if s.deps.DB == nil {
		return nil
	}
	for _, t := range maintainedTables {
		if _, err := s.deps.DB.Exec(ctx, "ANALYZE "+t); err != nil {
			return fmt.Errorf("analyze %s: %w", t, err)
		}
	}
	logger.FromContext(ctx).Info("monthly maintenance completed", zap.Strings("tables", maintainedTables))
	return nil
}

func (s *Scheduler) HealthCheck(ctx context.Context) error {
	if s.deps.Health == nil {
		return nil
	}
	r := s.deps.Health.Check(ctx)
	if !r.Healthy {
		return fmt.Errorf("unhealthy: %v", r.Checks)
	}
	return nil
}

func (s *Scheduler) InventoryCheck(ctx context.Context) error {
	if s.deps.Inventory == nil {
		return nil
	}
	products, err := s.deps.Inventory.LowStock(ctx, lowStockLimit)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}
	items := make([]events.LowStockItem, len(products))
	out := 0
	for i, p := range products {
		if p.IsOutOfStock() {
			out++
		}
		items[i] = events.LowStockItem{ProductID: p.ID, Name: p.Name, Quantity: p.Stock.Quantity, Threshold: p.Stock.LowStockThreshold}
	}
	logger.FromContext(ctx).Warn("inventory check found low stock",
		zap.Int("low_stock", len(products)-out), zap.Int("out_of_stock", out))

	if s.deps.Publisher == nil {
		return nil
	}
	env, err := events.New(events.InventoryLowStock, "inventory", events.LowStockPayload{Items: items})
	if err != nil {
		return err
	}
	return s.deps.Publisher.Publish(ctx, env)
}

func (s *Scheduler) ExpireOrders(ctx context.Context) error {
	if s.deps.Orders == nil {
		return nil
	}
	n, err := s.deps.Orders.ExpireStale(ctx, s.cfg.PendingOrderTTL)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.FromContext(ctx).Info("expired pending orders", zap.Int("cancelled", n))
	}
	return nil
}
