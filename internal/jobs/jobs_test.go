package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MikeMC777/bikerhub/internal/analytics"
	"github.com/MikeMC777/bikerhub/internal/config"
	"github.com/MikeMC777/bikerhub/internal/events"
	"github.com/MikeMC777/bikerhub/internal/health"
	"github.com/MikeMC777/bikerhub/internal/product"
)

type fakeTemp struct{ maxAge time.Duration }

func (f *fakeTemp) CleanupTemp(maxAge time.Duration, _ time.Time) (int, error) {
	f.maxAge = maxAge
	return 2, nil
}

type fakeSales struct{ days int }

func (f *fakeSales) LastDays(_ context.Context, n int) (analytics.Bucket, error) {
	f.days = n
	return analytics.Bucket{Orders: 4, Revenue: decimal.NewFromInt(120)}, nil
}

type fakeDB struct {
	stmts []string
	fail  string
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if sql == f.fail {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	f.stmts = append(f.stmts, sql)
	return pgconn.NewCommandTag("ANALYZE"), nil
}

type fakeHealth struct{ healthy bool }

func (f fakeHealth) Check(context.Context) health.Report {
	return health.Report{Healthy: f.healthy, Checks: map[string]string{"database": "down"}}
}

type fakeInventory struct{ products []product.Product }

func (f fakeInventory) LowStock(context.Context, int) ([]product.Product, error) { return f.products, nil }

type fakeExpirer struct {
	ttl time.Duration
	err error
}

func (f *fakeExpirer) ExpireStale(_ context.Context, ttl time.Duration) (int, error) {
	f.ttl = ttl
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func newScheduler(t *testing.T, deps Deps) (*Scheduler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	s, err := New(config.CronConfig{Enabled: true, Timezone: "UTC", PendingOrderTTL: 48 * time.Hour}, deps, zap.New(core))
	require.NoError(t, err)
	return s, logs
}

func TestNew_RegistersSixJobs(t *testing.T) {
	s, _ := newScheduler(t, Deps{})
	assert.Len(t, s.Entries(), 6)

	_, err := New(config.CronConfig{Timezone: "Mars/Olympus"}, Deps{}, zap.NewNop())
	assert.Error(t, err)
}

func TestJobs(t *testing.T) {
	temp, sales, db, exp := &fakeTemp{}, &fakeSales{}, &fakeDB{}, &fakeExpirer{}
	s, _ := newScheduler(t, Deps{Temp: temp, Sales: sales, DB: db, Orders: exp})
	ctx := context.Background()

	require.NoError(t, s.CleanupTemp(ctx))
	assert.Equal(t, 24*time.Hour, temp.maxAge)

	require.NoError(t, s.WeeklyAnalytics(ctx))
	assert.Equal(t, 7, sales.days)

	require.NoError(t, s.Analyze(ctx))
	assert.Contains(t, db.stmts, "ANALYZE orders")
	assert.Len(t, db.stmts, len(maintainedTables))

	require.NoError(t, s.ExpireOrders(ctx))
	assert.Equal(t, 48*time.Hour, exp.ttl)
}

func TestInventoryCheck_Publishes(t *testing.T) {
	rec := &events.Recorder{}
	s, _ := newScheduler(t, Deps{
		Inventory: fakeInventory{products: []product.Product{
			{ID: "p1", Name: "Chain", Stock: product.Stock{Quantity: 0, LowStockThreshold: 5}},
			{ID: "p2", Name: "Tube", Stock: product.Stock{Quantity: 3, LowStockThreshold: 5}},
		}},
		Publisher: rec,
	})

	require.NoError(t, s.InventoryCheck(context.Background()))
	require.Equal(t, []string{events.InventoryLowStock}, rec.Types())

	payload, err := events.UnwrapPayload[events.LowStockPayload](rec.Events[0].Payload)
	require.NoError(t, err)
	assert.Len(t, payload.Items, 2)
	assert.Equal(t, "p1", payload.Items[0].ProductID)
}

func TestInventoryCheck_NothingLow(t *testing.T) {
	rec := &events.Recorder{}
	s, _ := newScheduler(t, Deps{Inventory: fakeInventory{}, Publisher: rec})
	require.NoError(t, s.InventoryCheck(context.Background()))
	assert.Empty(t, rec.Types())
}

func TestHealthCheck(t *testing.T) {
	s, _ := newScheduler(t, Deps{Health: fakeHealth{healthy: false}})
	assert.Error(t, s.HealthCheck(context.Background()))

	s, _ = newScheduler(t, Deps{Health: fakeHealth{healthy: true}})
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func TestWrap_LogsFailuresAndPanics(t *testing.T) {
	exp := &fakeExpirer{err: errors.New("db down")}
	s, logs := newScheduler(t, Deps{Orders: exp})

	s.wrap("order-status-updates", s.ExpireOrders)()
	assert.Equal(t, 1, logs.FilterMessage("job failed").Len())

	assert.NotPanics(t, s.wrap("boom", func(context.Context) error { panic("nil map") }))
	assert.Equal(t, 1, logs.FilterMessage("job panicked").Len())
}

func TestAnalyze_StopsOnError(t *testing.T) {
	db := &fakeDB{fail: "ANALYZE products"}
	s, _ := newScheduler(t, Deps{DB: db})
	err := s.Analyze(context.Background())
	assert.ErrorContains(t, err, "analyze products")
	assert.Equal(t, []string{"ANALYZE users"}, db.stmts)
}
