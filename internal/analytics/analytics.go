// Package analytics aggregates store wide sales figures for the admin dashboard.
package analytics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type TopProduct struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	SoldCount int             `json:"soldCount"`
	Price     decimal.Decimal `json:"price"`
}

type Overview struct {
	TotalUsers   int64           `json:"totalUsers"`
	TotalOrders  int64           `json:"totalOrders"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	TopProducts  []TopProduct    `json:"topProducts"`
}

// Bucket is one period of the sales series.
type Bucket struct {
	Period  time.Time       `json:"period"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type Sales struct {
	Daily   []Bucket `json:"daily"`
	Weekly  []Bucket `json:"weekly"`
	Monthly []Bucket `json:"monthly"`
}

// Granularity names a date_trunc unit.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

type Repository interface {
	Overview(ctx context.Context, top int) (Overview, error)
	Series(ctx context.Context, g Granularity, since time.Time) ([]Bucket, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

// revenue excludes cancelled and refunded orders
const countedOrders = `status NOT IN ('cancelled', 'refunded')`

func (r *PGRepo) Overview(ctx context.Context, top int) (Overview, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var o Overview
	err := r.db.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM users),
		       (SELECT COUNT(*) FROM orders),
		       (SELECT COALESCE(SUM(total), 0) FROM orders WHERE `+countedOrders+`)::text
	`).Scan(&o.TotalUsers, &o.TotalOrders, &o.TotalRevenue)
	if err != nil {
		return o, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id::text, name, slug, sold_count, price::text
		FROM products
		WHERE status = 'active'
		ORDER BY sold_count DESC, name
		LIMIT $1`, top)
	if err != nil {
		return o, err
	}
	o.TopProducts, err = pgx.CollectRows(rows, pgx.RowToStructByPos[TopProduct])
	return o, err
}

func (r *PGRepo) Series(ctx context.Context, g Granularity, since time.Time) ([]Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT date_trunc($1, created_at AT TIME ZONE 'UTC') AS period,
		       COUNT(*),
		       COALESCE(SUM(total), 0)::text
		FROM orders
		WHERE created_at >= $2 AND `+countedOrders+`
		GROUP BY period
		ORDER BY period`, string(g), since)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Bucket])
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Overview(ctx context.Context) (Overview, error) {
	o, err := s.repo.Overview(ctx, 5)
	if o.TopProducts == nil {
		o.TopProducts = []TopProduct{}
	}
	return o, err
}

// Sales returns the last 30 days, 12 weeks and 12 months, with empty periods filled.
func (s *Service) Sales(ctx context.Context) (Sales, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	week := startOfWeek(today)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var out Sales
	var err error
	if out.Daily, err = s.series(ctx, Day, today.AddDate(0, 0, -29), 30); err != nil {
		return out, err
	}
	if out.Weekly, err = s.series(ctx, Week, week.AddDate(0, 0, -7*11), 12); err != nil {
		return out, err
	}
	if out.Monthly, err = s.series(ctx, Month, month.AddDate(0, -11, 0), 12); err != nil {
		return out, err
	}
	return out, nil
}

// LastDays sums orders and revenue over the n days ending now.
func (s *Service) LastDays(ctx context.Context, n int) (Bucket, error) {
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(n - 1))
	buckets, err := s.repo.Series(ctx, Day, since)
	if err != nil {
		return Bucket{}, err
	}
	sum := Bucket{Period: since, Revenue: decimal.Zero}
	for _, b := range buckets {
		sum.Orders += b.Orders
		sum.Revenue = sum.Revenue.Add(b.Revenue)
	}
	return sum, nil
}

func (s *Service) series(ctx context.Context, g Granularity, from time.Time, n int) ([]Bucket, error) {
	rows, err := s.repo.Series(ctx, g, from)
	if err != nil {
		return nil, err
	}
	return fill(rows, g, from, n), nil
}

func fill(rows []Bucket, g Granularity, from time.Time, n int) []Bucket {
	byPeriod := make(map[time.Time]Bucket, len(rows))
	for _, b := range rows {
		byPeriod[b.Period.UTC()] = b
	}
	out := make([]Bucket, n)
	p := from
	for i := 0; i < n; i++ {
		b, ok := byPeriod[p]
		if !ok {
			b = Bucket{Period: p, Revenue: decimal.Zero}
		}
		b.Period = p
		out[i] = b
		p = advance(p, g)
	}
	return out
}

func advance(t time.Time, g Granularity) time.Time {
	switch g {
	case Week:
		return t.AddDate(0, 0, 7)
	case Month:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// startOfWeek returns the Monday of t's ISO week, matching date_trunc('week').
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
