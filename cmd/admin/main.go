// Command admin runs one-off maintenance tasks against the BikerHUB database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/analytics"
	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/config"
	"github.com/MikeMC777/bikerhub/internal/logger"
	"github.com/MikeMC777/bikerhub/internal/order"
	"github.com/MikeMC777/bikerhub/internal/postgres"
	"github.com/MikeMC777/bikerhub/internal/user"
)

const usage = `usage: admin <command> [flags]

commands:
  create-admin [-email e] [-username u] [-password p]
  migrate up|down|version
  stats [-customer id]
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type env struct {
	cfg *config.Config
	log *zap.Logger
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create-admin", "migrate", "stats":
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"})
	defer func() { _ = log.Sync() }()
	e := env{cfg: cfg, log: log}

	switch cmd {
	case "create-admin":
		return e.createAdmin(ctx, rest, out)
	case "migrate":
		return e.migrate(rest, out)
	default:
		return e.stats(ctx, rest, out)
	}
}

type adminFlags struct {
	email, username, password string
}

func parseAdminFlags(args []string) (adminFlags, error) {
	var f adminFlags
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.email, "email", "admin@bikerhub.com", "admin email")
	fs.StringVar(&f.username, "username", "admin", "admin username")
	fs.StringVar(&f.password, "password", "", "admin password (required)")
	if err := fs.Parse(args); err != nil {
		return f, fmt.Errorf("%w: %v", errUsage, err)
	}
	if len(f.password) < 6 {
		return f, fmt.Errorf("%w: -password must be at least 6 characters", errUsage)
	}
	return f, nil
}

func (e env) createAdmin(ctx context.Context, args []string, out io.Writer) error {
	f, err := parseAdminFlags(args)
	if err != nil {
		return err
	}
	pool, err := postgres.Connect(ctx, e.cfg.Database.DSN, 2)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := user.NewService(user.NewPGRepo(pool), auth.NewJWTService(e.cfg.JWT), auth.NewMemoryBlacklist(), e.cfg.Security.BcryptCost)
	u, created, err := svc.EnsureAdmin(ctx, f.email, f.username, f.password)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	if created {
		fmt.Fprintln(out, "Admin user created successfully")
	} else {
		fmt.Fprintln(out, "Admin user already exists")
	}
	fmt.Fprintf(out, "Email: %s\nUsername: %s\n", u.Email, u.Username)
	return nil
}

func (e env) migrate(args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: migrate needs one of up, down, version", errUsage)
	}
	m, err := postgres.NewMigrator(e.cfg.Database.DSN, e.log)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version %d (dirty=%t)\n", v, dirty)
		return nil
	}
	return fmt.Errorf("%w: unknown migrate action %q", errUsage, args[0])
}

func (e env) stats(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	customer := fs.String("customer", "", "restrict order statistics to one customer")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	pool, err := postgres.Connect(ctx, e.cfg.Database.DSN, 2)
	if err != nil {
		return err
	}
	defer pool.Close()

	st, err := order.NewPGRepo(pool).Statistics(ctx, *customer)
	if err != nil {
		return fmt.Errorf("order statistics: %w", err)
	}
	ov, err := analytics.NewService(analytics.NewPGRepo(pool)).Overview(ctx)
	if err != nil {
		return fmt.Errorf("analytics overview: %w", err)
	}
	return printStats(out, st, ov)
}

func printStats(out io.Writer, st order.Stats, ov analytics.Overview) error {
	summary := tablewriter.NewWriter(out)
	summary.Header("Metric", "Value")
	for _, row := range [][]string{
		{"Users", strconv.FormatInt(ov.TotalUsers, 10)},
		{"Orders", strconv.FormatInt(st.TotalOrders, 10)},
		{"Pending", strconv.FormatInt(st.PendingOrders, 10)},
		{"Confirmed", strconv.FormatInt(st.ConfirmedOrders, 10)},
		{"Delivered", strconv.FormatInt(st.DeliveredOrders, 10)},
		{"Cancelled", strconv.FormatInt(st.CancelledOrders, 10)},
		{"Revenue", st.TotalRevenue.StringFixed(2)},
		{"Average order", st.AverageOrderValue.StringFixed(2)},
		{"Net revenue", ov.TotalRevenue.StringFixed(2)},
	} {
		if err := summary.Append(row); err != nil {
			return err
		}
	}
	if err := summary.Render(); err != nil {
		return err
	}

	if len(ov.TopProducts) == 0 {
		fmt.Fprintln(out, "No products sold yet")
		return nil
	}
	top := tablewriter.NewWriter(out)
	top.Header("#", "Product", "Sold", "Price")
	for i, p := range ov.TopProducts {
		if err := top.Append([]string{strconv.Itoa(i + 1), p.Name, strconv.Itoa(p.SoldCount), p.Price.StringFixed(2)}); err != nil {
			return err
		}
	}
	return top.Render()
}
