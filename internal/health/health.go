// Package health reports the liveness of the API's backing services over
// HTTP and the gRPC health protocol.
package health

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	StatusUp   = "up"
	StatusDown = "down"
	// ServiceName is the gRPC service name reported alongside the empty one.
	ServiceName = "bikerhub.API"
)

// Pinger is anything whose reachability can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Report struct {
	Healthy bool              `json:"-"`
	Checks  map[string]string `json:"checks"`
	Uptime  time.Duration     `json:"-"`
}

// Checker pings the database (required) and any optional dependencies.
type Checker struct {
	db       Pinger
	optional map[string]Pinger
	started  time.Time
	timeout  time.Duration
	grpc     *grpchealth.Server
	log      *zap.Logger
}

func NewChecker(db Pinger, log *zap.Logger) *Checker {
	return &Checker{
		db:       db,
		optional: map[string]Pinger{},
		started:  time.Now(),
		timeout:  2 * time.Second,
		grpc:     grpchealth.NewServer(),
		log:      log,
	}
}

// Add registers a dependency whose failure degrades but does not fail health.
func (c *Checker) Add(name string, p Pinger) { c.optional[name] = p }

func (c *Checker) Uptime() time.Duration { return time.Since(c.started) }

// Check pings every dependency and mirrors the result to the gRPC server.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{Healthy: true, Checks: map[string]string{}, Uptime: c.Uptime()}
	if err := c.ping(ctx, c.db); err != nil {
		c.log.Warn("database health check failed", zap.Error(err))
		r.Healthy = false
		r.Checks["database"] = StatusDown
	} else {
		r.Checks["database"] = StatusUp
	}
	for name, p := range c.optional {
		if err := c.ping(ctx, p); err != nil {
			c.log.Warn("dependency health check failed", zap.String("dependency", name), zap.Error(err))
			r.Checks[name] = StatusDown
			continue
		}
		r.Checks[name] = StatusUp
	}

	st := healthpb.HealthCheckResponse_SERVING
	if !r.Healthy {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.grpc.SetServingStatus("", st)
	c.grpc.SetServingStatus(ServiceName, st)
	return r
}

func (c *Checker) ping(ctx context.Context, p Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return p.Ping(ctx)
}

// GRPCServer returns a server exposing grpc.health.v1.Health backed by c.
func (c *Checker) GRPCServer() *grpc.Server {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, c.grpc)
	reflection.Register(srv)
	return srv
}

// Serve runs srv on addr until ctx is done.
func Serve(ctx context.Context, srv *grpc.Server, addr string, log *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	log.Info("grpc health listening", zap.String("addr", addr))
	return srv.Serve(lis)
}

// Shutdown marks every service as not serving ahead of a stop.
func (c *Checker) Shutdown() { c.grpc.Shutdown() }
