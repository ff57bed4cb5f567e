// Package grpcserver runs the gRPC side channel: standard health checking
// for orchestrators, plus reflection in development.
package grpcserver

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check service name of the HTTP API.
const ServiceName = "connectpro.v1.API"

// Pinger reports backend liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the health server.
type Options struct {
	Interval time.Duration // probe period, default 10s
	Timeout  time.Duration // per-probe timeout, default 2s
	Dev      bool          // register reflection
}

// Health serves grpc.health.v1 and mirrors DB reachability into the serving status.
type Health struct {
	srv  *grpc.Server
	hs   *health.Server
	db   Pinger
	opts Options
	log  *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHealth builds the server. db may be nil, in which case the status is always SERVING.
func NewHealth(db Pinger, opts Options, log *zap.Logger) *Health {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if opts.Dev {
		reflection.Register(s)
	}
	return &Health{srv: s, hs: hs, db: db, opts: opts, log: log, stop: make(chan struct{})}
}

// Serve probes once, starts the probe loop and blocks serving lis.
func (h *Health) Serve(lis net.Listener) error {
	h.probe(context.Background())
	h.wg.Add(1)
	go h.loop()
	return h.srv.Serve(lis)
}

// Stop marks everything NOT_SERVING and drains in-flight calls, forcing after timeout.
func (h *Health) Stop(timeout time.Duration) {
	h.stopOnce.Do(func() { close(h.stop) })
	h.wg.Wait()
	h.hs.Shutdown()

	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		h.srv.Stop()
	}
}

func (h *Health) loop() {
	defer h.wg.Done()
	t := time.NewTicker(h.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-t.C:
			h.probe(context.Background())
		}
	}
}

// probe pings the backend and publishes the result under both "" and ServiceName.
func (h *Health) probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if h.db != nil {
		ctx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
		err := h.db.Ping(ctx)
		cancel()
		if err != nil {
			h.log.Warn("health: db ping failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
	return st
}
