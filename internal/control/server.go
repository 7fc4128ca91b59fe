// Package control exposes the link's lifecycle over gRPC health checking and
// serves Prometheus metrics over HTTP.
package control

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/signalsfoundry/teleop-linksim/internal/logging"
	"github.com/signalsfoundry/teleop-linksim/internal/observability"
)

// LinkService is the health service name reporting the link pair state.
const LinkService = "teleop.Link"

const defaultPollInterval = 100 * time.Millisecond

// LinkStatus reports whether the link pair is running.
type LinkStatus interface {
	Running() bool
}

// Config wires a Server.
type Config struct {
	Link         LinkStatus
	Collector    *observability.ControlCollector
	Logger       logging.Logger
	PollInterval time.Duration
}

// Server is the gRPC control surface.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	link   LinkStatus
	log    logging.Logger
	poll   time.Duration

	mu      sync.Mutex
	serving bool
}

// New builds a Server. Health starts as SERVING when the link is running.
func New(cfg Config) *Server {
	log := logging.OrNoop(cfg.Logger)
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if cfg.Collector != nil {
		interceptors = append(interceptors, cfg.Collector.UnaryServerInterceptor())
	}

	s := &Server{
		grpc: grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(interceptors...),
		),
		health: health.NewServer(),
		link:   cfg.Link,
		log:    log,
		poll:   poll,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.Refresh()
	return s
}

// GRPCServer exposes the underlying server so callers can register more services.
func (s *Server) GRPCServer() *grpc.Server { return s.grpc }

// Refresh publishes the link state to the health service.
func (s *Server) Refresh() {
	running := s.link != nil && s.link.Running()

	s.mu.Lock()
	changed := running != s.serving
	s.serving = running
	s.mu.Unlock()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(LinkService, status)
	if changed {
		s.log.Info(context.Background(), "link health changed", logging.String("status", status.String()))
	}
}

// Serve accepts connections on lis until ctx is cancelled, refreshing health
// from the link every poll interval.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(lis)
	}()
	s.log.Info(ctx, "control server listening", logging.String("addr", lis.Addr().String()))

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpc.GracefulStop()
			if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			s.log.Info(context.WithoutCancel(ctx), "control server stopped")
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// ServeMetrics serves handler at /metrics on addr in the background. It
// returns nil when addr is empty.
func ServeMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" || handler == nil {
		return nil
	}
	log = logging.OrNoop(log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
