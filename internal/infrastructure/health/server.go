// Package health serves the standard gRPC health-checking protocol, backed by
// a periodic probe of the product database.
package health

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the service reported alongside the overall ("") status
const ServiceName = "attrgate.ProductService"

// Checker probes a dependency
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Server is a gRPC server exposing grpc.health.v1.Health
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	checker    Checker
	interval   time.Duration
	logger     *logrus.Entry

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewServer creates a health server that probes checker every interval.
// It reports NOT_SERVING until the first probe succeeds.
func NewServer(checker Checker, interval time.Duration, logger *logrus.Logger, opts ...grpc.ServerOption) *Server {
	gs := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		grpcServer: gs,
		health:     hs,
		checker:    checker,
		interval:   interval,
		logger:     logger.WithField("component", "grpc_health"),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Serve starts probing and serves gRPC on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	s.Probe(context.Background())
	go s.probeLoop()
	return s.grpcServer.Serve(lis)
}

func (s *Server) probeLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Probe(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Probe checks the dependency once and updates the serving status
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.checker.HealthCheck(ctx); err != nil {
		s.logger.WithError(err).Warn("health probe failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Stop marks the server as shutting down and stops it gracefully,
// forcing the stop when ctx expires first.
func (s *Server) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.health.Shutdown()

		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-ctx.Done():
			s.logger.Warn("shutdown timeout exceeded, forcing stop")
			s.grpcServer.Stop()
		}
	})
}
