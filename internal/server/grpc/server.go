package grpcserver

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rzbill/sharedlog/internal/runtime"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

const refreshInterval = time.Second

// Server owns the gRPC server instance and the health status it publishes.
type Server struct {
	rt     *runtime.Runtime
	log    logpkg.Logger
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
}

// New constructs a gRPC server and registers the health service.
func New(rt *runtime.Runtime, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = rt.Logger()
	}
	s := &Server{
		rt:     rt,
		log:    logger.WithComponent("grpc"),
		grpc:   grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.Refresh(context.Background())
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.log.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpc.GracefulStop()
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
