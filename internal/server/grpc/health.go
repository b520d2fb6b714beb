package grpcserver

import (
	"context"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

// ContainerService is the health service name published for a container.
func ContainerService(containerID string) string {
	return "sharedlog.container/" + containerID
}

// Refresh republishes the overall status and one status per hosted
// container.
func (s *Server) Refresh(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING
	if err := s.rt.CheckHealth(ctx); err != nil {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)
	for _, c := range s.rt.Containers() {
		status := healthpb.HealthCheckResponse_SERVING
		if err := c.Err(); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.log.Debug("container not serving", logpkg.Str("container", c.ID().String()), logpkg.Err(err))
		}
		s.health.SetServingStatus(ContainerService(c.ID().String()), status)
	}
}
