package admin

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cfgpkg "github.com/rzbill/sharedlog/internal/config"
	grpcserver "github.com/rzbill/sharedlog/internal/server/grpc"
	"github.com/rzbill/sharedlog/pkg/id"
)

// grpcAddr returns the daemon address from SHAREDLOG_GRPC or the default.
func grpcAddr() string {
	if addr := os.Getenv("SHAREDLOG_GRPC"); addr != "" {
		return addr
	}
	return cfgpkg.Default().Serve.GRPCAddr
}

// dialGRPCContext dials the daemon with insecure transport for local use.
func dialGRPCContext(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	return grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// newHealthCommand constructs `health`, which queries a running daemon.
func newHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running daemon's health over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			container, _ := cmd.Flags().GetString("container-id")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			conn, err := dialGRPCContext(ctx, addr)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()
			service := ""
			if container != "" {
				cid, err := id.Parse(container)
				if err != nil {
					return usagef("invalid container id %q: %v", container, err)
				}
				service = grpcserver.ContainerService(cid.String())
			}
			res, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.GetStatus().String())
			if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return rejectedf("daemon reports %s", res.GetStatus())
			}
			return nil
		},
	}
	cmd.Flags().String("addr", grpcAddr(), "Daemon gRPC address")
	cmd.Flags().StringP("container-id", "g", "", "Check one hosted container")
	cmd.Flags().Duration("timeout", 3*time.Second, "Request timeout")
	return cmd
}
