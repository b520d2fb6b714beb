package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	cfgpkg "github.com/rzbill/sharedlog/internal/config"
	"github.com/rzbill/sharedlog/internal/runtime"
)

const (
	bufSize = 1 << 20
	testID  = "{3CA2CCDA-DD0F-49c8-A741-62AAC0D4EB62}"
)

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
}

func openRuntime(t *testing.T) *runtime.Runtime {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.ExtentSize = 4096
	cfg.Storage.MaxExtents = 8
	cfg.Containers = []cfgpkg.ContainerConfig{{Path: "c1", ID: testID, Create: true}}
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	return rt
}

func TestHealthOverGRPC(t *testing.T) {
	rt := openRuntime(t)
	defer rt.Close(context.Background())
	srv := New(rt, nil)
	defer srv.Close()
	d := dialer(srv.grpc)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, "bufnet", grpc.WithContextDialer(d), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	c := healthpb.NewHealthClient(conn)

	res, err := c.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall status %v", res.GetStatus())
	}
	cid := rt.Containers()[0].ID().String()
	res, err = c.Check(ctx, &healthpb.HealthCheckRequest{Service: ContainerService(cid)})
	if err != nil {
		t.Fatalf("check container: %v", err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("container status %v", res.GetStatus())
	}
}

func TestRefreshMarksClosedContainer(t *testing.T) {
	rt := openRuntime(t)
	defer rt.Close(context.Background())
	srv := New(rt, nil)
	defer srv.Close()
	c := rt.Containers()[0]
	if err := c.Container.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	srv.Refresh(context.Background())

	d := dialer(srv.grpc)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, "bufnet", grpc.WithContextDialer(d), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	res, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ContainerService(c.ID().String())})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", res.GetStatus())
	}
}
