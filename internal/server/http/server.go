package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/sharedlog/internal/runtime"
	"github.com/rzbill/sharedlog/internal/server/http/controllers"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

// Server serves the admin REST surface and the Prometheus scrape endpoint.
type Server struct {
	rt  *runtime.Runtime
	log logpkg.Logger
	srv *http.Server
	lis net.Listener
}

// New builds the mux: controllers under /v1 and metrics at /metrics.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = rt.Logger()
	}
	mux := http.NewServeMux()
	controllers.NewControllerRegistry(rt).RegisterAllRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(rt.Gatherer(), promhttp.HandlerOpts{}))
	return &Server{
		rt:  rt,
		log: logger.WithComponent("http"),
		srv: &http.Server{Handler: cors(mux), ReadHeaderTimeout: 5 * time.Second},
	}
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.log.Info("http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
