package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/sharedlog/internal/config"
	"github.com/rzbill/sharedlog/internal/runtime"
	grpcserver "github.com/rzbill/sharedlog/internal/server/grpc"
	httpserver "github.com/rzbill/sharedlog/internal/server/http"
	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
}

// processLogger builds the daemon logger from cfg, falling back to a text
// logger at the parsed (or info) level when the config cannot be applied.
func processLogger(cfg logpkg.Config) logpkg.Logger {
	logger, err := logpkg.ApplyConfig(&cfg)
	if err == nil {
		return logger
	}
	lvl := logpkg.InfoLevel
	if l, e := logpkg.ParseLevel(cfg.Level); e == nil {
		lvl = l
	}
	return logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
}

// Run opens the configured containers, starts gRPC and HTTP servers and
// blocks until ctx is cancelled or a termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = processLogger(cfg.Log)
	}
	// Pebble logs through the standard library logger.
	defer logpkg.RedirectStdLog(logger)()

	logger.Info("Starting sharedlog daemon",
		logpkg.Str("grpc", cfg.Serve.GRPCAddr),
		logpkg.Str("http", cfg.Serve.HTTPAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("fsync", cfg.Storage.Fsync),
		logpkg.Int("containers", len(cfg.Containers)),
	)

	rt, err := runtime.Open(sctx, runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}

	gsrv := grpcserver.New(rt, logger)
	hsrv := httpserver.New(rt, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gsrv.ListenAndServe(sctx, cfg.Serve.GRPCAddr); err != nil && sctx.Err() == nil {
			logger.Error("grpc server failed", logpkg.Err(err))
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.Serve.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server failed", logpkg.Err(err))
			stop()
		}
	}()

	<-sctx.Done()
	// Servers stop before the containers close underneath them.
	gsrv.Close()
	hsrv.Close()
	wg.Wait()
	if err := rt.Close(context.Background()); err != nil {
		logger.Error("closing containers", logpkg.Err(err))
		return err
	}
	logger.Info("sharedlog daemon stopped")
	return nil
}
