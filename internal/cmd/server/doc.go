// Package serverrun exposes the Run entrypoint used by `sharedlog serve` to
// host containers behind the gRPC and HTTP servers, handling lifecycle and
// shutdown.
//
// Example:
//
//	cfg := config.Default()
//	config.FromEnv(&cfg)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
