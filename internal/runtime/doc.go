// Package runtime wires config, the log manager and metrics into a
// single-node sharedlog daemon. It opens the configured containers through
// one manager handle and exposes them, with a health check, to the servers.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Containers = []config.ContainerConfig{{Path: "c1", ID: "{3CA2CCDA-DD0F-49c8-A741-62AAC0D4EB62}", Create: true}}
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close(ctx)
//	_ = rt.CheckHealth(ctx)
package runtime
