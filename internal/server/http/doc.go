// Package httpserver provides the sharedlog daemon's REST surface: health,
// container usage and stream directories, flush, and a Prometheus /metrics
// endpoint.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	s := httpserver.New(rt, nil)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":7080")
package httpserver
