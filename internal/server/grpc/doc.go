// Package grpcserver hosts the gRPC server for the sharedlog daemon. It
// serves the standard grpc.health.v1 service: the empty service name
// reports the daemon as a whole and sharedlog.container/<id> reports one
// hosted container.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	s := grpcserver.New(rt, nil)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":7070")
package grpcserver
