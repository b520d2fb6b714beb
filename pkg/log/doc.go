// Package log provides the structured logging facade used across sharedlog.
//
// # Overview
//
// Logger exposes leveled methods taking Field values. Records flow through a
// slog.Handler bridge into a Formatter and one or more Outputs, so the
// formatting stays identical whether a message comes from our code, from
// slog, or from the standard library logger.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("physlog"), log.Str("container", path))
//	l.Info("container opened", log.Uint64("generation", gen))
//
// # Configuration
//
// ApplyConfig builds a logger from a Config (level, text or json format,
// console/file/null outputs, redacted keys, sampling).
//
// # Interop
//
// ToStdLogger and RedirectStdLog route *log.Logger output (Pebble's default
// logger among others) through a Logger.
package log
