package pebblestore

import (
	"fmt"
	"os"

	logpkg "github.com/rzbill/sharedlog/pkg/log"
)

// pebbleLogger satisfies pebble.Logger on top of our facade.
type pebbleLogger struct {
	l logpkg.Logger
}

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...), logpkg.Bool("fatal", true))
	os.Exit(1)
}
