package physlog

import (
	"errors"
	"fmt"

	"github.com/rzbill/sharedlog/pkg/id"
)

// Container errors.
var (
	ErrNotFound        = errors.New("physlog: container not found")
	ErrExists          = errors.New("physlog: container already exists")
	ErrIDMismatch      = errors.New("physlog: container id mismatch")
	ErrLocked          = errors.New("physlog: container locked by another process")
	ErrNoSpace         = errors.New("physlog: no free extents")
	ErrCorruptMetadata = errors.New("physlog: corrupt metadata")
	ErrUnrecoverable   = errors.New("physlog: container unrecoverable")
	ErrContainerClosed = errors.New("physlog: container closed")
	ErrStreamNotFound  = errors.New("physlog: stream not found")
	ErrStreamExists    = errors.New("physlog: stream already exists")
	ErrStreamInUse     = errors.New("physlog: stream in use")
	ErrAliasInUse      = errors.New("physlog: alias bound to another stream")
	ErrAliasNotFound   = errors.New("physlog: alias not found")
	ErrInvalidOptions  = errors.New("physlog: invalid options")
)

// Stream errors.
var (
	ErrClosed          = errors.New("physlog: stream closed")
	ErrBelowHead       = errors.New("physlog: offset below head")
	ErrBeyondTail      = errors.New("physlog: offset beyond tail")
	ErrInvalidRange    = errors.New("physlog: invalid truncation point")
	ErrWouldOrphanHead = errors.New("physlog: truncation point below head")
	ErrReopenRequired  = errors.New("physlog: stream truncated; reopen to continue")
	// ErrIOFailure matches every *IOError under errors.Is.
	ErrIOFailure = errors.New("physlog: storage failure")
)

// IOError reports a failed read, write, sync or metadata commit. Operations
// that fail with an IOError leave the stream's committed state unchanged
// and are not retried.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("physlog: %s: %v", e.Op, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIOFailure) hold for any IOError.
func (e *IOError) Is(target error) bool { return target == ErrIOFailure }

func ioErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *IOError
	if errors.As(err, &ie) {
		return err
	}
	return &IOError{Op: op, Err: err}
}

// corruptionError describes what loadCatalog found wrong. It matches
// ErrCorruptMetadata.
type corruptionError struct {
	header  bool
	all     bool
	streams map[id.ID]string
	badKeys [][]byte
	aliases bool
}

func (e *corruptionError) Error() string {
	switch {
	case e.all:
		return "physlog: corrupt metadata: container header missing"
	case e.header:
		return "physlog: corrupt metadata: container header invalid"
	case len(e.streams) > 0:
		for _, why := range e.streams {
			return fmt.Sprintf("physlog: corrupt metadata: %d stream record(s), first: %s", len(e.streams), why)
		}
	}
	return "physlog: corrupt metadata: alias index inconsistent"
}

func (e *corruptionError) Is(target error) bool { return target == ErrCorruptMetadata }

func (e *corruptionError) any() bool {
	return e.header || e.all || len(e.streams) > 0 || len(e.badKeys) > 0 || e.aliases
}

func (e *corruptionError) markStream(sid id.ID, why string) {
	if e.streams == nil {
		e.streams = make(map[id.ID]string)
	}
	if _, ok := e.streams[sid]; !ok {
		e.streams[sid] = why
	}
}
