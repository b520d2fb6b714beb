package physlog

import (
	"os"

	"github.com/pkg/errors"
)

const dataFileName = "extents.dat"

// ExtentStore is the random-access file holding the superblock and extents.
//
//go:generate mockgen -destination=../mock/physlog/extent_store.go -package=mockphyslog . ExtentStore
type ExtentStore interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Sync() error
	Close() error
}

// extentFile is the on-disk ExtentStore. It holds an exclusive advisory
// lock for as long as it is open.
type extentFile struct {
	f *os.File
}

func openExtentFile(path string, create bool, size int64) (*extentFile, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open extent file")
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	if create {
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "size extent file")
		}
	}
	return &extentFile{f: f}, nil
}

func (e *extentFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := e.f.ReadAt(p, off)
	if err != nil {
		return n, errors.Wrapf(err, "read %d bytes at %d", len(p), off)
	}
	return n, nil
}

func (e *extentFile) WriteAt(p []byte, off int64) (int, error) {
	n, err := e.f.WriteAt(p, off)
	if err != nil {
		return n, errors.Wrapf(err, "write %d bytes at %d", len(p), off)
	}
	return n, nil
}

func (e *extentFile) Sync() error {
	return errors.Wrap(e.f.Sync(), "sync extent file")
}

func (e *extentFile) Close() error {
	return errors.Wrap(e.f.Close(), "close extent file")
}
