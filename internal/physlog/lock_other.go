//go:build !unix

package physlog

import "os"

// lockFile is a no-op where flock is unavailable; the manager's open-path
// table still prevents double opens within one process.
func lockFile(*os.File) error { return nil }
