package config

import (
	"os"
	"path/filepath"
)

const appDirName = "sharedlog"

// DefaultDataDir returns the directory relative container paths resolve
// against. XDG_DATA_HOME wins; otherwise the first existing platform
// location is used, falling back to ~/.sharedlog, or ./data without a home
// directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	candidates := []struct{ parent, dir string }{
		{"/var/lib", filepath.Join("/var/lib", appDirName)},
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", appDirName)},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", appDirName)},
	}
	for _, c := range candidates {
		if isDir(c.parent) {
			return c.dir
		}
	}
	return filepath.Join(home, "."+appDirName)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
