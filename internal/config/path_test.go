package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/sharedlog" {
		t.Fatalf("expected /custom/data/sharedlog, got %s", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("HOME", "")
	os.Unsetenv("HOME")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("expected fallback to ./data, got %s", got)
	}
}

func TestDefaultDataDirShape(t *testing.T) {
	got := DefaultDataDir()
	if !filepath.IsAbs(got) && !strings.HasPrefix(got, "./") {
		t.Fatalf("expected absolute or ./ path, got %s", got)
	}
	if !strings.HasSuffix(got, "sharedlog") && got != "./data" {
		t.Fatalf("expected a sharedlog directory, got %s", got)
	}
	if got != DefaultDataDir() {
		t.Fatalf("DefaultDataDir is not stable")
	}
}

func TestIsDir(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{name: "existing directory", path: ".", expected: true},
		{name: "non-existent path", path: "/non/existent/path/that/does/not/exist", expected: false},
		{name: "file instead of directory", path: os.Args[0], expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDir(tt.path); got != tt.expected {
				t.Errorf("isDir(%s) = %v, expected %v", tt.path, got, tt.expected)
			}
		})
	}
}
