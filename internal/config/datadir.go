package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// resolveDataDir turns dir into an absolute path and creates it if
// missing, matching the teacher's config.Load behavior of guaranteeing
// its data directory exists before returning.
func resolveDataDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("config: failed to resolve data directory %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("config: failed to create data directory: %w", err)
	}
	return abs, nil
}
