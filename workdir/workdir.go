// Package workdir manages the on-disk working directories of the
// refresher: data, staging, audit and log locations.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// EnsureDirs creates every directory that does not exist yet.
func EnsureDirs(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", p, err)
		}
	}
	return nil
}

// CleanDir removes every regular file in dir, keeping subdirectories and
// .gitkeep markers. A missing directory is not an error.
func CleanDir(dir string, logger *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == ".gitkeep" {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	if removed > 0 {
		logger.Info("cleaned working directory",
			zap.String("dir", dir),
			zap.Int("files_removed", removed))
	}
	return nil
}
