package stores

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeAtomicFile writes data next to path and renames it into place, so
// readers see either the old file or the new one, never a partial write.
// The result keeps the 0600 mode of os.CreateTemp.
func writeAtomicFile(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	cleanup := func(err error) error {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}

	if _, err := tmpFile.Write(data); err != nil {
		return cleanup(fmt.Errorf("failed to write to temp file: %w", err))
	}
	if err := tmpFile.Sync(); err != nil {
		return cleanup(fmt.Errorf("failed to sync temp file: %w", err))
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
