package nvm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LoadFile restores a region from a raw binary file. A missing file leaves
// the region erased and is not an error.
func LoadFile(m *Memory, r Region, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s image: %w", r, err)
	}
	return m.Restore(r, data)
}

// SaveFile writes a region to a raw binary file. The file is replaced
// atomically so an interrupted save keeps the previous image.
func SaveFile(m *Memory, r Region, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save %s image: %w", r, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(m.Snapshot(r)); err != nil {
		tmp.Close()
		return fmt.Errorf("save %s image: %w", r, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save %s image: %w", r, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save %s image: %w", r, err)
	}
	return nil
}
