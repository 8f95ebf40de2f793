package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates path and its parents, for report directories and the
// SQLite database folder.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// SafeJoin places name directly under root, dropping any directory parts.
// Names that reduce to "." or ".." become "_" so a book name can never point
// a report outside root.
func SafeJoin(root, name string) string {
	base := filepath.Base(name)
	switch base {
	case ".", "..", string(filepath.Separator):
		base = "_"
	}
	return filepath.Join(root, base)
}
