package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const appDirPerm os.FileMode = 0o750

// EnsureDir creates the directory if it does not exist.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // app-owned data dir
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// RemoveTree deletes dir recursively. The directory must live strictly under
// root; anything else is rejected so a malformed job id can never escape the
// download area.
func RemoveTree(root, dir string) error {
	if root == "" || dir == "" {
		return errors.New("empty path")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve dir: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to delete %q: outside root %q", dir, root)
	}
	if err := os.RemoveAll(absDir); err != nil {
		return fmt.Errorf("remove tree: %w", err)
	}
	return nil
}
