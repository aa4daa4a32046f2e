package vserial

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultAllowedRoots are the directories a published device path may
// live under when no explicit policy is configured.
func DefaultAllowedRoots() []string {
	roots := []string{"/dev", "/tmp"}
	if tmp := os.TempDir(); tmp != "/tmp" {
		roots = append(roots, tmp)
	}
	return roots
}

// validatePath checks a requested publish path: it must be absolute,
// free of parent-directory traversal, inside one of the allowed roots,
// and its parent directory must exist and be writable.
func validatePath(path string, allowedRoots []string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, path)
	}
	for _, part := range strings.Split(path, string(os.PathSeparator)) {
		if part == ".." {
			return fmt.Errorf("%w: %q contains a parent-directory segment", ErrInvalidPath, path)
		}
	}

	clean := filepath.Clean(path)
	inRoot := false
	for _, root := range allowedRoots {
		root = filepath.Clean(root)
		if clean == root {
			break // the root itself is a directory, not a valid device path
		}
		if strings.HasPrefix(clean, root+string(os.PathSeparator)) {
			inRoot = true
			break
		}
	}
	if !inRoot {
		return fmt.Errorf("%w: %q is outside the allowed roots %v", ErrInvalidPath, path, allowedRoots)
	}

	parent := filepath.Dir(clean)
	info, err := os.Stat(parent)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: parent directory %q does not exist", ErrInvalidPath, parent)
	}
	if err := unix.Access(parent, unix.W_OK); err != nil {
		return fmt.Errorf("%w: parent directory %q is not writable", ErrInvalidPath, parent)
	}
	return nil
}
