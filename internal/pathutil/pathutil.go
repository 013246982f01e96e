// Package pathutil provides shared path validation helpers for output files.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, null bytes and ".." segments.
// Segments are checked before cleaning so that "data/../etc/passwd" is
// rejected rather than silently becoming "etc/passwd".
func ValidateFilePath(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(filePath, 0) {
		return fmt.Errorf("file path contains invalid characters")
	}
	for _, segment := range strings.Split(filepath.ToSlash(filePath), "/") {
		if segment == ".." {
			return fmt.Errorf("file path contains path traversal: %q", filePath)
		}
	}
	return nil
}

// ValidateFileName checks that name is a bare file name: no directory
// component and no hidden-file prefix (temp files use the "." prefix).
func ValidateFileName(name string) error {
	if err := ValidateFilePath(name); err != nil {
		return err
	}
	if filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("file name must not contain a directory: %q", name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("file name must not start with a dot: %q", name)
	}
	return nil
}

// JoinOutput validates dir and name and joins them into an output path.
func JoinOutput(dir, name string) (string, error) {
	if err := ValidateFilePath(dir); err != nil {
		return "", fmt.Errorf("invalid output directory: %w", err)
	}
	if err := ValidateFileName(name); err != nil {
		return "", fmt.Errorf("invalid output file name: %w", err)
	}
	return filepath.Join(dir, name), nil
}
