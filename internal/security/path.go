// Package security keeps user-supplied paths and document identifiers
// inside the configured directories.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var docIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// PathValidator checks that paths resolve inside a root directory
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator for root. The directory does not
// need to exist yet.
func NewPathValidator(root string) (*PathValidator, error) {
	if root == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}
	return &PathValidator{root: root}, nil
}

// Root returns the configured directory
func (v *PathValidator) Root() string {
	return v.root
}

// ValidateDocID checks that a document identifier is usable as a single
// directory name under the root.
func ValidateDocID(docID string) error {
	if docID == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	if !docIDPattern.MatchString(docID) || strings.Contains(docID, "..") {
		return fmt.Errorf("invalid document id %q: use letters, digits, '.', '_' or '-'", docID)
	}
	return nil
}

// ValidatePath checks that path is inside the root directory
func (v *PathValidator) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	within, err := v.IsPathWithinDirectory(path)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	if !within {
		return fmt.Errorf("path is outside configured directory: %s", path)
	}
	return nil
}

// IsPathWithinDirectory reports whether path, after cleaning and resolving
// symlinks, is the root directory or below it.
func (v *PathValidator) IsPathWithinDirectory(path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	absRoot, err := filepath.Abs(v.root)
	if err != nil {
		return false, fmt.Errorf("failed to resolve configured directory: %w", err)
	}

	cleanPath := filepath.Clean(absPath)
	cleanRoot := filepath.Clean(absRoot)

	realPath := cleanPath
	if info, err := os.Lstat(cleanPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if resolved, err := filepath.EvalSymlinks(cleanPath); err == nil {
			realPath = resolved
		}
	}
	realRoot := cleanRoot
	if resolved, err := filepath.EvalSymlinks(cleanRoot); err == nil {
		realRoot = resolved
	}

	within := func(p string) bool {
		for _, dir := range []string{cleanRoot, realRoot} {
			if p == dir || strings.HasPrefix(p, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}
	return within(cleanPath) && within(realPath), nil
}

// NormalizePath resolves a path relative to the root and validates it
func (v *PathValidator) NormalizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	path = strings.ReplaceAll(path, "\x00", "")
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if err := v.ValidatePath(absPath); err != nil {
		return "", err
	}
	return absPath, nil
}

// DocumentDir returns the directory holding a document's files
func (v *PathValidator) DocumentDir(docID string) (string, error) {
	if err := ValidateDocID(docID); err != nil {
		return "", err
	}
	return v.NormalizePath(docID)
}
