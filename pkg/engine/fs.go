package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS is the filesystem surface the engine writes through.
type FS interface {
	// Lstat returns file info without following symlinks.
	Lstat(path string) (os.FileInfo, error)

	// Readlink reads the target of a symlink.
	Readlink(path string) (string, error)

	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data atomically, creating parent directories.
	WriteFile(path string, data []byte, perm os.FileMode) error

	// Symlink creates newname pointing at oldname, creating parent directories.
	Symlink(oldname, newname string) error

	// Remove removes a file or symlink.
	Remove(path string) error
}

// OSFS implements FS on the local disk.
type OSFS struct{}

func (OSFS) Lstat(path string) (os.FileInfo, error) { return os.Lstat(path) }

func (OSFS) Readlink(path string) (string, error) { return os.Readlink(path) }

func (OSFS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OSFS) Remove(path string) error { return os.Remove(path) }

func (OSFS) Symlink(oldname, newname string) error {
	if err := os.MkdirAll(filepath.Dir(newname), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	return os.Symlink(oldname, newname)
}

// WriteFile writes through a temp file in the same directory and renames it into place.
func (OSFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// cleanRelPath normalizes a workspace-relative path to slash form.
func cleanRelPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q must be relative to the workspace", p)
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the workspace", p)
	}
	return clean, nil
}

// joinRel joins a package relative directory and a package-relative path.
func joinRel(pkgRel, p string) string {
	if pkgRel == "" || pkgRel == "." {
		return p
	}
	return pkgRel + "/" + p
}
