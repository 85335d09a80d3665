// Package source reads files out of browser profile directories.
//
// Extractors never touch the filesystem directly; they go through a Reader
// so tests can stage profiles in a temp dir and so live, possibly locked
// SQLite databases are copied aside before being opened.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Reader is the minimal view of a profile directory an extractor needs.
type Reader interface {
	// Exists reports whether the named file is present.
	Exists(name string) bool
	// ReadBytes returns the contents of the named file.
	ReadBytes(name string) ([]byte, error)
	// ReadText returns the contents of the named file as a string.
	ReadText(name string) (string, error)
	// Path returns the absolute path of the named file.
	Path(name string) string
}

// DirReader reads files from a profile directory on disk.
type DirReader struct {
	root string
}

// NewDirReader returns a Reader over dir. The directory must exist.
func NewDirReader(dir string) (*DirReader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open profile dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open profile dir: %s is not a directory", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("open profile dir: %w", err)
	}
	return &DirReader{root: abs}, nil
}

// Root returns the profile directory.
func (r *DirReader) Root() string { return r.root }

func (r *DirReader) Exists(name string) bool {
	info, err := os.Stat(filepath.Join(r.root, name))
	return err == nil && !info.IsDir()
}

func (r *DirReader) ReadBytes(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(r.root, name))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (r *DirReader) ReadText(name string) (string, error) {
	data, err := r.ReadBytes(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *DirReader) Path(name string) string {
	return filepath.Join(r.root, name)
}

// sidecars are the auxiliary files SQLite may keep next to a database.
// Copying them along with the main file preserves unflushed pages.
var sidecars = []string{"-wal", "-shm", "-journal"}

// CopyDatabase copies the named database file (and any WAL/journal sidecars)
// from the profile into dstDir and returns the path of the copy. The browser
// may hold the original open and locked; reads always go through a copy.
func CopyDatabase(r Reader, name, dstDir string) (string, error) {
	if !r.Exists(name) {
		return "", fmt.Errorf("copy %s: %w", name, os.ErrNotExist)
	}
	dst := filepath.Join(dstDir, filepath.Base(name))
	if err := copyFile(r.Path(name), dst); err != nil {
		return "", fmt.Errorf("copy %s: %w", name, err)
	}
	for _, suffix := range sidecars {
		if !r.Exists(name + suffix) {
			continue
		}
		if err := copyFile(r.Path(name+suffix), dst+suffix); err != nil {
			return "", fmt.Errorf("copy %s%s: %w", name, suffix, err)
		}
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
