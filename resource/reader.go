package resource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnavailable indicates a resource could not be read.
var ErrUnavailable = errors.New("resource unavailable")

// ErrTooLarge indicates a resource exceeds a reader's size limit.
var ErrTooLarge = errors.New("resource too large")

// Reader fetches the text at a location. Implementations own timeouts and
// must wrap failures with ErrUnavailable.
type Reader interface {
	Read(ctx context.Context, location string) (string, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(ctx context.Context, location string) (string, error)

// Read calls f(ctx, location).
func (f ReaderFunc) Read(ctx context.Context, location string) (string, error) {
	return f(ctx, location)
}

func unavailable(location string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, location, err)
}

// FileReader reads resources from the local filesystem.
type FileReader struct {
	// Root resolves relative locations. Empty means the working directory.
	Root string

	// MaxBytes rejects larger files. 0 means no limit.
	MaxBytes int64
}

// NewFileReader creates a reader rooted at root.
func NewFileReader(root string) *FileReader {
	return &FileReader{Root: root}
}

// Read returns the contents of the file at location.
func (r *FileReader) Read(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable(location, err)
	}

	p := location
	if !filepath.IsAbs(p) && r.Root != "" {
		p = filepath.Join(r.Root, p)
	}

	info, err := os.Stat(p)
	if err != nil {
		return "", unavailable(location, err)
	}
	if info.IsDir() {
		return "", unavailable(location, errors.New("is a directory"))
	}
	if r.MaxBytes > 0 && info.Size() > r.MaxBytes {
		return "", unavailable(location, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, info.Size(), r.MaxBytes))
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return "", unavailable(location, err)
	}
	return string(data), nil
}

// FSReader reads resources from an fs.FS. Locations are slash-separated
// and a leading slash is ignored.
type FSReader struct {
	FS fs.FS
}

// NewFSReader creates a reader over fsys.
func NewFSReader(fsys fs.FS) *FSReader {
	return &FSReader{FS: fsys}
}

// Read returns the contents of the file at location within the FS.
func (r *FSReader) Read(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable(location, err)
	}

	name := path.Clean(strings.TrimPrefix(location, "/"))
	if !fs.ValidPath(name) {
		return "", unavailable(location, fs.ErrInvalid)
	}

	data, err := fs.ReadFile(r.FS, name)
	if err != nil {
		return "", unavailable(location, err)
	}
	return string(data), nil
}

// MapReader serves resources from memory, keyed by location.
type MapReader map[string]string

// Read returns the text stored under location.
func (m MapReader) Read(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable(location, err)
	}
	content, ok := m[location]
	if !ok {
		return "", unavailable(location, fs.ErrNotExist)
	}
	return content, nil
}

var (
	_ Reader = (*FileReader)(nil)
	_ Reader = (*FSReader)(nil)
	_ Reader = MapReader(nil)
	_ Reader = ReaderFunc(nil)
)
