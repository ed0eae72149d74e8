package item

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImageStore is durable storage for saved images
type ImageStore interface {
	// Put stores data under name and returns a durable reference
	Put(ctx context.Context, name string, data []byte) (string, error)

	// Get retrieves image bytes by reference
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes an image by reference
	Delete(ctx context.Context, ref string) error
}

// LocalStorage implements the ImageStore interface using the local
// filesystem. References are absolute paths under the base directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolving storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: abs,
	}, nil
}

// Put writes the file through a temporary name so a failed write never
// leaves a truncated image behind
func (l *LocalStorage) Put(ctx context.Context, name string, data []byte) (string, error) {
	name = filepath.Base(filepath.Clean(name))
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name")
	}

	tmp, err := os.CreateTemp(l.basePath, ".tmp-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing file: %w", err)
	}

	path := filepath.Join(l.basePath, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("renaming file: %w", err)
	}
	return path, nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(ctx context.Context, ref string) error {
	path, err := l.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// resolve accepts an absolute reference or a name relative to the base
// directory and refuses anything outside it
func (l *LocalStorage) resolve(ref string) (string, error) {
	path := filepath.Clean(ref)
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.basePath, path)
	}
	rel, err := filepath.Rel(l.basePath, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("reference outside storage: %s", ref)
	}
	return path, nil
}
