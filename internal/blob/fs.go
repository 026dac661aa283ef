package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
)

func init() {
	Register("fs", NewFSStore)
}

type fsOptions struct {
	// Root is the directory objects are stored under.
	Root string `mapstructure:"root"`
}

// FSStore stores objects as files under a root directory. Intended for
// development and tests.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed blob store.
func NewFSStore(options map[string]any) (Store, error) {
	var opts fsOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("invalid fs driver options: %w", err)
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("root is required for fs driver")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FSStore{root: opts.Root}, nil
}

// path maps a key to a file path, rejecting traversal outside the root.
func (s *FSStore) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	clean := filepath.Clean("/" + key)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid key: %s", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes the object under key.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Get opens the object for reading.
func (s *FSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Stat returns object metadata.
func (s *FSStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	path, err := s.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: fi.Size(), LastModified: fi.ModTime()}, nil
}

// Close is a no-op for the filesystem store.
func (s *FSStore) Close() error { return nil }

var _ Store = (*FSStore)(nil)
