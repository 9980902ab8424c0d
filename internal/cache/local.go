package cache

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalConfig configures the filesystem cache backend.
type LocalConfig struct {
	Root string `mapstructure:"root"`
}

// LocalCache implements Cache on a local directory tree. Used for dev
// runs and tests; the key hierarchy maps directly onto directories.
type LocalCache struct {
	root string
}

// NewLocalCache creates a filesystem-backed artifact cache.
func NewLocalCache(cfg LocalConfig) (*LocalCache, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("cache: local root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create root: %w", err)
	}
	return &LocalCache{root: cfg.Root}, nil
}

func (c *LocalCache) path(key string) string {
	return filepath.Join(c.root, filepath.FromSlash(key))
}

// Exists reports whether a file is stored under key.
func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(c.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Get returns the stored bytes.
func (c *LocalCache) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put stores bytes under key.
func (c *LocalCache) Put(_ context.Context, key string, data []byte) error {
	p := c.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// Download copies the stored file to localPath.
func (c *LocalCache) Download(_ context.Context, key, localPath string) error {
	src, err := os.Open(c.path(key))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

// Upload copies a local file into the cache.
func (c *LocalCache) Upload(_ context.Context, key, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	p := c.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(p)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

// List walks the tree under prefix and returns stored keys.
func (c *LocalCache) List(_ context.Context, prefix string) ([]string, error) {
	base := c.path(strings.TrimSuffix(prefix, "/"))
	var keys []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Locator returns the absolute filesystem path for a key.
func (c *LocalCache) Locator(key string) string {
	abs, err := filepath.Abs(c.path(key))
	if err != nil {
		return c.path(key)
	}
	return abs
}
