package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileCache stores each Entry as a file named by its key under a root
// directory. Writes go to a temporary file that is renamed into place, so a
// crash never leaves a half written entry. It assumes a single writer.
type FileCache struct {
	root   string
	logger zerolog.Logger
}

// NewFileCache creates a FileCache rooted at dir. The directory is created on
// first write.
func NewFileCache(dir string, logger zerolog.Logger) (*FileCache, error) {
	if dir == "" {
		return nil, errors.New("file cache directory is required")
	}
	return &FileCache{
		root:   dir,
		logger: logger.With().Str("component", "FileCache").Str("dir", dir).Logger(),
	}, nil
}

// Path returns the file backing key.
func (c *FileCache) Path(key string) (string, error) {
	if key == "" || !filepath.IsLocal(key) {
		return "", fmt.Errorf("invalid file cache key %q", key)
	}
	return filepath.Join(c.root, key), nil
}

// FetchFromCache reads the file for key.
func (c *FileCache) FetchFromCache(_ context.Context, key string) (Entry, error) {
	p, err := c.Path(key)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, fmt.Errorf("file %s: %w", p, ErrCacheMiss)
		}
		return Entry{}, fmt.Errorf("stat %s: %w", p, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return Entry{}, fmt.Errorf("read %s: %w", p, err)
	}
	c.logger.Debug().Str("key", key).Msg("File cache hit.")
	return Entry{Data: data, UpdatedAt: info.ModTime().UTC()}, nil
}

// WriteToCache writes the entry, creating missing parent directories.
func (c *FileCache) WriteToCache(_ context.Context, key string, value Entry) error {
	p, err := c.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, value.Data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	c.logger.Debug().Str("key", key).Int("bytes", len(value.Data)).Msg("Wrote entry to file cache.")
	return nil
}

// Invalidate removes the file for key.
func (c *FileCache) Invalidate(_ context.Context, key string) error {
	p, err := c.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

// Close is a no-op.
func (c *FileCache) Close() error { return nil }
