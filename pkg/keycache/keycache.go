// Package keycache stores reusable keytab material keyed by principal.
//
// Cached files let later materialization runs serve keytabs for principals
// whose passwords are no longer available. File names are content-free: a
// SHA-1 of the principal plus a uniqueness salt, so the cache directory
// never leaks principal names.
package keycache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/keymint/keymint/internal/securefs"
)

// ErrCacheUnconfigured is returned by Store when no cache directory is
// configured. Callers treat this as a deployment fault rather than a
// per-principal failure.
var ErrCacheUnconfigured = errors.New("the keytab cache directory is not configured")

// ErrCacheUnavailable is returned by Store when the cache directory cannot
// be created or a cache file cannot be written. A cache that drops material
// silently breaks every later passwordless run, so callers treat this as a
// deployment fault too.
var ErrCacheUnavailable = errors.New("the keytab cache is unavailable")

// Cache is a directory of cached keytab files.
type Cache struct {
	dir  string
	salt func() string
}

// Config holds configuration for the keytab cache.
type Config struct {
	// Dir is the cache directory. Empty means the cache is unconfigured
	// and Store fails with ErrCacheUnconfigured.
	Dir string

	// Salt produces the uniqueness suffix mixed into cached file names.
	// Default: current unix time in milliseconds.
	Salt func() string
}

// New creates a cache with the given configuration.
func New(cfg Config) *Cache {
	salt := cfg.Salt
	if salt == nil {
		salt = func() string {
			return strconv.FormatInt(time.Now().UnixMilli(), 10)
		}
	}

	return &Cache{
		dir:  cfg.Dir,
		salt: salt,
	}
}

// NewWithDir creates a cache with default configuration.
func NewWithDir(dir string) *Cache {
	return New(Config{Dir: dir})
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Store writes keytab material for the principal into the cache and returns
// the path of the cached file. Each call produces a fresh file; previously
// cached files for the same principal are left for the caller to retire.
func (c *Cache) Store(principal string, data []byte) (string, error) {
	if c.dir == "" {
		return "", ErrCacheUnconfigured
	}

	if err := securefs.MkdirOwnerOnly(c.dir); err != nil {
		return "", fmt.Errorf("create the keytab cache directory %s (%v): %w", c.dir, err, ErrCacheUnavailable)
	}

	sum := sha1.Sum([]byte(principal + c.salt()))
	path := filepath.Join(c.dir, hex.EncodeToString(sum[:]))

	if err := securefs.WriteFileOwnerOnly(path, data); err != nil {
		return "", fmt.Errorf("write the keytab for %s to the cache location %s (%v): %w", principal, path, err, ErrCacheUnavailable)
	}

	return path, nil
}

// Remove deletes a cached file. Removing a path that no longer exists is
// not an error.
func (c *Cache) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Entry describes one cached keytab file.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// List returns the cached files sorted by path. An unconfigured or missing
// cache directory yields an empty list.
func (c *Cache) List() ([]Entry, error) {
	if c.dir == "" {
		return nil, nil
	}

	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasSuffix(de.Name(), ".tmp") {
			continue
		}

		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}

		entries = append(entries, Entry{
			Path:    filepath.Join(c.dir, de.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Purge removes every cached file and returns the number removed.
func (c *Cache) Purge() (int, error) {
	entries, err := c.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if err := c.Remove(entry.Path); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}
