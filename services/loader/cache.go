package loader

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// fileCache stores JSON payloads as TTL'd files on an afero filesystem so
// tests can run against an in-memory fs. A ttl of zero disables expiry.
type fileCache struct {
	fs  afero.Afero
	dir string
	ttl time.Duration
}

func newFileCache(fs afero.Fs, dir string, ttlHours int) *fileCache {
	return &fileCache{
		fs:  afero.Afero{Fs: fs},
		dir: dir,
		ttl: time.Duration(ttlHours) * time.Hour,
	}
}

// sanitizeKey makes a cache key safe to use as a file name. Group IDs come
// from the remote index and may contain path separators.
func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	return r.Replace(key)
}

func (c *fileCache) path(key string) string {
	return filepath.Join(c.dir, sanitizeKey(key)+".json")
}

func (c *fileCache) get(key string, v any) (bool, error) {
	if key == "" {
		return false, errors.New("empty cache key")
	}
	path := c.path(key)
	fi, err := c.fs.Stat(path)
	if err != nil {
		return false, nil
	}
	if c.ttl > 0 && time.Since(fi.ModTime()) > c.ttl {
		_ = c.fs.Remove(path)
		return false, nil
	}
	data, err := c.fs.ReadFile(path)
	if err != nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		// Corrupt entry, drop it and treat as a miss.
		_ = c.fs.Remove(path)
		return false, nil
	}
	return true, nil
}

func (c *fileCache) set(key string, v any) error {
	if key == "" {
		return errors.New("empty cache key")
	}
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	path := c.path(key)
	tmp := path + ".tmp"
	if err := c.fs.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return c.fs.Rename(tmp, path)
}

// clear removes every cached entry. This is the only invalidation primitive
// the catalog has; it is coarse-grained on purpose (a republish bumps the
// index version, so per-group eviction buys nothing).
func (c *fileCache) clear() error {
	entries, err := c.fs.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := c.fs.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// usage returns the number of cached entries and their total size in bytes.
func (c *fileCache) usage() (int, int64) {
	entries, err := c.fs.ReadDir(c.dir)
	if err != nil {
		return 0, 0
	}
	var count int
	var total int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		count++
		total += entry.Size()
	}
	return count, total
}
