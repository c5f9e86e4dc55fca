package fetcher

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const maxKeyLength = 180

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

// CacheKey maps a URL to its cache file name: the scheme is dropped and every
// run of non-alphanumeric characters becomes "_". Overlong names are cut and
// suffixed with a digest of the full URL.
func CacheKey(rawURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	key := strings.Trim(unsafeKeyChars.ReplaceAllString(trimmed, "_"), "_")
	if len(key) > maxKeyLength {
		sum := sha1.Sum([]byte(rawURL))
		key = key[:maxKeyLength] + "_" + hex.EncodeToString(sum[:8])
	}
	return key + ".html"
}

// DiskCache stores one raw HTML file per URL. The file modification time is
// the staleness clock; entries are never evicted, only overwritten.
type DiskCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewDiskCache returns a cache rooted at dir. A nil clock uses time.Now.
func NewDiskCache(dir string, ttl time.Duration, now func() time.Time) *DiskCache {
	if now == nil {
		now = time.Now
	}
	return &DiskCache{dir: dir, ttl: ttl, now: now}
}

// Dir returns the cache root.
func (c *DiskCache) Dir() string {
	return c.dir
}

// Path returns the file backing rawURL.
func (c *DiskCache) Path(rawURL string) string {
	return filepath.Join(c.dir, CacheKey(rawURL))
}

// Lookup returns the cached body for rawURL and a result label: "hit",
// "miss" or "stale". Only a hit returns content.
func (c *DiskCache) Lookup(rawURL string) (string, string) {
	path := c.Path(rawURL)
	info, err := os.Stat(path)
	if err != nil {
		return "", "miss"
	}
	if c.now().Sub(info.ModTime()) >= c.ttl {
		return "", "stale"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "miss"
	}
	return string(data), "hit"
}

// Get returns the body for rawURL when a fresh entry exists.
func (c *DiskCache) Get(rawURL string) (string, bool) {
	body, result := c.Lookup(rawURL)
	return body, result == "hit"
}

// Put overwrites the entry for rawURL and stamps it with the cache clock.
func (c *DiskCache) Put(rawURL, body string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache entry: %w", err)
	}
	now := c.now()
	if err := os.Chtimes(tmpName, now, now); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("stamp cache entry: %w", err)
	}
	if err := os.Rename(tmpName, c.Path(rawURL)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}
