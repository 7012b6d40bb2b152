package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"clipforge/internal/config"
	"clipforge/internal/identity"
	"clipforge/internal/logging"
)

// Cache is the short-lived local disk cache for downloaded clips, keyed by
// the hash of the source URL's reuse identity. It smooths over identical
// requests landing close together; long-term reuse goes through the media
// reuse lookup instead. Two concurrent jobs for the same never-before-seen
// URL may both miss and both download; the second store wins and the extra
// download is accepted.
type Cache struct {
	root   string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewCache builds a cache rooted at the configured cache directory. Returns
// nil when the directory is unset or the TTL is not positive, which disables
// local caching without disabling acquisition.
func NewCache(cfg *config.Config, logger *slog.Logger) *Cache {
	if cfg == nil {
		return nil
	}
	root := strings.TrimSpace(cfg.Paths.CacheDir)
	if root == "" || cfg.Acquire.CacheTTLHours <= 0 {
		return nil
	}
	return &Cache{
		root:   root,
		ttl:    time.Duration(cfg.Acquire.CacheTTLHours) * time.Hour,
		logger: logging.NewComponentLogger(logger, "clipcache"),
		now:    time.Now,
	}
}

// Path returns where the cache entry for a source URL lives, whether or not
// it exists.
func (c *Cache) Path(sourceURL string) string {
	if c == nil {
		return ""
	}
	return filepath.Join(c.root, identity.Hash(sourceURL)+".mp4")
}

// Lookup reports a cache hit for the source URL and refreshes the entry's
// last-access time so active entries survive eviction.
func (c *Cache) Lookup(sourceURL string) (string, bool) {
	if c == nil {
		return "", false
	}
	path := c.Path(sourceURL)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	now := c.now()
	_ = os.Chtimes(path, now, now)
	return path, true
}

// Store copies a downloaded file into the cache under the URL's hash key,
// replacing any existing entry.
func (c *Cache) Store(sourceURL, srcPath string) (string, error) {
	if c == nil {
		return srcPath, nil
	}
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	dest := c.Path(sourceURL)
	if err := copyFile(srcPath, dest); err != nil {
		return "", fmt.Errorf("store cache entry: %w", err)
	}
	now := c.now()
	_ = os.Chtimes(dest, now, now)
	return dest, nil
}

// EvictExpired removes entries whose last access is older than the TTL. It
// runs independently of any job's lifecycle.
func (c *Cache) EvictExpired(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	entries, err := os.ReadDir(c.root)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(c.root, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.WarnContext(ctx, "failed to evict cache entry",
				logging.String("path", path), logging.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		c.logger.InfoContext(ctx, "evicted expired cache entries", logging.Int("removed", removed))
	}
	return removed, nil
}

// RunEviction loops EvictExpired on an interval until the context ends.
func (c *Cache) RunEviction(ctx context.Context, interval time.Duration) {
	if c == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.EvictExpired(ctx); err != nil {
				c.logger.WarnContext(ctx, "cache eviction pass failed", logging.Error(err))
			}
		}
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
