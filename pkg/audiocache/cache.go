// Package audiocache persists synthesized audio keyed by a fingerprint of
// (voice, text), so that re-speaking or resuming a stopped job never re-hits
// the TTS service for segments it already produced.
package audiocache

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Key fingerprints one (voice, text) pair. The "|" separator keeps
// ("ab","c") and ("a","bc") apart before hashing.
func Key(voiceID, text string) string {
	h := sha1.Sum([]byte(voiceID + "|" + text))
	return hex.EncodeToString(h[:])
}

// Cache is a disk cache with TTL and byte-budget eviction. All I/O failures
// are non-fatal by contract: Get degrades to a miss, Put to a no-op, both
// with a warning log. The caller's job carries on either way.
type Cache struct {
	fs       afero.Fs
	dir      string
	ttl      time.Duration
	maxBytes int64

	mutex sync.Mutex
}

func New(fs afero.Fs, dir string, ttl time.Duration, maxBytes int64) (*Cache, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "cannot create cache dir %s", dir)
	}
	return &Cache{
		fs:       fs,
		dir:      dir,
		ttl:      ttl,
		maxBytes: maxBytes,
	}, nil
}

// Get returns the cached audio for key, or a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	data, err := afero.ReadFile(c.fs, c.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		}
		return nil, false
	}
	return data, true
}

// Put stores audio under key. Idempotent: writing an existing key just
// refreshes its timestamp, which also makes it the newest entry for the
// size-based eviction order.
func (c *Cache) Put(key string, data []byte) {
	c.evict()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	path := c.path(key)
	if exists, _ := afero.Exists(c.fs, path); exists {
		now := time.Now()
		if err := c.fs.Chtimes(path, now, now); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache refresh failed")
		}
		return
	}
	if err := afero.WriteFile(c.fs, path, data, 0644); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed, entry skipped")
	}
}

// Evict removes entries older than the TTL, then the oldest remaining entries
// until the total size fits the byte budget.
func (c *Cache) Evict() {
	c.evict()
}

func (c *Cache) evict() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", c.dir).Msg("cache eviction scan failed")
		return
	}

	var entries []os.FileInfo
	var totalSize int64
	cutoff := time.Now().Add(-c.ttl)
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			c.remove(info.Name(), "ttl")
			continue
		}
		entries = append(entries, info)
		totalSize += info.Size()
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime().Before(entries[j].ModTime())
	})
	for _, info := range entries {
		if totalSize <= c.maxBytes {
			break
		}
		c.remove(info.Name(), "size")
		totalSize -= info.Size()
	}
}

func (c *Cache) remove(name string, reason string) {
	if err := c.fs.Remove(filepath.Join(c.dir, name)); err != nil {
		log.Warn().Err(err).Str("entry", name).Msg("cache eviction remove failed")
		return
	}
	log.Debug().Str("entry", name).Str("reason", reason).Msg("cache entry evicted")
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key)
}
