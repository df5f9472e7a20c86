// package cache implements a TTL-based key/value cache for provider API
// responses, optionally persisted to a JSON file on disk.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Parameters that vary per credential or output format but never change
// the logical response. Stripped before key derivation so otherwise
// identical requests collapse to one entry.
var ignoredParams = map[string]bool{
	"api_key": true,
	"api_sig": true,
	"sk":      true,
	"format":  true,
}

// maxKeyLength bounds key size; longer keys are content-hashed.
const maxKeyLength = 200

type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// ResponseCache stores parsed provider responses keyed by normalized
// request parameters. Entries expire lazily on read once their age
// exceeds the configured TTL.
//
// A ResponseCache is not safe for concurrent use; the sync pipeline is
// single-flow and two instances sharing one cache file is unsupported.
type ResponseCache struct {
	ttl     time.Duration
	path    string
	entries map[string]entry
	logger  *log.Logger
	now     func() time.Time
}

// New creates a ResponseCache with the given TTL. If path is non-empty the
// cache persists to that file on every Put and loads from it on creation.
// Entries that fail to parse on load are skipped individually, so a
// partially corrupt file recovers what it can instead of starting cold.
func New(ttl time.Duration, path string, logger *log.Logger) *ResponseCache {
	c := &ResponseCache{
		ttl:     ttl,
		path:    path,
		entries: make(map[string]entry),
		logger:  logger,
		now:     time.Now,
	}

	if path != "" {
		c.load()
	}

	return c
}

// Key derives a stable cache key from structured request parameters.
// Credential and formatting parameters are stripped, the remainder is
// canonicalized (sorted), and keys over the length bound are hashed.
func Key(parts any) string {
	var raw string

	switch v := parts.(type) {
	case url.Values:
		filtered := url.Values{}
		for k, vals := range v {
			if ignoredParams[k] {
				continue
			}
			filtered[k] = vals
		}
		raw = filtered.Encode()
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			if ignoredParams[k] {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+v[k])
		}
		raw = strings.Join(pairs, "&")
	case []string:
		raw = strings.Join(v, "&")
	case string:
		raw = v
	default:
		raw = fmt.Sprintf("%v", v)
	}

	if len(raw) > maxKeyLength {
		sum := sha1.Sum([]byte(raw))
		return hex.EncodeToString(sum[:])
	}
	return raw
}

// Get returns the cached payload for the given key parts, or false when
// the key is absent or the entry has outlived the TTL. Expired entries
// are evicted from the map and the persisted file.
func (c *ResponseCache) Get(parts any) (json.RawMessage, bool) {
	key := Key(parts)
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	age := c.now().Unix() - e.Timestamp
	if c.ttl > 0 && age > int64(c.ttl.Seconds()) {
		delete(c.entries, key)
		if c.path != "" {
			if err := c.persist(); err != nil && c.logger != nil {
				c.logger.Warnf("failed to persist cache: %v", err)
			}
		}
		return nil, false
	}

	return e.Data, true
}

// Put stores a payload under the given key parts. Nil, empty, and
// error-shaped payloads are silently ignored so a failed request can
// never poison the cache.
func (c *ResponseCache) Put(parts any, payload json.RawMessage) {
	if len(payload) == 0 || isErrorPayload(payload) {
		return
	}

	c.entries[Key(parts)] = entry{
		Data:      payload,
		Timestamp: c.now().Unix(),
	}

	if c.path != "" {
		if err := c.persist(); err != nil && c.logger != nil {
			c.logger.Warnf("failed to persist cache: %v", err)
		}
	}
}

// Flush discards every entry and removes the persisted file if any.
func (c *ResponseCache) Flush() {
	c.entries = make(map[string]entry)
	if c.path != "" {
		os.Remove(c.path)
	}
}

// Len returns the number of entries currently held, expired or not.
func (c *ResponseCache) Len() int {
	return len(c.entries)
}

// isErrorPayload reports whether a JSON payload is a provider error body
// (a top-level object with an "error" member).
func isErrorPayload(payload json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	_, found := probe["error"]
	return found
}

// load reads the persisted cache file, recovering entries individually so
// one corrupt record does not invalidate the rest.
func (c *ResponseCache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		if c.logger != nil {
			c.logger.Warnf("cache file unreadable, starting cold: %v", err)
		}
		return
	}

	for k, v := range raw {
		var e entry
		if err := json.Unmarshal(v, &e); err != nil || len(e.Data) == 0 {
			if c.logger != nil {
				c.logger.Warnf("skipping corrupt cache entry %s", k)
			}
			continue
		}
		c.entries[k] = e
	}
}

// persist writes the whole entry map to the cache file.
func (c *ResponseCache) persist() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}
