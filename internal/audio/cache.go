package audio

import (
	"context"
	"os"
	"sync"
	"time"
)

// DefaultCacheBytes is the PCM budget of a CachedDecoder, roughly fifty
// minutes of mono audio at 44.1 kHz.
const DefaultCacheBytes int64 = 512 << 20

type cacheKey struct {
	path    string
	size    int64
	modTime time.Time
}

// CachedDecoder keeps the most recently decoded buffers so that re-running
// detection with new parameters does not decode the file again. Entries are
// keyed by path, size and modification time, so a rewritten file is decoded
// afresh. The cache holds at most maxBytes of samples; a buffer larger than
// that is returned but not kept.
type CachedDecoder struct {
	next     Decoder
	maxBytes int64

	mu      sync.Mutex
	entries map[cacheKey]*Buffer
	order   []cacheKey
	size    int64
	hits    int
}

// NewCachedDecoder wraps next. A non-positive maxBytes selects
// DefaultCacheBytes.
func NewCachedDecoder(next Decoder, maxBytes int64) *CachedDecoder {
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	return &CachedDecoder{
		next:     next,
		maxBytes: maxBytes,
		entries:  make(map[cacheKey]*Buffer),
	}
}

// Decode returns the cached buffer for path or decodes it with the wrapped
// decoder.
func (c *CachedDecoder) Decode(ctx context.Context, path string) (*Buffer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime()}

	c.mu.Lock()
	if buf, ok := c.entries[key]; ok {
		c.hits++
		c.touch(key)
		c.mu.Unlock()
		return buf, nil
	}
	c.mu.Unlock()

	buf, err := c.next.Decode(ctx, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok || buf.Bytes() > c.maxBytes {
		return buf, nil
	}
	for c.size+buf.Bytes() > c.maxBytes && len(c.order) > 0 {
		oldest := c.order[0]
		c.size -= c.entries[oldest].Bytes()
		delete(c.entries, oldest)
		c.order = c.order[1:]
	}
	c.entries[key] = buf
	c.order = append(c.order, key)
	c.size += buf.Bytes()
	return buf, nil
}

// touch moves key to the most recently used position. Callers hold mu.
func (c *CachedDecoder) touch(key cacheKey) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

// Len returns the number of cached buffers.
func (c *CachedDecoder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the bytes of samples currently cached.
func (c *CachedDecoder) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Hits returns how many Decode calls were served from the cache.
func (c *CachedDecoder) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

var _ Decoder = (*CachedDecoder)(nil)
