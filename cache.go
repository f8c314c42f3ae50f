package booth

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxOverlayBytes bounds a single overlay download.
const maxOverlayBytes = 32 << 20

// Overlay is a loaded overlay image along with its encoded bytes.
type Overlay struct {
	Image       image.Image
	Data        []byte
	ContentType string
	fetched     time.Time
}

// OverlayCache loads filter overlays by reference and keeps them in memory
// with a TTL. References are http(s) URLs, file:// URLs or plain paths.
type OverlayCache struct {
	mu      sync.RWMutex
	entries map[string]*Overlay
	ttl     time.Duration
	client  *http.Client
	log     zerolog.Logger
	metrics *Metrics
}

// NewOverlayCache creates an OverlayCache with the given TTL.
func NewOverlayCache(ttl time.Duration, log zerolog.Logger, m *Metrics) *OverlayCache {
	return &OverlayCache{
		entries: make(map[string]*Overlay),
		ttl:     ttl,
		client:  &http.Client{Timeout: 20 * time.Second},
		log:     log,
		metrics: m,
	}
}

func (c *OverlayCache) valid(o *Overlay) bool {
	return o != nil && time.Since(o.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *OverlayCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]*Overlay)
	c.mu.Unlock()
}

// Get returns the overlay for ref, loading it if it is not cached or stale.
// It tries a read lock first; only takes a write lock if a reload is needed.
func (c *OverlayCache) Get(ctx context.Context, ref string) (*Overlay, error) {
	c.mu.RLock()
	o := c.entries[ref]
	c.mu.RUnlock()
	if c.valid(o) {
		c.metrics.overlayHit()
		return o, nil
	}
	c.metrics.overlayMiss()

	o, err := c.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[ref] = o
	c.mu.Unlock()
	return o, nil
}

// Overlay implements compose.OverlaySource.
func (c *OverlayCache) Overlay(ctx context.Context, ref string) (image.Image, error) {
	o, err := c.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return o.Image, nil
}

func (c *OverlayCache) load(ctx context.Context, ref string) (*Overlay, error) {
	start := time.Now()
	data, err := c.fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load overlay %s: %w", ref, err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode overlay %s: %w", ref, err)
	}
	c.log.Debug().Str("ref", ref).Str("format", format).Dur("took", time.Since(start)).Msg("overlay loaded")
	return &Overlay{
		Image:       img,
		Data:        data,
		ContentType: "image/" + format,
		fetched:     time.Now(),
	}, nil
}

func (c *OverlayCache) fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxOverlayBytes))
	case "file":
		return os.ReadFile(u.Path)
	case "":
		return os.ReadFile(ref)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}
