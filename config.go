package booth

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/glowupstudio/booth/catalog"
	"github.com/glowupstudio/booth/compose"
	"github.com/glowupstudio/booth/delivery"
)

// MemoryDatabase keeps the artifact registry in process memory.
const MemoryDatabase = ":memory:"

// Config holds all configuration for a booth server.
type Config struct {
	Name string // Booth name shown in the header (default "GlowUp Studio")
	URL  string // Canonical URL (default "http://localhost:3000")

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default in-memory)

	SessionSecret string        // Required: cookie signing secret
	CookieSecure  bool          // Set true for HTTPS
	SessionTTL    time.Duration // Idle session lifetime (default 30min)

	FiltersFile    string   // Optional YAML filter catalog, watched for changes
	VideoFormats   []string // Output codec preference (default VP9, VP8, MJPEG)
	OutputSize     int      // Canvas side in pixels (default 1920)
	FilenamePrefix string   // Download filename prefix (default "glowupstudio")
	TempDir        string   // Spool directory for video decoding (default os temp)

	OverlayCacheTTL time.Duration // Overlay image cache TTL (default 1h)
	EmailDelay      time.Duration // Simulated send delay (default 1.5s)
	SendLimit       int           // Emails per client per SendWindow (default 5)
	SendWindow      time.Duration // (default 1min)
	MaxUploadBytes  int64         // Per request body limit (default 64MB)
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "GlowUp Studio"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = MemoryDatabase
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if len(c.VideoFormats) == 0 {
		c.VideoFormats = compose.DefaultVideoFormats
	}
	if c.OutputSize == 0 {
		c.OutputSize = compose.DefaultSize
	}
	if c.FilenamePrefix == "" {
		c.FilenamePrefix = compose.DefaultPrefix
	}
	if c.OverlayCacheTTL == 0 {
		c.OverlayCacheTTL = time.Hour
	}
	if c.EmailDelay == 0 {
		c.EmailDelay = delivery.DefaultDelay
	}
	if c.SendLimit == 0 {
		c.SendLimit = 5
	}
	if c.SendWindow == 0 {
		c.SendWindow = time.Minute
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 64 << 20
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) {
		a.log = l
	}
}

// WithCatalog replaces the filter catalog (default: FiltersFile, or the
// built-in filters).
func WithCatalog(c *catalog.Catalog) Option {
	return func(a *App) {
		a.Catalog = c
	}
}

// WithEmailSender replaces the simulated email sender.
func WithEmailSender(s delivery.EmailSender) Option {
	return func(a *App) {
		a.sender = s
	}
}

// WithOverlaySource replaces the caching overlay loader.
func WithOverlaySource(src compose.OverlaySource) Option {
	return func(a *App) {
		a.overlays = src
	}
}
