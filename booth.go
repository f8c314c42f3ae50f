// Package booth is a browser photo and video booth built with Go, Echo and
// templ. A visitor captures a selfie or a short clip, picks a decorative
// filter, adds a caption, and downloads or emails the composited result.
//
// The camera runs in the browser. Each visitor has a server-side Session
// whose capture.Controller is fed by the browser through the capture API;
// the Pipeline composites the finished payload in the background and
// stores the artifact until the session is restarted or expires.
package booth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/glowupstudio/booth/capture"
	"github.com/glowupstudio/booth/catalog"
	"github.com/glowupstudio/booth/compose"
	"github.com/glowupstudio/booth/delivery"
)

// App is the booth application. It wires together the store, the filter
// catalog, the compositor, the sessions, handlers and middleware.
type App struct {
	Config     Config
	Echo       *echo.Echo
	Store      *Store
	Catalog    *catalog.Catalog
	Overlays   *OverlayCache
	Compositor *compose.Compositor
	Pipeline   *Pipeline
	Sessions   *SessionRegistry
	Metrics    *Metrics

	log         zerolog.Logger
	sender      delivery.EmailSender
	overlays    compose.OverlaySource
	limiter     *SendLimiter
	cancel      context.CancelFunc
	initialized bool
}

// New creates a booth App with the given configuration.
func New(cfg Config, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		log:    zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Init builds every component and registers middleware and routes without
// starting the server. Start calls it; tests call it directly and drive
// a.Echo with httptest.
func (a *App) Init() error {
	if a.initialized {
		return nil
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("booth: SessionSecret is required")
	}
	if p := Slugify(a.Config.FilenamePrefix); p != "" {
		a.Config.FilenamePrefix = p
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("booth: init store: %w", err)
	}
	a.Store = store

	a.Metrics = NewMetrics()

	if a.Catalog == nil {
		if a.Config.FiltersFile != "" {
			if a.Catalog, err = catalog.Load(a.Config.FiltersFile); err != nil {
				return fmt.Errorf("booth: load filters: %w", err)
			}
		} else {
			a.Catalog = catalog.Default()
		}
	}

	a.Overlays = NewOverlayCache(a.Config.OverlayCacheTTL, a.log, a.Metrics)
	if a.overlays == nil {
		a.overlays = a.Overlays
	}

	a.Compositor, err = compose.New(a.overlays,
		compose.WithSize(a.Config.OutputSize),
		compose.WithVideoFormats(a.Config.VideoFormats),
		compose.WithFilenamePrefix(a.Config.FilenamePrefix),
		compose.WithTempDir(a.Config.TempDir),
		compose.WithLogger(a.log.With().Str("component", "compose").Logger()),
	)
	if err != nil {
		return fmt.Errorf("booth: init compositor: %w", err)
	}

	if a.sender == nil {
		s := delivery.NewSimulatedSender(a.Store, a.log.With().Str("component", "email").Logger())
		s.Delay = a.Config.EmailDelay
		a.sender = s
	}

	a.Pipeline = NewPipeline(a.Compositor, a.Store, a.sender, a.Metrics, a.log)

	captureLog := a.log.With().Str("component", "capture").Logger()
	a.Sessions = NewSessionRegistry(a.Config.SessionTTL, func(id string) *Session {
		device := capture.NewRemoteDevice(capture.RecordingFormats...)
		ctl := capture.NewController(device,
			capture.WithLogger(captureLog.With().Str("session", id).Logger()),
			capture.WithOutputSize(a.Config.OutputSize),
		)
		s := newSession(id, device, ctl, a.Pipeline.Release)
		s.forget = a.Pipeline.Forget
		return s
	})
	a.Sessions.onChange = a.Metrics.sessionsActive

	a.limiter = NewSendLimiter(a.Config.SendLimit, a.Config.SendWindow)

	a.setupMiddleware()
	a.setupRoutes()
	a.initialized = true
	return nil
}

// Start initializes the app, starts the background workers and serves
// HTTP until Shutdown.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.Sessions.Run(ctx)
	if a.Config.FiltersFile != "" {
		go func() {
			err := a.Catalog.Watch(ctx, a.Config.FiltersFile, a.log.With().Str("component", "catalog").Logger(), a.Overlays.Invalidate)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn().Err(err).Msg("filter catalog watch stopped")
			}
		}()
	}

	a.log.Info().Str("addr", a.Config.Addr).Int("filters", a.Catalog.Len()).
		Bool("ffmpeg", compose.FFmpegAvailable()).Msg("booth listening")
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	assets, _ := fs.Sub(EmbeddedAssets, "embedded")
	e.GET("/public/*", echo.WrapHandler(http.StripPrefix("/public/", http.FileServer(http.FS(assets)))))
	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{})))

	// Screens. The camera screen restarts the session itself; every other
	// screen stops a capture that was left running.
	e.GET("/camera/", a.handleCamera)
	leave := a.leaveCapture
	e.GET("/", a.handleHome, leave)
	e.GET("/about/", a.handleAbout, leave)
	e.GET("/filters/", a.handleFilters, leave)
	e.POST("/filters/", a.handleSelectFilter, leave)
	e.GET("/text/", a.handleText, leave)
	e.POST("/text/", a.handleSaveText, leave)
	e.GET("/preview/", a.handlePreview, leave)
	e.POST("/preview/retry/", a.handleRetry, leave)
	e.POST("/email/", a.handleEmail, leave)
	e.GET("/filters/:id/overlay", a.handleOverlay)
	e.GET("/media/source", a.handleMediaSource)
	e.GET("/artifact", a.handleArtifact)
	e.GET("/download", a.handleDownload)
	e.HEAD("/download", a.handleDownload)

	// Capture API
	api := e.Group("/api")
	api.GET("/filters", a.apiFilters)
	api.GET("/capture/status", a.apiStatus)
	api.POST("/capture/start", a.apiStart)
	api.POST("/capture/switch", a.apiSwitch)
	api.POST("/capture/mode", a.apiMode)
	api.POST("/capture/still", a.apiStill)
	api.POST("/capture/record/start", a.apiRecordStart)
	api.POST("/capture/record/chunk", a.apiRecordChunk)
	api.POST("/capture/record/stop", a.apiRecordStop)
}

// Shutdown stops the HTTP server gracefully and then releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close cleans up resources: sessions are closed, running renders are
// cancelled and the store is closed.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Sessions != nil {
		a.Sessions.CloseAll()
	}
	if a.Pipeline != nil {
		a.Pipeline.Close()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
