// Command booth runs the photo booth server and offers offline tools for
// compositing files and inspecting the filter catalog.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/glowupstudio/booth"
	"github.com/glowupstudio/booth/capture"
	"github.com/glowupstudio/booth/catalog"
	"github.com/glowupstudio/booth/compose"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string
	var jsonLogs bool

	cmd := &cobra.Command{
		Use:   "booth",
		Short: "Browser photo and video booth",
		Long: `booth serves a photo booth in the browser: take a selfie or a short
video, pick a filter, add a caption, then download it or send it by email.

Configuration is read from BOOTH_* environment variables and an optional
.env file in the working directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default $BOOTH_LOG_LEVEL or info")
	cmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write JSON logs instead of console output")

	logger := func() (zerolog.Logger, error) {
		return newLogger(booth.EnvOr("BOOTH_LOG_LEVEL", "info"), logLevel, jsonLogs)
	}

	cmd.AddCommand(serveCmd(logger), composeCmd(logger), filtersCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("booth %s\n", version)
		},
	})
	return cmd
}

func newLogger(envLevel, flagLevel string, jsonLogs bool) (zerolog.Logger, error) {
	lvl := envLevel
	if flagLevel != "" {
		lvl = flagLevel
	}
	level, err := zerolog.ParseLevel(lvl)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level: %w", err)
	}
	var l zerolog.Logger
	if jsonLogs {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return l.Level(level).With().Timestamp().Logger(), nil
}

// configFromEnv reads the server configuration from BOOTH_* variables.
// Unset values fall back to the defaults applied by booth.New.
func configFromEnv() (booth.Config, error) {
	secret, err := booth.MustEnv("BOOTH_SESSION_SECRET")
	if err != nil {
		return booth.Config{}, err
	}
	cfg := booth.Config{
		Name:           os.Getenv("BOOTH_NAME"),
		URL:            os.Getenv("BOOTH_URL"),
		Addr:           booth.EnvOr("BOOTH_ADDR", ":3000"),
		DatabasePath:   booth.EnvOr("BOOTH_DATABASE_PATH", booth.MemoryDatabase),
		SessionSecret:  secret,
		FiltersFile:    os.Getenv("BOOTH_FILTERS_FILE"),
		VideoFormats:   booth.EnvList("BOOTH_VIDEO_FORMATS"),
		FilenamePrefix: os.Getenv("BOOTH_FILENAME_PREFIX"),
		TempDir:        os.Getenv("BOOTH_TEMP_DIR"),
	}
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	cfg.CookieSecure, err = booth.EnvBool("BOOTH_COOKIE_SECURE", false)
	collect(err)
	cfg.OutputSize, err = booth.EnvInt("BOOTH_OUTPUT_SIZE", 0)
	collect(err)
	cfg.SendLimit, err = booth.EnvInt("BOOTH_SEND_LIMIT", 0)
	collect(err)
	cfg.SessionTTL, err = booth.EnvDuration("BOOTH_SESSION_TTL", 0)
	collect(err)
	cfg.OverlayCacheTTL, err = booth.EnvDuration("BOOTH_OVERLAY_CACHE_TTL", 0)
	collect(err)
	cfg.EmailDelay, err = booth.EnvDuration("BOOTH_EMAIL_DELAY", 0)
	collect(err)
	cfg.SendWindow, err = booth.EnvDuration("BOOTH_SEND_WINDOW", 0)
	collect(err)
	return cfg, errors.Join(errs...)
}

func serveCmd(logger func() (zerolog.Logger, error)) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the booth web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger()
			if err != nil {
				return err
			}
			cfg, err := configFromEnv()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			app := booth.New(cfg, booth.WithLogger(log))
			errc := make(chan error, 1)
			go func() { errc <- app.Start() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			select {
			case err := <-errc:
				app.Close()
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return app.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides BOOTH_ADDR)")
	return cmd
}

func composeCmd(logger func() (zerolog.Logger, error)) *cobra.Command {
	var (
		filterID    string
		caption     string
		position    string
		output      string
		filtersFile string
		mirrored    bool
		size        int
	)
	cmd := &cobra.Command{
		Use:   "compose <photo-or-video>",
		Short: "Composite a file offline with a filter and caption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(filtersFile)
			if err != nil {
				return err
			}
			f, err := cat.Get(filterID)
			if err != nil {
				return err
			}
			text, err := compose.NewTextOptions(caption, position)
			if err != nil {
				return err
			}
			media, err := readMedia(args[0], size, mirrored)
			if err != nil {
				return err
			}

			overlays := booth.NewOverlayCache(time.Hour, log, nil)
			comp, err := compose.New(overlays, compose.WithSize(size), compose.WithLogger(log))
			if err != nil {
				return err
			}
			art, err := comp.Compose(cmd.Context(), compose.Request{Media: media, Filter: &f, Text: &text})
			if err != nil {
				return err
			}
			if output == "" {
				output = art.Filename
			}
			if err := os.WriteFile(output, art.Data, 0o644); err != nil {
				return err
			}
			log.Info().Str("file", output).Str("type", art.MIMEType).Int("bytes", len(art.Data)).Msg("artifact written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&filterID, "filter", "f", "golden", "Filter id")
	cmd.Flags().StringVarP(&caption, "caption", "t", "", "Caption text")
	cmd.Flags().StringVar(&position, "position", "top", "Caption position (top, bottom)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default derived from the artifact)")
	cmd.Flags().StringVar(&filtersFile, "filters", "", "YAML filter catalog (default $BOOTH_FILTERS_FILE or built-in)")
	cmd.Flags().BoolVar(&mirrored, "mirror", false, "Mirror video frames horizontally")
	cmd.Flags().IntVar(&size, "size", compose.DefaultSize, "Output side in pixels")
	return cmd
}

func filtersCmd() *cobra.Command {
	var filtersFile string
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "List the filter catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(filtersFile)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tOVERLAY")
			for _, f := range cat.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, f.Name, f.OverlayRef)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&filtersFile, "filters", "", "YAML filter catalog (default $BOOTH_FILTERS_FILE or built-in)")
	return cmd
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		path = os.Getenv("BOOTH_FILTERS_FILE")
	}
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}

var videoTypes = map[string]string{
	".webm":  "video/webm",
	".mp4":   "video/mp4",
	".mjpeg": compose.MJPEGContentType,
	".mjpg":  compose.MJPEGContentType,
}

// readMedia loads a still image (cropped and scaled like a camera capture)
// or a video clip from path.
func readMedia(path string, size int, mirrored bool) (capture.Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if mime, ok := videoTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return capture.Video{Data: data, MIMEType: mime, Mirrored: mirrored}, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	photo, err := capture.EncodeStill(img, size)
	if err != nil {
		return nil, err
	}
	return photo, nil
}
