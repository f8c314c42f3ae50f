// Package compose renders the final booth artifact: the captured photo or
// video with the filter overlay and the caption burned in, on a square
// canvas of fixed size.
//
// The still path is deterministic: the same request always yields the same
// JPEG bytes. The video path re-encodes every source frame so the overlay
// and caption are present in each one.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"

	"github.com/glowupstudio/booth/capture"
)

const (
	DefaultSize   = 1920
	DefaultFPS    = 30
	DefaultPrefix = "glowupstudio"
)

// OverlaySource loads filter overlay images by reference.
type OverlaySource interface {
	Overlay(ctx context.Context, ref string) (image.Image, error)
}

// OverlayFunc adapts a function to OverlaySource.
type OverlayFunc func(ctx context.Context, ref string) (image.Image, error)

func (f OverlayFunc) Overlay(ctx context.Context, ref string) (image.Image, error) {
	return f(ctx, ref)
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithSize sets the canvas side (default 1920).
func WithSize(size int) Option { return func(c *Compositor) { c.size = size } }

// WithFPS sets the re-encoding frame rate (default 30).
func WithFPS(fps int) Option { return func(c *Compositor) { c.fps = fps } }

// WithCodecs replaces the known output codecs.
func WithCodecs(codecs ...Codec) Option {
	return func(c *Compositor) { c.codecs = codecs }
}

// WithVideoFormats sets the output format preference order.
func WithVideoFormats(formats []string) Option {
	return func(c *Compositor) { c.formats = append([]string(nil), formats...) }
}

// WithFilenamePrefix sets the prefix of suggested filenames.
func WithFilenamePrefix(prefix string) Option {
	return func(c *Compositor) { c.prefix = prefix }
}

// WithTempDir sets where video sources are spooled for ffmpeg.
func WithTempDir(dir string) Option { return func(c *Compositor) { c.tmpDir = dir } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Compositor) { c.log = l } }

// Compositor renders composition requests. It is safe for concurrent use.
type Compositor struct {
	overlays OverlaySource
	font     *opentype.Font
	size     int
	fps      int
	codecs   []Codec
	formats  []string
	prefix   string
	tmpDir   string
	log      zerolog.Logger
}

// New creates a compositor loading overlays from src.
func New(src OverlaySource, opts ...Option) (*Compositor, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("compose: parse font: %w", err)
	}
	c := &Compositor{
		overlays: src,
		font:     f,
		size:     DefaultSize,
		fps:      DefaultFPS,
		codecs:   DefaultCodecs(),
		formats:  DefaultVideoFormats,
		prefix:   DefaultPrefix,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Size returns the canvas side.
func (c *Compositor) Size() int { return c.size }

// Face returns a new caption font face. Faces are not safe for concurrent
// use, so every composition gets its own.
func (c *Compositor) Face() (font.Face, error) {
	return opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    FontSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// Layout wraps text for this compositor's canvas.
func (c *Compositor) Layout(text TextOptions) ([]Line, error) {
	face, err := c.Face()
	if err != nil {
		return nil, err
	}
	defer face.Close()
	return Layout(face, c.size, text), nil
}

// VideoCodec returns the codec video requests will be encoded with.
func (c *Compositor) VideoCodec() (Codec, error) {
	return SelectCodec(c.formats, c.codecs)
}

// Compose renders req. A request missing any part fails with
// ErrMissingPayload before any work is done; rendering errors are
// returned as *Failure.
func (c *Compositor) Compose(ctx context.Context, req Request) (Artifact, error) {
	if err := req.Validate(); err != nil {
		return Artifact{}, err
	}
	start := time.Now()

	overlay, err := c.overlays.Overlay(ctx, req.Filter.OverlayRef)
	if err != nil {
		return Artifact{}, fail("overlay", err)
	}
	sc, err := c.newScene(overlay, *req.Text)
	if err != nil {
		return Artifact{}, fail("caption", err)
	}

	var art Artifact
	switch m := req.Media.(type) {
	case capture.Photo:
		art, err = c.composeStill(m, sc)
	case capture.Video:
		art, err = c.composeVideo(ctx, m, sc)
	default:
		err = fail("media", fmt.Errorf("unsupported media %T", req.Media))
	}
	if err != nil {
		c.log.Warn().Err(err).Str("filter", req.Filter.ID).Msg("composition failed")
		return Artifact{}, err
	}
	c.log.Info().
		Str("kind", string(art.Kind)).
		Str("filter", req.Filter.ID).
		Str("mime", art.MIMEType).
		Int("bytes", len(art.Data)).
		Dur("took", time.Since(start)).
		Msg("composition ready")
	return art, nil
}

func (c *Compositor) composeStill(p capture.Photo, sc *scene) (Artifact, error) {
	base, err := jpeg.Decode(bytes.NewReader(p.Data))
	if err != nil {
		return Artifact{}, fail("decode", err)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, c.size, c.size))
	sc.paint(canvas, base, false, draw.CatmullRom)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 100}); err != nil {
		return Artifact{}, fail("encode", err)
	}
	return Artifact{
		Kind:     capture.KindPhoto,
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Filename: c.prefix + "_selfie.jpg",
	}, nil
}

// scene holds what is drawn on top of every base frame, pre-rendered at
// canvas size.
type scene struct {
	size    int
	overlay *image.RGBA
	caption *image.RGBA
	lines   []Line
}

func (c *Compositor) newScene(overlay image.Image, text TextOptions) (*scene, error) {
	sc := &scene{size: c.size}
	if overlay != nil {
		sc.overlay = image.NewRGBA(image.Rect(0, 0, c.size, c.size))
		draw.CatmullRom.Scale(sc.overlay, sc.overlay.Bounds(), overlay, overlay.Bounds(), draw.Src, nil)
	}
	face, err := c.Face()
	if err != nil {
		return nil, err
	}
	defer face.Close()
	sc.lines = Layout(face, c.size, text)
	sc.caption = renderCaption(face, c.size, sc.lines)
	return sc, nil
}

// paint draws base (center-cropped to a square), mirrors it if asked, then
// the overlay and the caption. Mirroring applies to the base only.
func (s *scene) paint(dst *image.RGBA, base image.Image, mirrored bool, scaler draw.Scaler) {
	b := dst.Bounds()
	crop := capture.SquareCrop(base.Bounds())
	if crop.Dx() == b.Dx() && crop.Dy() == b.Dy() {
		draw.Draw(dst, b, base, crop.Min, draw.Src)
	} else {
		scaler.Scale(dst, b, base, crop, draw.Src, nil)
	}
	if mirrored {
		mirror(dst)
	}
	if s.overlay != nil {
		draw.Draw(dst, b, s.overlay, image.Point{}, draw.Over)
	}
	if s.caption != nil {
		draw.Draw(dst, b, s.caption, image.Point{}, draw.Over)
	}
}

// mirror flips img horizontally in place.
func mirror(img *image.RGBA) {
	b := img.Bounds()
	w := b.Dx()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Min.X, y)+4*w]
		for l, r := 0, w-1; l < r; l, r = l+1, r-1 {
			li, ri := 4*l, 4*r
			for k := 0; k < 4; k++ {
				row[li+k], row[ri+k] = row[ri+k], row[li+k]
			}
		}
	}
}
