package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
)

// ErrNoCodec is returned when none of the preferred output formats is
// available.
var ErrNoCodec = errors.New("compose: no supported output codec")

// DefaultVideoFormats is the output preference order for re-encoded video.
var DefaultVideoFormats = []string{
	"video/webm;codecs=vp9",
	"video/webm",
	MJPEGType,
}

// EncodeOptions describes the encoded stream.
type EncodeOptions struct {
	Size int
	FPS  int
	// AudioFrom is a media file whose first audio track, if any, is muxed
	// into the output. Empty means no audio.
	AudioFrom string
}

// Encoder consumes composited frames.
type Encoder interface {
	Encode(frame *image.RGBA) error
	// Close flushes the encoder. It must be called even after an error.
	Close() error
}

// Codec is an output format the compositor can encode to.
type Codec interface {
	// MIMEType is the key matched against the preference list.
	MIMEType() string
	// ContentType is what the artifact is served as.
	ContentType() string
	Extension() string
	Available() bool
	NewEncoder(ctx context.Context, w io.Writer, opts EncodeOptions) (Encoder, error)
}

// DefaultCodecs returns every codec the compositor knows about.
func DefaultCodecs() []Codec {
	return []Codec{FFmpegVP9(), FFmpegVP8(), MJPEG()}
}

// SelectCodec returns the first available codec in preference order.
func SelectCodec(prefs []string, codecs []Codec) (Codec, error) {
	for _, p := range prefs {
		want := normalizeType(p)
		for _, c := range codecs {
			if normalizeType(c.MIMEType()) == want && c.Available() {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("%w (tried %s)", ErrNoCodec, strings.Join(prefs, ", "))
}

func normalizeType(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// FrameSource yields decoded video frames in presentation order. Next
// returns io.EOF after the last frame.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}
