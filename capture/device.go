package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
)

var (
	// ErrDeviceUnavailable is returned when the platform denies or lacks the
	// requested camera or microphone.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")
	// ErrInvalidState is returned when an operation is not valid in the
	// controller's current state.
	ErrInvalidState = errors.New("capture: invalid state")
	// ErrNoFrame is returned when a stream has not produced a frame yet.
	ErrNoFrame = errors.New("capture: no frame available")
	// ErrNotRecording is returned when chunks arrive for a stopped recorder.
	ErrNotRecording = errors.New("capture: not recording")
	// ErrNoCodec is returned when the device supports none of the preferred
	// recording formats.
	ErrNoCodec = errors.New("capture: no supported recording format")
)

// Facing selects the physical camera.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// ParseFacing accepts "user"/"front" and "environment"/"back".
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user", "front":
		return FacingUser, nil
	case "environment", "back":
		return FacingEnvironment, nil
	}
	return "", fmt.Errorf("capture: unknown facing mode %q", s)
}

// Mode selects still or video capture.
type Mode string

const (
	ModePhoto Mode = "photo"
	ModeVideo Mode = "video"
)

// ParseMode accepts "photo" and "video".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "photo":
		return ModePhoto, nil
	case "video":
		return ModeVideo, nil
	}
	return "", fmt.Errorf("capture: unknown mode %q", s)
}

// Device is the platform's camera/microphone surface.
type Device interface {
	// Acquire opens a live stream. It returns an error wrapping
	// ErrDeviceUnavailable when access is denied or the input is missing.
	Acquire(ctx context.Context, facing Facing, withAudio bool) (Stream, error)
	// Supports reports whether the device can record in mimeType.
	Supports(mimeType string) bool
}

// Stream is a live audio/video input.
type Stream interface {
	// Frame returns the current video frame.
	Frame(ctx context.Context) (image.Image, error)
	// Record creates a recorder writing mimeType.
	Record(mimeType string) (Recorder, error)
	// Stop stops every track of the stream. It is idempotent.
	Stop()
}

// Recorder buffers encoded chunks from a stream.
type Recorder interface {
	// Start begins recording; onChunk is called for every encoded chunk in
	// the order the encoder produces them.
	Start(onChunk func([]byte)) error
	// Stop ends the recording. The final chunk, if any, is passed to
	// onChunk before Stop returns.
	Stop() error
	MIMEType() string
}

// Ticker abstracts time.Ticker so the recording cap can be driven in tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

// RecordingFormats is the default recording preference order.
var RecordingFormats = []string{
	"video/webm;codecs=vp9",
	"video/webm",
	"video/mp4",
}
