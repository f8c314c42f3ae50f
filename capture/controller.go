// Package capture owns the live camera stream of a booth session and turns
// it into a still photo or a bounded video clip.
//
// The Controller is a small state machine:
//
//	Idle → StreamStarting → StreamLive → Capturing            (still, terminal)
//	                                   → Recording → Stopped  (video, terminal)
//
// Switching facing or mode while live goes back through StreamStarting.
// Close returns the controller to Idle from any state and releases the
// stream, the recorder and the recording ticker.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStreamStarting
	StateStreamLive
	StateCapturing
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreamStarting:
		return "starting"
	case StateStreamLive:
		return "live"
	case StateCapturing:
		return "captured"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the session has produced its media.
func (s State) Terminal() bool {
	return s == StateCapturing || s == StateStopped
}

// Status is a snapshot of the controller.
type Status struct {
	State    State
	Facing   Facing
	Mode     Mode
	Elapsed  time.Duration
	MIMEType string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithTicker replaces the one-second recording ticker.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(c *Controller) { c.newTicker = fn }
}

// WithClock replaces time.Now for recording durations.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithOutputSize sets the side of captured stills (default 1920).
func WithOutputSize(size int) Option {
	return func(c *Controller) { c.size = size }
}

// WithRecordingFormats sets the recording MIME preference order.
func WithRecordingFormats(formats []string) Option {
	return func(c *Controller) { c.formats = append([]string(nil), formats...) }
}

// Controller owns the live stream and recorder of one session. No other
// component holds a reference to either.
type Controller struct {
	mu        sync.Mutex
	device    Device
	log       zerolog.Logger
	newTicker func(time.Duration) Ticker
	now       func() time.Time
	size      int
	formats   []string

	state  State
	facing Facing
	mode   Mode
	stream Stream
	rec    *recording

	result *Video
	err    error
}

// NewController creates an idle controller over device.
func NewController(device Device, opts ...Option) *Controller {
	c := &Controller{
		device:    device,
		log:       zerolog.Nop(),
		newTicker: newRealTicker,
		now:       time.Now,
		size:      DefaultOutputSize,
		formats:   RecordingFormats,
		facing:    FacingUser,
		mode:      ModePhoto,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start acquires a live stream. Audio is requested only in video mode.
// On failure the controller stays Idle and Start may be called again.
func (c *Controller) Start(ctx context.Context, facing Facing, mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, c.state)
	}
	c.facing = facing
	c.mode = mode
	return c.openLocked(ctx)
}

// SwitchFacing tears the current stream down and starts one with the new
// facing mode. Switching to the active facing is a no-op.
func (c *Controller) SwitchFacing(ctx context.Context, facing Facing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle:
		c.facing = facing
		return c.openLocked(ctx)
	case StateStreamLive:
		if c.facing == facing {
			return nil
		}
		c.stopStreamLocked()
		c.facing = facing
		return c.openLocked(ctx)
	default:
		return fmt.Errorf("%w: switch facing while %s", ErrInvalidState, c.state)
	}
}

// SetMode switches between photo and video. The stream is reopened so the
// microphone is only held in video mode.
func (c *Controller) SetMode(ctx context.Context, mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle:
		c.mode = mode
		return nil
	case StateStreamLive:
		if c.mode == mode {
			return nil
		}
		c.stopStreamLocked()
		c.mode = mode
		return c.openLocked(ctx)
	default:
		return fmt.Errorf("%w: set mode while %s", ErrInvalidState, c.state)
	}
}

// CaptureStill grabs the current frame, crops it to a centered square,
// scales it to the output size and encodes it as JPEG. The stream is
// stopped; the controller ends in Capturing.
func (c *Controller) CaptureStill(ctx context.Context) (Photo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStreamLive || c.mode != ModePhoto {
		return Photo{}, fmt.Errorf("%w: capture still while %s in %s mode", ErrInvalidState, c.state, c.mode)
	}
	frame, err := c.stream.Frame(ctx)
	if err != nil {
		return Photo{}, fmt.Errorf("read frame: %w", err)
	}
	photo, err := EncodeStill(frame, c.size)
	if err != nil {
		return Photo{}, err
	}
	c.stopStreamLocked()
	c.state = StateCapturing
	c.log.Info().
		Str("facing", string(c.facing)).
		Str("source", frame.Bounds().Size().String()).
		Int("bytes", len(photo.Data)).
		Msg("still captured")
	return photo, nil
}

// StartRecording starts buffering encoded chunks in the first recording
// format the device supports and returns that format. The recording is
// force-stopped after MaxRecording.
func (c *Controller) StartRecording() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStreamLive || c.mode != ModeVideo {
		return "", fmt.Errorf("%w: start recording while %s in %s mode", ErrInvalidState, c.state, c.mode)
	}
	mime := ""
	for _, f := range c.formats {
		if c.device.Supports(f) {
			mime = f
			break
		}
	}
	if mime == "" {
		return "", ErrNoCodec
	}
	recorder, err := c.stream.Record(mime)
	if err != nil {
		return "", fmt.Errorf("create recorder: %w", err)
	}
	r := &recording{
		recorder: recorder,
		mime:     mime,
		facing:   c.facing,
		started:  c.now(),
		quit:     make(chan struct{}),
	}
	if err := recorder.Start(r.append); err != nil {
		return "", fmt.Errorf("start recorder: %w", err)
	}
	r.ticker = c.newTicker(time.Second)
	c.rec = r
	c.state = StateRecording
	go c.watch(r)
	c.log.Info().Str("mime", mime).Str("facing", string(c.facing)).Msg("recording started")
	return mime, nil
}

// StopRecording finalizes the recording. Calling it after the cap already
// stopped the recording returns the finalized clip.
func (c *Controller) StopRecording(ctx context.Context) (Video, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateStopped:
		if c.err != nil {
			return Video{}, c.err
		}
		return *c.result, nil
	case StateRecording:
		return c.finishLocked(false)
	default:
		return Video{}, fmt.Errorf("%w: stop recording while %s", ErrInvalidState, c.state)
	}
}

// Result returns the finished clip once the controller is Stopped.
func (c *Controller) Result() (Video, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStopped || c.result == nil {
		return Video{}, false
	}
	return *c.result, true
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, Facing: c.facing, Mode: c.mode}
	switch {
	case c.rec != nil:
		st.Elapsed = time.Duration(c.rec.ticks) * time.Second
		st.MIMEType = c.rec.mime
	case c.result != nil:
		st.Elapsed = c.result.Duration
		st.MIMEType = c.result.MIMEType
	}
	return st
}

// Close stops any recording, ticker and stream and returns the controller
// to Idle. It is safe to call in any state and more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r := c.rec; r != nil {
		close(r.quit)
		r.ticker.Stop()
		if err := r.recorder.Stop(); err != nil {
			c.log.Debug().Err(err).Msg("discarding recorder")
		}
		c.rec = nil
	}
	c.stopStreamLocked()
	c.state = StateIdle
	c.result = nil
	c.err = nil
}

func (c *Controller) openLocked(ctx context.Context) error {
	c.state = StateStreamStarting
	stream, err := c.device.Acquire(ctx, c.facing, c.mode == ModeVideo)
	if err != nil {
		c.state = StateIdle
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		c.log.Warn().Err(err).Str("facing", string(c.facing)).Msg("stream unavailable")
		return err
	}
	c.stream = stream
	c.state = StateStreamLive
	c.log.Debug().Str("facing", string(c.facing)).Str("mode", string(c.mode)).Msg("stream live")
	return nil
}

func (c *Controller) stopStreamLocked() {
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
}

// watch counts recording seconds and enforces the cap.
func (c *Controller) watch(r *recording) {
	limit := int(MaxRecording / time.Second)
	for {
		select {
		case <-r.quit:
			return
		case <-r.ticker.C():
			c.mu.Lock()
			if c.rec != r {
				c.mu.Unlock()
				return
			}
			r.ticks++
			if r.ticks >= limit {
				if _, err := c.finishLocked(true); err != nil {
					c.log.Error().Err(err).Msg("finalize capped recording")
				}
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

func (c *Controller) finishLocked(capped bool) (Video, error) {
	r := c.rec
	c.rec = nil
	close(r.quit)
	r.ticker.Stop()
	stopErr := r.recorder.Stop()
	c.stopStreamLocked()
	c.state = StateStopped

	if stopErr != nil {
		c.err = fmt.Errorf("stop recorder: %w", stopErr)
		return Video{}, c.err
	}

	d := c.now().Sub(r.started)
	if capped || d > MaxRecording {
		d = MaxRecording
	}
	v := Video{
		Data:     r.bytes(),
		MIMEType: r.mime,
		Duration: d,
		Mirrored: r.facing == FacingUser,
	}
	c.result = &v
	c.log.Info().
		Bool("capped", capped).
		Dur("duration", d).
		Int("chunks", r.count()).
		Int("bytes", len(v.Data)).
		Msg("recording stopped")
	return v, nil
}

// recording is one in-flight recorder. Chunks are kept in arrival order and
// concatenated in that order.
type recording struct {
	recorder Recorder
	ticker   Ticker
	mime     string
	facing   Facing
	started  time.Time
	quit     chan struct{}
	ticks    int

	mu     sync.Mutex
	chunks [][]byte
}

func (r *recording) append(b []byte) {
	if len(b) == 0 {
		return
	}
	r.mu.Lock()
	r.chunks = append(r.chunks, b)
	r.mu.Unlock()
}

func (r *recording) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

func (r *recording) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ch := range r.chunks {
		n += len(ch)
	}
	out := make([]byte, 0, n)
	for _, ch := range r.chunks {
		out = append(out, ch...)
	}
	return out
}
