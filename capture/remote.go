package capture

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
)

// RemoteDevice is a Device whose camera lives in the user's browser. The
// browser reports its capabilities with Report and then pushes frames and
// recorder chunks, which the device routes to the active stream.
type RemoteDevice struct {
	mu        sync.Mutex
	supported []string
	failure   string
	stream    *remoteStream
}

// NewRemoteDevice returns a device that supports the given recording
// formats until the browser reports its own list.
func NewRemoteDevice(supported ...string) *RemoteDevice {
	return &RemoteDevice{supported: normalizeAll(supported)}
}

// Report records what the browser told us: the recorder formats it can
// produce and, when getUserMedia failed, the failure reason.
func (d *RemoteDevice) Report(supported []string, failure string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(supported) > 0 {
		d.supported = normalizeAll(supported)
	}
	d.failure = strings.TrimSpace(failure)
}

// Acquire implements Device.
func (d *RemoteDevice) Acquire(ctx context.Context, facing Facing, withAudio bool) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failure != "" {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, d.failure)
	}
	if d.stream != nil {
		d.stream.Stop()
	}
	d.stream = &remoteStream{facing: facing, audio: withAudio}
	return d.stream, nil
}

// Supports implements Device.
func (d *RemoteDevice) Supports(mimeType string) bool {
	want := normalizeMIME(mimeType)
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.supported {
		if s == want {
			return true
		}
	}
	return false
}

// Active reports whether a stream with live tracks exists.
func (d *RemoteDevice) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream != nil && !d.stream.stopped()
}

// DeliverFrame hands the browser's current video frame to the live stream.
func (d *RemoteDevice) DeliverFrame(img image.Image) error {
	s := d.current()
	if s == nil {
		return fmt.Errorf("%w: no live stream", ErrInvalidState)
	}
	return s.setFrame(img)
}

// DeliverChunk hands one recorder chunk to the active recorder. Chunks
// must be delivered in the order the browser produced them.
func (d *RemoteDevice) DeliverChunk(b []byte) error {
	s := d.current()
	if s == nil {
		return ErrNotRecording
	}
	r := s.recorder()
	if r == nil {
		return ErrNotRecording
	}
	return r.deliver(b)
}

func (d *RemoteDevice) current() *remoteStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil || d.stream.stopped() {
		return nil
	}
	return d.stream
}

type remoteStream struct {
	facing Facing
	audio  bool

	mu    sync.Mutex
	frame image.Image
	rec   *remoteRecorder
	done  bool
}

func (s *remoteStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, fmt.Errorf("%w: stream stopped", ErrInvalidState)
	}
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return s.frame, nil
}

func (s *remoteStream) Record(mimeType string) (Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, fmt.Errorf("%w: stream stopped", ErrInvalidState)
	}
	if s.rec != nil {
		s.rec.Stop()
	}
	s.rec = &remoteRecorder{mime: mimeType}
	return s.rec, nil
}

func (s *remoteStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.frame = nil
	if s.rec != nil {
		s.rec.Stop()
	}
}

func (s *remoteStream) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *remoteStream) setFrame(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return fmt.Errorf("%w: stream stopped", ErrInvalidState)
	}
	s.frame = img
	return nil
}

func (s *remoteStream) recorder() *remoteRecorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

type remoteRecorder struct {
	mime string

	mu      sync.Mutex
	onChunk func([]byte)
	running bool
	stopped bool
}

func (r *remoteRecorder) Start(onChunk func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrNotRecording
	}
	r.onChunk = onChunk
	r.running = true
	return nil
}

// Stop marks the recorder finished. The browser flushes its final chunk
// before asking the server to stop, so there is nothing left to emit.
func (r *remoteRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.stopped = true
	return nil
}

func (r *remoteRecorder) MIMEType() string { return r.mime }

func (r *remoteRecorder) deliver(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return ErrNotRecording
	}
	r.onChunk(append([]byte(nil), b...))
	return nil
}

func normalizeMIME(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

func normalizeAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if n := normalizeMIME(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
