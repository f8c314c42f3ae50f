package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"
)

type fakeDevice struct {
	mu        sync.Mutex
	fail      error
	supported map[string]bool
	frame     image.Image
	streams   []*fakeStream
}

func newFakeDevice(w, h int) *fakeDevice {
	return &fakeDevice{
		supported: map[string]bool{"video/webm": true},
		frame:     gradient(w, h),
	}
}

func (d *fakeDevice) Acquire(ctx context.Context, facing Facing, withAudio bool) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	s := &fakeStream{facing: facing, audio: withAudio, frame: d.frame}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevice) Supports(m string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.supported[m]
}

func (d *fakeDevice) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.streams {
		if !s.isStopped() {
			n++
		}
	}
	return n
}

func (d *fakeDevice) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

type fakeStream struct {
	facing Facing
	audio  bool
	frame  image.Image

	mu      sync.Mutex
	stopped bool
	rec     *fakeRecorder
}

func (s *fakeStream) Frame(ctx context.Context) (image.Image, error) {
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return s.frame, nil
}

func (s *fakeStream) Record(m string) (Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &fakeRecorder{mime: m}
	return s.rec, nil
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeRecorder struct {
	mime  string
	final []byte

	mu      sync.Mutex
	onChunk func([]byte)
	stops   int
}

func (r *fakeRecorder) Start(fn func([]byte)) error {
	r.mu.Lock()
	r.onChunk = fn
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) emit(b string) {
	r.mu.Lock()
	fn := r.onChunk
	r.mu.Unlock()
	fn([]byte(b))
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	r.stops++
	fn, final := r.onChunk, r.final
	r.mu.Unlock()
	if final != nil {
		fn(final)
	}
	return nil
}

func (r *fakeRecorder) MIMEType() string { return r.mime }

type fakeTicker struct {
	ch chan time.Time

	mu      sync.Mutex
	stopped bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// tick delivers one tick; it reports false when nobody is listening anymore.
func (t *fakeTicker) tick() bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	return img
}

var errDenied = errors.New("NotAllowedError: permission denied")
