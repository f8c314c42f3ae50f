package booth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glowupstudio/booth/capture"
	"github.com/glowupstudio/booth/catalog"
	"github.com/glowupstudio/booth/compose"
)

var (
	// ErrNotReady is returned when the artifact is requested before the
	// render finished.
	ErrNotReady = errors.New("booth: artifact not ready")
	// ErrSendInProgress is returned when a second send starts while one is
	// still running.
	ErrSendInProgress = errors.New("booth: send in progress")
)

// RenderState is the state of a session's composition.
type RenderState int

const (
	RenderIdle RenderState = iota
	RenderProcessing
	RenderReady
	RenderFailed
)

func (s RenderState) String() string {
	switch s {
	case RenderIdle:
		return "idle"
	case RenderProcessing:
		return "processing"
	case RenderReady:
		return "ready"
	case RenderFailed:
		return "failed"
	}
	return fmt.Sprintf("render(%d)", int(s))
}

// SendState is the state of a session's email delivery.
type SendState int

const (
	SendIdle SendState = iota
	SendSending
	SendSent
	SendFailed
)

func (s SendState) String() string {
	switch s {
	case SendIdle:
		return "idle"
	case SendSending:
		return "sending"
	case SendSent:
		return "sent"
	case SendFailed:
		return "failed"
	}
	return fmt.Sprintf("send(%d)", int(s))
}

// Session is the payload of one visitor moving through the booth: the
// capture controller, the captured media, the chosen filter and caption,
// and the state of the render and of the email delivery. Each stage owns
// its part and hands it on; all mutation happens under mu.
type Session struct {
	ID string

	device  *capture.RemoteDevice
	ctl     *capture.Controller
	release func(artifactID string)
	forget  func(sessionID string)

	mu      sync.Mutex
	media   capture.Media
	filter  *catalog.Filter
	text    *compose.TextOptions
	touched time.Time

	render       RenderState
	renderErr    error
	renderGen    int
	cancelRender context.CancelFunc
	artifactID   string
	artifactKind capture.Kind
	artifactName string

	send    SendState
	sendErr error
	sentTo  string
}

// SessionView is a read-only snapshot of a session for rendering.
type SessionView struct {
	ID         string
	Capture    capture.Status
	MediaKind  capture.Kind
	Filter     *catalog.Filter
	Text       *compose.TextOptions
	Render     RenderState
	RenderErr  error
	ArtifactID string
	Kind       capture.Kind
	Filename   string
	Send       SendState
	SendErr    error
	SentTo     string
	HasMedia   bool
	Complete   bool
}

func newSession(id string, device *capture.RemoteDevice, ctl *capture.Controller, release func(string)) *Session {
	if release == nil {
		release = func(string) {}
	}
	return &Session{ID: id, device: device, ctl: ctl, release: release, touched: time.Now()}
}

// Device returns the browser-fed camera of this session.
func (s *Session) Device() *capture.RemoteDevice { return s.device }

// Controller returns the capture controller of this session.
func (s *Session) Controller() *capture.Controller { return s.ctl }

// View returns a snapshot of the session.
func (s *Session) View() SessionView {
	st := s.ctl.Status()
	s.mu.Lock()
	defer s.mu.Unlock()
	v := SessionView{
		ID:         s.ID,
		Capture:    st,
		Filter:     s.filter,
		Text:       s.text,
		Render:     s.render,
		RenderErr:  s.renderErr,
		ArtifactID: s.artifactID,
		Kind:       s.artifactKind,
		Filename:   s.artifactName,
		Send:       s.send,
		SendErr:    s.sendErr,
		SentTo:     s.sentTo,
		HasMedia:   s.media != nil,
	}
	if s.media != nil {
		v.MediaKind = s.media.Kind()
	}
	v.Complete = s.media != nil && s.filter != nil && s.text != nil
	return v
}

// Media returns the captured media, if any.
func (s *Session) Media() (capture.Media, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media, s.media != nil
}

// Restart discards everything the session produced and returns the
// controller to Idle: tracks and timers are stopped, an in-flight render is
// cancelled and the artifact is released.
func (s *Session) Restart() {
	s.ctl.Close()
	s.mu.Lock()
	id := s.resetLocked()
	s.media = nil
	s.filter = nil
	s.text = nil
	s.mu.Unlock()
	if id != "" {
		s.release(id)
	}
}

// Close releases the session's resources, including every artifact stored
// under its id. The session must not be used afterwards.
func (s *Session) Close() {
	s.Restart()
	if s.forget != nil {
		s.forget(s.ID)
	}
}

// SetMedia hands the captured media to the session. Filter and caption
// chosen for earlier media are dropped.
func (s *Session) SetMedia(m capture.Media) {
	s.mu.Lock()
	id := s.resetLocked()
	s.media = m
	s.filter = nil
	s.text = nil
	s.mu.Unlock()
	if id != "" {
		s.release(id)
	}
}

// SetFilter selects the overlay. It requires captured media.
func (s *Session) SetFilter(f catalog.Filter) error {
	s.mu.Lock()
	if s.media == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: missing media", compose.ErrMissingPayload)
	}
	id := s.resetLocked()
	s.filter = &f
	s.mu.Unlock()
	if id != "" {
		s.release(id)
	}
	return nil
}

// SetText sets the caption. It requires media and a filter.
func (s *Session) SetText(t compose.TextOptions) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.media == nil || s.filter == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: missing media or filter", compose.ErrMissingPayload)
	}
	id := s.resetLocked()
	s.text = &t
	s.mu.Unlock()
	if id != "" {
		s.release(id)
	}
	return nil
}

// Request assembles the composition request. Any absent part yields
// compose.ErrMissingPayload.
func (s *Session) Request() (compose.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestLocked()
}

func (s *Session) requestLocked() (compose.Request, error) {
	req := compose.Request{Media: s.media, Filter: s.filter, Text: s.text}
	if req.Media == nil || req.Filter == nil || req.Text == nil {
		return req, req.Validate()
	}
	// Stages never share mutable payload, so the compositor gets copies.
	f, t := *s.filter, *s.text
	req.Filter, req.Text = &f, &t
	return req, nil
}

// resetLocked cancels the render, forgets the artifact and resets both
// pipeline states. It returns the id of the artifact to release.
func (s *Session) resetLocked() string {
	if s.cancelRender != nil {
		s.cancelRender()
		s.cancelRender = nil
	}
	s.renderGen++
	id := s.artifactID
	s.artifactID = ""
	s.artifactKind = ""
	s.artifactName = ""
	s.render = RenderIdle
	s.renderErr = nil
	s.send = SendIdle
	s.sendErr = nil
	s.sentTo = ""
	return id
}

// beginRender moves Idle or Failed to Processing. started is false when a
// render is already running or finished.
func (s *Session) beginRender(parent context.Context) (req compose.Request, ctx context.Context, gen int, started bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err = s.requestLocked()
	if err != nil {
		return req, nil, 0, false, err
	}
	if s.render == RenderProcessing || s.render == RenderReady {
		return req, nil, 0, false, nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancelRender = cancel
	s.renderGen++
	s.render = RenderProcessing
	s.renderErr = nil
	return req, ctx, s.renderGen, true, nil
}

// finishRender records the outcome of render gen. It returns false when
// the session moved on in the meantime and the result must be discarded.
func (s *Session) finishRender(gen int, artifactID string, art compose.Artifact, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.renderGen || s.render != RenderProcessing {
		return false
	}
	if s.cancelRender != nil {
		s.cancelRender()
		s.cancelRender = nil
	}
	if err != nil {
		s.render = RenderFailed
		s.renderErr = err
		return true
	}
	s.render = RenderReady
	s.artifactID = artifactID
	s.artifactKind = art.Kind
	s.artifactName = art.Filename
	return true
}

// beginSend moves the send state to Sending and returns the artifact to
// deliver.
func (s *Session) beginSend() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.render != RenderReady {
		return "", ErrNotReady
	}
	if s.send == SendSending {
		return "", ErrSendInProgress
	}
	s.send = SendSending
	s.sendErr = nil
	return s.artifactID, nil
}

func (s *Session) finishSend(artifactID, address string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send != SendSending || s.artifactID != artifactID {
		return
	}
	if err != nil {
		s.send = SendFailed
		s.sendErr = err
		return
	}
	s.send = SendSent
	s.sentTo = address
}

// Artifact returns the id of the finished artifact.
func (s *Session) Artifact() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.render != RenderReady {
		return "", ErrNotReady
	}
	return s.artifactID, nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.touched = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// SessionRegistry holds the live sessions, keyed by the id stored in the
// visitor's cookie. Sessions idle for longer than the TTL are closed.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	factory  func(id string) *Session
	now      func() time.Time
	onChange func(n int)
}

// NewSessionRegistry creates a registry building sessions with factory.
func NewSessionRegistry(ttl time.Duration, factory func(id string) *Session) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		factory:  factory,
		now:      time.Now,
		onChange: func(int) {},
	}
}

// Get returns the session with id and marks it as used.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

// Create starts a new session.
func (r *SessionRegistry) Create() *Session {
	s := r.factory(uuid.NewString())
	s.touch(r.now())
	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()
	r.onChange(n)
	return s
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes and forgets sessions idle for longer than the TTL. It
// returns how many were closed.
func (r *SessionRegistry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()
	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		r.onChange(n)
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll closes every session.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
	r.onChange(0)
}
