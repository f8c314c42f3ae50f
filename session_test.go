package booth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowupstudio/booth/capture"
	"github.com/glowupstudio/booth/catalog"
	"github.com/glowupstudio/booth/compose"
)

type releaseLog struct {
	mu  sync.Mutex
	ids []string
}

func (r *releaseLog) release(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *releaseLog) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func newTestSession(t *testing.T, id string, release func(string)) *Session {
	t.Helper()
	device := capture.NewRemoteDevice(capture.RecordingFormats...)
	return newSession(id, device, capture.NewController(device), release)
}

var (
	testPhoto  = capture.Photo{Data: []byte{0xff, 0xd8, 0xff, 0xd9}, Size: 4}
	testFilter = catalog.Filter{ID: "golden", Name: "Golden Vibes", OverlayRef: "golden.png"}
)

func TestSessionPayloadOrder(t *testing.T) {
	s := newTestSession(t, "s1", nil)

	err := s.SetFilter(testFilter)
	assert.ErrorIs(t, err, compose.ErrMissingPayload)

	text, err := compose.NewTextOptions("Hallo", "")
	require.NoError(t, err)
	assert.ErrorIs(t, s.SetText(text), compose.ErrMissingPayload)

	s.SetMedia(testPhoto)
	assert.ErrorIs(t, s.SetText(text), compose.ErrMissingPayload, "text needs a filter")
	require.NoError(t, s.SetFilter(testFilter))
	require.NoError(t, s.SetText(text))

	v := s.View()
	assert.True(t, v.HasMedia)
	assert.True(t, v.Complete)
	assert.Equal(t, capture.KindPhoto, v.MediaKind)
	assert.Equal(t, "golden", v.Filter.ID)
	assert.Equal(t, compose.PositionTop, v.Text.Position)
}

func TestSessionRequestMissing(t *testing.T) {
	s := newTestSession(t, "s1", nil)
	s.SetMedia(testPhoto)

	_, err := s.Request()
	require.ErrorIs(t, err, compose.ErrMissingPayload)
	assert.Contains(t, err.Error(), "filter, text")
}

func TestSessionRequestCopies(t *testing.T) {
	s := newTestSession(t, "s1", nil)
	s.SetMedia(testPhoto)
	require.NoError(t, s.SetFilter(testFilter))
	require.NoError(t, s.SetText(compose.TextOptions{Caption: "a", Position: compose.PositionBottom}))

	req, err := s.Request()
	require.NoError(t, err)
	req.Filter.Name = "changed"
	req.Text.Caption = "changed"

	v := s.View()
	assert.Equal(t, "Golden Vibes", v.Filter.Name)
	assert.Equal(t, "a", v.Text.Caption)
}

func TestSessionSetTextInvalid(t *testing.T) {
	s := newTestSession(t, "s1", nil)
	s.SetMedia(testPhoto)
	require.NoError(t, s.SetFilter(testFilter))

	long := compose.TextOptions{Caption: strings.Repeat("a", 61), Position: compose.PositionTop}
	err := s.SetText(long)
	require.Error(t, err)
	assert.NotErrorIs(t, err, compose.ErrMissingPayload)
	assert.Nil(t, s.View().Text)
}

func completeSession(t *testing.T, s *Session) {
	t.Helper()
	s.SetMedia(testPhoto)
	require.NoError(t, s.SetFilter(testFilter))
	require.NoError(t, s.SetText(compose.TextOptions{Caption: "Hallo", Position: compose.PositionTop}))
}

func TestSessionRenderLifecycle(t *testing.T) {
	rel := &releaseLog{}
	s := newTestSession(t, "s1", rel.release)
	completeSession(t, s)

	_, ctx, gen, started, err := s.beginRender(context.Background())
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, RenderProcessing, s.View().Render)

	_, _, _, again, err := s.beginRender(context.Background())
	require.NoError(t, err)
	assert.False(t, again, "a running render is not started twice")

	_, err = s.Artifact()
	assert.ErrorIs(t, err, ErrNotReady)

	art := compose.Artifact{Kind: capture.KindPhoto, Filename: "glowupstudio_selfie.jpg"}
	require.True(t, s.finishRender(gen, "a1", art, nil))
	assert.ErrorIs(t, ctx.Err(), context.Canceled, "the render context is released")

	v := s.View()
	assert.Equal(t, RenderReady, v.Render)
	assert.Equal(t, "a1", v.ArtifactID)
	assert.Equal(t, "glowupstudio_selfie.jpg", v.Filename)
	id, err := s.Artifact()
	require.NoError(t, err)
	assert.Equal(t, "a1", id)

	// Choosing another filter invalidates the artifact.
	require.NoError(t, s.SetFilter(catalog.Filter{ID: "retro", OverlayRef: "retro.png"}))
	assert.Equal(t, RenderIdle, s.View().Render)
	assert.Equal(t, []string{"a1"}, rel.all())
}

func TestSessionStaleRender(t *testing.T) {
	s := newTestSession(t, "s1", nil)
	completeSession(t, s)

	_, ctx, gen, started, err := s.beginRender(context.Background())
	require.NoError(t, err)
	require.True(t, started)

	s.SetMedia(testPhoto)
	assert.ErrorIs(t, ctx.Err(), context.Canceled, "new media cancels the render")
	assert.False(t, s.finishRender(gen, "a1", compose.Artifact{}, nil))
	assert.Empty(t, s.View().ArtifactID)
}

func TestSessionRenderFailed(t *testing.T) {
	s := newTestSession(t, "s1", nil)
	completeSession(t, s)

	_, _, gen, _, err := s.beginRender(context.Background())
	require.NoError(t, err)
	boom := errors.New("boom")
	require.True(t, s.finishRender(gen, "", compose.Artifact{}, boom))

	v := s.View()
	assert.Equal(t, RenderFailed, v.Render)
	assert.ErrorIs(t, v.RenderErr, boom)

	_, _, _, started, err := s.beginRender(context.Background())
	require.NoError(t, err)
	assert.True(t, started, "a failed render may be retried")
}

func TestSessionSendStates(t *testing.T) {
	s := newTestSession(t, "s1", nil)
	completeSession(t, s)

	_, err := s.beginSend()
	assert.ErrorIs(t, err, ErrNotReady)

	_, _, gen, _, err := s.beginRender(context.Background())
	require.NoError(t, err)
	s.finishRender(gen, "a1", compose.Artifact{Kind: capture.KindPhoto}, nil)

	id, err := s.beginSend()
	require.NoError(t, err)
	assert.Equal(t, "a1", id)
	assert.Equal(t, SendSending, s.View().Send)

	_, err = s.beginSend()
	assert.ErrorIs(t, err, ErrSendInProgress)

	s.finishSend(id, "", errors.New("bad address"))
	assert.Equal(t, SendFailed, s.View().Send)

	id, err = s.beginSend()
	require.NoError(t, err)
	s.finishSend(id, "a@example.com", nil)
	v := s.View()
	assert.Equal(t, SendSent, v.Send)
	assert.Equal(t, "a@example.com", v.SentTo)
	assert.NoError(t, v.SendErr)
}

func TestSessionRestart(t *testing.T) {
	rel := &releaseLog{}
	s := newTestSession(t, "s1", rel.release)
	completeSession(t, s)
	_, _, gen, _, err := s.beginRender(context.Background())
	require.NoError(t, err)
	s.finishRender(gen, "a1", compose.Artifact{Kind: capture.KindPhoto}, nil)

	require.NoError(t, s.Controller().Start(context.Background(), capture.FacingUser, capture.ModePhoto))
	require.True(t, s.Device().Active())

	s.Restart()

	v := s.View()
	assert.False(t, v.HasMedia)
	assert.Nil(t, v.Filter)
	assert.Nil(t, v.Text)
	assert.Equal(t, RenderIdle, v.Render)
	assert.Equal(t, capture.StateIdle, v.Capture.State)
	assert.False(t, s.Device().Active(), "restart stops the stream")
	assert.Equal(t, []string{"a1"}, rel.all())
}

func TestRenderStateString(t *testing.T) {
	tests := []struct {
		state fmt.Stringer
		want  string
	}{
		{RenderIdle, "idle"},
		{RenderProcessing, "processing"},
		{RenderReady, "ready"},
		{RenderFailed, "failed"},
		{RenderState(9), "render(9)"},
		{SendSending, "sending"},
		{SendSent, "sent"},
		{SendState(7), "send(7)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestSessionRegistry(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var counts []int
	r := NewSessionRegistry(30*time.Minute, func(id string) *Session {
		return newTestSession(t, id, nil)
	})
	r.now = func() time.Time { return now }
	r.onChange = func(n int) { counts = append(counts, n) }

	a := r.Create()
	b := r.Create()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Len())

	got, ok := r.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = r.Get("unknown")
	assert.False(t, ok)

	now = now.Add(20 * time.Minute)
	r.Get(a.ID)
	now = now.Add(15 * time.Minute)

	assert.Equal(t, 1, r.Sweep(), "only the idle session expires")
	_, ok = r.Get(b.ID)
	assert.False(t, ok)
	_, ok = r.Get(a.ID)
	assert.True(t, ok)

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, []int{1, 2, 1, 0}, counts)
}

func TestSessionRegistryRunStops(t *testing.T) {
	r := NewSessionRegistry(time.Minute, func(id string) *Session { return newTestSession(t, id, nil) })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
