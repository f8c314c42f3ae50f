package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowupstudio/booth/capture"
	"github.com/glowupstudio/booth/compose"
)

var photo = compose.Artifact{
	Kind:     capture.KindPhoto,
	Data:     []byte{0xff, 0xd8, 0xff, 0xd9},
	MIMEType: "image/jpeg",
	Filename: "glowupstudio_selfie.jpg",
}

func TestServeDownload(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download", nil)
	require.NoError(t, ServeDownload(rec, req, photo))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=glowupstudio_selfie.jpg`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, photo.Data, rec.Body.Bytes())
}

func TestServeDownloadHead(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/download", nil)
	require.NoError(t, ServeDownload(rec, req, photo))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	assert.Zero(t, rec.Body.Len())
}

func TestServeDownloadEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download", nil)
	assert.ErrorIs(t, ServeDownload(rec, req, compose.Artifact{}), ErrNoArtifact)
}

type memOutbox struct {
	mu   sync.Mutex
	sent []Delivery
	err  error
}

func (o *memOutbox) Record(_ context.Context, d Delivery) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, d)
	return nil
}

func TestSimulatedSend(t *testing.T) {
	out := &memOutbox{}
	s := NewSimulatedSender(out, zerolog.Nop())
	s.Delay = 10 * time.Millisecond
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return fixed }

	start := time.Now()
	require.NoError(t, s.Send(context.Background(), photo, " Jan <jan@example.nl> "))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	require.Len(t, out.sent, 1)
	assert.Equal(t, Delivery{
		Address:  "jan@example.nl",
		Filename: "glowupstudio_selfie.jpg",
		MIMEType: "image/jpeg",
		Size:     4,
		SentAt:   fixed,
	}, out.sent[0])
}

func TestSimulatedSendInvalidAddress(t *testing.T) {
	out := &memOutbox{}
	s := NewSimulatedSender(out, zerolog.Nop())
	s.Delay = 0

	for _, addr := range []string{"", "jan", "jan@", "jan@localhost", "a@b.nl, c@d.nl"} {
		err := s.Send(context.Background(), photo, addr)
		var f *Failure
		require.ErrorAs(t, err, &f, addr)
		assert.False(t, f.Retryable, addr)
		assert.ErrorIs(t, err, ErrInvalidAddress, addr)
	}
	assert.Empty(t, out.sent)
}

func TestSimulatedSendCancelled(t *testing.T) {
	s := NewSimulatedSender(nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, photo, "jan@example.nl")
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.True(t, f.Retryable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedSendOutboxError(t *testing.T) {
	s := NewSimulatedSender(&memOutbox{err: errors.New("disk full")}, zerolog.Nop())
	s.Delay = 0
	err := s.Send(context.Background(), photo, "jan@example.nl")
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.True(t, f.Retryable)
}
