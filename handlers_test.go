package booth

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowupstudio/booth/capture"
	"github.com/glowupstudio/booth/compose"
)

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	cfg.SessionSecret = "test-secret-test-secret-test-sec"
	if cfg.OutputSize == 0 {
		cfg.OutputSize = 160
	}
	if cfg.EmailDelay == 0 {
		cfg.EmailDelay = time.Millisecond
	}
	a := New(cfg, WithLogger(zerolog.Nop()), WithOverlaySource(solidOverlay()))
	require.NoError(t, a.Init())
	t.Cleanup(func() { a.Close() })
	return a
}

// client keeps cookies between requests and sends the CSRF token echo
// issued in the _csrf cookie.
type client struct {
	t       *testing.T
	app     *App
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, a *App) *client {
	return &client{t: t, app: a, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	if tok, ok := c.cookies["_csrf"]; ok {
		req.Header.Set("X-CSRF-Token", tok.Value)
	}
	rec := httptest.NewRecorder()
	c.app.Echo.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(http.MethodGet, target, nil, "")
}

func (c *client) form(target string, values url.Values) *httptest.ResponseRecorder {
	return c.do(http.MethodPost, target, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
}

func (c *client) json(target string, v any) *httptest.ResponseRecorder {
	b, err := json.Marshal(v)
	require.NoError(c.t, err)
	return c.do(http.MethodPost, target, bytes.NewReader(b), "application/json")
}

func frameJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), 80, uint8(y), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestHomeAndAbout(t *testing.T) {
	a := newTestApp(t, Config{})
	c := newClient(t, a)

	rec := c.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "GlowUp Studio")
	assert.Contains(t, rec.Body.String(), `href="/camera/"`)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = c.get("/about/")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScreensRedirectWithoutPayload(t *testing.T) {
	a := newTestApp(t, Config{})
	c := newClient(t, a)

	for _, path := range []string{"/filters/", "/text/", "/preview/"} {
		rec := c.get(path)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/camera/", rec.Header().Get("Location"), path)
	}
}

func TestNotFoundPage(t *testing.T) {
	a := newTestApp(t, Config{})
	rec := newClient(t, a).get("/nope/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Deze pagina bestaat niet")
}

func TestCameraScreen(t *testing.T) {
	a := newTestApp(t, Config{})
	rec := newClient(t, a).get("/camera/?mode=video")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-mode="video"`)
	assert.Contains(t, body, `data-max-seconds="30"`)
	assert.Contains(t, body, "Start opname")
}

func TestCSRFRequired(t *testing.T) {
	a := newTestApp(t, Config{})
	req := httptest.NewRequest(http.MethodPost, "/api/capture/start", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCaptureAPIErrors(t *testing.T) {
	a := newTestApp(t, Config{})
	c := newClient(t, a)
	c.get("/camera/")

	rec := c.do(http.MethodPost, "/api/capture/record/chunk", bytes.NewReader([]byte{1, 2}), "application/octet-stream")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = c.json("/api/capture/start", map[string]any{"facing": "sideways", "mode": "photo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.json("/api/capture/start", map[string]any{"facing": "user", "mode": "photo", "failure": "NotAllowedError"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = c.json("/api/capture/start", map[string]any{"facing": "user", "mode": "video", "supported": []string{"video/ogg"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = c.json("/api/capture/record/start", nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestPhotoFlow(t *testing.T) {
	a := newTestApp(t, Config{})
	c := newClient(t, a)

	require.Equal(t, http.StatusOK, c.get("/camera/").Code)

	rec := c.json("/api/capture/start", map[string]any{"facing": "user", "mode": "photo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "live", st.State)

	rec = c.do(http.MethodPost, "/api/capture/still", bytes.NewReader(frameJPEG(t, 320, 240)), "image/jpeg")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "/filters/", st.Next)

	rec = c.get("/media/source")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = c.get("/filters/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="golden"`)

	rec = c.form("/filters/", url.Values{"filter": {"does-not-exist"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = c.form("/filters/", url.Values{"filter": {"golden"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/text/", rec.Header().Get("Location"))

	rec = c.get("/text/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ik deed het op mijn manier")

	rec = c.form("/text/", url.Values{"caption": {strings.Repeat("x", 61)}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "maximaal 60 tekens")

	rec = c.form("/text/", url.Values{"caption": {"Geslaagd!"}, "position": {"bottom"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/preview/", rec.Header().Get("Location"))

	a.Pipeline.Wait()

	rec = c.get("/preview/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "/artifact?v=")
	assert.Contains(t, body, `download="glowupstudio_selfie.jpg"`)

	rec = c.get("/artifact")
	require.Equal(t, http.StatusOK, rec.Code)
	img, err := jpeg.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())

	rec = c.get("/download")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "glowupstudio_selfie.jpg")

	// Email as booth.js does it.
	req := url.Values{"address": {"visitor@example.com"}}
	r := httptest.NewRequest(http.MethodPost, "/email/", strings.NewReader(req.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("X-Requested-With", "fetch")
	r.Header.Set("X-CSRF-Token", c.cookies["_csrf"].Value)
	for _, ck := range c.cookies {
		r.AddCookie(ck)
	}
	rec = httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.True(t, strings.HasPrefix(body, `<section id="email"`), "fetch gets the fragment only")
	assert.Contains(t, body, "Verstuurd naar visitor@example.com")

	list, err := a.Store.ListDeliveries(r.Context(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "visitor@example.com", list[0].Address)

	// Starting over discards the artifact.
	require.Equal(t, http.StatusOK, c.get("/camera/").Code)
	assert.Equal(t, http.StatusNotFound, c.get("/download").Code)
	n, err := a.Store.CountArtifacts(r.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEmailRateLimit(t *testing.T) {
	a := newTestApp(t, Config{SendLimit: 1})
	c := newClient(t, a)
	c.get("/camera/")
	c.json("/api/capture/start", map[string]any{"facing": "environment", "mode": "photo"})
	rec := c.do(http.MethodPost, "/api/capture/still", bytes.NewReader(frameJPEG(t, 64, 64)), "image/jpeg")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c.form("/filters/", url.Values{"filter": {"retro"}})
	c.form("/text/", url.Values{"caption": {""}})
	a.Pipeline.Wait()

	// Invalid addresses do not count against the limit.
	rec = c.form("/email/", url.Values{"address": {"nope"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Vul een geldig e-mailadres in.")

	rec = c.form("/email/", url.Values{"address": {"a@example.com"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Verstuurd naar a@example.com")

	rec = c.form("/email/", url.Values{"address": {"b@example.com"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestVideoCaptureFlow(t *testing.T) {
	a := newTestApp(t, Config{})
	c := newClient(t, a)
	c.get("/camera/?mode=video")

	rec := c.json("/api/capture/start", map[string]any{
		"facing": "user", "mode": "video", "supported": []string{"video/webm"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.json("/api/capture/record/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "video/webm", started["mime"])

	for _, chunk := range [][]byte{{0x1a, 0x45}, {0xdf, 0xa3}} {
		rec = c.do(http.MethodPost, "/api/capture/record/chunk", bytes.NewReader(chunk), "application/octet-stream")
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec = c.get("/api/capture/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "recording", st.State)
	assert.Equal(t, 30, st.MaxSeconds)

	rec = c.json("/api/capture/record/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "stopped", st.State)
	assert.Equal(t, "/filters/", st.Next)

	rec = c.get("/media/source")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{0x1a, 0x45, 0xdf, 0xa3}, rec.Body.Bytes())

	s := sessionOf(t, a, c)
	m, ok := s.Media()
	require.True(t, ok)
	video := m.(capture.Video)
	assert.True(t, video.Mirrored)
	assert.Equal(t, "video/webm", video.MIMEType)
}

func TestLeavingCameraStopsRecording(t *testing.T) {
	a := newTestApp(t, Config{})
	c := newClient(t, a)
	c.get("/camera/?mode=video")

	rec := c.json("/api/capture/start", map[string]any{
		"facing": "environment", "mode": "video", "supported": []string{"video/webm"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = c.json("/api/capture/record/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	s := sessionOf(t, a, c)
	require.Equal(t, capture.StateRecording, s.Controller().Status().State)
	require.True(t, s.Device().Active())

	for _, target := range []string{"/", "/about/"} {
		rec = c.get(target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, capture.StateIdle, s.Controller().Status().State, target)
		assert.False(t, s.Device().Active(), target)
	}
	_, ok := s.Media()
	assert.False(t, ok, "an abandoned recording produces no media")

	rec = c.get("/api/capture/status")
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "idle", st.State)
}

func TestLeavingCameraKeepsFinishedCapture(t *testing.T) {
	a := newTestApp(t, Config{})
	c := newClient(t, a)
	c.get("/camera/")

	rec := c.json("/api/capture/start", map[string]any{"facing": "user", "mode": "photo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = c.do(http.MethodPost, "/api/capture/still", bytes.NewReader(frameJPEG(t, 64, 48)), "image/jpeg")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.get("/filters/")
	require.Equal(t, http.StatusOK, rec.Code)
	s := sessionOf(t, a, c)
	assert.Equal(t, capture.StateCapturing, s.Controller().Status().State)
	_, ok := s.Media()
	assert.True(t, ok)
}

func TestLeavingCameraKeepsStoppedClip(t *testing.T) {
	a := newTestApp(t, Config{})
	c := newClient(t, a)
	c.get("/camera/?mode=video")

	rec := c.json("/api/capture/start", map[string]any{
		"facing": "user", "mode": "video", "supported": []string{"video/webm"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = c.json("/api/capture/record/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = c.do(http.MethodPost, "/api/capture/record/chunk", bytes.NewReader([]byte{0x1a, 0x45}), "application/octet-stream")
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Stopped server side, as at the recording cap; the browser never
	// confirms the stop before moving on.
	s := sessionOf(t, a, c)
	_, err := s.Controller().StopRecording(context.Background())
	require.NoError(t, err)
	_, ok := s.Media()
	require.False(t, ok)

	rec = c.get("/filters/")
	require.Equal(t, http.StatusOK, rec.Code)
	m, ok := s.Media()
	require.True(t, ok)
	assert.Equal(t, capture.KindVideo, m.Kind())
	assert.Equal(t, []byte{0x1a, 0x45}, m.Bytes())

	// A late confirmation returns the same clip.
	rec = c.json("/api/capture/record/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func sessionOf(t *testing.T, a *App, c *client) *Session {
	t.Helper()
	rec := c.get("/api/capture/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, a.Sessions.Len())
	a.Sessions.mu.Lock()
	defer a.Sessions.mu.Unlock()
	for _, s := range a.Sessions.sessions {
		return s
	}
	return nil
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestApp(t, Config{})
	c := newClient(t, a)

	rec := c.get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 4, health["filters"])
	assert.Equal(t, compose.FFmpegAvailable(), health["ffmpeg"], "recorded clips need ffmpeg to decode")

	c.get("/camera/")
	rec = c.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "booth_sessions_active 1")
}

func TestPublicAssets(t *testing.T) {
	a := newTestApp(t, Config{})
	c := newClient(t, a)

	rec := c.get("/public/booth.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "getUserMedia")
	assert.NotContains(t, rec.Body.String(), "scale(-1", "stills are uploaded as the camera delivers them")
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

	rec = c.get("/api/filters")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"geslaagd"`)
}

func TestInitRequiresSecret(t *testing.T) {
	a := New(Config{}, WithLogger(zerolog.Nop()))
	assert.ErrorContains(t, a.Init(), "SessionSecret")
}
