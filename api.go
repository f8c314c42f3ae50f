package booth

import (
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/glowupstudio/booth/capture"
	"github.com/glowupstudio/booth/compose"
)

// The capture API is driven by booth.js. The browser owns getUserMedia and
// MediaRecorder; it mirrors every step to the session's controller so the
// server keeps the authoritative state.

type startRequest struct {
	Facing    string   `json:"facing"`
	Mode      string   `json:"mode"`
	Supported []string `json:"supported"`
	Failure   string   `json:"failure"`
}

type statusResponse struct {
	State      string `json:"state"`
	Facing     string `json:"facing"`
	Mode       string `json:"mode"`
	Elapsed    int    `json:"elapsed"`
	MaxSeconds int    `json:"maxSeconds"`
	MIMEType   string `json:"mime,omitempty"`
	Next       string `json:"next,omitempty"`
}

func statusJSON(st capture.Status) statusResponse {
	r := statusResponse{
		State:      st.State.String(),
		Facing:     string(st.Facing),
		Mode:       string(st.Mode),
		Elapsed:    int(st.Elapsed.Seconds()),
		MaxSeconds: int(capture.MaxRecording.Seconds()),
		MIMEType:   st.MIMEType,
	}
	if st.State.Terminal() {
		r.Next = "/filters/"
	}
	return r
}

// apiError maps capture and compose errors to HTTP statuses.
func apiError(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, capture.ErrDeviceUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrInvalidState),
		errors.Is(err, capture.ErrNoFrame),
		errors.Is(err, capture.ErrNotRecording),
		errors.Is(err, compose.ErrMissingPayload):
		code = http.StatusConflict
	case errors.Is(err, capture.ErrNoCodec):
		code = http.StatusUnsupportedMediaType
	}
	return echo.NewHTTPError(code, err.Error()).SetInternal(err)
}

func (a *App) apiStart(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	facing, err := capture.ParseFacing(req.Facing)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mode, err := capture.ParseMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s.Device().Report(req.Supported, req.Failure)
	ctl := s.Controller()
	if ctl.Status().State != capture.StateIdle {
		ctl.Close()
	}
	if err := ctl.Start(c.Request().Context(), facing, mode); err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, statusJSON(ctl.Status()))
}

func (a *App) apiSwitch(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	facing, err := capture.ParseFacing(req.Facing)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctl := s.Controller()
	if err := ctl.SwitchFacing(c.Request().Context(), facing); err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, statusJSON(ctl.Status()))
}

func (a *App) apiMode(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	mode, err := capture.ParseMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctl := s.Controller()
	if err := ctl.SetMode(c.Request().Context(), mode); err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, statusJSON(ctl.Status()))
}

// apiStill receives the current viewfinder frame as an image body and
// captures it.
func (a *App) apiStill(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	frame, _, err := image.Decode(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "frame is not an image").SetInternal(err)
	}
	if err := s.Device().DeliverFrame(frame); err != nil {
		return apiError(err)
	}
	photo, err := s.Controller().CaptureStill(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	s.SetMedia(photo)
	a.Metrics.captured(string(capture.KindPhoto))
	return c.JSON(http.StatusOK, statusJSON(s.Controller().Status()))
}

func (a *App) apiRecordStart(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	mime, err := s.Controller().StartRecording()
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"mime": mime})
}

// apiRecordChunk appends one MediaRecorder chunk. booth.js posts chunks
// strictly in order.
func (a *App) apiRecordChunk(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	b, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	if err := s.Device().DeliverChunk(b); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// apiRecordStop finalizes the clip. After the automatic stop at the
// recording cap it returns the clip that was already finalized.
func (a *App) apiRecordStop(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	ctl := s.Controller()
	if _, ok := ctl.Result(); ok {
		if m, has := s.Media(); has && m.Kind() == capture.KindVideo {
			return c.JSON(http.StatusOK, statusJSON(ctl.Status()))
		}
	}
	video, err := ctl.StopRecording(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	s.SetMedia(video)
	a.Metrics.captured(string(capture.KindVideo))
	return c.JSON(http.StatusOK, statusJSON(ctl.Status()))
}

func (a *App) apiStatus(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusJSON(s.Controller().Status()))
}

func (a *App) apiFilters(c echo.Context) error {
	return c.JSON(http.StatusOK, a.Catalog.All())
}
