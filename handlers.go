package booth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/glowupstudio/booth/capture"
	"github.com/glowupstudio/booth/catalog"
	"github.com/glowupstudio/booth/compose"
	"github.com/glowupstudio/booth/delivery"
	"github.com/glowupstudio/booth/views"
)

const exampleCaption = "Ik deed het op mijn manier"

func (a *App) handleHome(c echo.Context) error {
	return Render(c, views.Home(a.page(c, "")))
}

func (a *App) handleAbout(c echo.Context) error {
	return Render(c, views.About(a.page(c, "Over")))
}

// handleCamera starts a fresh capture: whatever the session held before is
// discarded and its tracks and timers are stopped.
func (a *App) handleCamera(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	s.Restart()
	mode, err := capture.ParseMode(c.QueryParam("mode"))
	if err != nil {
		mode = capture.ModePhoto
	}
	return Render(c, views.Camera(a.page(c, "Camera"), views.CameraModel{
		Mode:       string(mode),
		Facing:     string(capture.FacingUser),
		MaxSeconds: int(capture.MaxRecording.Seconds()),
		Formats:    capture.RecordingFormats,
	}))
}

func toCapture(c echo.Context) error {
	return c.Redirect(http.StatusSeeOther, "/camera/")
}

func (a *App) sourceModel(v SessionView) views.SourceModel {
	m := views.SourceModel{URL: "/media/source", Video: v.MediaKind == capture.KindVideo}
	if v.Filter != nil {
		m.OverlayURL = overlayURL(*v.Filter)
	}
	return m
}

func (a *App) handleFilters(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	v := s.View()
	if !v.HasMedia {
		return toCapture(c)
	}
	filters := a.Catalog.All()
	cards := make([]views.FilterCard, 0, len(filters))
	for _, f := range filters {
		cards = append(cards, views.FilterCard{
			ID:          f.ID,
			Name:        f.Name,
			Description: f.Description,
			Thumbnail:   f.Thumbnail(),
			OverlayURL:  overlayURL(f),
			Selected:    v.Filter != nil && v.Filter.ID == f.ID,
		})
	}
	return Render(c, views.Filters(a.page(c, "Filters"), a.sourceModel(v), cards))
}

func (a *App) handleSelectFilter(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	f, err := a.Catalog.Get(c.FormValue("filter"))
	if errors.Is(err, catalog.ErrNotFound) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "unknown filter")
	}
	if err != nil {
		return err
	}
	if err := s.SetFilter(f); errors.Is(err, compose.ErrMissingPayload) {
		return toCapture(c)
	} else if err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/text/")
}

func (a *App) handleText(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	v := s.View()
	if !v.HasMedia || v.Filter == nil {
		return toCapture(c)
	}
	m := views.TextModel{
		Source:   a.sourceModel(v),
		Position: string(compose.PositionTop),
		MaxLen:   compose.MaxCaptionUnits,
		Example:  exampleCaption,
	}
	if v.Text != nil {
		m.Caption = v.Text.Caption
		m.Position = string(v.Text.Position)
	}
	return Render(c, views.Text(a.page(c, "Tekst"), m))
}

func (a *App) handleSaveText(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	caption := strings.TrimSpace(c.FormValue("caption"))
	text, err := compose.NewTextOptions(caption, c.FormValue("position"))
	if err == nil {
		err = s.SetText(text)
	}
	switch {
	case errors.Is(err, compose.ErrMissingPayload):
		return toCapture(c)
	case err != nil:
		v := s.View()
		return RenderStatus(c, http.StatusUnprocessableEntity, views.Text(a.page(c, "Tekst"), views.TextModel{
			Source:   a.sourceModel(v),
			Caption:  caption,
			Position: c.FormValue("position"),
			MaxLen:   compose.MaxCaptionUnits,
			Example:  exampleCaption,
			Error:    "Je tekst mag maximaal 60 tekens zijn.",
		}))
	}
	if err := a.Pipeline.Render(s); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/preview/")
}

func (a *App) handlePreview(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	// Entering the preview starts the render if nothing is running yet.
	if err := a.Pipeline.Render(s); errors.Is(err, compose.ErrMissingPayload) {
		return toCapture(c)
	} else if err != nil {
		return err
	}
	v := s.View()
	return Render(c, views.Preview(a.page(c, "Resultaat"), a.previewModel(v, "")))
}

func (a *App) previewModel(v SessionView, address string) views.PreviewModel {
	m := views.PreviewModel{
		State:       v.Render.String(),
		Video:       v.MediaKind == capture.KindVideo,
		ArtifactURL: "/artifact?v=" + v.ArtifactID,
		DownloadURL: "/download",
		Filename:    v.Filename,
		Email:       emailModel(v, address),
	}
	if v.Render == RenderIdle {
		m.State = RenderProcessing.String()
	}
	if v.RenderErr != nil {
		m.Error = userMessage(v.RenderErr)
	}
	return m
}

func emailModel(v SessionView, address string) views.EmailModel {
	m := views.EmailModel{State: v.Send.String(), Address: address, SentTo: v.SentTo}
	if v.SendErr != nil {
		m.Error = userMessage(v.SendErr)
	}
	return m
}

func (a *App) handleRetry(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	if err := a.Pipeline.Retry(s); errors.Is(err, compose.ErrMissingPayload) {
		return toCapture(c)
	} else if err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/preview/")
}

func (a *App) handleEmail(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	address := strings.TrimSpace(c.FormValue("address"))
	ip := c.RealIP()
	if !a.limiter.Allow(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many emails, try again later")
	}
	err = a.Pipeline.Send(c.Request().Context(), s, address)
	var df *delivery.Failure
	switch {
	case errors.Is(err, ErrNotReady):
		a.limiter.Refund(ip)
		return c.Redirect(http.StatusSeeOther, "/preview/")
	case errors.Is(err, ErrSendInProgress):
		a.limiter.Refund(ip)
		return echo.NewHTTPError(http.StatusConflict, "send in progress")
	case errors.As(err, &df) && !df.Retryable:
		a.limiter.Refund(ip)
	}

	v := s.View()
	if c.Request().Header.Get("X-Requested-With") == "fetch" {
		return Render(c, views.EmailForm(a.page(c, ""), emailModel(v, address)))
	}
	return Render(c, views.Preview(a.page(c, "Resultaat"), a.previewModel(v, address)))
}

func (a *App) handleArtifact(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	art, err := a.Pipeline.Artifact(c.Request().Context(), s)
	if err != nil {
		return artifactError(err)
	}
	return c.Blob(http.StatusOK, art.MIMEType, art.Data)
}

func (a *App) handleDownload(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	art, err := a.Pipeline.Artifact(c.Request().Context(), s)
	if err != nil {
		return artifactError(err)
	}
	return delivery.ServeDownload(c.Response(), c.Request(), art)
}

func artifactError(err error) error {
	if errors.Is(err, ErrNotReady) || errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no artifact")
	}
	return err
}

func (a *App) handleMediaSource(c echo.Context) error {
	s, err := a.currentSession(c)
	if err != nil {
		return err
	}
	m, ok := s.Media()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no media")
	}
	return c.Blob(http.StatusOK, m.ContentType(), m.Bytes())
}

func (a *App) handleOverlay(c echo.Context) error {
	f, err := a.Catalog.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown filter")
	}
	o, err := a.Overlays.Get(c.Request().Context(), f.OverlayRef)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "overlay unavailable").SetInternal(err)
	}
	return c.Blob(http.StatusOK, o.ContentType, o.Data)
}

func (a *App) handleHealth(c echo.Context) error {
	if _, err := a.Store.CountArtifacts(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": a.Sessions.Len(),
		"filters":  a.Catalog.Len(),
		"ffmpeg":   compose.FFmpegAvailable(),
	})
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		a.Echo.DefaultHTTPErrorHandler(err, c)
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("server error")
		_ = RenderStatus(c, code, views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
