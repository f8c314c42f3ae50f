package booth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/glowupstudio/booth/capture"
)

const sessionName = "booth_session"

func (a *App) setupMiddleware() {
	e := a.Echo

	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)

	e.HTTPErrorHandler = a.httpErrorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := a.log.Info()
			if v.Error != nil || v.Status >= 500 {
				ev = a.log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Str("ip", v.RemoteIP).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/healthz" || p == "/metrics" || p == "/api/capture/status"
		},
	}))

	e.Use(middleware.Recover())

	e.Use(middleware.BodyLimit(strconv.FormatInt(a.Config.MaxUploadBytes>>10, 10) + "K"))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/artifact" || p == "/download" || strings.HasPrefix(p, "/media/") ||
				strings.HasSuffix(p, "/overlay")
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' https: data: blob:; connect-src 'self'; media-src 'self' blob: mediastream:",
		HSTSMaxAge:            31536000,
		HSTSExcludeSubdomains: false,
	}))

	e.Use(session.Middleware(a.newSessionStore()))

	e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		ContextKey:  middleware.DefaultCSRFConfig.ContextKey,
		TokenLookup: "header:X-CSRF-Token,form:_csrf",
		CookieName:  "_csrf",
		CookiePath:  "/",
		CookieSameSite: func() http.SameSite {
			return http.SameSiteLaxMode
		}(),
		CookieSecure: a.Config.CookieSecure,
		ErrorHandler: func(err error, c echo.Context) error {
			return c.String(http.StatusForbidden, "Forbidden")
		},
	}))

	e.Use(middleware.AddTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		RedirectCode: http.StatusMovedPermanently,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return strings.HasPrefix(p, "/public") ||
				strings.HasPrefix(p, "/api/") ||
				strings.HasPrefix(p, "/media/") ||
				strings.HasSuffix(p, "/overlay") ||
				p == "/artifact" || p == "/download" || p == "/metrics" || p == "/healthz"
		},
	}))

	e.Use(cacheControlMiddleware)
}

func cacheControlMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := c.Request().URL.Path
		switch {
		case strings.HasPrefix(p, "/public/"):
			c.Response().Header().Set("Cache-Control", "public, max-age=3600")
		case strings.HasSuffix(p, "/overlay"):
			c.Response().Header().Set("Cache-Control", "public, max-age=86400")
		default:
			// Every screen reflects the visitor's own session.
			c.Response().Header().Set("Cache-Control", "no-store")
		}
		return next(c)
	}
}

func (a *App) newSessionStore() *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(a.Config.SessionTTL.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

// currentSession returns the booth session of the visitor, creating one
// (and setting the cookie) when there is none or it expired.
func (a *App) currentSession(c echo.Context) (*Session, error) {
	sess, err := session.Get(sessionName, c)
	if sess == nil {
		return nil, err
	}
	if s, ok := a.lookupSession(sess); ok {
		return s, nil
	}
	s := a.Sessions.Create()
	sess.Values["id"] = s.ID
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return nil, err
	}
	return s, nil
}

// CsrfToken extracts the CSRF token from the Echo context.
func CsrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}

func (a *App) lookupSession(sess *sessions.Session) (*Session, bool) {
	id, ok := sess.Values["id"].(string)
	if !ok {
		return nil, false
	}
	return a.Sessions.Get(id)
}

// leaveCapture stops a stream or recording that is still running when the
// visitor enters a screen other than the camera. Finished captures are kept:
// a clip stopped at the recording cap is handed to the session even if the
// browser never confirmed the stop.
func (a *App) leaveCapture(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, _ := session.Get(sessionName, c)
		if sess == nil {
			return next(c)
		}
		if s, ok := a.lookupSession(sess); ok {
			a.settleCapture(s)
		}
		return next(c)
	}
}

func (a *App) settleCapture(s *Session) {
	ctl := s.Controller()
	st := ctl.Status().State
	switch {
	case st == capture.StateIdle:
	case st.Terminal():
		if v, ok := ctl.Result(); ok {
			if _, has := s.Media(); !has {
				s.SetMedia(v)
				a.Metrics.captured(string(capture.KindVideo))
			}
		}
	default:
		ctl.Close()
		a.log.Debug().Str("session", s.ID).Str("state", st.String()).Msg("capture abandoned")
	}
}
