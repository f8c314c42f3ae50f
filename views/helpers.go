package views

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/a-h/templ"
)

// htmlWriter writes markup and remembers the first error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(parts ...string) {
	for _, p := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, p)
	}
}

// text writes s HTML-escaped.
func (h *htmlWriter) text(s string) { h.raw(templ.EscapeString(s)) }

func (h *htmlWriter) render(ctx context.Context, c templ.Component) {
	if h.err != nil || c == nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

// component adapts a writer function to templ.Component.
func component(fn func(ctx context.Context, h *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		fn(ctx, h)
		return h.err
	})
}

// attr escapes s for use inside a double-quoted attribute.
func attr(s string) string { return templ.EscapeString(s) }

// safeURL returns u when it is safe in an href or src attribute.
func safeURL(u string) string { return attr(string(templ.URL(u))) }

// buildURL joins path segments onto a base URL, ensuring a trailing slash.
func buildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// PathEscape wraps url.PathEscape for use in markup.
func PathEscape(s string) string {
	return url.PathEscape(s)
}

// ButtonClass returns CSS classes for a toggle button, with active variant.
func ButtonClass(active bool) string {
	base := "btn btn-toggle"
	if active {
		base += " is-active"
	}
	return base
}

func checked(b bool) string {
	if b {
		return " checked"
	}
	return ""
}
