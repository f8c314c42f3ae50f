// Package views renders the booth screens.
package views

import (
	"context"

	"github.com/a-h/templ"
)

// Layout wraps body in the page shell: head, header and footer.
func Layout(p Page, body templ.Component) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		title := p.Site.Name
		if p.Title != "" {
			title = p.Title + " · " + p.Site.Name
		}
		h.raw(`<!doctype html><html lang="nl"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<meta name="csrf-token" content="`, attr(p.CSRF), `">`,
			`<link rel="canonical" href="`, safeURL(buildURL(p.Site.URL)), `">`,
			`<link rel="stylesheet" href="/public/booth.css">`,
			`<title>`)
		h.text(title)
		h.raw(`</title></head><body><header class="site-header"><a class="brand" href="/">`)
		h.text(p.Site.Name)
		h.raw(`</a><nav><a href="/about/">Over</a></nav></header><main class="screen">`)
		h.render(ctx, body)
		h.raw(`</main><footer class="site-footer"><span>&copy; `)
		h.text(p.Site.Name)
		h.raw(`</span><a href="/about/">Privacy</a></footer>`,
			`<script src="/public/booth.js" defer></script></body></html>`)
	})
}

func backLink(h *htmlWriter, href string) {
	h.raw(`<a class="back" href="`, safeURL(href), `">&larr; Terug</a>`)
}

// source draws the captured media with the overlay on top, the way the
// final artifact will look before the caption is added.
func source(h *htmlWriter, s SourceModel) {
	h.raw(`<div class="stage">`)
	if s.Video {
		h.raw(`<video class="stage-media" src="`, safeURL(s.URL), `" autoplay loop muted playsinline></video>`)
	} else {
		h.raw(`<img class="stage-media" src="`, safeURL(s.URL), `" alt="Je foto">`)
	}
	if s.OverlayURL != "" {
		h.raw(`<img class="stage-overlay" src="`, safeURL(s.OverlayURL), `" alt="">`)
	}
	h.raw(`</div>`)
}

// NotFound renders the 404 page.
func NotFound() templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<!doctype html><html lang="nl"><head><meta charset="utf-8"><link rel="stylesheet" href="/public/booth.css">`,
			`<title>Niet gevonden</title></head><body><main class="screen error">`,
			`<h1>404</h1><p>Deze pagina bestaat niet.</p><a class="btn" href="/">Naar start</a></main></body></html>`)
	})
}

// ServerError renders the 500 page.
func ServerError() templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<!doctype html><html lang="nl"><head><meta charset="utf-8"><link rel="stylesheet" href="/public/booth.css">`,
			`<title>Er ging iets mis</title></head><body><main class="screen error">`,
			`<h1>Er ging iets mis</h1><p>Probeer het opnieuw.</p><a class="btn" href="/camera/">Opnieuw beginnen</a></main></body></html>`)
	})
}
