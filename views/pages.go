package views

import (
	"context"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

// Home is the landing screen.
func Home(p Page) templ.Component {
	return Layout(p, component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<section class="hero"><h1>`)
		h.text(p.Site.Name)
		h.raw(`</h1><p>Maak een feestelijke selfie of video met je eigen filter en tekst.</p>`,
			`<a class="btn btn-primary" href="/camera/">Start</a></section>`,
			`<section class="steps"><h2>Hoe werkt het?</h2><ol>`,
			`<li>Neem een selfie of een korte video met de camera</li>`,
			`<li>Kies uit onze selectie van feestelijke filters</li>`,
			`<li>Voeg je eigen tekst of quote toe (maximaal 60 tekens)</li>`,
			`<li>Download je creatie of deel deze direct via e-mail</li>`,
			`</ol></section>`)
	}))
}

// About explains what happens to captured media.
func About(p Page) templ.Component {
	return Layout(p, component(func(ctx context.Context, h *htmlWriter) {
		backLink(h, "/")
		h.raw(`<section class="prose"><h1>Over `)
		h.text(p.Site.Name)
		h.raw(`</h1>`,
			`<p>Foto's en video's blijven alleen bewaard zolang je sessie actief is. `,
			`Als je opnieuw begint of een half uur niets doet, worden ze verwijderd.</p>`,
			`<p>Versturen per e-mail is een demonstratie: er wordt geen echte e-mail verzonden.</p>`,
			`</section>`)
	}))
}

// Camera is the capture screen. The camera itself runs in the browser;
// booth.js reads data-* attributes from the root element.
func Camera(p Page, m CameraModel) templ.Component {
	return Layout(p, component(func(ctx context.Context, h *htmlWriter) {
		backLink(h, "/")
		h.raw(`<section id="camera" class="camera" data-mode="`, attr(m.Mode),
			`" data-facing="`, attr(m.Facing),
			`" data-max-seconds="`, strconv.Itoa(m.MaxSeconds),
			`" data-formats="`, attr(strings.Join(m.Formats, ",")), `">`)
		h.raw(`<p class="alert" role="alert" id="camera-error"`)
		if m.Error == "" {
			h.raw(` hidden`)
		}
		h.raw(`>`)
		h.text(m.Error)
		h.raw(`</p>`,
			`<div class="stage"><video id="viewfinder" class="stage-media mirrored" autoplay muted playsinline></video>`,
			`<span id="rec-counter" class="rec-counter" hidden>0s / `, strconv.Itoa(m.MaxSeconds), `s</span></div>`,
			`<div class="toolbar">`,
			`<button type="button" class="`, ButtonClass(m.Mode == "photo"), `" data-set-mode="photo">Foto</button>`,
			`<button type="button" class="`, ButtonClass(m.Mode == "video"), `" data-set-mode="video">Video</button>`,
			`<button type="button" class="btn" id="switch-facing">Wissel camera</button>`,
			`</div><div class="toolbar">`,
			`<button type="button" class="btn btn-primary" id="shutter">`)
		if m.Mode == "video" {
			h.raw(`Start opname`)
		} else {
			h.raw(`Maak foto`)
		}
		h.raw(`</button></div></section>`)
	}))
}

// Filters is the filter picker.
func Filters(p Page, src SourceModel, cards []FilterCard) templ.Component {
	return Layout(p, component(func(ctx context.Context, h *htmlWriter) {
		backLink(h, "/camera/")
		h.raw(`<h1>Kies een filter</h1>`)
		source(h, src)
		h.raw(`<form method="post" action="/filters/" class="filter-grid">`,
			`<input type="hidden" name="_csrf" value="`, attr(p.CSRF), `">`)
		for _, c := range cards {
			h.raw(`<label class="filter-card" data-overlay="`, safeURL(c.OverlayURL), `">`,
				`<input type="radio" name="filter" value="`, attr(c.ID), `"`, checked(c.Selected), ` required>`,
				`<img src="`, safeURL(c.Thumbnail), `" alt="" loading="lazy"><strong>`)
			h.text(c.Name)
			h.raw(`</strong><span>`)
			h.text(c.Description)
			h.raw(`</span></label>`)
		}
		h.raw(`<button type="submit" class="btn btn-primary">Volgende</button></form>`)
	}))
}

// Text is the caption editor.
func Text(p Page, m TextModel) templ.Component {
	return Layout(p, component(func(ctx context.Context, h *htmlWriter) {
		backLink(h, "/filters/")
		h.raw(`<h1>Voeg tekst toe</h1>`)
		source(h, m.Source)
		h.raw(`<form method="post" action="/text/" class="caption-form">`,
			`<input type="hidden" name="_csrf" value="`, attr(p.CSRF), `">`)
		if m.Error != "" {
			h.raw(`<p class="alert" role="alert">`)
			h.text(m.Error)
			h.raw(`</p>`)
		}
		maxLen := strconv.Itoa(m.MaxLen)
		h.raw(`<textarea name="caption" id="caption" maxlength="`, maxLen,
			`" placeholder="Voeg hier je tekst toe (max `, maxLen, ` tekens)">`)
		h.text(m.Caption)
		h.raw(`</textarea><p class="counter"><span id="caption-count">`,
			strconv.Itoa(len([]rune(m.Caption))), `</span>/`, maxLen, `</p>`,
			`<fieldset class="toolbar"><legend>Positie</legend>`,
			`<label><input type="radio" name="position" value="top"`, checked(m.Position != "bottom"), `> Boven</label>`,
			`<label><input type="radio" name="position" value="bottom"`, checked(m.Position == "bottom"), `> Onder</label>`,
			`</fieldset>`)
		if m.Example != "" {
			h.raw(`<p class="hint">Voorbeeldtekst: &quot;`)
			h.text(m.Example)
			h.raw(`&quot;</p>`)
		}
		h.raw(`<button type="submit" class="btn btn-primary">Bekijk resultaat</button></form>`)
	}))
}

// Preview is the result screen. While processing it refreshes itself.
func Preview(p Page, m PreviewModel) templ.Component {
	body := component(func(ctx context.Context, h *htmlWriter) {
		backLink(h, "/text/")
		switch m.State {
		case "processing":
			h.raw(`<meta http-equiv="refresh" content="1">`,
				`<div class="processing" role="status"><div class="spinner"></div><p>`)
			if m.Video {
				h.raw(`Video verwerken...`)
			} else {
				h.raw(`Foto verwerken...`)
			}
			h.raw(`</p></div>`)
		case "failed":
			h.raw(`<div class="alert" role="alert"><p>Verwerken is mislukt.</p><p class="detail">`)
			h.text(m.Error)
			h.raw(`</p></div><form method="post" action="/preview/retry/" class="toolbar">`,
				`<input type="hidden" name="_csrf" value="`, attr(p.CSRF), `">`,
				`<button type="submit" class="btn btn-primary">Opnieuw proberen</button>`,
				`<a class="btn" href="/camera/">Opnieuw beginnen</a></form>`)
		default:
			h.raw(`<div class="stage">`)
			if m.Video {
				h.raw(`<video class="stage-media" src="`, safeURL(m.ArtifactURL), `" controls autoplay loop playsinline></video>`)
			} else {
				h.raw(`<img class="stage-media" src="`, safeURL(m.ArtifactURL), `" alt="Jouw creatie">`)
			}
			h.raw(`</div><div class="toolbar"><a class="btn btn-primary" href="`, safeURL(m.DownloadURL), `" download="`, attr(m.Filename), `">Downloaden</a>`,
				`<a class="btn" href="/camera/">Nieuwe foto</a></div>`)
			h.render(ctx, EmailForm(p, m.Email))
		}
	})
	return Layout(p, body)
}

// EmailForm is the email section of the preview screen. booth.js swaps it
// in place after a send.
func EmailForm(p Page, m EmailModel) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.raw(`<section id="email" class="email" data-state="`, attr(m.State), `">`)
		switch m.State {
		case "sent":
			h.raw(`<p class="success" role="status">Verstuurd naar `)
			h.text(m.SentTo)
			h.raw(`!</p></section>`)
			return
		case "failed":
			h.raw(`<p class="alert" role="alert">Versturen mislukt: `)
			h.text(m.Error)
			h.raw(`</p>`)
		}
		h.raw(`<form method="post" action="/email/" class="email-form">`,
			`<input type="hidden" name="_csrf" value="`, attr(p.CSRF), `">`,
			`<label for="address">E-mail</label>`,
			`<input type="email" id="address" name="address" required placeholder="voorbeeld@email.nl" value="`, attr(m.Address), `">`,
			`<button type="submit" class="btn btn-primary" data-busy="Versturen...">`)
		if m.State == "failed" {
			h.raw(`Opnieuw versturen`)
		} else {
			h.raw(`Versturen`)
		}
		h.raw(`</button></form></section>`)
	})
}
