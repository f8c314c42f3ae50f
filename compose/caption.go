package compose

import (
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Caption styling.
const (
	FontSize     = 86
	LineHeight   = 60
	WrapRatio    = 0.8
	TopAnchor    = 0.1
	BottomAnchor = 0.9
	ShadowBlur   = 4
	ShadowOffset = 2
)

var (
	AccentColor = color.RGBA{R: 0xFF, G: 0xD7, B: 0x00, A: 0xFF}
	ShadowColor = color.NRGBA{A: 204}
)

// Line is one laid out caption line. (X, Y) is the dot: the left end of
// the baseline.
type Line struct {
	Text  string
	X, Y  int
	Width int
}

// Anchor returns the baseline of the first line on a size×size canvas.
func Anchor(size int, p Position) int {
	ratio := TopAnchor
	if p == PositionBottom {
		ratio = BottomAnchor
	}
	return int(math.Round(float64(size) * ratio))
}

// Layout greedily wraps the caption. Words are appended while the measured
// line, trailing space included, stays within WrapRatio of the canvas; the
// overflowing word starts the next line, LineHeight pixels lower. Lines
// grow downward from the anchor with no bottom clamp, so a long caption
// anchored at the bottom can run off the canvas.
func Layout(face font.Face, size int, text TextOptions) []Line {
	words := strings.Fields(text.Caption)
	if len(words) == 0 {
		return nil
	}
	maxWidth := fixed.Int26_6(float64(size) * WrapRatio * 64)

	var raw []string
	line := ""
	for i, w := range words {
		test := line + w + " "
		if font.MeasureString(face, test) > maxWidth && i > 0 {
			raw = append(raw, line)
			line = w + " "
		} else {
			line = test
		}
	}
	raw = append(raw, line)

	y := Anchor(size, text.Position)
	lines := make([]Line, 0, len(raw))
	for _, r := range raw {
		s := strings.TrimRight(r, " ")
		w := font.MeasureString(face, s).Round()
		// Centered on the measured line, trailing space included.
		full := font.MeasureString(face, r).Round()
		lines = append(lines, Line{
			Text:  s,
			X:     (size - full) / 2,
			Y:     y,
			Width: w,
		})
		y += LineHeight
	}
	return lines
}

// renderCaption draws lines into a transparent size×size layer: a blurred
// shadow offset by ShadowOffset under the accent colored text.
func renderCaption(face font.Face, size int, lines []Line) *image.RGBA {
	if len(lines) == 0 {
		return nil
	}
	bounds := image.Rect(0, 0, size, size)
	mask := image.NewAlpha(bounds)
	d := font.Drawer{Dst: mask, Src: image.Opaque, Face: face}
	region := image.Rectangle{}
	for _, l := range lines {
		d.Dot = fixed.P(l.X, l.Y)
		b, _ := d.BoundString(l.Text)
		region = region.Union(image.Rect(b.Min.X.Floor(), b.Min.Y.Floor(), b.Max.X.Ceil(), b.Max.Y.Ceil()))
		d.DrawString(l.Text)
	}

	radius := ShadowBlur / 2
	pad := 2*radius + 1
	shadow := image.NewAlpha(bounds)
	copy(shadow.Pix, mask.Pix)
	area := region.Inset(-pad).Intersect(bounds)
	boxBlur(shadow, area, radius)
	boxBlur(shadow, area, radius)

	layer := image.NewRGBA(bounds)
	off := image.Pt(ShadowOffset, ShadowOffset)
	draw.DrawMask(layer, bounds.Add(off), image.NewUniform(ShadowColor), image.Point{}, shadow, image.Point{}, draw.Over)
	draw.DrawMask(layer, bounds, image.NewUniform(AccentColor), image.Point{}, mask, image.Point{}, draw.Over)
	return layer
}

// boxBlur applies a horizontal then vertical box blur of the given radius
// to the pixels of img inside r.
func boxBlur(img *image.Alpha, r image.Rectangle, radius int) {
	if radius <= 0 || r.Empty() {
		return
	}
	w, h := r.Dx(), r.Dy()
	n := 2*radius + 1
	buf := make([]int, max(w, h))

	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := img.Pix[img.PixOffset(r.Min.X, y):]
		for x := 0; x < w; x++ {
			buf[x] = int(row[x])
		}
		blurLine(buf[:w], radius, n, func(i, v int) { row[i] = uint8(v) })
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		base := img.PixOffset(x, r.Min.Y)
		for y := 0; y < h; y++ {
			buf[y] = int(img.Pix[base+y*img.Stride])
		}
		blurLine(buf[:h], radius, n, func(i, v int) { img.Pix[base+i*img.Stride] = uint8(v) })
	}
}

// blurLine writes the running mean of src, treating samples outside the
// line as zero.
func blurLine(src []int, radius, n int, set func(i, v int)) {
	sum := 0
	for i := 0; i <= radius && i < len(src); i++ {
		sum += src[i]
	}
	out := make([]int, len(src))
	for i := range src {
		out[i] = sum / n
		if j := i + radius + 1; j < len(src) {
			sum += src[j]
		}
		if j := i - radius; j >= 0 {
			sum -= src[j]
		}
	}
	for i, v := range out {
		set(i, v)
	}
}
