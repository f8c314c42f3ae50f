package compose

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/glowupstudio/booth/capture"
	"github.com/glowupstudio/booth/catalog"
)

// MaxCaptionUnits is the caption limit in UTF-16 code units, which is how
// the browser counts the text field.
const MaxCaptionUnits = 60

// ErrMissingPayload is returned when a request lacks media, filter or text.
var ErrMissingPayload = errors.New("compose: incomplete composition request")

// Position anchors the first caption line.
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
)

// ParsePosition parses "top" or "bottom"; empty means top.
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "top":
		return PositionTop, nil
	case "bottom":
		return PositionBottom, nil
	}
	return "", fmt.Errorf("compose: unknown caption position %q", s)
}

// TextOptions is the caption burned into the artifact.
type TextOptions struct {
	Caption  string
	Position Position
}

// NewTextOptions validates and builds caption options.
func NewTextOptions(caption, position string) (TextOptions, error) {
	pos, err := ParsePosition(position)
	if err != nil {
		return TextOptions{}, err
	}
	t := TextOptions{Caption: caption, Position: pos}
	return t, t.Validate()
}

// Validate checks the caption length and position.
func (t TextOptions) Validate() error {
	if n := CaptionUnits(t.Caption); n > MaxCaptionUnits {
		return fmt.Errorf("compose: caption is %d characters, limit is %d", n, MaxCaptionUnits)
	}
	if t.Position != PositionTop && t.Position != PositionBottom {
		return fmt.Errorf("compose: unknown caption position %q", t.Position)
	}
	return nil
}

// CaptionUnits counts s in UTF-16 code units.
func CaptionUnits(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// Request is everything the compositor needs. It is read-only once handed
// to Compose.
type Request struct {
	Media  capture.Media
	Filter *catalog.Filter
	Text   *TextOptions
}

// Validate reports ErrMissingPayload naming the absent parts.
func (r Request) Validate() error {
	var missing []string
	if r.Media == nil || len(r.Media.Bytes()) == 0 {
		missing = append(missing, "media")
	}
	if r.Filter == nil {
		missing = append(missing, "filter")
	}
	if r.Text == nil {
		missing = append(missing, "text")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMissingPayload, strings.Join(missing, ", "))
	}
	return r.Text.Validate()
}

// Artifact is the final rendered image or video.
type Artifact struct {
	Kind     capture.Kind
	Data     []byte
	MIMEType string
	Filename string
}

// Failure is a composition error. Stage names the pipeline step that failed.
type Failure struct {
	Stage string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("compose: %s failed: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(stage string, err error) error {
	return &Failure{Stage: stage, Err: err}
}
