package capture

import "time"

// MaxRecording is the hard cap on a recorded clip.
const MaxRecording = 30 * time.Second

// Kind tells a photo from a video.
type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

// Media is the result of a capture session: a Photo or a Video.
// Values are immutable once returned by the Controller.
type Media interface {
	Kind() Kind
	Bytes() []byte
	ContentType() string
}

// Photo is a square JPEG still.
type Photo struct {
	Data []byte
	Size int // width == height
}

func (Photo) Kind() Kind          { return KindPhoto }
func (p Photo) Bytes() []byte     { return p.Data }
func (Photo) ContentType() string { return "image/jpeg" }

// Video is a recorded clip as produced by the device recorder.
type Video struct {
	Data     []byte
	MIMEType string
	Duration time.Duration
	// Mirrored is set for user-facing captures; the compositor flips these
	// horizontally so the result matches the on-screen preview.
	Mirrored bool
}

func (Video) Kind() Kind            { return KindVideo }
func (v Video) Bytes() []byte       { return v.Data }
func (v Video) ContentType() string { return v.MIMEType }
