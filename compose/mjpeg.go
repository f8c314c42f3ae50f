package compose

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
)

// MJPEGType is the Motion-JPEG stream format: one JPEG per multipart part.
const MJPEGType = "multipart/x-mixed-replace"

const mjpegBoundary = "frame"

// MJPEGContentType is the full content type written by the MJPEG codec.
var MJPEGContentType = MJPEGType + ";boundary=" + mjpegBoundary

type mjpegCodec struct{ quality int }

// MJPEG returns the in-process Motion-JPEG codec. It is always available.
func MJPEG() Codec { return mjpegCodec{quality: 90} }

func (mjpegCodec) MIMEType() string    { return MJPEGType }
func (mjpegCodec) ContentType() string { return MJPEGContentType }
func (mjpegCodec) Extension() string   { return ".mjpeg" }
func (mjpegCodec) Available() bool     { return true }

func (c mjpegCodec) NewEncoder(ctx context.Context, w io.Writer, opts EncodeOptions) (Encoder, error) {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(mjpegBoundary); err != nil {
		return nil, err
	}
	return &mjpegEncoder{mw: mw, quality: c.quality}, nil
}

type mjpegEncoder struct {
	mw      *multipart.Writer
	quality int
	closed  bool
}

func (e *mjpegEncoder) Encode(frame *image.RGBA) error {
	part, err := e.mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
	if err != nil {
		return err
	}
	return jpeg.Encode(part, frame, &jpeg.Options{Quality: e.quality})
}

func (e *mjpegEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.mw.Close()
}

// IsMJPEG reports whether contentType is a Motion-JPEG stream.
func IsMJPEG(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == MJPEGType
}

type mjpegSource struct {
	r *multipart.Reader
}

func newMJPEGSource(r io.Reader, contentType string) (*mjpegSource, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("parse content type: %w", err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		boundary = mjpegBoundary
	}
	return &mjpegSource{r: multipart.NewReader(r, boundary)}, nil
}

func (s *mjpegSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	part, err := s.r.NextPart()
	if err != nil {
		return nil, err
	}
	defer part.Close()
	img, err := jpeg.Decode(part)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func (s *mjpegSource) Close() error { return nil }
