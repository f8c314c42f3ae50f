package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// DefaultOutputSize is the side of the square still produced by CaptureStill.
const DefaultOutputSize = 1920

// SquareCrop returns the largest centered square inside r. The crop offset
// on the longer axis is (longer-shorter)/2.
func SquareCrop(r image.Rectangle) image.Rectangle {
	w, h := r.Dx(), r.Dy()
	if w > h {
		x := r.Min.X + (w-h)/2
		return image.Rect(x, r.Min.Y, x+h, r.Max.Y)
	}
	y := r.Min.Y + (h-w)/2
	return image.Rect(r.Min.X, y, r.Max.X, y+w)
}

// SquareFrame crops src to a centered square and scales it to size×size.
func SquareFrame(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	crop := SquareCrop(src.Bounds())
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

// EncodeStill crops, scales and encodes src as a maximum quality JPEG.
func EncodeStill(src image.Image, size int) (Photo, error) {
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return Photo{}, fmt.Errorf("capture: empty frame %v", b)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, SquareFrame(src, size), &jpeg.Options{Quality: 100}); err != nil {
		return Photo{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Photo{Data: buf.Bytes(), Size: size}, nil
}
