package capture

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquareCrop(t *testing.T) {
	tests := []struct {
		w, h int
		want image.Rectangle
	}{
		{1280, 720, image.Rect(280, 0, 1000, 720)},
		{1280, 960, image.Rect(160, 0, 1120, 960)},
		{720, 1280, image.Rect(0, 280, 720, 1000)},
		{1080, 1080, image.Rect(0, 0, 1080, 1080)},
		{1921, 1080, image.Rect(420, 0, 1500, 1080)},
	}
	for _, tt := range tests {
		got := SquareCrop(image.Rect(0, 0, tt.w, tt.h))
		assert.Equal(t, tt.want, got, "%dx%d", tt.w, tt.h)
		assert.Equal(t, got.Dx(), got.Dy(), "crop must be square")
		assert.Equal(t, min(tt.w, tt.h), got.Dx(), "crop must use the shorter side")
	}
}

func TestSquareCropOffsetBounds(t *testing.T) {
	got := SquareCrop(image.Rect(10, 20, 110, 70))
	assert.Equal(t, image.Rect(35, 20, 85, 70), got)
}

func TestEncodeStill(t *testing.T) {
	photo, err := EncodeStill(gradient(320, 180), 64)
	require.NoError(t, err)
	assert.Equal(t, 64, photo.Size)

	img, err := jpeg.Decode(bytes.NewReader(photo.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
}

func TestEncodeStillRejectsEmptyFrame(t *testing.T) {
	_, err := EncodeStill(image.NewRGBA(image.Rect(0, 0, 0, 0)), 64)
	assert.Error(t, err)
}
