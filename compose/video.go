package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"golang.org/x/image/draw"

	"github.com/glowupstudio/booth/capture"
)

var errNoFrames = errors.New("source has no frames")

// composeVideo decodes every frame of v, paints the scene over it and
// re-encodes the result with the preferred available codec.
func (c *Compositor) composeVideo(ctx context.Context, v capture.Video, sc *scene) (Artifact, error) {
	codec, err := c.VideoCodec()
	if err != nil {
		return Artifact{}, fail("codec", err)
	}
	src, audio, err := c.openSource(ctx, v)
	if err != nil {
		return Artifact{}, fail("decode", err)
	}

	var out bytes.Buffer
	enc, err := codec.NewEncoder(ctx, &out, EncodeOptions{Size: c.size, FPS: c.fps, AudioFrom: audio})
	if err != nil {
		_ = src.Close()
		return Artifact{}, fail("encode", err)
	}

	start := time.Now()
	frames, loopErr := c.encodeFrames(ctx, src, enc, sc, v.Mirrored)
	// The encoder may still read audio from the spooled source, so it is
	// closed first.
	closeErr := enc.Close()
	_ = src.Close()

	switch {
	case loopErr != nil:
		return Artifact{}, loopErr
	case closeErr != nil:
		return Artifact{}, fail("encode", closeErr)
	case frames == 0:
		return Artifact{}, fail("decode", errNoFrames)
	}
	c.log.Debug().
		Int("frames", frames).
		Str("codec", codec.MIMEType()).
		Dur("took", time.Since(start)).
		Msg("video re-encoded")

	return Artifact{
		Kind:     capture.KindVideo,
		Data:     out.Bytes(),
		MIMEType: codec.ContentType(),
		Filename: c.prefix + "_video" + codec.Extension(),
	}, nil
}

func (c *Compositor) encodeFrames(ctx context.Context, src FrameSource, enc Encoder, sc *scene, mirrored bool) (int, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, c.size, c.size))
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		img, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			return n, fail("decode", fmt.Errorf("frame %d: %w", n, err))
		}
		sc.paint(canvas, img, mirrored, draw.ApproxBiLinear)
		if err := enc.Encode(canvas); err != nil {
			return n, fail("encode", fmt.Errorf("frame %d: %w", n, err))
		}
		n++
	}
}

// openSource returns a frame decoder for v. Motion-JPEG is decoded in
// process; anything else is spooled to a temp file and decoded by ffmpeg,
// in which case the file path is also returned as the audio source.
func (c *Compositor) openSource(ctx context.Context, v capture.Video) (FrameSource, string, error) {
	if IsMJPEG(v.MIMEType) {
		src, err := newMJPEGSource(bytes.NewReader(v.Data), v.MIMEType)
		return src, "", err
	}
	if !FFmpegAvailable() {
		return nil, "", fmt.Errorf("cannot decode %q without ffmpeg", v.MIMEType)
	}
	f, err := os.CreateTemp(c.tmpDir, "booth-source-*")
	if err != nil {
		return nil, "", err
	}
	path := f.Name()
	_, werr := f.Write(v.Data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(path)
		return nil, "", err
	}
	src, err := newFFmpegSource(ctx, path, c.size, c.fps)
	if err != nil {
		_ = os.Remove(path)
		return nil, "", err
	}
	return src, path, nil
}
