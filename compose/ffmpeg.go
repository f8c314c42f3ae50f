package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ffmpegBinary resolves the ffmpeg executable once.
var ffmpegBinary = sync.OnceValue(func() string {
	p, err := exec.LookPath("ffmpeg")
	if err != nil {
		return ""
	}
	return p
})

// FFmpegAvailable reports whether an ffmpeg binary is on PATH.
func FFmpegAvailable() bool { return ffmpegBinary() != "" }

type ffmpegCodec struct {
	mime    string
	content string
	ext     string
	args    []string
}

// FFmpegVP9 encodes WebM/VP9 with the ffmpeg binary.
func FFmpegVP9() Codec {
	return ffmpegCodec{
		mime:    "video/webm;codecs=vp9",
		content: "video/webm",
		ext:     ".webm",
		args:    []string{"-c:v", "libvpx-vp9", "-b:v", "10M", "-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1"},
	}
}

// FFmpegVP8 encodes WebM/VP8 with the ffmpeg binary.
func FFmpegVP8() Codec {
	return ffmpegCodec{
		mime:    "video/webm",
		content: "video/webm",
		ext:     ".webm",
		args:    []string{"-c:v", "libvpx", "-b:v", "8M", "-deadline", "realtime", "-cpu-used", "8"},
	}
}

func (c ffmpegCodec) MIMEType() string    { return c.mime }
func (c ffmpegCodec) ContentType() string { return c.content }
func (c ffmpegCodec) Extension() string   { return c.ext }
func (c ffmpegCodec) Available() bool     { return FFmpegAvailable() }

func (c ffmpegCodec) NewEncoder(ctx context.Context, w io.Writer, opts EncodeOptions) (Encoder, error) {
	bin := ffmpegBinary()
	if bin == "" {
		return nil, errors.New("ffmpeg not found")
	}
	cmd := exec.CommandContext(ctx, bin, encodeArgs(opts, c.args)...)
	cmd.Stdout = w
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &ffmpegEncoder{cmd: cmd, stdin: stdin, stderr: &stderr}, nil
}

// encodeArgs reads raw RGBA frames from stdin and writes WebM to stdout.
// Audio is mapped optionally ("1:a:0?") so a source without an audio track
// still encodes.
func encodeArgs(opts EncodeOptions, codecArgs []string) []string {
	size := fmt.Sprintf("%dx%d", opts.Size, opts.Size)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgba", "-s", size, "-r", strconv.Itoa(opts.FPS), "-i", "pipe:0",
	}
	if opts.AudioFrom != "" {
		args = append(args, "-i", opts.AudioFrom, "-map", "0:v:0", "-map", "1:a:0?", "-c:a", "libopus", "-shortest")
	}
	args = append(args, codecArgs...)
	return append(args, "-pix_fmt", "yuv420p", "-f", "webm", "pipe:1")
}

type ffmpegEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	done   bool
}

func (e *ffmpegEncoder) Encode(frame *image.RGBA) error {
	if _, err := e.stdin.Write(frame.Pix); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (e *ffmpegEncoder) Close() error {
	if e.done {
		return nil
	}
	e.done = true
	_ = e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w%s", err, stderrSuffix(e.stderr))
	}
	return nil
}

// ffmpegSource decodes any container ffmpeg understands into square
// size×size RGBA frames at a fixed rate.
type ffmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	frame  *image.RGBA
	path   string
}

func newFFmpegSource(ctx context.Context, path string, size, fps int) (*ffmpegSource, error) {
	bin := ffmpegBinary()
	if bin == "" {
		return nil, errors.New("ffmpeg not found")
	}
	vf := fmt.Sprintf("crop='min(iw,ih)':'min(iw,ih)',scale=%d:%d,fps=%d", size, size, fps)
	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-i", path, "-an", "-vf", vf,
		"-f", "rawvideo", "-pix_fmt", "rgba", "pipe:1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &ffmpegSource{
		cmd:    cmd,
		stdout: stdout,
		stderr: &stderr,
		frame:  image.NewRGBA(image.Rect(0, 0, size, size)),
		path:   path,
	}, nil
}

// Next returns the decoder's frame buffer, which is overwritten by the
// following call.
func (s *ffmpegSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, err := io.ReadFull(s.stdout, s.frame.Pix)
	switch {
	case err == nil:
		return s.frame, nil
	case errors.Is(err, io.EOF):
		if werr := s.cmd.Wait(); werr != nil {
			return nil, fmt.Errorf("ffmpeg: %w%s", werr, stderrSuffix(s.stderr))
		}
		s.cmd = nil
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("read frame: %w", err)
	}
}

func (s *ffmpegSource) Close() error {
	if s.cmd != nil {
		_ = s.stdout.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
		s.cmd = nil
	}
	return os.Remove(s.path)
}

func stderrSuffix(b *bytes.Buffer) string {
	msg := strings.TrimSpace(b.String())
	if msg == "" {
		return ""
	}
	return ": " + msg
}
