package fingerprint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FrameSampler pulls a bounded set of frames out of a video file.
type FrameSampler interface {
	Frames(ctx context.Context, videoPath string) ([]image.Image, error)
}

// Sampling defaults.
const (
	DefaultFrameInterval = 5 * time.Second
	DefaultMaxFrames     = 100
	// sampleSide is the square size ffmpeg scales frames to. PHash reduces
	// it further.
	sampleSide = 64
	stderrCap  = 4 << 10
)

// FFmpegSampler decodes frames by piping raw grayscale video out of ffmpeg.
type FFmpegSampler struct {
	Binary    string
	Interval  time.Duration
	MaxFrames int
}

// NewFFmpegSampler returns a sampler using binary, taking one frame per
// interval up to maxFrames. Zero values select the defaults.
func NewFFmpegSampler(binary string, interval time.Duration, maxFrames int) *FFmpegSampler {
	if binary == "" {
		binary = "ffmpeg"
	}
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	return &FFmpegSampler{Binary: binary, Interval: interval, MaxFrames: maxFrames}
}

func (s *FFmpegSampler) args(videoPath string) []string {
	filter := fmt.Sprintf("fps=1/%s,scale=%d:%d:flags=area,format=gray",
		strconv.FormatFloat(s.Interval.Seconds(), 'f', -1, 64), sampleSide, sampleSide)
	return []string{
		"-nostdin", "-v", "error",
		"-i", videoPath,
		"-vf", filter,
		"-frames:v", strconv.Itoa(s.MaxFrames),
		"-f", "rawvideo", "-pix_fmt", "gray",
		"-",
	}
}

// Frames runs ffmpeg and collects up to MaxFrames grayscale frames. A
// decoder failure after some frames were read still returns those frames.
func (s *FFmpegSampler) Frames(ctx context.Context, videoPath string) ([]image.Image, error) {
	bin, err := exec.LookPath(s.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFFmpegUnavailable, err)
	}
	cmd := exec.CommandContext(ctx, bin, s.args(videoPath)...) //nolint:gosec // fixed argument list
	stderr := &cappedBuffer{max: stderrCap}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	var frames []image.Image
	frameSize := sampleSide * sampleSide
	for len(frames) < s.MaxFrames {
		img := image.NewGray(image.Rect(0, 0, sampleSide, sampleSide))
		if _, rerr := io.ReadFull(stdout, img.Pix[:frameSize]); rerr != nil {
			break
		}
		frames = append(frames, img)
	}
	_, _ = io.Copy(io.Discard, stdout)
	werr := cmd.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		if werr != nil {
			msg := strings.TrimSpace(strings.ReplaceAll(stderr.String(), videoPath, filepath.Base(videoPath)))
			return nil, fmt.Errorf("%w: ffmpeg: %s", ErrNoFrames, firstLine(msg, werr))
		}
		return nil, ErrNoFrames
	}
	return frames, nil
}

func firstLine(msg string, fallback error) string {
	if msg == "" {
		var ee *exec.ExitError
		if errors.As(fallback, &ee) {
			return ee.String()
		}
		return fallback.Error()
	}
	line, _, _ := strings.Cut(msg, "\n")
	return line
}

// cappedBuffer keeps the first max bytes written to it.
type cappedBuffer struct {
	bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
