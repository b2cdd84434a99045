// Package stream pipes a Linux video device through ffmpeg.
//
// The process is started once and not restarted; supervising it is left
// to whatever runs mavbridge.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	goruntime "runtime"
	"strconv"

	"github.com/justapithecus/mavbridge/log"
)

// Defaults.
const (
	DefaultFFmpeg    = "ffmpeg"
	DefaultDevice    = "/dev/video0"
	DefaultSize      = "1280x720"
	DefaultFramerate = 30
	DefaultOutput    = "udp://127.0.0.1:5600?pkt_size=1316"
)

// ErrUnsupportedPlatform is returned on anything but Linux.
var ErrUnsupportedPlatform = errors.New("video streaming is only supported on linux")

// goos is swapped by tests.
var goos = goruntime.GOOS

// Config configures the video pipe.
type Config struct {
	FFmpeg    string
	Device    string
	Size      string
	Framerate int
	Output    string
	// ExtraArgs are inserted before the output URL.
	ExtraArgs []string
}

func (c Config) withDefaults() Config {
	if c.FFmpeg == "" {
		c.FFmpeg = DefaultFFmpeg
	}
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if c.Size == "" {
		c.Size = DefaultSize
	}
	if c.Framerate <= 0 {
		c.Framerate = DefaultFramerate
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	return c
}

// Args returns the ffmpeg argument list: a v4l2 capture encoded as
// low-latency H.264 in MPEG-TS.
func (c Config) Args() []string {
	c = c.withDefaults()
	args := []string{
		"-hide_banner", "-loglevel", "warning",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(c.Framerate),
		"-video_size", c.Size,
		"-i", c.Device,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-f", "mpegts",
	}
	args = append(args, c.ExtraArgs...)
	return append(args, c.Output)
}

// CheckPlatform returns ErrUnsupportedPlatform off Linux.
func CheckPlatform() error {
	if goos != "linux" {
		return fmt.Errorf("%w (running on %s)", ErrUnsupportedPlatform, goos)
	}
	return nil
}

// ExitError reports a non-zero ffmpeg exit.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d", e.Code)
}

// Run starts ffmpeg and waits for it to exit or for ctx to end, which
// kills it. ffmpeg's stderr is forwarded to the logger line by line.
// A cancelled run returns nil.
func Run(ctx context.Context, cfg Config, logger *log.Logger) error {
	if err := CheckPlatform(); err != nil {
		return err
	}
	if logger == nil {
		logger = log.Nop()
	}
	cfg = cfg.withDefaults()

	cmd := exec.CommandContext(ctx, cfg.FFmpeg, cfg.Args()...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cfg.FFmpeg, err)
	}
	logger.Info("video stream started", map[string]any{
		"pid":    cmd.Process.Pid,
		"device": cfg.Device,
		"output": cfg.Output,
	})

	forwardLines(stderr, logger)
	err = cmd.Wait()

	if ctx.Err() != nil {
		logger.Info("video stream stopped", nil)
		return nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("ffmpeg wait failed: %w", err)
	}
	return nil
}

func forwardLines(r io.Reader, logger *log.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		logger.Warn("ffmpeg", map[string]any{"line": sc.Text()})
	}
}
