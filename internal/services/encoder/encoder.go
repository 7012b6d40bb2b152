// Package encoder wraps the external media encode and probe utilities
// (ffmpeg and ffprobe) behind a small client.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"clipforge/internal/services"
	"clipforge/internal/store"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps ffmpeg and ffprobe invocations.
type Client struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
	exec    Executor
}

// New constructs an encoder client.
func New(ffmpegBinary, ffprobeBinary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	ffmpegBinary = strings.TrimSpace(ffmpegBinary)
	ffprobeBinary = strings.TrimSpace(ffprobeBinary)
	if ffmpegBinary == "" || ffprobeBinary == "" {
		return nil, errors.New("ffmpeg and ffprobe binaries required")
	}
	client := &Client{
		ffmpeg:  ffmpegBinary,
		ffprobe: ffprobeBinary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    services.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Concat stitches the input files into one compilation at destPath using the
// given output settings.
func (c *Client) Concat(ctx context.Context, inputs []string, settings store.OutputSettings, destPath string) (string, error) {
	if len(inputs) == 0 {
		return "", errors.New("no input files")
	}
	if strings.TrimSpace(destPath) == "" {
		return "", errors.New("destination path required")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	listPath, err := writeConcatList(inputs)
	if err != nil {
		return "", err
	}
	defer os.Remove(listPath)

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,fps=%d",
			settings.Width, settings.Height, settings.Width, settings.Height, settings.FPS),
		"-c:v", "libx264",
		"-c:a", "aac",
		destPath,
	}
	if err := c.exec.Run(runCtx, c.ffmpeg, args, nil); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "encoder", "concat", destPath, err)
	}
	if _, err := os.Stat(destPath); err != nil {
		return "", fmt.Errorf("encoded file missing: %w", err)
	}
	return destPath, nil
}

// Duration probes the duration of a local media file in seconds.
func (c *Client) Duration(ctx context.Context, path string) (float64, error) {
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	var lines []string
	err := c.exec.Run(runCtx, c.ffprobe, args, func(line string) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	})
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "encoder", "probe", path, err)
	}
	if len(lines) == 0 {
		return 0, fmt.Errorf("probe produced no duration for %s", path)
	}
	duration, err := strconv.ParseFloat(lines[len(lines)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", lines[len(lines)-1], err)
	}
	return duration, nil
}

// writeConcatList produces the ffmpeg concat demuxer list file.
func writeConcatList(inputs []string) (string, error) {
	file, err := os.CreateTemp("", "clipforge-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	for _, input := range inputs {
		escaped := strings.ReplaceAll(input, "'", `'\''`)
		if _, err := fmt.Fprintf(file, "file '%s'\n", escaped); err != nil {
			file.Close()
			os.Remove(file.Name())
			return "", fmt.Errorf("write concat list: %w", err)
		}
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("close concat list: %w", err)
	}
	return file.Name(), nil
}
