// Package downloader wraps the external clip download utility. The binary is
// configurable; by default it speaks the yt-dlp command surface.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"clipforge/internal/quota"
	"clipforge/internal/services"
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

// Client wraps the download utility CLI.
type Client struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

// New constructs a downloader client.
func New(binary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("downloader binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    services.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Download fetches the source URL to destPath. A byteCeiling other than
// quota.Unlimited is passed to the utility as a hard file-size limit.
func (c *Client) Download(ctx context.Context, sourceURL string, byteCeiling int64, destPath string) (string, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return "", errors.New("source url required")
	}
	if strings.TrimSpace(destPath) == "" {
		return "", errors.New("destination path required")
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{
		"--no-progress",
		"--no-playlist",
		"-f", "mp4/best",
		"-o", destPath,
	}
	if byteCeiling != quota.Unlimited && byteCeiling > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(byteCeiling, 10))
	}
	args = append(args, sourceURL)

	if err := c.exec.Run(runCtx, c.binary, args, nil); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "downloader", "download", sourceURL, err)
	}
	if _, err := os.Stat(destPath); err != nil {
		return "", fmt.Errorf("downloaded file missing: %w", err)
	}
	return destPath, nil
}
