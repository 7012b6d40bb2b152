package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGateway()
	c.normalizeQueues()
	c.normalizeBinaries()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGateway() {
	c.Gateway.Bind = strings.TrimSpace(c.Gateway.Bind)
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = defaultGatewayBind
	}
	c.Gateway.Token = strings.TrimSpace(c.Gateway.Token)
	c.Gateway.WorkerBaseURL = strings.TrimRight(strings.TrimSpace(c.Gateway.WorkerBaseURL), "/")
	if c.Gateway.WorkerBaseURL == "" {
		c.Gateway.WorkerBaseURL = defaultWorkerBaseURL
	}
}

func (c *Config) normalizeQueues() {
	c.Queues.Accelerated = strings.ToLower(strings.TrimSpace(c.Queues.Accelerated))
	if c.Queues.Accelerated == "" {
		c.Queues.Accelerated = defaultQueueAccelerated
	}
	c.Queues.Standard = strings.ToLower(strings.TrimSpace(c.Queues.Standard))
	if c.Queues.Standard == "" {
		c.Queues.Standard = defaultQueueStandard
	}
	c.Queues.Housekeeping = strings.ToLower(strings.TrimSpace(c.Queues.Housekeeping))
	if c.Queues.Housekeeping == "" {
		c.Queues.Housekeeping = defaultQueueHousekeep
	}
	c.Queues.Default = strings.ToLower(strings.TrimSpace(c.Queues.Default))
	if c.Queues.Default == "" {
		c.Queues.Default = c.Queues.Standard
	}
}

func (c *Config) normalizeBinaries() {
	c.Acquire.DownloaderBinary = strings.TrimSpace(c.Acquire.DownloaderBinary)
	if c.Acquire.DownloaderBinary == "" {
		c.Acquire.DownloaderBinary = defaultDownloaderBinary
	}
	c.Encode.FFmpegBinary = strings.TrimSpace(c.Encode.FFmpegBinary)
	if c.Encode.FFmpegBinary == "" {
		c.Encode.FFmpegBinary = defaultFFmpegBinary
	}
	c.Encode.FFprobeBinary = strings.TrimSpace(c.Encode.FFprobeBinary)
	if c.Encode.FFprobeBinary == "" {
		c.Encode.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
