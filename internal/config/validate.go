package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueues(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueues() error {
	if c.Queues.Accelerated == c.Queues.Standard {
		return errors.New("queues.accelerated and queues.standard must differ")
	}
	if c.Queues.Housekeeping == c.Queues.Accelerated || c.Queues.Housekeeping == c.Queues.Standard {
		return errors.New("queues.housekeeping must not reuse an execution queue name")
	}
	if c.Queues.Default == c.Queues.Housekeeping {
		return errors.New("queues.default must not be the housekeeping queue")
	}
	if c.Queues.Default != c.Queues.Accelerated && c.Queues.Default != c.Queues.Standard {
		return fmt.Errorf("queues.default %q must name one of the execution queues", c.Queues.Default)
	}
	return nil
}

func (c *Config) validateTimings() error {
	return ensurePositiveMap(map[string]int{
		"scheduler.scan_interval":       c.Scheduler.ScanInterval,
		"queues.resolve_timeout":        c.Queues.ResolveTimeout,
		"queues.worker_ttl":             c.Queues.WorkerTTL,
		"acquire.poll_interval":         c.Acquire.PollInterval,
		"acquire.poll_timeout":          c.Acquire.PollTimeout,
		"acquire.cache_ttl_hours":       c.Acquire.CacheTTLHours,
		"acquire.download_timeout":      c.Acquire.DownloadTimeout,
		"encode.encode_timeout":         c.Encode.EncodeTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be greater than zero", key)
		}
	}
	return nil
}
