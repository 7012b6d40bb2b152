package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	CacheDir   string `toml:"cache_dir"`
	LogDir     string `toml:"log_dir"`
}

// Gateway contains the worker-facing RPC surface configuration. Workers hold
// no database credentials; the bearer token is the only credential they carry.
type Gateway struct {
	Bind          string `toml:"bind"`
	Token         string `toml:"token"`
	WorkerBaseURL string `toml:"worker_base_url"`
}

// Scheduler contains due-task scanner timing.
type Scheduler struct {
	ScanInterval      int  `toml:"scan_interval"`
	PreferAccelerated bool `toml:"prefer_accelerated"`
}

// Queues names the execution pools. The housekeeping queue is reserved for
// maintenance work and is never a dispatch target for run jobs.
type Queues struct {
	Accelerated    string `toml:"accelerated"`
	Standard       string `toml:"standard"`
	Housekeeping   string `toml:"housekeeping"`
	Default        string `toml:"default"`
	ResolveTimeout int    `toml:"resolve_timeout"`
	WorkerTTL      int    `toml:"worker_ttl"`
}

// Acquire contains acquisition polling and local cache settings.
type Acquire struct {
	PollInterval     int    `toml:"poll_interval"`
	PollTimeout      int    `toml:"poll_timeout"`
	CacheTTLHours    int    `toml:"cache_ttl_hours"`
	DownloaderBinary string `toml:"downloader_binary"`
	DownloadTimeout  int    `toml:"download_timeout"`
}

// Encode contains the media encode/probe utility settings.
type Encode struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	EncodeTimeout int    `toml:"encode_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Runs           bool   `toml:"runs"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipforge.
//
// Configuration sections by subsystem:
//   - Paths: data, staging, cache, and log directories
//   - Gateway: worker RPC bind address, shared bearer token, worker base URL
//   - Scheduler: due-task scan interval and queue preference
//   - Queues: execution pool names and resolver timing
//   - Acquire: acquisition poll budget and local clip cache
//   - Encode: external encode/probe utility binaries
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Gateway       Gateway       `toml:"gateway"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Queues        Queues        `toml:"queues"`
	Acquire       Acquire       `toml:"acquire"`
	Encode        Encode        `toml:"encode"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized, and secrets overridden from the
// environment where present.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/clipforge/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// applyEnvOverrides lets deployments inject credentials without writing them
// to the config file.
func (c *Config) applyEnvOverrides() {
	if token, ok := os.LookupEnv("CLIPFORGE_API_TOKEN"); ok && strings.TrimSpace(token) != "" {
		c.Gateway.Token = strings.TrimSpace(token)
	}
	if bind, ok := os.LookupEnv("CLIPFORGE_API_BIND"); ok && strings.TrimSpace(bind) != "" {
		c.Gateway.Bind = strings.TrimSpace(bind)
	}
	if base, ok := os.LookupEnv("CLIPFORGE_WORKER_BASE_URL"); ok && strings.TrimSpace(base) != "" {
		c.Gateway.WorkerBaseURL = strings.TrimSpace(base)
	}
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.CacheDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "clipforge.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
