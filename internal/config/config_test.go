package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipforge/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatalf("expected missing config file, got exists=true for %s", resolved)
	}
	if cfg.Queues.Standard != "standard" || cfg.Queues.Default != "standard" {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queues)
	}
	if cfg.Scheduler.ScanInterval != 60 {
		t.Fatalf("unexpected scan interval: %d", cfg.Scheduler.ScanInterval)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
staging_dir = "` + filepath.Join(dir, "staging") + `"
cache_dir = "` + filepath.Join(dir, "cache") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[gateway]
worker_base_url = "http://10.0.0.5:7519/"

[queues]
accelerated = " GPU "
standard = "cpu"
default = "gpu"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Queues.Accelerated != "gpu" {
		t.Fatalf("queue name not normalized: %q", cfg.Queues.Accelerated)
	}
	if strings.HasSuffix(cfg.Gateway.WorkerBaseURL, "/") {
		t.Fatalf("worker base url should have trailing slash stripped: %q", cfg.Gateway.WorkerBaseURL)
	}
}

func TestValidateRejectsHousekeepingDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Queues.Default = cfg.Queues.Housekeeping
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for housekeeping default queue")
	}
}

func TestValidateRejectsDuplicateQueueNames(t *testing.T) {
	cfg := config.Default()
	cfg.Queues.Accelerated = cfg.Queues.Standard
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for duplicate queue names")
	}
}

func TestEnvTokenOverride(t *testing.T) {
	t.Setenv("CLIPFORGE_API_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[gateway]\ntoken = \"from-file\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Token != "from-env" {
		t.Fatalf("expected env token to win, got %q", cfg.Gateway.Token)
	}
}
