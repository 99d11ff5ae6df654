package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := Default()
	if cfg != def {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	data := []byte("port: 9090\ndownload_root: /tmp/dl\nglobal_max_downloads: 4\nper_job_downloads: 2\nidle_ttl: 1h\nsweep_interval: 30s\nfetch_timeout: 5m\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DownloadRoot != "/tmp/dl" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.GlobalMaxDownloads != 4 || cfg.PerJobDownloads != 2 {
		t.Fatalf("unexpected concurrency config: %+v", cfg)
	}
	if cfg.IdleTTL.Std() != time.Hour || cfg.SweepInterval.Std() != 30*time.Second || cfg.FetchTimeout.Std() != 5*time.Minute {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
}

func TestLoadRejectsInvalidConcurrency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte("global_max_downloads: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for zero global_max_downloads")
	}
}

func TestLoadClampsPerJobToGlobal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte("global_max_downloads: 2\nper_job_downloads: 9\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PerJobDownloads != 2 {
		t.Fatalf("expected per_job clamped to 2, got %d", cfg.PerJobDownloads)
	}
}
