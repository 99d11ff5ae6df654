package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort               = 8080
	defaultDownloadRoot       = "storage/downloads"
	defaultGlobalMaxDownloads = 8
	defaultPerJobDownloads    = 3
	defaultIdleTTL            = 3 * time.Hour
	defaultSweepInterval      = 5 * time.Minute
	defaultFetchTimeout       = 10 * time.Minute
)

// Duration lets YAML carry "3h"-style values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration value: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config describes runtime configuration for the service.
type Config struct {
	Port               int      `yaml:"port"`
	DownloadRoot       string   `yaml:"download_root"`
	GlobalMaxDownloads int      `yaml:"global_max_downloads"`
	PerJobDownloads    int      `yaml:"per_job_downloads"`
	IdleTTL            Duration `yaml:"idle_ttl"`
	SweepInterval      Duration `yaml:"sweep_interval"`
	FetchTimeout       Duration `yaml:"fetch_timeout"`
}

// Default returns sane defaults for a single-process deployment.
func Default() Config {
	return Config{
		Port:               defaultPort,
		DownloadRoot:       defaultDownloadRoot,
		GlobalMaxDownloads: defaultGlobalMaxDownloads,
		PerJobDownloads:    defaultPerJobDownloads,
		IdleTTL:            Duration(defaultIdleTTL),
		SweepInterval:      Duration(defaultSweepInterval),
		FetchTimeout:       Duration(defaultFetchTimeout),
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	// basic normalization
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DownloadRoot == "" {
		cfg.DownloadRoot = defaultDownloadRoot
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = Duration(defaultIdleTTL)
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = Duration(defaultSweepInterval)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = Duration(defaultFetchTimeout)
	}
	// validate concurrency explicitly: values < 1 are not allowed
	if cfg.GlobalMaxDownloads < 1 {
		return cfg, fmt.Errorf("invalid global_max_downloads: %d (must be >= 1)", cfg.GlobalMaxDownloads)
	}
	if cfg.PerJobDownloads < 1 {
		return cfg, fmt.Errorf("invalid per_job_downloads: %d (must be >= 1)", cfg.PerJobDownloads)
	}
	if cfg.PerJobDownloads > cfg.GlobalMaxDownloads {
		cfg.PerJobDownloads = cfg.GlobalMaxDownloads
	}
	return cfg, nil
}
