package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server   ServerConfig
	API      APIConfig
	Sink     SinkConfig
	Storage  StorageConfig
	Fetch    FetchConfig
	Schedule ScheduleConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type APIConfig struct {
	BaseURL        string
	OrganisationID string
	PageLimit      int
	PageDelay      string
	Timeout        string
}

type SinkConfig struct {
	WorkbookPath string
}

type StorageConfig struct {
	DataDir string
}

type FetchConfig struct {
	// DefaultFrom is the watermark used when no run has ever completed.
	DefaultFrom string
	// ToOverride pins the fetch window's upper bound; empty means "now".
	ToOverride string
	// ValueEpsilon is the tolerance when comparing a tender value against
	// the sum of its lot values.
	ValueEpsilon float64
}

type ScheduleConfig struct {
	Enabled  bool
	Interval string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		API: APIConfig{
			BaseURL:   "https://www.find-tender.service.gov.uk/api/1.0",
			PageLimit: 100,
			PageDelay: "500ms",
			Timeout:   "30s",
		},
		Sink: SinkConfig{
			WorkbookPath: filepath.Join(dataDir, "notices.xlsx"),
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Fetch: FetchConfig{
			DefaultFrom:  "2025-01-01T00:00:00Z",
			ValueEpsilon: 0.01,
		},
		Schedule: ScheduleConfig{
			Enabled:  false,
			Interval: "24h",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/tendersync/config.json, then applies TENDERSYNC_*
// environment overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.API.OrganisationID == "" {
		return Config{}, fmt.Errorf("missing required config: buyer organisation id. " +
			"Set it via environment variable TENDERSYNC_API_ORGANISATION_ID " +
			"or `tendersync config set api.organisation_id <PPON>`")
	}

	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "tendersync-data"
		}
	}
	return filepath.Join(dir, "tendersync")
}
