package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Endpoint holds the connection details for one CKAN instance.
type Endpoint struct {
	URL    string
	APIKey string
}

// Tunables holds the behavioral knobs, all optional with working defaults.
type Tunables struct {
	// StagingDir is the local cache root for fetched metadata and files.
	StagingDir string `env:"MIGRATE_STAGING_DIR" envDefault:"ckan_migration" json:"staging_dir"`

	// MappingFile is the persistent source-to-target identity mapping.
	MappingFile string `env:"MIGRATE_MAPPING_FILE" envDefault:"migration_mapping.json" json:"mapping_file"`

	// LogFile receives a copy of everything written to stdout.
	LogFile string `env:"MIGRATE_LOG_FILE" envDefault:"migration.log" json:"log_file"`

	// PageSize bounds dataset listing pages on the source.
	PageSize int `env:"MIGRATE_PAGE_SIZE" envDefault:"100" json:"page_size"`

	// RetryAttempts is the per-request attempt budget for transient failures.
	RetryAttempts int `env:"MIGRATE_RETRY_ATTEMPTS" envDefault:"3" json:"retry_attempts"`

	// RetryDelay is the first backoff delay; it doubles per attempt.
	RetryDelay time.Duration `env:"MIGRATE_RETRY_DELAY" envDefault:"1s" json:"retry_delay"`

	// HTTPTimeout caps each individual request.
	HTTPTimeout time.Duration `env:"MIGRATE_HTTP_TIMEOUT" envDefault:"30s" json:"http_timeout"`

	// ThrottleInterval paces entity processing against both instances.
	ThrottleInterval time.Duration `env:"MIGRATE_THROTTLE_INTERVAL" envDefault:"1s" json:"throttle_interval"`
}

// Config is the full runtime configuration: connection details from the
// JSON config file, tunables from the environment.
type Config struct {
	Source   Endpoint
	Target   Endpoint
	Tunables Tunables
}

// fileConfig mirrors the JSON config file's historical layout.
type fileConfig struct {
	SourceURL    string `json:"source_url"`
	SourceAPIKey string `json:"source_api_key"`
	TargetURL    string `json:"target_url"`
	TargetAPIKey string `json:"target_api_key"`
}

// Load reads the JSON config file at path and overlays the environment
// tunables. All four connection keys are required.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	var missing []string
	for key, value := range map[string]string{
		"source_url":     fc.SourceURL,
		"source_api_key": fc.SourceAPIKey,
		"target_url":     fc.TargetURL,
		"target_api_key": fc.TargetAPIKey,
	} {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("config file %s is missing required keys: %s", path, strings.Join(missing, ", "))
	}

	cfg := &Config{
		Source: Endpoint{URL: strings.TrimRight(fc.SourceURL, "/"), APIKey: fc.SourceAPIKey},
		Target: Endpoint{URL: strings.TrimRight(fc.TargetURL, "/"), APIKey: fc.TargetAPIKey},
	}
	if err := env.Parse(&cfg.Tunables); err != nil {
		return nil, fmt.Errorf("load tunables from environment: %w", err)
	}
	return cfg, nil
}

// ExampleFile is a ready-to-edit config file body, printed when the
// configured path does not exist yet.
func ExampleFile() string {
	example := fileConfig{
		SourceURL:    "http://source-ckan-url",
		SourceAPIKey: "source-api-key",
		TargetURL:    "http://target-ckan-url",
		TargetAPIKey: "target-api-key",
	}
	data, _ := json.MarshalIndent(example, "", "  ")
	return string(data)
}
