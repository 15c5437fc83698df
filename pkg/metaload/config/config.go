package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/metaload/internal/util"
	"github.com/cognicore/metaload/pkg/metaload/internalerr"
)

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the full ingest configuration
type Config struct {
	Input       string `yaml:"input"`
	Debug       bool   `yaml:"debug"`
	MetricsAddr string `yaml:"metrics_addr"`

	Store  Store  `yaml:"store"`
	Ingest Ingest `yaml:"ingest"`
	S3     S3     `yaml:"s3"`
}

// Store selects and reaches the storage backend
type Store struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	PingAttempts int    `yaml:"ping_attempts"`
}

// Ingest tunes the pipeline stages
type Ingest struct {
	BatchSize         int    `yaml:"batch_size"`
	CategoryBatchSize int    `yaml:"category_batch_size"`
	DefaultDownloads  int    `yaml:"default_downloads"`
	MergePolicy       string `yaml:"merge_policy"`
	Attempts          int    `yaml:"attempts"`
}

// S3 holds object store settings for s3:// inputs
type S3 struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Store: Store{
			Driver:       DriverSQLite,
			DSN:          "metaload.db",
			PingAttempts: 3,
		},
		Ingest: Ingest{
			BatchSize:         2000,
			CategoryBatchSize: 500,
			MergePolicy:       "name",
			Attempts:          1,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path yields the
// defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv() {
	c.Input = util.GetEnvString("METALOAD_INPUT", c.Input)
	c.Store.DSN = util.GetEnvString("DATABASE_URL", c.Store.DSN)
	c.Store.Driver = util.GetEnvString("METALOAD_DRIVER", c.Store.Driver)
	c.Ingest.BatchSize = util.GetEnvInt("METALOAD_BATCH_SIZE", c.Ingest.BatchSize)
	c.Debug = util.GetEnvBool("DEBUG", c.Debug)

	c.S3.Region = util.GetEnvString("AWS_REGION", c.S3.Region)
	c.S3.Endpoint = util.GetEnvString("AWS_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKey = util.GetEnvString("AWS_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = util.GetEnvString("AWS_SECRET_KEY", c.S3.SecretKey)
}

// Validate checks the configuration before any component is built
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Input) == "" {
		problems = append(problems, "input is required")
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			problems = append(problems, fmt.Sprintf("store.dsn is required for driver %q", c.Store.Driver))
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Ingest.BatchSize <= 0 {
		problems = append(problems, "ingest.batch_size must be positive")
	}
	if c.Ingest.CategoryBatchSize <= 0 {
		problems = append(problems, "ingest.category_batch_size must be positive")
	}
	if c.Ingest.DefaultDownloads < 0 {
		problems = append(problems, "ingest.default_downloads must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Ingest.MergePolicy)) {
	case "", "name", "external-id":
	default:
		problems = append(problems, fmt.Sprintf("unknown ingest.merge_policy %q", c.Ingest.MergePolicy))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", internalerr.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
