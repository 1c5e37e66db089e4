// Package config provides configuration management for influxvault.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything a run needs to reach InfluxDB, AWS, and local disk.
type Config struct {
	// InfluxDB connection.
	InfluxURL    string `yaml:"influx_url"`
	InfluxOrg    string `yaml:"influx_org"`
	InfluxNewOrg string `yaml:"influx_new_org"` // destination org for snapshot restores
	InfluxBinary string `yaml:"influx_binary"`

	// TokenSecretID is the Secrets Manager identifier holding the InfluxDB token.
	TokenSecretID string `yaml:"token_secret_id"`

	// Object storage.
	S3Bucket  string `yaml:"s3_bucket"`
	AWSRegion string `yaml:"aws_region"`

	// BucketConfigJSON is an optional serialized []BucketConfig overriding the
	// built-in default bucket list.
	BucketConfigJSON string `yaml:"bucket_config"`

	// TempDir is where extraction output and snapshot files are staged.
	TempDir string `yaml:"temp_dir"`

	// Server / scheduler modes.
	ListenAddr      string `yaml:"listen_addr"`
	DailySchedule   string `yaml:"daily_schedule"`
	MonthlySchedule string `yaml:"monthly_schedule"`
}

// Timeout budgets for external tool invocations.
const (
	// IncrementalTimeout bounds a single query or write invocation.
	IncrementalTimeout = 5 * time.Minute
	// SnapshotTimeout bounds a whole-bucket backup or restore invocation.
	SnapshotTimeout = 10 * time.Minute
)

// Load reads configuration from environment variables.
func Load() Config {
	cfg := Config{
		InfluxURL:        os.Getenv("INFLUXDB_URL"),
		InfluxOrg:        os.Getenv("INFLUXDB_ORG"),
		InfluxNewOrg:     os.Getenv("INFLUXDB_NEW_ORG"),
		InfluxBinary:     os.Getenv("INFLUX_BINARY"),
		TokenSecretID:    os.Getenv("INFLUXDB_TOKEN"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		AWSRegion:        os.Getenv("AWS_REGION"),
		BucketConfigJSON: os.Getenv("INFLUXDB_BUCKET_CONFIG"),
		TempDir:          os.Getenv("INFLUXVAULT_TEMP_DIR"),
		ListenAddr:       os.Getenv("INFLUXVAULT_LISTEN_ADDR"),
		DailySchedule:    os.Getenv("INFLUXVAULT_DAILY_SCHEDULE"),
		MonthlySchedule:  os.Getenv("INFLUXVAULT_MONTHLY_SCHEDULE"),
	}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads configuration from a YAML file, then overlays any
// environment variables that are set. Environment wins over file values.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg.overlay(Load())
	cfg.applyDefaults()
	return cfg, nil
}

// overlay replaces fields of c with non-empty fields of other.
func (c *Config) overlay(other Config) {
	setIf(&c.InfluxURL, other.InfluxURL)
	setIf(&c.InfluxOrg, other.InfluxOrg)
	setIf(&c.InfluxNewOrg, other.InfluxNewOrg)
	setIf(&c.InfluxBinary, other.InfluxBinary)
	setIf(&c.TokenSecretID, other.TokenSecretID)
	setIf(&c.S3Bucket, other.S3Bucket)
	setIf(&c.AWSRegion, other.AWSRegion)
	setIf(&c.BucketConfigJSON, other.BucketConfigJSON)
	setIf(&c.TempDir, other.TempDir)
	setIf(&c.ListenAddr, other.ListenAddr)
	setIf(&c.DailySchedule, other.DailySchedule)
	setIf(&c.MonthlySchedule, other.MonthlySchedule)
}

func setIf(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func (c *Config) applyDefaults() {
	if c.InfluxBinary == "" {
		c.InfluxBinary = "influx"
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.DailySchedule == "" {
		c.DailySchedule = "0 2 * * *"
	}
	if c.MonthlySchedule == "" {
		c.MonthlySchedule = "0 3 1 * *"
	}
}

// Validate checks that the settings every operation depends on are present.
// A missing setting is fatal before any bucket is processed.
func (c *Config) Validate() error {
	var missing []string
	if c.InfluxURL == "" {
		missing = append(missing, "INFLUXDB_URL")
	}
	if c.TokenSecretID == "" {
		missing = append(missing, "INFLUXDB_TOKEN")
	}
	if c.InfluxOrg == "" {
		missing = append(missing, "INFLUXDB_ORG")
	}
	if c.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	return nil
}
