package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigurationError marks a startup-time failure (missing credentials,
// unusable paths). It is fatal: the process exits before any prompt.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// Config is the application configuration, loaded from defaults, an
// optional YAML file, and TRADE_-prefixed environment variables.
type Config struct {
	DatasetDir      string `koanf:"dataset_dir"`
	CountryCodes    string `koanf:"country_codes"`  // defaults to <dataset_dir>/country_codes.csv
	ProductCodes    string `koanf:"product_codes"`  // defaults to <dataset_dir>/product_codes.csv
	BulkFilePattern string `koanf:"bulk_file_pattern"`
	OutputDir       string `koanf:"output_dir"`
	CredentialsFile string `koanf:"credentials_file"`
	ArchiveDB       string `koanf:"archive_db"` // empty disables the result archive
	LogLevel        string `koanf:"log_level"`

	Bulk BulkConfig `koanf:"bulk"`
	API  APIConfig  `koanf:"api"`
}

// BulkConfig bounds the coverage span of the local harmonized dataset.
type BulkConfig struct {
	MinYear int `koanf:"min_year"`
	MaxYear int `koanf:"max_year"`
}

type APIConfig struct {
	BaseURL        string `koanf:"base_url"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	MaxRecords     int    `koanf:"max_records"`
}

func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatasetDir) == "" {
		return &ConfigurationError{Field: "dataset_dir", Reason: "is required"}
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return &ConfigurationError{Field: "output_dir", Reason: "is required"}
	}
	if c.Bulk.MinYear <= 0 || c.Bulk.MaxYear < c.Bulk.MinYear {
		return &ConfigurationError{
			Field:  "bulk",
			Reason: fmt.Sprintf("invalid coverage span %d-%d", c.Bulk.MinYear, c.Bulk.MaxYear),
		}
	}
	if c.API.TimeoutSeconds <= 0 {
		return &ConfigurationError{Field: "api.timeout_seconds", Reason: "must be > 0"}
	}
	if c.API.MaxRecords <= 0 {
		return &ConfigurationError{Field: "api.max_records", Reason: "must be > 0"}
	}
	return nil
}

// Load parses config from defaults, an optional YAML file, and the
// environment, then validates it. TRADE_BULK__MIN_YEAR=2000 maps to
// bulk.min_year, matching the double-underscore nesting convention.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"dataset_dir":       "data",
		"country_codes":     "",
		"product_codes":     "",
		"bulk_file_pattern": "BACI_HS92_Y{year}_V202601.csv",
		"output_dir":        "output",
		"credentials_file":  "SUBSCRIPTION_KEY.env",
		"archive_db":        "",
		"log_level":         "info",
		"bulk.min_year":     1995,
		"bulk.max_year":     2024,
		"api.base_url":      "",
		"api.timeout_seconds": 30,
		"api.max_records":     250000,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("TRADE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "TRADE_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.CountryCodes == "" {
		cfg.CountryCodes = cfg.DatasetDir + "/country_codes.csv"
	}
	if cfg.ProductCodes == "" {
		cfg.ProductCodes = cfg.DatasetDir + "/product_codes.csv"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Credentials for the remote trade-statistics API.
type Credentials struct {
	Username     string
	PrimaryKey   string
	SecondaryKey string
}

// LoadCredentials reads the key-value credentials file. PRIMARY_KEY is
// required; USERNAME and SECONDARY_KEY are optional. A missing file or
// missing required key is a ConfigurationError, not a per-query failure.
func LoadCredentials(path string) (Credentials, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return Credentials{}, &ConfigurationError{
			Field:  "credentials_file",
			Reason: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	creds := Credentials{
		Username:     strings.TrimSpace(values["USERNAME"]),
		PrimaryKey:   strings.TrimSpace(values["PRIMARY_KEY"]),
		SecondaryKey: strings.TrimSpace(values["SECONDARY_KEY"]),
	}
	if creds.PrimaryKey == "" {
		return Credentials{}, &ConfigurationError{
			Field:  "PRIMARY_KEY",
			Reason: fmt.Sprintf("not found in %s", path),
		}
	}
	return creds, nil
}
