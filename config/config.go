// Package config loads the refresher configuration from a YAML file, falling
// back to environment variables when no file is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks a configuration problem that must abort the run
// before any network call is made.
var ErrConfiguration = errors.New("configuration error")

// Config is the full application configuration.
type Config struct {
	Catalog struct {
		ServerURL   string `yaml:"server_url"`
		SiteID      string `yaml:"site_id"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TokenID     string `yaml:"access_token_id"`
		TokenSecret string `yaml:"access_token_secret"`
	} `yaml:"catalog"`

	Places struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"` // empty = production endpoint
	} `yaml:"places"`

	Target struct {
		ProjectName    string `yaml:"project_name"`
		DatasourceName string `yaml:"datasource_name"`
		TableName      string `yaml:"table_name"`
	} `yaml:"target"`

	Paths struct {
		DataDir     string `yaml:"data_dir"`
		StagingDir  string `yaml:"staging_dir"`
		AuditDir    string `yaml:"audit_dir"`
		LogDir      string `yaml:"log_dir"`
		ExtractFile string `yaml:"extract_file"`
		AuditFile   string `yaml:"audit_file"`
	} `yaml:"paths"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Email struct {
		Enabled    bool     `yaml:"enabled"`
		SMTPHost   string   `yaml:"smtp_host"`
		SMTPPort   int      `yaml:"smtp_port"`
		Sender     string   `yaml:"sender"`
		Recipients []string `yaml:"recipients"`
	} `yaml:"email"`
}

// Load reads the configuration file at path. A missing file is not fatal:
// the configuration is then assembled from environment variables, matching
// the behavior of running in a container with no config volume.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		cfg := fromEnv()
		cfg.ApplyDefaults()
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

func fromEnv() *Config {
	var cfg Config
	cfg.Catalog.ServerURL = os.Getenv("CATALOG_SERVER_URL")
	cfg.Catalog.SiteID = os.Getenv("CATALOG_SITE_ID")
	cfg.Catalog.Username = os.Getenv("CATALOG_USERNAME")
	cfg.Catalog.Password = os.Getenv("CATALOG_PASSWORD")
	cfg.Catalog.TokenID = os.Getenv("CATALOG_ACCESS_TOKEN_ID")
	cfg.Catalog.TokenSecret = os.Getenv("CATALOG_ACCESS_TOKEN_SECRET")
	cfg.Places.APIKey = os.Getenv("PLACES_API_KEY")
	cfg.Places.BaseURL = os.Getenv("PLACES_BASE_URL")
	cfg.Target.ProjectName = os.Getenv("TARGET_PROJECT_NAME")
	cfg.Target.DatasourceName = os.Getenv("TARGET_DATASOURCE_NAME")
	cfg.Logging.Level = os.Getenv("LOGGING_LEVEL")
	cfg.Server.ListenAddr = os.Getenv("SERVER_LISTEN_ADDR")
	cfg.Email.SMTPHost = os.Getenv("SMTP_HOST")
	if port, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = port
	}
	cfg.Email.Sender = os.Getenv("SMTP_SENDER")
	return &cfg
}

// ApplyDefaults fills in default values for optional fields.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Target.TableName == "" {
		c.Target.TableName = "google_places"
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}
	if c.Paths.StagingDir == "" {
		c.Paths.StagingDir = "data/staging"
	}
	if c.Paths.AuditDir == "" {
		c.Paths.AuditDir = "data/audit"
	}
	if c.Paths.LogDir == "" {
		c.Paths.LogDir = "logs"
	}
	if c.Paths.ExtractFile == "" {
		c.Paths.ExtractFile = "GooglePlacesData.duckdb"
	}
	if c.Paths.AuditFile == "" {
		c.Paths.AuditFile = "ApplicationAudit.duckdb"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 25
	}
}

// Validate checks that the configuration can carry a run: a server URL and
// one complete credential pair are required before anything touches the
// network. Failures wrap ErrConfiguration and are fatal, no retry.
func (c *Config) Validate() error {
	if c.Catalog.ServerURL == "" {
		return fmt.Errorf("%w: catalog.server_url is required", ErrConfiguration)
	}

	userPair := c.Catalog.Username != "" && c.Catalog.Password != ""
	tokenPair := c.Catalog.TokenID != "" && c.Catalog.TokenSecret != ""
	if !userPair && !tokenPair {
		return fmt.Errorf("%w: a complete credential pair is required (username/password or access token id/secret)", ErrConfiguration)
	}

	if c.Target.ProjectName == "" {
		return fmt.Errorf("%w: target.project_name is required", ErrConfiguration)
	}
	if c.Target.DatasourceName == "" {
		return fmt.Errorf("%w: target.datasource_name is required", ErrConfiguration)
	}
	if c.Places.APIKey == "" {
		return fmt.Errorf("%w: places.api_key is required", ErrConfiguration)
	}

	return nil
}
