package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validYAML() string {
	return `
catalog:
  server_url: https://catalog.example.com
  site_id: default
  username: analyst
  password: secret
places:
  api_key: places-key
target:
  project_name: Demo
  datasource_name: CoffeeShops
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML()))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "google_places", cfg.Target.TableName)
	assert.Equal(t, "GooglePlacesData.duckdb", cfg.Paths.ExtractFile)
	assert.Equal(t, "ApplicationAudit.duckdb", cfg.Paths.AuditFile)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("CATALOG_SERVER_URL", "https://env.example.com")
	t.Setenv("CATALOG_ACCESS_TOKEN_ID", "tid")
	t.Setenv("CATALOG_ACCESS_TOKEN_SECRET", "tsec")
	t.Setenv("PLACES_API_KEY", "env-key")
	t.Setenv("TARGET_PROJECT_NAME", "Demo")
	t.Setenv("TARGET_DATASOURCE_NAME", "CoffeeShops")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Catalog.ServerURL)
	assert.Equal(t, "tid", cfg.Catalog.TokenID)
	require.NoError(t, cfg.Validate())
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "catalog: ["))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid username pair", func(c *Config) {}, true},
		{"valid token pair", func(c *Config) {
			c.Catalog.Username = ""
			c.Catalog.Password = ""
			c.Catalog.TokenID = "tid"
			c.Catalog.TokenSecret = "tsec"
		}, true},
		{"missing server url", func(c *Config) { c.Catalog.ServerURL = "" }, false},
		{"incomplete username pair", func(c *Config) { c.Catalog.Password = "" }, false},
		{"incomplete token pair", func(c *Config) {
			c.Catalog.Username = ""
			c.Catalog.Password = ""
			c.Catalog.TokenID = "tid"
		}, false},
		{"missing project", func(c *Config) { c.Target.ProjectName = "" }, false},
		{"missing datasource", func(c *Config) { c.Target.DatasourceName = "" }, false},
		{"missing api key", func(c *Config) { c.Places.APIKey = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML()))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfiguration)
			}
		})
	}
}
