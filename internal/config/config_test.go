package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/xtarr/pkg/bytesize"
)

func validTestConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "test.db",
		},
		Storage: StorageConfig{BaseDir: "./data", PlaylistStore: PlaylistStoreFile},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Relay:   RelayConfig{IdleTimeout: 30 * time.Second, BufferSize: 1024},
		Refresh: RefreshConfig{MaxConcurrent: 1},
		Inputs: []InputConfig{
			{Name: "provider", Type: InputTypeXtream, URL: "http://p.example", Username: "u", Password: "p"},
		},
		Targets: []TargetConfig{
			{Name: "family", Inputs: []string{"provider"}, Output: []string{OutputXtream}},
		},
		Users: []UserConfig{
			{Target: "family", Username: "alice", Password: "secret", Token: "tok"},
		},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Zero(t, cfg.Server.WriteTimeout)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "xtarr.db", cfg.Database.DSN)

	assert.Equal(t, "./data", cfg.Storage.BaseDir)
	assert.Equal(t, PlaylistStoreFile, cfg.Storage.PlaylistStore)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, 30*time.Second, cfg.Relay.IdleTimeout)
	assert.Equal(t, 10*time.Second, cfg.Relay.ConnectTimeout)
	assert.Equal(t, 32*bytesize.KB, cfg.Relay.BufferSize)

	assert.Equal(t, "0 */6 * * *", cfg.Refresh.Schedule)
	assert.Equal(t, "http", cfg.Xtream.Protocol)
	assert.Empty(t, cfg.Inputs)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
xtream:
  host: tv.example
  message: welcome
inputs:
  - name: provider
    type: xtream
    url: http://p.example
    username: u
    password: p
    headers:
      X-Provider: abc
  - name: backup
    type: xtream
    url: http://b.example
    username: u2
    password: p2
    enabled: false
targets:
  - name: family
    inputs: [provider, backup]
    output: [xtream, m3u]
    options:
      xtream_resolve_series: true
users:
  - target: family
    username: alice
    password: secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "tv.example", cfg.Xtream.Host)
	assert.Equal(t, "welcome", cfg.Xtream.Message)

	require.Len(t, cfg.Inputs, 2)
	assert.True(t, cfg.Inputs[0].IsEnabled())
	assert.False(t, cfg.Inputs[1].IsEnabled())
	assert.Equal(t, "abc", cfg.Inputs[0].Headers["x-provider"])

	target := cfg.FindTarget("family")
	require.NotNil(t, target)
	assert.True(t, target.HasOutput(OutputXtream))
	assert.True(t, target.HasOutput(OutputM3U))
	assert.Equal(t, DefaultResolveSeriesDelay, target.Options.XtreamResolveSeriesDelay)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XTARR_SERVER_PORT", "7070")
	t.Setenv("XTARR_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"bad store", func(c *Config) { c.Storage.PlaylistStore = "s3" }, "storage.playlist_store"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"zero idle timeout", func(c *Config) { c.Relay.IdleTimeout = 0 }, "relay.idle_timeout"},
		{"duplicate input", func(c *Config) { c.Inputs = append(c.Inputs, c.Inputs[0]) }, "not unique"},
		{"xtream input without password", func(c *Config) { c.Inputs[0].Password = "" }, "require url, username and password"},
		{"unknown input type", func(c *Config) { c.Inputs[0].Type = "stalker" }, "type must be one of"},
		{"duplicate target", func(c *Config) { c.Targets = append(c.Targets, c.Targets[0]) }, "not unique"},
		{"reserved target name", func(c *Config) {
			c.Targets[0].Name = "default"
			c.Users[0].Target = "default"
		}, "reserved"},
		{"unknown output", func(c *Config) { c.Targets[0].Output = []string{"strm"} }, "output must be one of"},
		{"unknown target input", func(c *Config) { c.Targets[0].Inputs = []string{"missing"} }, "unknown input"},
		{"negative delay", func(c *Config) { c.Targets[0].Options.XtreamResolveSeriesDelay = -time.Second }, "must not be negative"},
		{"user unknown target", func(c *Config) { c.Users[0].Target = "nope" }, "unknown target"},
		{"duplicate credentials", func(c *Config) { c.Users = append(c.Users, UserConfig{Target: "family", Username: "alice", Password: "secret"}) }, "credentials are not unique"},
		{"duplicate token", func(c *Config) { c.Users = append(c.Users, UserConfig{Target: "family", Username: "bob", Password: "x", Token: "tok"}) }, "token is not unique"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultTargetAllowedWithoutXtreamOutput(t *testing.T) {
	cfg := validTestConfig()
	cfg.Targets[0].Name = "default"
	cfg.Targets[0].Output = []string{OutputM3U}
	cfg.Users[0].Target = "default"
	assert.NoError(t, cfg.Validate())
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.Address())
}
