// Package config provides configuration management for xtarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jmylchreest/xtarr/pkg/bytesize"
)

// Default configuration values.
const (
	defaultServerPort          = 8080
	defaultServerTimeout       = 30 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultMaxOpenConns        = 25
	defaultMaxIdleConns        = 10
	defaultConnMaxIdleTime     = 30 * time.Minute
	defaultHTTPTimeout         = 60 * time.Second
	defaultRetryAttempts       = 3
	defaultRetryDelay          = 2 * time.Second
	defaultCircuitThreshold    = 5
	defaultCircuitTimeout      = 30 * time.Second
	defaultMaxResponseSize     = 512 * bytesize.MB
	defaultRelayConnectTimeout = 10 * time.Second
	defaultRelayIdleTimeout    = 30 * time.Second
	defaultRelayBufferSize     = 32 * bytesize.KB
	defaultRefreshSchedule     = "0 */6 * * *"
	defaultRefreshConcurrency  = 3
	defaultNotifyTimeout       = 10 * time.Second
	defaultNotifyMaxMessage    = 4096
	defaultXtreamHTTPPort      = "8080"
	defaultXtreamHTTPSPort     = "443"
	defaultXtreamRTMPPort      = "0"
	defaultXtreamTimezone      = "UTC"

	// DefaultResolveSeriesDelay is applied when a target enables series
	// resolution without a delay.
	DefaultResolveSeriesDelay = 2 * time.Second
)

// Input types.
const (
	InputTypeXtream = "xtream"
	InputTypeM3U    = "m3u"
)

// Target output kinds.
const (
	OutputXtream = "xtream"
	OutputM3U    = "m3u"
)

// Playlist store kinds.
const (
	PlaylistStoreFile   = "file"
	PlaylistStoreMemory = "memory"
)

// reservedTargetName cannot be used by a target with xtream output.
const reservedTargetName = "default"

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig       `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig     `mapstructure:"database" yaml:"database"`
	Storage    StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Logging    LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	HTTPClient HTTPClientConfig   `mapstructure:"http_client" yaml:"http_client"`
	Relay      RelayConfig        `mapstructure:"relay" yaml:"relay"`
	Refresh    RefreshConfig      `mapstructure:"refresh" yaml:"refresh"`
	Notify     NotifyConfig       `mapstructure:"notify" yaml:"notify"`
	Xtream     XtreamServerConfig `mapstructure:"xtream" yaml:"xtream"`
	Inputs     []InputConfig      `mapstructure:"inputs" yaml:"inputs"`
	Targets    []TargetConfig     `mapstructure:"targets" yaml:"targets"`
	Users      []UserConfig       `mapstructure:"users" yaml:"users"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir       string `mapstructure:"base_dir" yaml:"base_dir"`
	OutputDir     string `mapstructure:"output_dir" yaml:"output_dir"`
	PlaylistStore string `mapstructure:"playlist_store" yaml:"playlist_store"` // file, memory
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level                string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format               string `mapstructure:"format" yaml:"format"` // json, text
	AddSource            bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat           string `mapstructure:"time_format" yaml:"time_format"`
	EnableRequestLogging bool   `mapstructure:"enable_request_logging" yaml:"enable_request_logging"`
}

// HTTPClientConfig configures the client used for upstream API calls.
type HTTPClientConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	CircuitThreshold int           `mapstructure:"circuit_threshold" yaml:"circuit_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout" yaml:"circuit_timeout"`
	MaxResponseSize  bytesize.Size `mapstructure:"max_response_size" yaml:"max_response_size"`
}

// RelayConfig holds stream relay configuration.
// IdleTimeout bounds the gap between upstream reads; there is no limit on
// total stream duration.
type RelayConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	BufferSize     bytesize.Size `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// RefreshConfig controls scheduled upstream refreshes.
type RefreshConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Schedule      string `mapstructure:"schedule" yaml:"schedule"` // 5-field cron expression
	OnStartup     bool   `mapstructure:"on_startup" yaml:"on_startup"`
	MaxConcurrent int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// NotifyConfig configures operator notifications for refresh errors.
type NotifyConfig struct {
	WebhookURL     string            `mapstructure:"webhook_url" yaml:"webhook_url"`
	Headers        map[string]string `mapstructure:"headers" yaml:"headers"`
	Timeout        time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	MaxMessageSize int               `mapstructure:"max_message_size" yaml:"max_message_size"`
}

// XtreamServerConfig is the server block reported to downstream players.
type XtreamServerConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	HTTPPort  string `mapstructure:"http_port" yaml:"http_port"`
	HTTPSPort string `mapstructure:"https_port" yaml:"https_port"`
	RTMPPort  string `mapstructure:"rtmp_port" yaml:"rtmp_port"`
	Protocol  string `mapstructure:"protocol" yaml:"protocol"`
	Timezone  string `mapstructure:"timezone" yaml:"timezone"`
	Message   string `mapstructure:"message" yaml:"message"`
}

// InputConfig describes one upstream provider account.
type InputConfig struct {
	Name     string            `mapstructure:"name" yaml:"name"`
	Type     string            `mapstructure:"type" yaml:"type"`
	URL      string            `mapstructure:"url" yaml:"url"`
	Username string            `mapstructure:"username" yaml:"username"`
	Password string            `mapstructure:"password" yaml:"password"`
	Headers  map[string]string `mapstructure:"headers" yaml:"headers"`
	Enabled  *bool             `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Options  InputOptions      `mapstructure:"options" yaml:"options"`
}

// InputOptions holds per-input behavior switches.
type InputOptions struct {
	// XtreamInfoCache stores get_vod_info payloads during refresh.
	XtreamInfoCache bool `mapstructure:"xtream_info_cache" yaml:"xtream_info_cache"`
}

// IsEnabled reports whether the input takes part in refreshes. Inputs are
// enabled unless explicitly switched off.
func (c *InputConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IsXtream reports whether the input talks the Xtream Player API.
func (c *InputConfig) IsXtream() bool {
	return c.Type == InputTypeXtream
}

// HasCredentials reports whether the input carries upstream credentials.
func (c *InputConfig) HasCredentials() bool {
	return c.URL != "" && c.Username != "" && c.Password != ""
}

// TargetConfig describes one downstream-facing output.
type TargetConfig struct {
	Name    string        `mapstructure:"name" yaml:"name"`
	Inputs  []string      `mapstructure:"inputs" yaml:"inputs"`
	Output  []string      `mapstructure:"output" yaml:"output"`
	Options TargetOptions `mapstructure:"options" yaml:"options"`
}

// TargetOptions holds per-target rendering switches.
type TargetOptions struct {
	XtreamSkipLiveDirectSource   bool          `mapstructure:"xtream_skip_live_direct_source" yaml:"xtream_skip_live_direct_source"`
	XtreamSkipVideoDirectSource  bool          `mapstructure:"xtream_skip_video_direct_source" yaml:"xtream_skip_video_direct_source"`
	XtreamSkipSeriesDirectSource bool          `mapstructure:"xtream_skip_series_direct_source" yaml:"xtream_skip_series_direct_source"`
	XtreamResolveSeries          bool          `mapstructure:"xtream_resolve_series" yaml:"xtream_resolve_series"`
	XtreamResolveSeriesDelay     time.Duration `mapstructure:"xtream_resolve_series_delay" yaml:"xtream_resolve_series_delay"`
}

// HasOutput reports whether the target declares the given output kind.
func (c *TargetConfig) HasOutput(kind string) bool {
	return slices.Contains(c.Output, kind)
}

// UserConfig maps downstream credentials onto a target.
type UserConfig struct {
	Target   string `mapstructure:"target" yaml:"target"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Token    string `mapstructure:"token" yaml:"token"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with XTARR_ and use underscores for nesting.
// Example: XTARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/xtarr")
		v.AddConfigPath("$HOME/.xtarr")
	}

	v.SetEnvPrefix("XTARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return Unmarshal(v)
}

// Unmarshal decodes, normalizes and validates the configuration held by v.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.applyTargetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server defaults. Write timeout stays zero because relay responses are long-lived.
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "xtarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.output_dir", "output")
	v.SetDefault("storage.playlist_store", PlaylistStoreFile)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.enable_request_logging", true)

	v.SetDefault("http_client.timeout", defaultHTTPTimeout)
	v.SetDefault("http_client.retry_attempts", defaultRetryAttempts)
	v.SetDefault("http_client.retry_delay", defaultRetryDelay)
	v.SetDefault("http_client.circuit_threshold", defaultCircuitThreshold)
	v.SetDefault("http_client.circuit_timeout", defaultCircuitTimeout)
	v.SetDefault("http_client.max_response_size", defaultMaxResponseSize)

	v.SetDefault("relay.connect_timeout", defaultRelayConnectTimeout)
	v.SetDefault("relay.idle_timeout", defaultRelayIdleTimeout)
	v.SetDefault("relay.buffer_size", defaultRelayBufferSize)

	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.schedule", defaultRefreshSchedule)
	v.SetDefault("refresh.on_startup", true)
	v.SetDefault("refresh.max_concurrent", defaultRefreshConcurrency)

	v.SetDefault("notify.timeout", defaultNotifyTimeout)
	v.SetDefault("notify.max_message_size", defaultNotifyMaxMessage)

	v.SetDefault("xtream.host", "localhost")
	v.SetDefault("xtream.http_port", defaultXtreamHTTPPort)
	v.SetDefault("xtream.https_port", defaultXtreamHTTPSPort)
	v.SetDefault("xtream.rtmp_port", defaultXtreamRTMPPort)
	v.SetDefault("xtream.protocol", "http")
	v.SetDefault("xtream.timezone", defaultXtreamTimezone)
	v.SetDefault("xtream.message", "")
}

// applyTargetDefaults fills per-target options that have no viper key of their own.
func (c *Config) applyTargetDefaults() {
	for i := range c.Targets {
		opts := &c.Targets[i].Options
		if opts.XtreamResolveSeries && opts.XtreamResolveSeriesDelay == 0 {
			opts.XtreamResolveSeriesDelay = DefaultResolveSeriesDelay
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.PlaylistStore != PlaylistStoreFile && c.Storage.PlaylistStore != PlaylistStoreMemory {
		return fmt.Errorf("storage.playlist_store must be one of: file, memory")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Relay.IdleTimeout <= 0 {
		return fmt.Errorf("relay.idle_timeout must be positive")
	}
	if c.Relay.BufferSize < 1 {
		return fmt.Errorf("relay.buffer_size must be at least 1")
	}
	if c.Refresh.MaxConcurrent < 1 {
		return fmt.Errorf("refresh.max_concurrent must be at least 1")
	}

	if err := c.validateInputs(); err != nil {
		return err
	}
	if err := c.validateTargets(); err != nil {
		return err
	}
	return c.validateUsers()
}

func (c *Config) validateInputs() error {
	seen := make(map[string]bool, len(c.Inputs))
	for i, input := range c.Inputs {
		if input.Name == "" {
			return fmt.Errorf("inputs[%d].name is required", i)
		}
		if seen[input.Name] {
			return fmt.Errorf("input name %q is not unique", input.Name)
		}
		seen[input.Name] = true

		switch input.Type {
		case InputTypeXtream:
			if !input.HasCredentials() {
				return fmt.Errorf("input %q: xtream inputs require url, username and password", input.Name)
			}
		case InputTypeM3U:
			if input.URL == "" {
				return fmt.Errorf("input %q: url is required", input.Name)
			}
		default:
			return fmt.Errorf("input %q: type must be one of: xtream, m3u", input.Name)
		}
	}
	return nil
}

func (c *Config) validateTargets() error {
	seen := make(map[string]bool, len(c.Targets))
	for i, target := range c.Targets {
		if target.Name == "" {
			return fmt.Errorf("targets[%d].name is required", i)
		}
		if seen[target.Name] {
			return fmt.Errorf("target name %q is not unique", target.Name)
		}
		seen[target.Name] = true

		for _, out := range target.Output {
			if out != OutputXtream && out != OutputM3U {
				return fmt.Errorf("target %q: output must be one of: xtream, m3u", target.Name)
			}
		}
		if target.HasOutput(OutputXtream) && strings.EqualFold(target.Name, reservedTargetName) {
			return fmt.Errorf("target %q: name is reserved for targets with xtream output", target.Name)
		}
		for _, name := range target.Inputs {
			if c.FindInput(name) == nil {
				return fmt.Errorf("target %q: unknown input %q", target.Name, name)
			}
		}
		if target.Options.XtreamResolveSeriesDelay < 0 {
			return fmt.Errorf("target %q: xtream_resolve_series_delay must not be negative", target.Name)
		}
	}
	return nil
}

func (c *Config) validateUsers() error {
	logins := make(map[string]bool, len(c.Users))
	tokens := make(map[string]bool, len(c.Users))
	for i, user := range c.Users {
		if user.Username == "" || user.Password == "" {
			return fmt.Errorf("users[%d]: username and password are required", i)
		}
		if c.FindTarget(user.Target) == nil {
			return fmt.Errorf("user %q: unknown target %q", user.Username, user.Target)
		}
		login := user.Username + "\x00" + user.Password
		if logins[login] {
			return fmt.Errorf("user %q: credentials are not unique", user.Username)
		}
		logins[login] = true
		if user.Token != "" {
			if tokens[user.Token] {
				return fmt.Errorf("user %q: token is not unique", user.Username)
			}
			tokens[user.Token] = true
		}
	}
	return nil
}

// FindInput returns the input with the given name, or nil.
func (c *Config) FindInput(name string) *InputConfig {
	for i := range c.Inputs {
		if c.Inputs[i].Name == name {
			return &c.Inputs[i]
		}
	}
	return nil
}

// FindTarget returns the target with the given name, or nil.
func (c *Config) FindTarget(name string) *TargetConfig {
	for i := range c.Targets {
		if c.Targets[i].Name == name {
			return &c.Targets[i]
		}
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OutputPath returns the full path to the artifact output directory.
func (c *StorageConfig) OutputPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.OutputDir)
}
