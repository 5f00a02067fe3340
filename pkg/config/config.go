package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the dittoauth configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOAUTH_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Kerberos contains the acceptor's keytab and identity mapping.
	// Environment variable overrides:
	//   DITTOAUTH_KERBEROS_KEYTAB overrides KeytabPath
	//   DITTOAUTH_KERBEROS_PRINCIPAL overrides ServicePrincipal
	//   DITTOAUTH_KERBEROS_KRB5CONF overrides Krb5Conf
	Kerberos KerberosConfig `mapstructure:"kerberos" yaml:"kerberos"`

	// Negotiation controls the server's initial SPNEGO offer.
	Negotiation NegotiationConfig `mapstructure:"negotiation" yaml:"negotiation"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, spans are exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// KerberosConfig contains the acceptor configuration.
//
// The acceptor needs a keytab holding the service principal's key and a
// krb5.conf for realm resolution.
type KerberosConfig struct {
	// Enabled controls whether Kerberos session setup is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// KeytabPath is the path to the Kerberos keytab file.
	// Example: /etc/dittoauth/cifs.keytab
	KeytabPath string `mapstructure:"keytab_path" validate:"required_if=Enabled true" yaml:"keytab_path"`

	// ServicePrincipal is the acceptor principal name.
	// Format: service/hostname@REALM (e.g., cifs/server.example.com@EXAMPLE.COM)
	ServicePrincipal string `mapstructure:"service_principal" validate:"required_if=Enabled true" yaml:"service_principal"`

	// Krb5Conf is the path to the Kerberos configuration file.
	// Default: /etc/krb5.conf
	Krb5Conf string `mapstructure:"krb5_conf" yaml:"krb5_conf"`

	// MaxClockSkew is the maximum allowed clock difference between client and server.
	// Default: 5m
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew" validate:"gte=0" yaml:"max_clock_skew"`

	// KeytabPollInterval is how often the keytab file is checked for changes.
	// Default: 60s
	KeytabPollInterval time.Duration `mapstructure:"keytab_poll_interval" validate:"gte=0" yaml:"keytab_poll_interval"`

	// IdentityMapping configures how principals are mapped to Unix identities.
	IdentityMapping IdentityMappingConfig `mapstructure:"identity_mapping" yaml:"identity_mapping"`
}

// IdentityMappingConfig controls how Kerberos principals are mapped to Unix UID/GID.
type IdentityMappingConfig struct {
	// Strategy selects the identity mapping approach.
	// Currently supported: "static"
	Strategy string `mapstructure:"strategy" validate:"omitempty,oneof=static" yaml:"strategy"`

	// StaticMap maps "principal@REALM" strings to Unix identities.
	// Example: {"alice@EXAMPLE.COM": {UID: 1000, GID: 1000}}
	StaticMap map[string]StaticIdentity `mapstructure:"static_map" yaml:"static_map,omitempty"`

	// DefaultUID is assigned to principals not found in StaticMap.
	// Default: 65534 (nobody)
	DefaultUID uint32 `mapstructure:"default_uid" yaml:"default_uid"`

	// DefaultGID is assigned to principals not found in StaticMap.
	// Default: 65534 (nogroup)
	DefaultGID uint32 `mapstructure:"default_gid" yaml:"default_gid"`
}

// StaticIdentity represents a Unix identity for a specific Kerberos principal.
type StaticIdentity struct {
	UID  uint32   `mapstructure:"uid" yaml:"uid"`
	GID  uint32   `mapstructure:"gid" yaml:"gid"`
	GIDs []uint32 `mapstructure:"gids" yaml:"gids,omitempty"`
}

// NegotiationConfig controls the NegTokenInit the server offers first.
type NegotiationConfig struct {
	// Mechanisms is the ordered mechanism list, by name
	// (spnego, kerberos5, mskerberos5, kerberos5-u2u, ntlmssp).
	// Default: [mskerberos5, kerberos5]
	Mechanisms []string `mapstructure:"mechanisms" validate:"required,min=1,dive,mechanism" yaml:"mechanisms"`

	// PrincipalHint is sent in the mechListMIC slot when non-empty.
	PrincipalHint string `mapstructure:"principal_hint" yaml:"principal_hint,omitempty"`
}

// keyDelimiter separates nested viper keys.
const keyDelimiter = "::"

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOAUTH_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location. A missing file yields the
// defaults.
func Load(configPath string) (*Config, error) {
	// static_map keys are principals ("alice@EXAMPLE.COM") and contain dots.
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittoauth config init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittoauth <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittoauth config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file names the keytab location and principal map.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOAUTH_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration, so config files can use "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittoauth")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittoauth")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
