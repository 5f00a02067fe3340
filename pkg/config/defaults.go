package config

import (
	"strings"
	"time"
)

// Identity mapping defaults (nobody/nogroup).
const (
	DefaultUnmappedUID = 65534
	DefaultUnmappedGID = 65534
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyKerberosDefaults(&cfg.Kerberos)
	applyNegotiationDefaults(&cfg.Negotiation)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyKerberosDefaults sets acceptor defaults.
func applyKerberosDefaults(cfg *KerberosConfig) {
	if cfg.Krb5Conf == "" {
		cfg.Krb5Conf = "/etc/krb5.conf"
	}
	if cfg.MaxClockSkew == 0 {
		cfg.MaxClockSkew = 5 * time.Minute
	}
	if cfg.KeytabPollInterval == 0 {
		cfg.KeytabPollInterval = 60 * time.Second
	}

	im := &cfg.IdentityMapping
	if im.Strategy == "" {
		im.Strategy = "static"
	}
	if im.DefaultUID == 0 {
		im.DefaultUID = DefaultUnmappedUID
	}
	if im.DefaultGID == 0 {
		im.DefaultGID = DefaultUnmappedGID
	}
}

// applyNegotiationDefaults offers the Microsoft Kerberos OID first, as
// Windows clients expect.
func applyNegotiationDefaults(cfg *NegotiationConfig) {
	if len(cfg.Mechanisms) == 0 {
		cfg.Mechanisms = []string{"mskerberos5", "kerberos5"}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
