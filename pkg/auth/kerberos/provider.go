package kerberos

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/marmos91/dittoauth/internal/logger"
	"github.com/marmos91/dittoauth/pkg/config"
	"github.com/marmos91/dittoauth/pkg/metrics"
)

// Provider manages the keytab, krb5.conf and service principal shared by
// every session setup.
//
// Provider is the KeytabSource behind an Acceptor. The keytab can be
// hot-reloaded at runtime via ReloadKeytab; credentials already acquired keep
// the keytab they were acquired with.
//
// Thread Safety: All methods are safe for concurrent use.
type Provider struct {
	keytab           *keytab.Keytab
	krb5Conf         *krb5config.Config
	servicePrincipal string
	maxClockSkew     time.Duration
	keytabPath       string
	pollInterval     time.Duration
	keytabManager    *KeytabManager
	metrics          metrics.NegotiationMetrics
	mu               sync.RWMutex
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderMetrics records keytab reloads and entry counts to m.
func WithProviderMetrics(m metrics.NegotiationMetrics) ProviderOption {
	return func(p *Provider) { p.metrics = m }
}

// NewProvider creates a Kerberos provider from configuration.
//
// It loads the keytab and krb5.conf at startup, then starts a KeytabManager
// polling the keytab for changes every cfg.KeytabPollInterval. A missing
// krb5.conf is tolerated: the service only needs it for the default realm.
//
// Environment variables take precedence over config file values:
//   - DITTOAUTH_KERBEROS_KEYTAB overrides KeytabPath
//   - DITTOAUTH_KERBEROS_PRINCIPAL overrides ServicePrincipal
//   - DITTOAUTH_KERBEROS_KRB5CONF overrides Krb5Conf
func NewProvider(cfg *config.KerberosConfig, opts ...ProviderOption) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kerberos config is nil")
	}

	keytabPath := resolveKeytabPath(cfg.KeytabPath)
	if keytabPath == "" {
		return nil, fmt.Errorf("kerberos keytab path not configured (set keytab_path or %s)", envKeytab)
	}

	servicePrincipal := resolveServicePrincipal(cfg.ServicePrincipal)
	if servicePrincipal == "" {
		return nil, fmt.Errorf("kerberos service principal not configured (set service_principal or %s)", envPrincipal)
	}

	krb5ConfPath := resolveKrb5ConfPath(cfg.Krb5Conf)

	kt, err := loadKeytab(keytabPath)
	if err != nil {
		return nil, fmt.Errorf("load keytab %s: %w", keytabPath, err)
	}

	krbCfg, err := loadKrb5Conf(krb5ConfPath)
	if err != nil {
		return nil, fmt.Errorf("load krb5.conf %s: %w", krb5ConfPath, err)
	}

	p := &Provider{
		keytab:           kt,
		krb5Conf:         krbCfg,
		servicePrincipal: servicePrincipal,
		maxClockSkew:     cfg.MaxClockSkew,
		keytabPath:       keytabPath,
		pollInterval:     cfg.KeytabPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.recordEntries(kt)

	logger.Info("Kerberos provider ready",
		logger.KeyKeytab, keytabPath,
		logger.Service(servicePrincipal),
		logger.KeyRealm, p.DefaultRealm(),
		"entries", len(kt.Entries))

	if p.pollInterval > 0 {
		km := NewKeytabManager(keytabPath, p, p.pollInterval)
		if err := km.Start(); err != nil {
			// Hot-reload is optional; the file can vanish between load and start.
			logger.Warn("Keytab hot-reload failed to start, continuing without it",
				logger.KeyKeytab, keytabPath, logger.Err(err))
		} else {
			p.keytabManager = km
		}
	}

	return p, nil
}

// NewProviderFromKeytab wraps an in-memory keytab. It never reloads.
func NewProviderFromKeytab(kt *keytab.Keytab, servicePrincipal string, maxClockSkew time.Duration) *Provider {
	return &Provider{
		keytab:           kt,
		krb5Conf:         krb5config.New(),
		servicePrincipal: servicePrincipal,
		maxClockSkew:     maxClockSkew,
	}
}

// Keytab returns the current keytab (thread-safe read).
func (p *Provider) Keytab() *keytab.Keytab {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.keytab
}

// ServicePrincipal returns the configured service principal name.
func (p *Provider) ServicePrincipal() string {
	return p.servicePrincipal
}

// MaxClockSkew returns the maximum allowed clock skew.
func (p *Provider) MaxClockSkew() time.Duration {
	return p.maxClockSkew
}

// KeytabPath returns the keytab file path, or "" for an in-memory keytab.
func (p *Provider) KeytabPath() string {
	return p.keytabPath
}

// Krb5Config returns the loaded Kerberos configuration.
func (p *Provider) Krb5Config() *krb5config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.krb5Conf
}

// DefaultRealm returns the krb5.conf default realm, or "".
func (p *Provider) DefaultRealm() string {
	cfg := p.Krb5Config()
	if cfg == nil {
		return ""
	}
	return cfg.LibDefaults.DefaultRealm
}

// ReloadKeytab re-reads the keytab file and atomically swaps it.
// Active contexts continue using the old keytab; new credentials use the
// new one.
func (p *Provider) ReloadKeytab() error {
	kt, err := loadKeytab(p.keytabPath)
	if p.metrics != nil {
		p.metrics.RecordKeytabReload(err == nil)
	}
	if err != nil {
		return fmt.Errorf("reload keytab %s: %w", p.keytabPath, err)
	}

	p.mu.Lock()
	p.keytab = kt
	p.mu.Unlock()

	p.recordEntries(kt)
	return nil
}

// Close stops the KeytabManager's polling goroutine. Safe to call multiple times.
func (p *Provider) Close() error {
	if p.keytabManager != nil {
		p.keytabManager.Stop()
	}
	return nil
}

func (p *Provider) recordEntries(kt *keytab.Keytab) {
	if p.metrics != nil && kt != nil {
		p.metrics.SetKeytabEntries(len(kt.Entries))
	}
}

// loadKeytab reads and parses a keytab file.
func loadKeytab(path string) (*keytab.Keytab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keytab file: %w", err)
	}

	kt := keytab.New()
	if err := kt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parse keytab: %w", err)
	}

	return kt, nil
}

// loadKrb5Conf reads and parses a Kerberos configuration file. A missing
// file yields the library defaults; unsupported directives are logged.
func loadKrb5Conf(path string) (*krb5config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("krb5.conf not found, using defaults", "path", path)
		return krb5config.New(), nil
	}

	cfg, err := krb5config.Load(path)
	if err != nil {
		var unsupported krb5config.UnsupportedDirective
		if cfg != nil && errors.As(err, &unsupported) {
			logger.Warn("krb5.conf contains unsupported directives", "path", path, logger.Err(err))
			return cfg, nil
		}
		return nil, fmt.Errorf("parse krb5.conf: %w", err)
	}

	return cfg, nil
}
