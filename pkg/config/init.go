package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# dittoauth Configuration File
#
# Environment variables override any value here, using the DITTOAUTH_
# prefix and underscores for nesting (e.g. DITTOAUTH_LOGGING_LEVEL=DEBUG).
#
# kerberos.keytab_path and kerberos.service_principal are required once
# kerberos.enabled is true. They may also be set through
# DITTOAUTH_KERBEROS_KEYTAB and DITTOAUTH_KERBEROS_PRINCIPAL.
#
# negotiation.mechanisms is the ordered list offered in the server's
# NegTokenInit: spnego, kerberos5, mskerberos5, kerberos5-u2u, ntlmssp.

`

// InitConfig writes a default configuration file to the default location
// and returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	body, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(configHeader), body...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
