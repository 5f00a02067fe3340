package kerberos

import "os"

// Environment variables overriding the kerberos config section.
const (
	envKeytab    = "DITTOAUTH_KERBEROS_KEYTAB"
	envPrincipal = "DITTOAUTH_KERBEROS_PRINCIPAL"
	envKrb5Conf  = "DITTOAUTH_KERBEROS_KRB5CONF"
)

const defaultKrb5ConfPath = "/etc/krb5.conf"

// resolveKeytabPath resolves the keytab path with environment variable override.
//
// Resolution order (highest priority first):
//  1. DITTOAUTH_KERBEROS_KEYTAB env var
//  2. configPath from configuration file
func resolveKeytabPath(configPath string) string {
	if envPath := os.Getenv(envKeytab); envPath != "" {
		return envPath
	}
	return configPath
}

// resolveServicePrincipal resolves the service principal with environment variable override.
func resolveServicePrincipal(configPrincipal string) string {
	if envSPN := os.Getenv(envPrincipal); envSPN != "" {
		return envSPN
	}
	return configPrincipal
}

// resolveKrb5ConfPath resolves the krb5.conf path with environment variable override.
//
// Resolution order (highest priority first):
//  1. DITTOAUTH_KERBEROS_KRB5CONF env var
//  2. configPath from configuration file
//  3. Default: /etc/krb5.conf
func resolveKrb5ConfPath(configPath string) string {
	if envPath := os.Getenv(envKrb5Conf); envPath != "" {
		return envPath
	}
	if configPath != "" {
		return configPath
	}
	return defaultKrb5ConfPath
}
