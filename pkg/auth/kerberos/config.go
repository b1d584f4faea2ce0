package kerberos

import (
	"os"
	"time"
)

// Environment overrides.
const (
	EnvKeytab    = "LDAPAUTH_KERBEROS_KEYTAB"
	EnvPrincipal = "LDAPAUTH_KERBEROS_PRINCIPAL"
	EnvKrb5Conf  = "LDAPAUTH_KERBEROS_KRB5CONF"
)

const (
	// DefaultKrb5Conf is read when no krb5.conf is configured.
	DefaultKrb5Conf = "/etc/krb5.conf"

	// DefaultMaxClockSkew bounds the client/server clock difference.
	DefaultMaxClockSkew = 5 * time.Minute

	// DefaultKeytabRefresh is the keytab polling interval.
	DefaultKeytabRefresh = 60 * time.Second
)

// resolveKeytabPath prefers LDAPAUTH_KERBEROS_KEYTAB over configPath.
func resolveKeytabPath(configPath string) string {
	if envPath := os.Getenv(EnvKeytab); envPath != "" {
		return envPath
	}
	return configPath
}

// resolveServicePrincipal prefers LDAPAUTH_KERBEROS_PRINCIPAL over configPrincipal.
func resolveServicePrincipal(configPrincipal string) string {
	if envSPN := os.Getenv(EnvPrincipal); envSPN != "" {
		return envSPN
	}
	return configPrincipal
}

// resolveKrb5ConfPath prefers LDAPAUTH_KERBEROS_KRB5CONF, then configPath,
// then DefaultKrb5Conf. The second result reports whether the path was
// chosen explicitly.
func resolveKrb5ConfPath(configPath string) (string, bool) {
	if envPath := os.Getenv(EnvKrb5Conf); envPath != "" {
		return envPath, true
	}
	if configPath != "" {
		return configPath, true
	}
	return DefaultKrb5Conf, false
}
