// Package kerberos holds the acceptor-side Kerberos state used by the
// GSSAPI SASL mechanism: the service keytab, krb5.conf and the service
// principal name.
//
// The keytab is polled for changes and swapped atomically, so keys can be
// rotated with kadmin or k5srvutil without restarting the server. Binds in
// progress keep the keytab they started with.
//
// Configuration comes from pkg/config.KerberosConfig; the environment
// variables LDAPAUTH_KERBEROS_KEYTAB, LDAPAUTH_KERBEROS_PRINCIPAL and
// LDAPAUTH_KERBEROS_KRB5CONF take precedence over the file.
//
// References:
//   - RFC 4120: The Kerberos Network Authentication Service (V5)
//   - RFC 4121: The Kerberos Version 5 GSS-API Mechanism
package kerberos
