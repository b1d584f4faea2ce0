// Package sasl implements the single-stage SASL mechanisms (ANONYMOUS,
// PLAIN, EXTERNAL) and the identity resolution shared with the multi-stage
// mechanisms in the digestmd5 and gssapi sub-packages.
//
// Identities follow RFC 4513 section 5.2.1.8: "dn:<DN>" names an entry
// directly, "u:<id>" (or a bare id) goes through the configured identity
// mapper. An authorization identity that differs from the authenticated
// entry requires the proxied-auth privilege.
package sasl
