// Package password implements LDAP password storage schemes.
//
// Stored values use the "{SCHEME}payload" form of the userPassword
// attribute or the RFC 3112 authPassword form "scheme$salt$digest".
// A Registry maps scheme names to implementations; LocalPolicy verifies
// bind passwords against an entry's stored values.
//
// Built-in schemes:
//
//	CLEAR                reversible, stored as-is
//	SHA                  unsalted SHA-1 (legacy, kept for existing data)
//	SSHA SSHA256 SSHA384 SSHA512
//	                     base64(H(p ++ salt) ++ salt), 8-byte salt
//	BCRYPT               golang.org/x/crypto/bcrypt
//	PBKDF2               "iterations:base64(dk ++ salt)", HMAC-SHA1
//	PBKDF2-HMAC-SHA256   same layout, HMAC-SHA256
//	CRYPT                crypt(3) MD5, SHA-256 and SHA-512 variants
package password
