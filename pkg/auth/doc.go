// Package auth is the bind-processing core of the LDAP authentication layer.
//
// It defines the types shared by every mechanism and credential verifier:
//
//   - BindRequest / BindOutcome: one bind round trip and its LDAP result
//   - Connection: per-client record owning in-progress mechanism state,
//     the authenticated identity and the negotiated security layer
//   - Mechanism: a SASL mechanism handler (single or multi stage)
//   - Dispatcher: the mechanism registry that drives ProcessBind and
//     guarantees mechanism state is disposed on every exit path
//   - PasswordValidator / ClearPasswordSource: local or pass-through
//     credential verification
//   - SecurityLayer / ChannelSecurity: what a negotiated SASL layer and the
//     underlying channel expose to mechanisms
//
// Sub-packages:
//   - password/: storage schemes and the local password policy
//   - mapper/: identity and certificate mappers
//   - sasl/: ANONYMOUS, PLAIN, EXTERNAL and the shared identity resolution
//   - sasl/digestmd5/, sasl/gssapi/: multi-stage mechanisms
//   - kerberos/: keytab and krb5.conf management for GSSAPI
//   - passthrough/: LDAP pass-through authentication policy
package auth
