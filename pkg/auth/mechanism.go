package auth

import "context"

// SASL mechanism names.
const (
	MechanismAnonymous = "ANONYMOUS"
	MechanismPlain     = "PLAIN"
	MechanismExternal  = "EXTERNAL"
	MechanismDigestMD5 = "DIGEST-MD5"
	MechanismGSSAPI    = "GSSAPI"

	// MechanismSimple labels simple binds in logs and metrics.
	MechanismSimple = "SIMPLE"
)

// Mechanism handles binds for one SASL mechanism.
//
// ProcessBind is called once per round trip. Multi-stage mechanisms keep
// their progress in a MechanismState attached to the connection; the
// Dispatcher releases it when the bind completes or is abandoned.
//
// Thread safety: implementations must be safe for concurrent use across
// connections.
type Mechanism interface {
	Name() string
	ProcessBind(ctx context.Context, conn *Connection, req *BindRequest) *BindOutcome

	// IsPasswordBased reports whether the client proves a shared secret.
	IsPasswordBased() bool

	// IsSecure reports whether the mechanism protects credentials in transit.
	IsSecure() bool
}
