package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Client Connection
	// ========================================================================
	KeyConnectionID = "connection_id" // Connection identifier (uuid)
	KeyClientIP     = "client_ip"     // Client IP address
	KeyProvider     = "provider"      // Connection security provider: null, sasl, tls
	KeySSF          = "ssf"           // Security strength factor
	KeyFrameLen     = "frame_len"     // SASL frame length in bytes
	KeyPolicy       = "policy"        // TLS client-auth or validation policy

	// ========================================================================
	// Bind & Identity
	// ========================================================================
	KeyMechanism  = "mechanism"   // SASL mechanism or SIMPLE
	KeyBindDN     = "bind_dn"     // Authenticated bind DN
	KeyAuthzID    = "authz_id"    // Requested authorization identity
	KeyAuthcID    = "authc_id"    // Authentication identity as supplied
	KeyResultCode = "result_code" // LDAP result code
	KeyQOP        = "qop"         // Negotiated quality of protection
	KeyPrincipal  = "principal"   // Kerberos principal
	KeyTrace      = "trace"       // ANONYMOUS trace information

	// ========================================================================
	// Password Storage
	// ========================================================================
	KeyScheme    = "scheme"    // Password storage scheme name
	KeyAttribute = "attribute" // Attribute name

	// ========================================================================
	// Directory Lookups
	// ========================================================================
	KeyMapper  = "mapper"  // Identity or certificate mapper name
	KeyBaseDN  = "base_dn" // Search base DN
	KeyFilter  = "filter"  // Search filter
	KeyEntries = "entries" // Number of matching entries

	// ========================================================================
	// Pass-Through Authentication
	// ========================================================================
	KeyServer    = "server"    // Remote LDAP server host:port
	KeyTier      = "tier"      // primary or secondary
	KeyCacheHit  = "cache_hit" // Cached password hit indicator
	KeyAttempt   = "attempt"   // Retry attempt number
	KeyAvailable = "available" // Server availability

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyPath       = "path"        // File path (config, keytab, cache directory)
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Client Connection
// ----------------------------------------------------------------------------

// ConnectionID returns a slog.Attr for a connection identifier
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(ip string) slog.Attr {
	return slog.String(KeyClientIP, ip)
}

// SSF returns a slog.Attr for a security strength factor
func SSF(ssf int) slog.Attr {
	return slog.Int(KeySSF, ssf)
}

// ----------------------------------------------------------------------------
// Bind & Identity
// ----------------------------------------------------------------------------

// Mechanism returns a slog.Attr for the bind mechanism
func Mechanism(name string) slog.Attr {
	return slog.String(KeyMechanism, name)
}

// BindDN returns a slog.Attr for a bind DN
func BindDN(dn string) slog.Attr {
	return slog.String(KeyBindDN, dn)
}

// AuthzID returns a slog.Attr for an authorization identity
func AuthzID(id string) slog.Attr {
	return slog.String(KeyAuthzID, id)
}

// ResultCode returns a slog.Attr for an LDAP result code
func ResultCode(code int) slog.Attr {
	return slog.Int(KeyResultCode, code)
}

// Principal returns a slog.Attr for a Kerberos principal
func Principal(p string) slog.Attr {
	return slog.String(KeyPrincipal, p)
}

// Scheme returns a slog.Attr for a password storage scheme
func Scheme(name string) slog.Attr {
	return slog.String(KeyScheme, name)
}

// ----------------------------------------------------------------------------
// Directory & Pass-Through
// ----------------------------------------------------------------------------

// BaseDN returns a slog.Attr for a search base
func BaseDN(dn string) slog.Attr {
	return slog.String(KeyBaseDN, dn)
}

// Filter returns a slog.Attr for a search filter
func Filter(f string) slog.Attr {
	return slog.String(KeyFilter, f)
}

// Server returns a slog.Attr for a remote server address
func Server(addr string) slog.Attr {
	return slog.String(KeyServer, addr)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for the time elapsed since start
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}

// Err returns a slog.Attr for an error. A nil error yields an empty attr,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
