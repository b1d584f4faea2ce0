package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for authentication spans.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Connection attributes
	// ========================================================================
	AttrConnectionID = "ldap.connection_id"
	AttrSecurity     = "ldap.security_provider"
	AttrSSF          = "ldap.ssf"

	// ========================================================================
	// Bind attributes
	// ========================================================================
	AttrMechanism  = "ldap.bind.mechanism"
	AttrBindDN     = "ldap.bind.dn"
	AttrResultCode = "ldap.bind.result_code"
	AttrStage      = "ldap.bind.stage"
	AttrAuthzID    = "ldap.bind.authz_id"

	// ========================================================================
	// Identity mapping attributes
	// ========================================================================
	AttrMapper  = "ldap.mapper"
	AttrBaseDN  = "ldap.search.base_dn"
	AttrEntries = "ldap.search.entries"

	// ========================================================================
	// Pass-through attributes
	// ========================================================================
	AttrServer   = "passthrough.server"
	AttrTier     = "passthrough.tier"
	AttrPolicy   = "passthrough.mapping_policy"
	AttrCacheHit = "passthrough.cache_hit"

	// ========================================================================
	// Password scheme attributes
	// ========================================================================
	AttrScheme = "password.scheme"
)

// Span names.
// Format: <component>.<operation>
const (
	SpanBind              = "ldap.bind"
	SpanMapIdentity       = "mapper.map_identity"
	SpanMapCertificate    = "mapper.map_certificate"
	SpanPasswordVerify    = "password.verify"
	SpanPassThroughBind   = "passthrough.bind"
	SpanPassThroughSearch = "passthrough.search"
	SpanTLSHandshake      = "tls.handshake"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for the full client address (ip:port)
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// ConnectionID returns an attribute for the connection identifier
func ConnectionID(id string) attribute.KeyValue {
	return attribute.String(AttrConnectionID, id)
}

// SecurityProvider returns an attribute for the connection security provider name
func SecurityProvider(name string) attribute.KeyValue {
	return attribute.String(AttrSecurity, name)
}

// SSF returns an attribute for a security strength factor
func SSF(ssf int) attribute.KeyValue {
	return attribute.Int(AttrSSF, ssf)
}

// Mechanism returns an attribute for the SASL mechanism name
func Mechanism(name string) attribute.KeyValue {
	return attribute.String(AttrMechanism, name)
}

// BindDN returns an attribute for the bind DN
func BindDN(dn string) attribute.KeyValue {
	return attribute.String(AttrBindDN, dn)
}

// ResultCode returns an attribute for an LDAP result code
func ResultCode(code uint16) attribute.KeyValue {
	return attribute.Int(AttrResultCode, int(code))
}

// Stage returns an attribute for a multi-stage bind step
func Stage(stage string) attribute.KeyValue {
	return attribute.String(AttrStage, stage)
}

// AuthzID returns an attribute for the requested authorization identity
func AuthzID(id string) attribute.KeyValue {
	return attribute.String(AttrAuthzID, id)
}

// Mapper returns an attribute for the identity mapper name
func Mapper(name string) attribute.KeyValue {
	return attribute.String(AttrMapper, name)
}

// BaseDN returns an attribute for a search base
func BaseDN(dn string) attribute.KeyValue {
	return attribute.String(AttrBaseDN, dn)
}

// Entries returns an attribute for the number of entries returned by a search
func Entries(n int) attribute.KeyValue {
	return attribute.Int(AttrEntries, n)
}

// Server returns an attribute for a remote server address
func Server(addr string) attribute.KeyValue {
	return attribute.String(AttrServer, addr)
}

// Tier returns an attribute for a load-balancer tier (primary/secondary)
func Tier(tier string) attribute.KeyValue {
	return attribute.String(AttrTier, tier)
}

// MappingPolicy returns an attribute for the pass-through mapping policy
func MappingPolicy(policy string) attribute.KeyValue {
	return attribute.String(AttrPolicy, policy)
}

// CacheHit returns an attribute for a password cache hit/miss
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// Scheme returns an attribute for a password storage scheme
func Scheme(name string) attribute.KeyValue {
	return attribute.String(AttrScheme, name)
}

// StartBindSpan starts a span for one bind round trip.
func StartBindSpan(ctx context.Context, mechanism, dn string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Mechanism(mechanism),
	}
	if dn != "" {
		allAttrs = append(allAttrs, BindDN(dn))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanBind, trace.WithAttributes(allAttrs...))
}

// StartMapperSpan starts a span for an identity or certificate mapping.
func StartMapperSpan(ctx context.Context, spanName, mapper string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Mapper(mapper),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartPassThroughSpan starts a span for a pass-through operation.
func StartPassThroughSpan(ctx context.Context, spanName, server string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{}
	if server != "" {
		allAttrs = append(allAttrs, Server(server))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}
