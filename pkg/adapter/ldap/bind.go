package ldap

import (
	"context"
	"errors"
	"fmt"
	"time"

	ldapv3 "github.com/go-ldap/ldap/v3"
	"go.opentelemetry.io/otel/codes"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/telemetry"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/security"
)

var (
	errUnauthenticatedBind = errors.New("ldap: unauthenticated bind with a DN and no password")
	errAnonymousDisabled   = errors.New("ldap: anonymous simple bind is disabled")
)

const (
	msgVersion3Only         = "only LDAP version 3 is supported"
	msgUnauthenticatedBind  = "unauthenticated bind (DN with no password) is not allowed"
	msgAnonymousBindRefused = "anonymous simple bind is not allowed"
)

// handleBind answers a BindRequest and installs a negotiated SASL layer
// once the response has been written.
func (c *Connection) handleBind(ctx context.Context, msg *message) bool {
	req, err := parseBindRequest(msg.op)
	if err != nil {
		logger.DebugCtx(ctx, "Malformed bind request", logger.Err(err))
		c.send(ctx, encodeBindResponse(msg.id, auth.ResultProtocolError, auth.DiagnosticMessage(auth.ResultProtocolError), nil))
		return false
	}
	if req.version != protocolVersion3 {
		c.auth.SetAuthenticationInfo(nil)
		return c.send(ctx, encodeBindResponse(msg.id, auth.ResultProtocolError, msgVersion3Only, nil))
	}

	var outcome *auth.BindOutcome
	if req.isSimple() {
		outcome = c.simpleBind(ctx, req)
	} else {
		outcome = c.server.deps.Dispatcher.ProcessBind(ctx, c.auth, &auth.BindRequest{
			DN:          req.name,
			Mechanism:   req.mechanism,
			Credentials: req.credentials,
		})
	}

	if !c.send(ctx, encodeBindResponse(msg.id, outcome.ResultCode, outcome.DiagnosticMessage, outcome.ServerCredentials)) {
		return false
	}

	if !outcome.Succeeded() {
		return true
	}
	layer := c.auth.TakeSecurityLayer()
	if layer == nil {
		return true
	}
	opts := c.channelOptions()
	opts.Layer = layer
	if err := c.install(ctx, opts); err != nil {
		logger.WarnCtx(ctx, "Failed to install SASL security layer", logger.Err(err))
		return false
	}
	logger.DebugCtx(ctx, "SASL security layer installed",
		logger.KeyQOP, layer.QOP(), logger.SSF(c.channel.SSF()))
	return true
}

// simpleBind verifies a simple bind. It abandons any SASL bind in progress
// and leaves the connection unauthenticated unless the bind succeeds.
func (c *Connection) simpleBind(ctx context.Context, req *bindRequest) *auth.BindOutcome {
	start := time.Now()

	ctx, span := telemetry.StartBindSpan(ctx, auth.MechanismSimple, req.name, telemetry.ConnectionID(c.auth.ID))
	defer span.End()
	if lc := logger.FromContext(ctx); lc != nil {
		ctx = logger.WithContext(ctx, lc.WithMechanism(auth.MechanismSimple).WithBindDN(req.name))
	}

	if err := c.auth.ClearMechanismState(); err != nil {
		logger.WarnCtx(ctx, "Failed to dispose mechanism state", logger.Err(err))
	}
	c.auth.SetAuthenticationInfo(nil)

	outcome := c.verifySimple(ctx, req)
	if outcome.Succeeded() {
		c.auth.SetAuthenticationInfo(outcome.AuthInfo)
	}
	if outcome.DiagnosticMessage == "" {
		outcome.DiagnosticMessage = auth.DiagnosticMessage(outcome.ResultCode)
	}

	span.SetAttributes(telemetry.ResultCode(uint16(outcome.ResultCode)))
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.ResultCode.String())
	}
	c.server.deps.Dispatcher.Metrics().RecordBind(auth.MechanismSimple, outcome.ResultCode, time.Since(start))

	if outcome.Succeeded() {
		logger.InfoCtx(ctx, "Bind succeeded", logger.AuthzID(outcome.AuthInfo.AuthzID()), logger.DurationMs(start))
	} else {
		logger.InfoCtx(ctx, "Bind failed",
			logger.ResultCode(int(outcome.ResultCode)), logger.Err(outcome.Err), logger.DurationMs(start))
	}
	return outcome
}

func (c *Connection) verifySimple(ctx context.Context, req *bindRequest) *auth.BindOutcome {
	switch {
	case req.name == "" && len(req.credentials) == 0:
		if !c.server.config.AllowAnonymousSimpleBind {
			o := auth.FailedWithCode(auth.ResultInappropriateAuthentication, errAnonymousDisabled)
			o.DiagnosticMessage = msgAnonymousBindRefused
			return o
		}
		return auth.Succeeded(auth.AnonymousInfo(auth.MechanismSimple), nil, nil)

	case len(req.credentials) == 0:
		o := auth.FailedWithCode(auth.ResultUnwillingToPerform, errUnauthenticatedBind)
		o.DiagnosticMessage = msgUnauthenticatedBind
		return o
	}

	entry, err := c.server.deps.Directory.GetEntry(ctx, req.name)
	switch {
	case ldapv3.IsErrorWithCode(err, ldapv3.LDAPResultInvalidDNSyntax):
		return auth.Failed(fmt.Errorf("%w: %v", auth.ErrInvalidCredentials, err))
	case err != nil:
		return auth.FailedWithCode(auth.ResultOther, fmt.Errorf("look up %q: %w", req.name, err))
	case entry == nil:
		return auth.Failed(fmt.Errorf("%w: no entry %q", auth.ErrInvalidCredentials, req.name))
	}

	ok, err := c.server.deps.Passwords.PasswordMatches(ctx, entry, req.credentials)
	switch {
	case err != nil:
		return auth.Failed(err)
	case !ok:
		return auth.Failed(fmt.Errorf("%w: password mismatch for %q", auth.ErrInvalidCredentials, entry.DN))
	}

	return auth.Succeeded(&auth.AuthenticationInfo{
		Mechanism:           auth.MechanismSimple,
		AuthenticationDN:    entry.DN,
		AuthenticationEntry: entry,
	}, nil, nil)
}

// handleExtended answers StartTLS and Who am I?. Other extended
// operations get protocolError as RFC 4511 requires for unrecognized names.
func (c *Connection) handleExtended(ctx context.Context, msg *message) bool {
	req, err := parseExtendedRequest(msg.op)
	if err != nil {
		logger.DebugCtx(ctx, "Malformed extended request", logger.Err(err))
		return c.send(ctx, encodeExtendedResponse(msg.id, auth.ResultProtocolError, msgMalformed, "", nil))
	}

	switch req.name {
	case OIDStartTLS:
		return c.startTLS(ctx, msg)
	case OIDWhoAmI:
		authzID := c.auth.AuthenticationInfo().AuthzID()
		return c.send(ctx, encodeExtendedResponse(msg.id, auth.ResultSuccess, "", "", []byte(authzID)))
	default:
		logger.DebugCtx(ctx, "Unsupported extended operation", "oid", req.name)
		return c.send(ctx, encodeExtendedResponse(msg.id, auth.ResultProtocolError,
			fmt.Sprintf("unsupported extended operation %s", req.name), "", nil))
	}
}

func (c *Connection) startTLS(ctx context.Context, msg *message) bool {
	reject := func(code auth.ResultCode, diagnostic string) bool {
		logger.DebugCtx(ctx, "StartTLS rejected", logger.ResultCode(int(code)), "reason", diagnostic)
		return c.send(ctx, encodeExtendedResponse(msg.id, code, diagnostic, OIDStartTLS, nil))
	}

	switch {
	case c.server.config.TLS || c.channel.Name() != security.NameNull:
		return reject(auth.ResultOperationsError, "TLS or a SASL security layer is already active")
	case c.server.deps.TLSConfig == nil:
		return reject(auth.ResultUnavailable, "StartTLS is not configured")
	case c.auth.InProgressMechanism() != "":
		return reject(auth.ResultOperationsError, "a SASL bind is in progress")
	}

	if !c.send(ctx, encodeExtendedResponse(msg.id, auth.ResultSuccess, "", OIDStartTLS, nil)) {
		return false
	}

	opts := c.channelOptions()
	opts.TLSConfig = c.server.deps.TLSConfig
	if err := c.install(ctx, opts); err != nil {
		logger.InfoCtx(ctx, "StartTLS failed", logger.Err(err))
		return false
	}
	logger.DebugCtx(ctx, "StartTLS established", logger.SSF(c.channel.SSF()))
	return true
}
