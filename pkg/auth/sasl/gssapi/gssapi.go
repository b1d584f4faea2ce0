// Package gssapi implements the GSSAPI SASL mechanism (RFC 4752) over
// Kerberos v5.
//
// A bind proceeds as:
//
//  1. The client sends a GSS initial context token carrying an AP-REQ.
//     If it asked for mutual authentication the server answers with an
//     AP-REP and expects an empty response.
//  2. The server sends a wrap token with its security-layer offer: one
//     octet bitmask (1 none, 2 integrity, 4 confidentiality) and a 3-octet
//     maximum buffer size.
//  3. The client answers with a wrap token holding its choice, its own
//     buffer size and an optional authorization identity.
//
// The authorization identity, when present, must name the authenticated
// principal. The principal (or that identity) is mapped to an entry with
// the configured identity mapper.
package gssapi

import (
	"context"
	"fmt"
	"math/bits"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/mapper"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/sasl"
)

// Quality of protection values.
const (
	QOPAuth            = "auth"
	QOPIntegrity       = "auth-int"
	QOPConfidentiality = "auth-conf"
)

// Security layer bits (RFC 4752 section 3.3).
const (
	layerNone            byte = 1
	layerIntegrity       byte = 2
	layerConfidentiality byte = 4
)

const (
	// DefaultMaxBuffer is the largest wrapped token the server accepts
	// unless configured otherwise.
	DefaultMaxBuffer = 65536

	maxBufferLimit = 0xFFFFFF
)

// Config configures the handler.
type Config struct {
	// Verifier accepts AP-REQs. Required.
	Verifier Verifier

	// Mapper maps principal@REALM to an entry. Required.
	Mapper mapper.IdentityMapper

	// QOP lists the offered protections. Default: auth.
	QOP []string

	// MaxBuffer is the largest wrapped token accepted. Default: 65536
	MaxBuffer int

	Metrics *Metrics
}

// Mechanism is the GSSAPI handler. All per-bind data lives in the
// connection's mechanism state.
type Mechanism struct {
	verifier  Verifier
	mapper    mapper.IdentityMapper
	offered   byte
	maxBuffer int
	metrics   *Metrics
}

var _ auth.Mechanism = (*Mechanism)(nil)

// New validates cfg.
func New(cfg Config) (*Mechanism, error) {
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("%w: GSSAPI requires Kerberos acceptor credentials", auth.ErrConfiguration)
	}
	if cfg.Mapper == nil {
		return nil, fmt.Errorf("%w: GSSAPI requires an identity mapper", auth.ErrConfiguration)
	}

	var offered byte
	for _, q := range cfg.QOP {
		switch strings.ToLower(strings.TrimSpace(q)) {
		case QOPAuth:
			offered |= layerNone
		case QOPIntegrity:
			offered |= layerIntegrity
		case QOPConfidentiality:
			offered |= layerConfidentiality
		default:
			return nil, fmt.Errorf("%w: unknown GSSAPI qop %q", auth.ErrConfiguration, q)
		}
	}
	if offered == 0 {
		offered = layerNone
	}

	maxBuffer := cfg.MaxBuffer
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	maxBuffer = min(maxBuffer, maxBufferLimit)

	return &Mechanism{
		verifier:  cfg.Verifier,
		mapper:    cfg.Mapper,
		offered:   offered,
		maxBuffer: maxBuffer,
		metrics:   cfg.Metrics,
	}, nil
}

func (*Mechanism) Name() string          { return auth.MechanismGSSAPI }
func (*Mechanism) IsPasswordBased() bool { return false }
func (*Mechanism) IsSecure() bool        { return true }

// QOP returns the offered protections in configuration form.
func (m *Mechanism) QOP() []string {
	var out []string
	if m.offered&layerNone != 0 {
		out = append(out, QOPAuth)
	}
	if m.offered&layerIntegrity != 0 {
		out = append(out, QOPIntegrity)
	}
	if m.offered&layerConfidentiality != 0 {
		out = append(out, QOPConfidentiality)
	}
	return out
}

type stage int

const (
	stageMutual stage = iota + 1
	stageNegotiate
)

type state struct {
	stage stage
	vc    *VerifiedContext
	sc    *secContext

	// layerOwned is set once a security layer took over the context.
	layerOwned bool
}

func (s *state) Dispose() error {
	if s.sc != nil && !s.layerOwned {
		s.sc.dispose()
	}
	return nil
}

// ProcessBind advances the bind by one round trip.
func (m *Mechanism) ProcessBind(ctx context.Context, conn *auth.Connection, req *auth.BindRequest) *auth.BindOutcome {
	st, _ := conn.MechanismState(auth.MechanismGSSAPI).(*state)
	if st == nil {
		return m.accept(ctx, conn, req.Credentials)
	}

	switch st.stage {
	case stageMutual:
		if len(req.Credentials) != 0 {
			return m.fail(reasonNegotiation, fmt.Errorf("%w: expected an empty response after AP-REP", auth.ErrInvalidCredentials))
		}
		return m.offer(st)
	case stageNegotiate:
		return m.negotiate(ctx, st, req.Credentials)
	default:
		return m.fail(reasonContext, fmt.Errorf("%w: unexpected GSSAPI stage %d", auth.ErrInvalidCredentials, st.stage))
	}
}

func (m *Mechanism) accept(ctx context.Context, conn *auth.Connection, token []byte) *auth.BindOutcome {
	start := time.Now()
	defer func() { m.metrics.RecordDuration("accept", time.Since(start)) }()

	if len(token) == 0 {
		return m.fail(reasonCredential, fmt.Errorf("%w: missing initial context token", auth.ErrInvalidCredentials))
	}

	vc, err := m.verifier.VerifyToken(ctx, token)
	if err != nil {
		m.metrics.RecordContextCreation(false)
		return m.fail(reasonCredential, fmt.Errorf("%w: %v", auth.ErrInvalidCredentials, err))
	}
	m.metrics.RecordContextCreation(true)

	st := &state{vc: vc, sc: newSecContext(vc)}
	if err := conn.SetMechanismState(auth.MechanismGSSAPI, st); err != nil {
		logger.WarnCtx(ctx, "Failed to dispose previous GSSAPI state", logger.Err(err))
	}

	if len(vc.APRepToken) > 0 {
		st.stage = stageMutual
		return auth.InProgress(vc.APRepToken)
	}
	return m.offer(st)
}

// offer sends the security layer bitmask and the server buffer size. The
// size is zero when no layer is offered.
func (m *Mechanism) offer(st *state) *auth.BindOutcome {
	size := m.maxBuffer
	if m.offered == layerNone {
		size = 0
	}
	payload := []byte{m.offered, byte(size >> 16), byte(size >> 8), byte(size)}

	tok, err := st.sc.wrap(payload, false)
	if err != nil {
		return m.fail(reasonContext, fmt.Errorf("wrap security layer offer: %w", err))
	}
	st.stage = stageNegotiate
	return auth.InProgress(tok)
}

func (m *Mechanism) negotiate(ctx context.Context, st *state, token []byte) *auth.BindOutcome {
	start := time.Now()
	defer func() { m.metrics.RecordDuration("negotiate", time.Since(start)) }()

	payload, _, err := st.sc.unwrap(token)
	if err != nil {
		return m.fail(reasonContext, fmt.Errorf("%w: %v", auth.ErrInvalidCredentials, err))
	}
	if len(payload) < 4 {
		return m.fail(reasonNegotiation, fmt.Errorf("%w: security layer response too short", auth.ErrInvalidCredentials))
	}

	choice := payload[0]
	if bits.OnesCount8(choice) != 1 || choice&m.offered == 0 {
		return m.fail(reasonNegotiation, fmt.Errorf("%w: security layer %#x not offered", auth.ErrInvalidCredentials, choice))
	}
	clientMax := int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])

	authzid := string(payload[4:])
	if !utf8.ValidString(authzid) {
		return m.fail(reasonNegotiation, fmt.Errorf("%w: authorization identity is not UTF-8", auth.ErrInvalidCredentials))
	}

	principal := st.vc.FullPrincipal()
	if authzid != "" && authzid != principal && authzid != st.vc.Principal {
		logger.WarnCtx(ctx, "GSSAPI authorization identity differs from the authenticated principal",
			logger.Principal(principal), logger.AuthzID(authzid))
		return m.fail(reasonAuthzID, fmt.Errorf("%w: %q may not authorize as %q", auth.ErrInvalidCredentials, principal, authzid))
	}

	id := authzid
	if id == "" {
		id = principal
	}
	entry, err := m.mapper.MapIdentity(ctx, id)
	if err != nil {
		return m.fail(reasonMapping, fmt.Errorf("map principal %q: %w", id, err))
	}

	var layer auth.SecurityLayer
	if choice != layerNone {
		l, err := newLayer(st.sc, choice == layerConfidentiality, clientMax, m.maxBuffer)
		if err != nil {
			return m.fail(reasonNegotiation, fmt.Errorf("%w: %v", auth.ErrInvalidCredentials, err))
		}
		st.layerOwned = true
		layer = l
	}
	m.metrics.RecordLayer(choice)

	logger.DebugCtx(ctx, "GSSAPI context established",
		logger.Principal(principal),
		logger.BindDN(entry.DN),
		"layer", layerName(choice),
	)
	return auth.Succeeded(sasl.Info(auth.MechanismGSSAPI, entry, nil), nil, layer)
}

func (m *Mechanism) fail(reason string, err error) *auth.BindOutcome {
	m.metrics.RecordAuthFailure(reason)
	return auth.Failed(err)
}
