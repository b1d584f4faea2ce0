package gssapi

import (
	"context"
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/asn1tools"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/service"
	"github.com/jcmturner/gokrb5/v8/types"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/kerberos"
)

// krb5OID is the Kerberos 5 GSS-API mechanism, 1.2.840.113554.1.2.2.
var krb5OID = asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}

// Inner token IDs (RFC 1964 section 1.1).
const (
	tokenIDAPReq uint16 = 0x0100
	tokenIDAPRep uint16 = 0x0200
)

// VerifiedContext is the result of accepting an initial context token.
type VerifiedContext struct {
	// Principal is the client principal name without realm, e.g. "alice".
	Principal string

	// Realm is the client realm, e.g. "EXAMPLE.COM".
	Realm string

	// SessionKey protects wrap tokens. It is the authenticator subkey when
	// the client sent one, otherwise the ticket session key.
	SessionKey types.EncryptionKey

	// APRepToken is returned to the client when it requested mutual
	// authentication. Empty otherwise.
	APRepToken []byte

	// HasAcceptorSubkey is set when the AP-REP asserted a subkey; wrap
	// tokens then carry the AcceptorSubkey flag.
	HasAcceptorSubkey bool

	// InitiatorSeq is the initial sequence number of the client's tokens.
	InitiatorSeq uint64

	// AcceptorSeq is the initial sequence number of the server's tokens.
	AcceptorSeq uint64
}

// FullPrincipal returns principal@REALM.
func (vc *VerifiedContext) FullPrincipal() string {
	return kerberos.JoinPrincipal(vc.Principal, vc.Realm)
}

// Verifier accepts a GSS-API initial context token.
//
// The production implementation is Krb5Verifier; tests substitute a fake
// so the state machine can run without a KDC.
type Verifier interface {
	VerifyToken(ctx context.Context, gssToken []byte) (*VerifiedContext, error)
}

// Krb5Verifier verifies AP-REQs against the provider's keytab.
type Krb5Verifier struct {
	provider *kerberos.Provider
}

// NewKrb5Verifier creates a verifier reading keys from provider.
func NewKrb5Verifier(provider *kerberos.Provider) *Krb5Verifier {
	return &Krb5Verifier{provider: provider}
}

// VerifyToken accepts a GSS-API wrapped or raw AP-REQ.
func (v *Krb5Verifier) VerifyToken(ctx context.Context, gssToken []byte) (*VerifiedContext, error) {
	apReqBytes, err := extractAPReq(gssToken)
	if err != nil {
		return nil, fmt.Errorf("extract AP-REQ from GSS token: %w", err)
	}

	var apReq messages.APReq
	if err := apReq.Unmarshal(apReqBytes); err != nil {
		return nil, fmt.Errorf("unmarshal AP-REQ: %w", err)
	}

	settings := service.NewSettings(
		v.provider.Keytab(),
		service.MaxClockSkew(v.provider.MaxClockSkew()),
		service.DecodePAC(false),
		service.KeytabPrincipal(v.provider.ServicePrincipal()),
	)

	ok, _, err := service.VerifyAPREQ(&apReq, settings)
	if err != nil {
		return nil, fmt.Errorf("verify AP-REQ: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("AP-REQ verification failed")
	}

	// AP-Options bit 2 (MSB numbering) is mutual-required.
	mutualRequired := len(apReq.APOptions.Bytes) > 0 && apReq.APOptions.Bytes[0]&0x20 != 0

	sessionKey := apReq.Ticket.DecryptedEncPart.Key
	if err := apReq.DecryptAuthenticator(sessionKey); err != nil {
		return nil, fmt.Errorf("decrypt authenticator: %w", err)
	}

	contextKey := sessionKey
	if hasSubkey(apReq) {
		contextKey = apReq.Authenticator.SubKey
	}

	vc := &VerifiedContext{
		Principal:    apReq.Ticket.DecryptedEncPart.CName.PrincipalNameString(),
		Realm:        apReq.Ticket.DecryptedEncPart.CRealm,
		SessionKey:   contextKey,
		InitiatorSeq: uint64(apReq.Authenticator.SeqNumber),
		AcceptorSeq:  uint64(apReq.Authenticator.SeqNumber),
	}

	if mutualRequired {
		vc.APRepToken, err = buildAPRep(apReq, sessionKey, vc.AcceptorSeq)
		if err != nil {
			return nil, fmt.Errorf("build AP-REP: %w", err)
		}
		vc.HasAcceptorSubkey = hasSubkey(apReq)
	}

	logger.DebugCtx(ctx, "AP-REQ accepted",
		logger.Principal(vc.FullPrincipal()),
		"mutual_required", mutualRequired,
		"has_subkey", hasSubkey(apReq),
		"etype", contextKey.KeyType,
	)
	return vc, nil
}

func hasSubkey(apReq messages.APReq) bool {
	return apReq.Authenticator.SubKey.KeyType != 0 && len(apReq.Authenticator.SubKey.KeyValue) > 0
}

// extractAPReq strips the GSS-API initial context token framing
//
//	0x60 [length] 0x06 [OID-length] [OID] 0x01 0x00 [AP-REQ]
//
// Tokens not starting with 0x60 are treated as a raw AP-REQ.
func extractAPReq(token []byte) ([]byte, error) {
	if len(token) < 2 {
		return nil, fmt.Errorf("token too short: %d bytes", len(token))
	}
	if token[0] != 0x60 {
		return token, nil
	}

	offset := 1
	length, n, err := parseASN1Length(token[offset:])
	if err != nil {
		return nil, fmt.Errorf("parse GSS token length: %w", err)
	}
	offset += n
	if offset+length > len(token) {
		return nil, fmt.Errorf("GSS token truncated: expected %d bytes, have %d", offset+length, len(token))
	}

	if offset >= len(token) || token[offset] != 0x06 {
		return nil, fmt.Errorf("expected OID tag at offset %d", offset)
	}
	if offset+1 >= len(token) {
		return nil, fmt.Errorf("truncated OID length")
	}
	oidEnd := offset + 2 + int(token[offset+1])
	if oidEnd > len(token) {
		return nil, fmt.Errorf("truncated OID")
	}

	var oid asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(token[offset:oidEnd], &oid); err != nil {
		return nil, fmt.Errorf("parse mechanism OID: %w", err)
	}
	if !oid.Equal(krb5OID) {
		return nil, fmt.Errorf("unsupported GSS mechanism %s", oid)
	}
	offset = oidEnd

	if offset+2 > len(token) {
		return nil, fmt.Errorf("truncated token ID")
	}
	tokenID := uint16(token[offset])<<8 | uint16(token[offset+1])
	if tokenID != tokenIDAPReq {
		return nil, fmt.Errorf("unexpected krb5 token ID 0x%04x", tokenID)
	}
	return token[offset+2:], nil
}

// buildAPRep builds the GSS-wrapped AP-REP echoing the authenticator's
// ctime, cusec and subkey.
func buildAPRep(apReq messages.APReq, sessionKey types.EncryptionKey, seq uint64) ([]byte, error) {
	encPart := messages.EncAPRepPart{
		CTime:          apReq.Authenticator.CTime,
		Cusec:          apReq.Authenticator.Cusec,
		SequenceNumber: int64(seq),
	}
	if hasSubkey(apReq) {
		encPart.Subkey = apReq.Authenticator.SubKey
	}

	inner, err := asn1.Marshal(encPart)
	if err != nil {
		return nil, fmt.Errorf("marshal EncAPRepPart: %w", err)
	}
	encPartBytes := asn1tools.AddASNAppTag(inner, 27)

	encrypted, err := crypto.GetEncryptedData(encPartBytes, sessionKey, keyusage.AP_REP_ENCPART, 0)
	if err != nil {
		return nil, fmt.Errorf("encrypt EncAPRepPart: %w", err)
	}

	apRep := messages.APRep{
		PVNO:    5,
		MsgType: msgtype.KRB_AP_REP,
		EncPart: encrypted,
	}
	apRepInner, err := asn1.Marshal(apRep)
	if err != nil {
		return nil, fmt.Errorf("marshal AP-REP: %w", err)
	}

	return wrapGSSToken(asn1tools.AddASNAppTag(apRepInner, 15), tokenIDAPRep)
}

// wrapGSSToken frames innerToken as 0x60 [length] OID [token ID] [inner].
func wrapGSSToken(innerToken []byte, tokenID uint16) ([]byte, error) {
	oid, err := asn1.Marshal(krb5OID)
	if err != nil {
		return nil, fmt.Errorf("marshal mechanism OID: %w", err)
	}

	content := make([]byte, 0, len(oid)+2+len(innerToken))
	content = append(content, oid...)
	content = append(content, byte(tokenID>>8), byte(tokenID))
	content = append(content, innerToken...)

	length := encodeASN1Length(len(content))
	out := make([]byte, 0, 1+len(length)+len(content))
	out = append(out, 0x60)
	out = append(out, length...)
	return append(out, content...), nil
}

func encodeASN1Length(length int) []byte {
	if length < 128 {
		return []byte{byte(length)}
	}
	var b []byte
	for length > 0 {
		b = append([]byte{byte(length)}, b...)
		length >>= 8
	}
	return append([]byte{byte(0x80 | len(b))}, b...)
}

// parseASN1Length returns the length value and the number of bytes consumed.
func parseASN1Length(data []byte) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("empty length field")
	}
	first := data[0]
	if first < 0x80 {
		return int(first), 1, nil
	}

	n := int(first & 0x7f)
	if n == 0 || n > 4 {
		return 0, 0, fmt.Errorf("invalid ASN.1 length: %d bytes", n)
	}
	if 1+n > len(data) {
		return 0, 0, fmt.Errorf("truncated ASN.1 length")
	}
	length := 0
	for i := 1; i <= n; i++ {
		length = length<<8 | int(data[i])
	}
	return length, 1 + n, nil
}
