package gssapi

import (
	"fmt"
	"sync"

	"github.com/jcmturner/gokrb5/v8/types"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// Security strength factors reported for the negotiated layers.
const (
	ssfIntegrity       = 1
	ssfConfidentiality = 56
)

// secContext is an established krb5 security context on the acceptor side.
type secContext struct {
	key            types.EncryptionKey
	acceptorSubkey bool

	mu      sync.Mutex
	sendSeq uint64
	recvSeq uint64
}

func newSecContext(vc *VerifiedContext) *secContext {
	return &secContext{
		key:            vc.SessionKey,
		acceptorSubkey: vc.HasAcceptorSubkey,
		sendSeq:        vc.AcceptorSeq,
		recvSeq:        vc.InitiatorSeq,
	}
}

// wrap emits one acceptor token and advances the send sequence.
func (c *secContext) wrap(payload []byte, seal bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, err := wrapToken(c.key, true, c.acceptorSubkey, seal, c.sendSeq, payload)
	if err != nil {
		return nil, err
	}
	c.sendSeq++
	return tok, nil
}

// unwrap verifies one initiator token. Tokens must arrive in order.
func (c *secContext) unwrap(token []byte) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, hdr, err := unwrapToken(c.key, false, token)
	if err != nil {
		return nil, false, err
	}
	if hdr.seq != c.recvSeq {
		return nil, false, fmt.Errorf("wrap token sequence %d, expected %d", hdr.seq, c.recvSeq)
	}
	c.recvSeq++
	return payload, hdr.flags&flagSealed != 0, nil
}

func (c *secContext) dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.key.KeyValue)
	c.key = types.EncryptionKey{}
}

// Layer is the auth-int or auth-conf security layer over RFC 4121 wrap
// tokens.
type Layer struct {
	ctx     *secContext
	seal    bool
	maxSend int
	maxRecv int

	mu       sync.Mutex
	disposed bool
}

var _ auth.SecurityLayer = (*Layer)(nil)

// newLayer creates the layer chosen by the client. peerMaxBuf is the
// largest token the client accepts and maxRecv the largest the server
// accepts.
func newLayer(ctx *secContext, seal bool, peerMaxBuf, maxRecv int) (*Layer, error) {
	overhead, err := wrapOverhead(ctx.key, seal)
	if err != nil {
		return nil, err
	}
	if peerMaxBuf <= overhead {
		return nil, fmt.Errorf("client max buffer %d leaves no room for data", peerMaxBuf)
	}
	return &Layer{
		ctx:     ctx,
		seal:    seal,
		maxSend: peerMaxBuf - overhead,
		maxRecv: maxRecv,
	}, nil
}

func (l *Layer) QOP() string {
	if l.seal {
		return QOPConfidentiality
	}
	return QOPIntegrity
}

func (l *Layer) SSF() int {
	if l.seal {
		return ssfConfidentiality
	}
	return ssfIntegrity
}

func (l *Layer) MaxSendSize() int { return l.maxSend }

// Wrap protects p with the negotiated quality of protection.
func (l *Layer) Wrap(p []byte) ([]byte, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	if len(p) > l.maxSend {
		return nil, fmt.Errorf("%w: %d bytes exceeds the peer buffer of %d", auth.ErrFraming, len(p), l.maxSend)
	}
	tok, err := l.ctx.wrap(p, l.seal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrFraming, err)
	}
	return tok, nil
}

// Unwrap verifies one received token. An integrity-only token on a
// confidentiality layer is rejected.
func (l *Layer) Unwrap(p []byte) ([]byte, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	if len(p) > l.maxRecv {
		return nil, fmt.Errorf("%w: %d bytes exceeds the receive buffer of %d", auth.ErrFraming, len(p), l.maxRecv)
	}
	payload, sealed, err := l.ctx.unwrap(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrFraming, err)
	}
	if l.seal && !sealed {
		return nil, fmt.Errorf("%w: unsealed token on a confidentiality layer", auth.ErrFraming)
	}
	return payload, nil
}

// Dispose zeroes the session key. Safe to call more than once.
func (l *Layer) Dispose() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.disposed {
		l.disposed = true
		l.ctx.dispose()
	}
	return nil
}

func (l *Layer) check() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return fmt.Errorf("%w: security layer disposed", auth.ErrFraming)
	}
	return nil
}
