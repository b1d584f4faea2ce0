package digestmd5

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// Cipher names offered with auth-conf.
const (
	CipherRC4   = "rc4"
	CipherRC456 = "rc4-56"
	CipherRC440 = "rc4-40"
)

// SupportedCiphers lists the auth-conf ciphers in preference order.
var SupportedCiphers = []string{CipherRC4, CipherRC456, CipherRC440}

const (
	macLength  = 10
	msgType    = 0x0001
	trailerLen = 2 + 4 // message type + sequence number
	overhead   = macLength + trailerLen
)

// cipherKeyBytes is the number of H(A1) bytes fed into the sealing key.
func cipherKeyBytes(cipher string) (int, bool) {
	switch cipher {
	case CipherRC4:
		return 16, true
	case CipherRC456:
		return 7, true
	case CipherRC440:
		return 5, true
	}
	return 0, false
}

func cipherSSF(cipher string) int {
	switch cipher {
	case CipherRC4:
		return 128
	case CipherRC456:
		return 56
	case CipherRC440:
		return 40
	}
	return 0
}

// Layer is the DIGEST-MD5 integrity (auth-int) or confidentiality
// (auth-conf) layer. Each direction has its own HMAC-MD5 key, sequence
// number and, for auth-conf, RC4 keystream.
type Layer struct {
	mu sync.Mutex

	qop     string
	ssf     int
	maxSend int

	sendKey, recvKey       []byte
	sendSeq, recvSeq       uint32
	sendCipher, recvCipher *rc4.Cipher
	disposed               bool
}

var _ auth.SecurityLayer = (*Layer)(nil)

// NewLayer builds the layer for one side of the session. server selects the
// server-to-client keys for sending. peerMaxBuf is the peer's advertised
// receive buffer.
func NewLayer(qop, cipher string, ha1 [md5.Size]byte, peerMaxBuf int, server bool) (*Layer, error) {
	if qop != QOPIntegrity && qop != QOPConfidentiality {
		return nil, fmt.Errorf("no security layer for qop %q", qop)
	}

	sendSign, recvSign := magicSignServerToClient, magicSignClientToServer
	sendSeal, recvSeal := magicSealServerToClient, magicSealClientToServer
	if !server {
		sendSign, recvSign = recvSign, sendSign
		sendSeal, recvSeal = recvSeal, sendSeal
	}

	l := &Layer{
		qop:     qop,
		ssf:     1,
		maxSend: peerMaxBuf - overhead,
		sendKey: deriveKey(ha1[:], sendSign),
		recvKey: deriveKey(ha1[:], recvSign),
	}
	if l.maxSend <= 0 {
		return nil, fmt.Errorf("peer buffer %d too small", peerMaxBuf)
	}

	if qop == QOPConfidentiality {
		n, ok := cipherKeyBytes(cipher)
		if !ok {
			return nil, fmt.Errorf("unsupported cipher %q", cipher)
		}
		var err error
		if l.sendCipher, err = rc4.NewCipher(deriveKey(ha1[:n], sendSeal)); err != nil {
			return nil, err
		}
		if l.recvCipher, err = rc4.NewCipher(deriveKey(ha1[:n], recvSeal)); err != nil {
			return nil, err
		}
		l.ssf = cipherSSF(cipher)
	}
	return l, nil
}

func (l *Layer) QOP() string      { return l.qop }
func (l *Layer) SSF() int         { return l.ssf }
func (l *Layer) MaxSendSize() int { return l.maxSend }

func mac(key []byte, seq uint32, msg []byte) []byte {
	h := hmac.New(md5.New, key)
	var s [4]byte
	binary.BigEndian.PutUint32(s[:], seq)
	h.Write(s[:])
	h.Write(msg)
	return h.Sum(nil)[:macLength]
}

// Wrap protects p: msg ++ MAC ++ type ++ seq, with msg ++ MAC encrypted
// under auth-conf.
func (l *Layer) Wrap(p []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return nil, fmt.Errorf("%w: security layer disposed", auth.ErrFraming)
	}
	if len(p) > l.maxSend {
		return nil, fmt.Errorf("%w: %d bytes exceeds send limit %d", auth.ErrFraming, len(p), l.maxSend)
	}

	out := make([]byte, 0, len(p)+overhead)
	out = append(out, p...)
	out = append(out, mac(l.sendKey, l.sendSeq, p)...)
	if l.sendCipher != nil {
		l.sendCipher.XORKeyStream(out, out)
	}
	out = binary.BigEndian.AppendUint16(out, msgType)
	out = binary.BigEndian.AppendUint32(out, l.sendSeq)
	l.sendSeq++
	return out, nil
}

// Unwrap verifies one frame. A bad MAC, message type or sequence number is
// a framing error and the connection cannot continue.
func (l *Layer) Unwrap(p []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return nil, fmt.Errorf("%w: security layer disposed", auth.ErrFraming)
	}
	if len(p) < overhead {
		return nil, fmt.Errorf("%w: wrapped message of %d bytes too short", auth.ErrFraming, len(p))
	}

	body := p[:len(p)-trailerLen]
	if binary.BigEndian.Uint16(p[len(body):]) != msgType {
		return nil, fmt.Errorf("%w: bad message type", auth.ErrFraming)
	}
	if seq := binary.BigEndian.Uint32(p[len(body)+2:]); seq != l.recvSeq {
		return nil, fmt.Errorf("%w: sequence number %d, expected %d", auth.ErrFraming, seq, l.recvSeq)
	}

	if l.recvCipher != nil {
		plain := make([]byte, len(body))
		l.recvCipher.XORKeyStream(plain, body)
		body = plain
	}
	msg, got := body[:len(body)-macLength], body[len(body)-macLength:]
	if !hmac.Equal(got, mac(l.recvKey, l.recvSeq, msg)) {
		return nil, fmt.Errorf("%w: message authentication failed", auth.ErrFraming)
	}
	l.recvSeq++

	out := make([]byte, len(msg))
	copy(out, msg)
	return out, nil
}

// Dispose wipes the keys. Later Wrap and Unwrap calls fail.
func (l *Layer) Dispose() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return nil
	}
	l.disposed = true
	clear(l.sendKey)
	clear(l.recvKey)
	if l.sendCipher != nil {
		l.sendCipher.Reset()
	}
	if l.recvCipher != nil {
		l.recvCipher.Reset()
	}
	return nil
}
