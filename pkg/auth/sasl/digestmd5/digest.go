package digestmd5

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
)

// Method prefixes of A2 (RFC 2831 section 2.1.2.1).
const (
	methodAuthenticate = "AUTHENTICATE"
	methodResponseAuth = ""
)

const zeroEntityHash = ":00000000000000000000000000000000"

// Key derivation constants (RFC 2831 sections 2.3 and 2.4).
const (
	magicSignClientToServer = "Digest session key to client-to-server signing key magic constant"
	magicSignServerToClient = "Digest session key to server-to-client signing key magic constant"
	magicSealClientToServer = "Digest H(A1) to client-to-server sealing key magic constant"
	magicSealServerToClient = "Digest H(A1) to server-to-client sealing key magic constant"
)

// params are the inputs of the md5-sess computation.
type params struct {
	Username  string
	Realm     string
	Password  []byte
	Nonce     string
	CNonce    string
	NC        string
	QOP       string
	DigestURI string
	AuthzID   string
	UTF8      bool
}

func paramsFor(r *Response, realm string, password []byte) *params {
	return &params{
		Username:  r.Username,
		Realm:     realm,
		Password:  password,
		Nonce:     r.Nonce,
		CNonce:    r.CNonce,
		NC:        r.NCText,
		QOP:       r.QOP,
		DigestURI: r.DigestURI,
		AuthzID:   r.AuthzID,
		UTF8:      r.UTF8,
	}
}

// wire returns the bytes s was sent as.
func (p *params) wire(s string) []byte {
	if p.UTF8 {
		return []byte(s)
	}
	if b, err := toLatin1(s); err == nil {
		return b
	}
	return []byte(s)
}

// userRealmPassword is username:realm:passwd. When username, realm and
// password are all representable in ISO-8859-1 they are hashed in that
// charset, otherwise as UTF-8.
func (p *params) userRealmPassword() []byte {
	u, errU := toLatin1(p.Username)
	r, errR := toLatin1(p.Realm)
	pw, errP := toLatin1(string(p.Password))
	if errU != nil || errR != nil || errP != nil {
		u, r, pw = []byte(p.Username), []byte(p.Realm), p.Password
	}
	return bytes.Join([][]byte{u, r, pw}, []byte{':'})
}

// sessionKey is H(A1) for md5-sess.
func (p *params) sessionKey() [md5.Size]byte {
	urp := md5.Sum(p.userRealmPassword())

	var a1 bytes.Buffer
	a1.Write(urp[:])
	a1.WriteByte(':')
	a1.Write(p.wire(p.Nonce))
	a1.WriteByte(':')
	a1.Write(p.wire(p.CNonce))
	if p.AuthzID != "" {
		a1.WriteByte(':')
		a1.Write(p.wire(p.AuthzID))
	}
	return md5.Sum(a1.Bytes())
}

// digest computes the response value for method: AUTHENTICATE for the
// client response, empty for rspauth.
func (p *params) digest(ha1 [md5.Size]byte, method string) []byte {
	a2 := method + ":" + p.DigestURI
	if p.QOP == QOPIntegrity || p.QOP == QOPConfidentiality {
		a2 += zeroEntityHash
	}
	ha2 := md5.Sum(p.wire(a2))

	var kd bytes.Buffer
	kd.WriteString(hex.EncodeToString(ha1[:]))
	kd.WriteByte(':')
	kd.Write(p.wire(p.Nonce))
	kd.WriteByte(':')
	kd.WriteString(p.NC)
	kd.WriteByte(':')
	kd.Write(p.wire(p.CNonce))
	kd.WriteByte(':')
	kd.WriteString(p.QOP)
	kd.WriteByte(':')
	kd.WriteString(hex.EncodeToString(ha2[:]))

	sum := md5.Sum(kd.Bytes())
	return sum[:]
}

// deriveKey is MD5(material ++ magic).
func deriveKey(material []byte, magic string) []byte {
	sum := md5.Sum(append(append([]byte(nil), material...), magic...))
	return sum[:]
}
