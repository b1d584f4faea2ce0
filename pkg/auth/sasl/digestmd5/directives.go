package digestmd5

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// ErrMalformed is returned for challenge or response strings that do not
// follow the RFC 2831 directive syntax. It is an invalid-credentials error.
var ErrMalformed = fmt.Errorf("%w: malformed DIGEST-MD5 directives", auth.ErrInvalidCredentials)

// maxBufLimit is the largest maxbuf value RFC 2831 allows.
const maxBufLimit = 16777215

// ParseDirectives splits a comma-separated list of name=value pairs. Names
// are lower-cased. Values may be quoted strings with backslash escapes; a
// closing quote must be followed by a comma or the end of input. A
// directive may appear only once.
func ParseDirectives(s string) (map[string]string, error) {
	out := make(map[string]string)
	pos := 0
	for pos < len(s) {
		for pos < len(s) && isSeparator(s[pos]) {
			pos++
		}
		if pos >= len(s) {
			break
		}

		eq := strings.IndexByte(s[pos:], '=')
		if eq < 0 {
			return nil, fmt.Errorf("%w: no value at offset %d", ErrMalformed, pos)
		}
		name := strings.ToLower(strings.TrimSpace(s[pos : pos+eq]))
		if name == "" || strings.ContainsAny(name, ",\"") {
			return nil, fmt.Errorf("%w: bad directive name at offset %d", ErrMalformed, pos)
		}

		value, next, err := readValue(s, pos+eq+1)
		if err != nil {
			return nil, err
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: duplicate directive %q", ErrMalformed, name)
		}
		out[name] = value
		pos = next
	}
	return out, nil
}

func isSeparator(c byte) bool {
	return c == ',' || c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// readValue reads one value starting at pos and returns it together with
// the offset just past its terminating comma.
func readValue(s string, pos int) (string, int, error) {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t') {
		pos++
	}
	if pos >= len(s) {
		return "", pos, nil
	}

	if s[pos] != '"' {
		end := strings.IndexByte(s[pos:], ',')
		if end < 0 {
			return strings.TrimSpace(s[pos:]), len(s), nil
		}
		return strings.TrimSpace(s[pos : pos+end]), pos + end + 1, nil
	}

	var b strings.Builder
	for pos++; pos < len(s); pos++ {
		switch c := s[pos]; c {
		case '\\':
			pos++
			if pos >= len(s) {
				return "", 0, fmt.Errorf("%w: dangling escape", ErrMalformed)
			}
			b.WriteByte(s[pos])
		case '"':
			rest := pos + 1
			for rest < len(s) && (s[rest] == ' ' || s[rest] == '\t') {
				rest++
			}
			if rest == len(s) {
				return b.String(), rest, nil
			}
			if s[rest] == ',' {
				return b.String(), rest + 1, nil
			}
			return "", 0, fmt.Errorf("%w: closing quote at offset %d not followed by a comma", ErrMalformed, pos)
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated quoted string", ErrMalformed)
}

// quote renders s as a quoted-string.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// Challenge is the server's digest-challenge.
type Challenge struct {
	Realm string
	Nonce string
	QOP   []string

	// MaxBuf is advertised when non-zero.
	MaxBuf int

	// Ciphers are advertised when auth-conf is offered.
	Ciphers []string
}

// String encodes the challenge. charset=utf-8 and algorithm=md5-sess are
// always present.
func (c *Challenge) String() string {
	var b strings.Builder
	if c.Realm != "" {
		b.WriteString("realm=")
		b.WriteString(quote(c.Realm))
		b.WriteByte(',')
	}
	b.WriteString("nonce=")
	b.WriteString(quote(c.Nonce))
	b.WriteString(",qop=")
	b.WriteString(quote(strings.Join(c.QOP, ",")))
	if c.MaxBuf > 0 {
		b.WriteString(",maxbuf=")
		b.WriteString(strconv.Itoa(c.MaxBuf))
	}
	b.WriteString(",charset=utf-8,algorithm=md5-sess")
	if len(c.Ciphers) > 0 {
		b.WriteString(",cipher=")
		b.WriteString(quote(strings.Join(c.Ciphers, ",")))
	}
	return b.String()
}

// Response is a parsed digest-response.
type Response struct {
	Username  string
	Realm     string
	Nonce     string
	CNonce    string
	DigestURI string
	AuthzID   string

	// NC is the nonce count; NCText is the hex string exactly as sent, which
	// enters the digest.
	NC     uint32
	NCText string

	// QOP defaults to auth.
	QOP string

	// Digest is the decoded 16-byte response value.
	Digest []byte

	// MaxBuf is the client receive buffer. Defaults to 65536.
	MaxBuf int

	Cipher string

	// UTF8 records charset=utf-8. Without it the response was ISO-8859-1.
	UTF8 bool
}

// ParseResponse decodes and validates the client's digest-response.
// Required directives: username, nonce, cnonce, nc, digest-uri, response.
func ParseResponse(raw []byte) (*Response, error) {
	text, isUTF8, err := decodeResponse(raw)
	if err != nil {
		return nil, err
	}
	d, err := ParseDirectives(text)
	if err != nil {
		return nil, err
	}

	r := &Response{
		Username:  d["username"],
		Realm:     d["realm"],
		Nonce:     d["nonce"],
		CNonce:    d["cnonce"],
		DigestURI: d["digest-uri"],
		AuthzID:   d["authzid"],
		NCText:    d["nc"],
		QOP:       QOPAuth,
		MaxBuf:    DefaultMaxBuffer,
		Cipher:    strings.ToLower(d["cipher"]),
		UTF8:      isUTF8,
	}

	if cs, ok := d["charset"]; ok && !strings.EqualFold(cs, "utf-8") {
		return nil, fmt.Errorf("%w: unsupported charset %q", ErrMalformed, cs)
	}

	for _, name := range []string{"username", "nonce", "cnonce", "nc", "digest-uri", "response"} {
		if d[name] == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, name)
		}
	}

	nc, err := strconv.ParseUint(r.NCText, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce count %q", ErrMalformed, r.NCText)
	}
	r.NC = uint32(nc)

	if q, ok := d["qop"]; ok {
		r.QOP = strings.ToLower(q)
	}

	resp := d["response"]
	if len(resp) != 32 {
		return nil, fmt.Errorf("%w: response must be 32 hex digits", ErrMalformed)
	}
	if r.Digest, err = hex.DecodeString(resp); err != nil {
		return nil, fmt.Errorf("%w: bad response value", ErrMalformed)
	}

	if mb, ok := d["maxbuf"]; ok {
		n, err := strconv.Atoi(mb)
		if err != nil || n <= 0 || n > maxBufLimit {
			return nil, fmt.Errorf("%w: bad maxbuf %q", ErrMalformed, mb)
		}
		r.MaxBuf = n
	}

	return r, nil
}

// decodeResponse converts the response to a Go string. Responses without
// charset=utf-8 are ISO-8859-1.
func decodeResponse(raw []byte) (string, bool, error) {
	if bytes.Contains(bytes.ToLower(raw), []byte("charset=utf-8")) {
		if !utf8.Valid(raw) {
			return "", false, fmt.Errorf("%w: invalid UTF-8", ErrMalformed)
		}
		return string(raw), true, nil
	}
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(text), false, nil
}

// toLatin1 converts s to ISO-8859-1, failing when s holds a rune outside
// that repertoire.
func toLatin1(s string) ([]byte, error) {
	out, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
