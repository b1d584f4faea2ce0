package security

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

// ============================================================================
// Test doubles
// ============================================================================

// xorLayer prefixes each wrapped unit with a marker and a checksum byte and
// XORs the payload, so framing bugs surface as unwrap failures.
type xorLayer struct {
	maxSend  int
	disposed atomic.Int32
}

const xorMarker = 0x5A

func (l *xorLayer) Wrap(p []byte) ([]byte, error) {
	if len(p) > l.maxSend {
		return nil, errors.New("too large")
	}
	out := make([]byte, 2+len(p))
	out[0] = xorMarker
	var sum byte
	for i, b := range p {
		out[2+i] = b ^ 0xFF
		sum += b
	}
	out[1] = sum
	return out, nil
}

func (l *xorLayer) Unwrap(p []byte) ([]byte, error) {
	if len(p) < 2 || p[0] != xorMarker {
		return nil, errors.New("bad marker")
	}
	out := make([]byte, len(p)-2)
	var sum byte
	for i, b := range p[2:] {
		out[i] = b ^ 0xFF
		sum += out[i]
	}
	if sum != p[1] {
		return nil, errors.New("bad checksum")
	}
	return out, nil
}

func (l *xorLayer) MaxSendSize() int { return l.maxSend }
func (l *xorLayer) SSF() int         { return 56 }
func (l *xorLayer) QOP() string      { return "auth-conf" }
func (l *xorLayer) Dispose() error   { l.disposed.Add(1); return nil }

// wireChannel captures writes and replays scripted bytes to readers in
// chunks of at most step bytes.
type wireChannel struct {
	mu      sync.Mutex
	written bytes.Buffer
	input   []byte
	step    int
	closed  atomic.Int32

	// stall makes Write report zero bytes without error.
	stall bool
}

func (w *wireChannel) Read(p []byte) (int, error) {
	if len(w.input) == 0 {
		return 0, io.EOF
	}
	n := len(w.input)
	if w.step > 0 && n > w.step {
		n = w.step
	}
	n = copy(p, w.input[:n])
	w.input = w.input[n:]
	return n, nil
}

func (w *wireChannel) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stall {
		return 0, nil
	}
	return w.written.Write(p)
}

func (w *wireChannel) Close() error {
	w.closed.Add(1)
	return nil
}

func (w *wireChannel) SetWriteDeadline(time.Time) error { return nil }

func (w *wireChannel) bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return bytes.Clone(w.written.Bytes())
}

func frame(payload []byte) []byte {
	return appendFrame(nil, payload)
}

// ============================================================================
// Frame reassembly
// ============================================================================

func TestFrameBufferPartialHeader(t *testing.T) {
	fb := newFrameBuffer(1024)
	wire := frame([]byte("hello"))

	require.NoError(t, fb.feed(wire[:2]))
	assert.Nil(t, fb.next())
	assert.Equal(t, 2, fb.neededBytes())

	require.NoError(t, fb.feed(wire[2:6]))
	assert.Nil(t, fb.next())
	assert.Equal(t, 3, fb.neededBytes())

	require.NoError(t, fb.feed(wire[6:]))
	assert.Equal(t, []byte("hello"), fb.next())
	assert.Equal(t, 0, fb.neededBytes())
	assert.Nil(t, fb.next())
}

func TestFrameBufferSeveralFramesPerRead(t *testing.T) {
	fb := newFrameBuffer(1024)
	wire := append(frame([]byte("one")), frame([]byte("two"))...)
	third := frame([]byte("three"))
	wire = append(wire, third[:5]...)

	require.NoError(t, fb.feed(wire))
	assert.Equal(t, []byte("one"), fb.next())
	assert.Equal(t, []byte("two"), fb.next())
	assert.Nil(t, fb.next())
	assert.Equal(t, 4, fb.neededBytes())

	require.NoError(t, fb.feed(third[5:]))
	assert.Equal(t, []byte("three"), fb.next())
}

func TestFrameBufferRejectsBadLengths(t *testing.T) {
	t.Run("Zero", func(t *testing.T) {
		err := newFrameBuffer(1024).feed([]byte{0, 0, 0, 0})
		assert.ErrorIs(t, err, auth.ErrFraming)
	})

	t.Run("TooLarge", func(t *testing.T) {
		hdr := binary.BigEndian.AppendUint32(nil, 1025)
		err := newFrameBuffer(1024).feed(hdr)
		assert.ErrorIs(t, err, auth.ErrFraming)
	})

	t.Run("AtLimit", func(t *testing.T) {
		hdr := binary.BigEndian.AppendUint32(nil, 1024)
		assert.NoError(t, newFrameBuffer(1024).feed(hdr))
	})
}

func TestFrameBufferRelease(t *testing.T) {
	fb := newFrameBuffer(1024)
	wire := append(frame([]byte("done")), frame([]byte("partial"))[:7]...)
	require.NoError(t, fb.feed(wire))

	fb.release()
	assert.Nil(t, fb.next())
	assert.Equal(t, 0, fb.neededBytes())
}

// ============================================================================
// SASL provider
// ============================================================================

func TestSASLRoundTrip(t *testing.T) {
	const maxSend = 100

	sizes := []int{0, 1, maxSend - 1, maxSend, maxSend + 1, 3*maxSend + 7}
	steps := map[string]int{"OneByte": 1, "FullBuffer": 0, "Odd": 7}

	for _, size := range sizes {
		payload := make([]byte, size)
		_, err := rand.Read(payload)
		require.NoError(t, err)

		out := &wireChannel{}
		sender := NewSASLProvider(out, &xorLayer{maxSend: maxSend}, Options{})
		n, err := sender.Write(payload)
		require.NoError(t, err)
		require.Equal(t, size, n)

		wire := out.bytes()
		wantFrames := (size + maxSend - 1) / maxSend
		assert.Len(t, wire, size+wantFrames*(frameHeaderLen+2), "size %d", size)

		for name, step := range steps {
			t.Run(fmt.Sprintf("%s/%d", name, size), func(t *testing.T) {
				in := &wireChannel{input: bytes.Clone(wire), step: step}
				receiver := NewSASLProvider(in, &xorLayer{maxSend: maxSend}, Options{})

				got, err := io.ReadAll(receiver)
				require.NoError(t, err)
				if size == 0 {
					assert.Empty(t, got)
				} else {
					assert.Equal(t, payload, got)
				}
			})
		}
	}
}

func TestSASLReadIntoSmallBuffer(t *testing.T) {
	in := &wireChannel{input: frame((&xorLayer{maxSend: 64}).mustWrap("abcdefgh"))}
	p := NewSASLProvider(in, &xorLayer{maxSend: 64}, Options{})

	buf := make([]byte, 3)
	var got []byte
	for {
		n, err := p.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
	}
	assert.Equal(t, "abcdefgh", string(got))
}

func (l *xorLayer) mustWrap(s string) []byte {
	out, err := l.Wrap([]byte(s))
	if err != nil {
		panic(err)
	}
	return out
}

func TestSASLReadErrors(t *testing.T) {
	t.Run("UnwrapFailure", func(t *testing.T) {
		in := &wireChannel{input: frame([]byte{0x00, 0x01, 0x02})}
		p := NewSASLProvider(in, &xorLayer{maxSend: 64}, Options{})

		_, err := p.Read(make([]byte, 16))
		assert.ErrorIs(t, err, auth.ErrFraming)
	})

	t.Run("OversizedFrame", func(t *testing.T) {
		in := &wireChannel{input: binary.BigEndian.AppendUint32(nil, 4096)}
		p := NewSASLProvider(in, &xorLayer{maxSend: 64}, Options{MaxFrameSize: 1024})

		_, err := p.Read(make([]byte, 16))
		assert.ErrorIs(t, err, auth.ErrFraming)

		_, err = p.Read(make([]byte, 16))
		assert.ErrorIs(t, err, auth.ErrFraming, "framing errors are sticky")
	})

	t.Run("ZeroLengthFrame", func(t *testing.T) {
		in := &wireChannel{input: []byte{0, 0, 0, 0}}
		p := NewSASLProvider(in, &xorLayer{maxSend: 64}, Options{})

		_, err := p.Read(make([]byte, 16))
		assert.ErrorIs(t, err, auth.ErrFraming)
	})

	t.Run("TruncatedFrame", func(t *testing.T) {
		wire := frame((&xorLayer{maxSend: 64}).mustWrap("truncated"))
		in := &wireChannel{input: wire[:len(wire)-2]}
		p := NewSASLProvider(in, &xorLayer{maxSend: 64}, Options{})

		_, err := p.Read(make([]byte, 16))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("CleanEOF", func(t *testing.T) {
		p := NewSASLProvider(&wireChannel{}, &xorLayer{maxSend: 64}, Options{})

		_, err := p.Read(make([]byte, 16))
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestSASLWriteTimeoutClosesConnection(t *testing.T) {
	raw := &wireChannel{stall: true}
	layer := &xorLayer{maxSend: 64}
	p := NewSASLProvider(raw, layer, Options{})

	start := time.Now()
	n, err := p.WriteWithDeadline([]byte("blocked"), time.Now().Add(30*time.Millisecond))
	assert.ErrorIs(t, err, ErrWriteTimeout)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	assert.Equal(t, int32(1), raw.closed.Load())
	assert.Equal(t, int32(1), layer.disposed.Load())
}

func TestSASLCloseOnce(t *testing.T) {
	raw := &wireChannel{}
	layer := &xorLayer{maxSend: 64}
	p := NewSASLProvider(raw, layer, Options{})

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Equal(t, int32(1), raw.closed.Load())
	assert.Equal(t, int32(1), layer.disposed.Load())
}

func TestSASLSecurityProperties(t *testing.T) {
	p := NewSASLProvider(&wireChannel{}, &xorLayer{maxSend: 64}, Options{})
	assert.Equal(t, NameSASL, p.Name())
	assert.True(t, p.IsSecure())
	assert.Equal(t, 56, p.SSF())
	assert.Equal(t, "auth-conf", p.QOP())
	assert.Nil(t, p.ClientCertificateChain())
}

func TestSASLRejectsEmptyLayer(t *testing.T) {
	p := NewSASLProvider(&wireChannel{}, &xorLayer{maxSend: 0}, Options{})
	_, err := p.Write([]byte("x"))
	assert.ErrorIs(t, err, auth.ErrFraming)
}

// ============================================================================
// Null provider and WrapChannel
// ============================================================================

func TestNullProvider(t *testing.T) {
	raw := &wireChannel{input: []byte("request")}
	p := NewNullProvider(raw, Options{})

	assert.Equal(t, NameNull, p.Name())
	assert.False(t, p.IsSecure())
	assert.Equal(t, 0, p.SSF())
	assert.Nil(t, p.ClientCertificateChain())

	got, err := io.ReadAll(p)
	require.NoError(t, err)
	assert.Equal(t, "request", string(got))

	n, err := p.Write([]byte("response"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "response", string(raw.bytes()))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, int32(1), raw.closed.Load())
}

func TestNullProviderWriteTimeout(t *testing.T) {
	raw := &wireChannel{stall: true}
	p := NewNullProvider(raw, Options{})

	_, err := p.WriteWithDeadline([]byte("x"), time.Now().Add(10*time.Millisecond))
	assert.ErrorIs(t, err, ErrWriteTimeout)
	assert.Equal(t, int32(1), raw.closed.Load())
}

func TestWrapChannelSelection(t *testing.T) {
	ctx := context.Background()

	p, err := WrapChannel(ctx, &wireChannel{}, Options{})
	require.NoError(t, err)
	assert.IsType(t, &NullProvider{}, p)

	p, err = WrapChannel(ctx, &wireChannel{}, Options{Layer: &xorLayer{maxSend: 8}})
	require.NoError(t, err)
	assert.IsType(t, &SASLProvider{}, p)

	_, err = WrapChannel(ctx, &wireChannel{}, Options{Layer: &xorLayer{}, TLSConfig: &tls.Config{}})
	assert.ErrorIs(t, err, auth.ErrConfiguration)

	_, err = WrapChannel(ctx, &wireChannel{}, Options{TLSConfig: &tls.Config{}})
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestSASLOverNullInheritsChannel(t *testing.T) {
	raw := &wireChannel{}
	null := NewNullProvider(raw, Options{})
	layer := &xorLayer{maxSend: 16}
	p := NewSASLProvider(null, layer, Options{})

	_, err := p.Write([]byte("stacked"))
	require.NoError(t, err)
	assert.Equal(t, frame(layer.mustWrap("stacked")), raw.bytes())

	require.NoError(t, p.Close())
	assert.Equal(t, int32(1), raw.closed.Load())
}

// ============================================================================
// Cipher strength
// ============================================================================

func TestCipherSuiteSSF(t *testing.T) {
	tests := []struct {
		suite string
		want  int
	}{
		{"TLS_AES_128_GCM_SHA256", 128},
		{"TLS_AES_256_GCM_SHA384", 256},
		{"TLS_CHACHA20_POLY1305_SHA256", 256},
		{"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256", 128},
		{"TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA", 256},
		{"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256", 256},
		{"TLS_RSA_WITH_3DES_EDE_CBC_SHA", 112},
		{"TLS_RSA_WITH_RC4_128_SHA", 128},
		{"SSL_RSA_WITH_DES_CBC_SHA", 56},
		{"SSL_RSA_EXPORT_WITH_RC4_40_MD5", 40},
		{"TLS_RSA_WITH_NULL_SHA256", 0},
		{"tls_rsa_with_aes_128_cbc_sha", 128},
		{"0x1301", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.suite, func(t *testing.T) {
			assert.Equal(t, tt.want, CipherSuiteSSF(tt.suite))
		})
	}
}

func TestEveryGoCipherSuiteHasStrength(t *testing.T) {
	for _, cs := range tls.CipherSuites() {
		assert.Positive(t, CipherSuiteSSF(cs.Name), cs.Name)
	}
}

// ============================================================================
// TLS
// ============================================================================

type testPKI struct {
	dir      string
	certFile string
	keyFile  string
	caFile   string
	cert     tls.Certificate
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "ds.example.com"},
		DNSNames:              []string{"ds.example.com"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	dir := t.TempDir()
	pki := &testPKI{
		dir:      dir,
		certFile: filepath.Join(dir, "server.crt"),
		keyFile:  filepath.Join(dir, "server.key"),
		caFile:   filepath.Join(dir, "ca.crt"),
	}
	require.NoError(t, os.WriteFile(pki.certFile, certPEM, 0600))
	require.NoError(t, os.WriteFile(pki.keyFile, keyPEM, 0600))
	require.NoError(t, os.WriteFile(pki.caFile, certPEM, 0600))

	pki.cert, err = tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return pki
}

func TestBuildTLSConfig(t *testing.T) {
	pki := newTestPKI(t)

	t.Run("Defaults", func(t *testing.T) {
		tc, err := BuildTLSConfig(config.TLSConfig{CertFile: pki.certFile, KeyFile: pki.keyFile})
		require.NoError(t, err)
		assert.Len(t, tc.Certificates, 1)
		assert.Equal(t, tls.NoClientCert, tc.ClientAuth)
		assert.Equal(t, uint16(tls.VersionTLS12), tc.MinVersion)
		assert.Nil(t, tc.ClientCAs)
	})

	t.Run("ClientAuthPolicies", func(t *testing.T) {
		tests := []struct {
			policy string
			ca     bool
			want   tls.ClientAuthType
		}{
			{"disabled", true, tls.NoClientCert},
			{"optional", true, tls.VerifyClientCertIfGiven},
			{"optional", false, tls.RequestClientCert},
			{"required", true, tls.RequireAndVerifyClientCert},
			{"required", false, tls.RequireAnyClientCert},
		}
		for _, tt := range tests {
			cfg := config.TLSConfig{CertFile: pki.certFile, KeyFile: pki.keyFile, ClientAuth: tt.policy}
			if tt.ca {
				cfg.CAFile = pki.caFile
			}
			tc, err := BuildTLSConfig(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tc.ClientAuth, "%s ca=%v", tt.policy, tt.ca)
		}
	})

	t.Run("Protocols", func(t *testing.T) {
		tc, err := BuildTLSConfig(config.TLSConfig{
			CertFile: pki.certFile, KeyFile: pki.keyFile,
			Protocols: []string{"TLSv1.3"},
		})
		require.NoError(t, err)
		assert.Equal(t, uint16(tls.VersionTLS13), tc.MinVersion)
		assert.Equal(t, uint16(tls.VersionTLS13), tc.MaxVersion)

		tc, err = BuildTLSConfig(config.TLSConfig{
			CertFile: pki.certFile, KeyFile: pki.keyFile,
			Protocols: []string{"TLSv1.3", "TLSv1.2"},
		})
		require.NoError(t, err)
		assert.Equal(t, uint16(tls.VersionTLS12), tc.MinVersion)
		assert.Equal(t, uint16(tls.VersionTLS13), tc.MaxVersion)
	})

	t.Run("CipherSuites", func(t *testing.T) {
		tc, err := BuildTLSConfig(config.TLSConfig{
			CertFile: pki.certFile, KeyFile: pki.keyFile,
			CipherSuites: []string{"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256", " tls_ecdhe_ecdsa_with_aes_256_gcm_sha384 "},
		})
		require.NoError(t, err)
		assert.Equal(t, []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		}, tc.CipherSuites)
	})

	t.Run("Errors", func(t *testing.T) {
		bad := []config.TLSConfig{
			{},
			{CertFile: pki.certFile},
			{CertFile: filepath.Join(pki.dir, "missing.crt"), KeyFile: pki.keyFile},
			{CertFile: pki.certFile, KeyFile: pki.keyFile, CAFile: filepath.Join(pki.dir, "missing.crt")},
			{CertFile: pki.certFile, KeyFile: pki.keyFile, CAFile: pki.keyFile},
			{CertFile: pki.certFile, KeyFile: pki.keyFile, ClientAuth: "sometimes"},
			{CertFile: pki.certFile, KeyFile: pki.keyFile, Protocols: []string{"SSLv3"}},
			{CertFile: pki.certFile, KeyFile: pki.keyFile, CipherSuites: []string{"TLS_MADE_UP"}},
		}
		for i, cfg := range bad {
			_, err := BuildTLSConfig(cfg)
			assert.ErrorIs(t, err, auth.ErrConfiguration, "case %d", i)
		}
	})
}

func TestTLSProviderHandshake(t *testing.T) {
	pki := newTestPKI(t)
	serverCfg, err := BuildTLSConfig(config.TLSConfig{
		CertFile:   pki.certFile,
		KeyFile:    pki.keyFile,
		CAFile:     pki.caFile,
		ClientAuth: ClientAuthRequired,
	})
	require.NoError(t, err)

	leaf := pki.cert.Leaf
	if leaf == nil {
		leaf, err = x509.ParseCertificate(pki.cert.Certificate[0])
		require.NoError(t, err)
	}
	roots := x509.NewCertPool()
	roots.AddCert(leaf)

	// A real socket: TLS 1.3 session tickets would deadlock an unbuffered pipe.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	clientDone := make(chan error, 1)
	go func() {
		client, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{
			ServerName:   "ds.example.com",
			RootCAs:      roots,
			Certificates: []tls.Certificate{pki.cert},
		})
		if err != nil {
			clientDone <- err
			return
		}
		defer client.Close()

		if _, err := client.Write([]byte("bind")); err != nil {
			clientDone <- err
			return
		}
		buf := make([]byte, 7)
		_, err = io.ReadFull(client, buf)
		if err == nil && string(buf) != "success" {
			err = errors.New("unexpected reply " + string(buf))
		}
		clientDone <- err
	}()

	serverConn, err := ln.Accept()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	p, err := NewTLSProvider(context.Background(), serverConn, serverCfg, Options{Metrics: m})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, NameTLS, p.Name())
	assert.True(t, p.IsSecure())
	assert.GreaterOrEqual(t, p.SSF(), 128)
	assert.Equal(t, CipherSuiteSSF(p.CipherSuite()), p.SSF())
	assert.Equal(t, "TLS 1.3", p.Version())
	require.Len(t, p.ClientCertificateChain(), 1)
	assert.Equal(t, "ds.example.com", p.ClientCertificateChain()[0].Subject.CommonName)

	buf := make([]byte, 4)
	_, err = io.ReadFull(p, buf)
	require.NoError(t, err)
	assert.Equal(t, "bind", string(buf))

	_, err = p.Write([]byte("success"))
	require.NoError(t, err)
	require.NoError(t, <-clientDone)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Handshakes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Providers.WithLabelValues(NameTLS)))

	require.NoError(t, p.Close())
	_ = p.Close()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Providers.WithLabelValues(NameTLS)))
}

func TestTLSProviderHandshakeFailure(t *testing.T) {
	pki := newTestPKI(t)
	serverCfg, err := BuildTLSConfig(config.TLSConfig{CertFile: pki.certFile, KeyFile: pki.keyFile})
	require.NoError(t, err)

	t.Run("NotTLS", func(t *testing.T) {
		serverConn, clientConn := net.Pipe()
		defer clientConn.Close()

		go func() {
			_, _ = clientConn.Write([]byte("GET / HTTP/1.0\r\n\r\n"))
			_, _ = io.Copy(io.Discard, clientConn)
		}()

		_, err := NewTLSProvider(context.Background(), serverConn, serverCfg, Options{HandshakeTimeout: 2 * time.Second})
		assert.ErrorIs(t, err, auth.ErrHandshake)
	})

	t.Run("Timeout", func(t *testing.T) {
		serverConn, clientConn := net.Pipe()
		defer clientConn.Close()

		reg := prometheus.NewRegistry()
		m := NewMetricsWith(reg)

		_, err := NewTLSProvider(context.Background(), serverConn, serverCfg, Options{
			HandshakeTimeout: 50 * time.Millisecond,
			Metrics:          m,
		})
		assert.ErrorIs(t, err, auth.ErrHandshake)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Handshakes.WithLabelValues("failure")))
	})
}

// ============================================================================
// Metrics
// ============================================================================

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	raw := &wireChannel{stall: true}
	p := NewSASLProvider(raw, &xorLayer{maxSend: 64}, Options{Metrics: m})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Providers.WithLabelValues(NameSASL)))

	_, err := p.WriteWithDeadline([]byte("x"), time.Now().Add(5*time.Millisecond))
	require.ErrorIs(t, err, ErrWriteTimeout)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues(NameSASL, reasonWriteTimeout)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Providers.WithLabelValues(NameSASL)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ProviderInstalled(NameNull)
		m.ProviderRemoved(NameNull)
		m.RecordFrame(dirInbound, 10)
		m.RecordError(NameSASL, reasonFraming)
		m.RecordHandshake(true, time.Millisecond)
	})
}
