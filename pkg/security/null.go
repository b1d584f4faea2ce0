package security

import (
	"crypto/x509"
	"errors"
	"sync"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// NullProvider passes bytes through unchanged. It is installed on every
// connection until TLS or a SASL layer is negotiated.
type NullProvider struct {
	raw          RawChannel
	writeTimeout time.Duration
	metrics      *Metrics

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewNullProvider wraps raw without protection.
func NewNullProvider(raw RawChannel, opts Options) *NullProvider {
	opts.Metrics.ProviderInstalled(NameNull)
	return &NullProvider{
		raw:          raw,
		writeTimeout: opts.writeTimeout(),
		metrics:      opts.Metrics,
	}
}

func (n *NullProvider) Name() string   { return NameNull }
func (n *NullProvider) IsSecure() bool { return false }
func (n *NullProvider) SSF() int       { return 0 }

// ClientCertificateChain delegates to raw when it is itself a protected
// channel.
func (n *NullProvider) ClientCertificateChain() []*x509.Certificate {
	if cs, ok := n.raw.(auth.ChannelSecurity); ok {
		return cs.ClientCertificateChain()
	}
	return nil
}

func (n *NullProvider) Read(p []byte) (int, error) {
	return n.raw.Read(p)
}

func (n *NullProvider) Write(p []byte) (int, error) {
	return n.WriteWithDeadline(p, time.Now().Add(n.writeTimeout))
}

func (n *NullProvider) WriteWithDeadline(p []byte, deadline time.Time) (int, error) {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()

	if err := writeFull(n.raw, p, deadline); err != nil {
		if errors.Is(err, ErrWriteTimeout) {
			n.metrics.RecordError(NameNull, reasonWriteTimeout)
			_ = n.Close()
		}
		return 0, err
	}
	return len(p), nil
}

// SetWriteDeadline lets another provider be stacked on this one.
func (n *NullProvider) SetWriteDeadline(t time.Time) error {
	return n.raw.SetWriteDeadline(t)
}

// Detach releases the provider without closing the transport and returns
// the transport. StartTLS uses it to hand the connection to TLS.
func (n *NullProvider) Detach() RawChannel {
	n.closeOnce.Do(func() { n.metrics.ProviderRemoved(NameNull) })
	return n.raw
}

func (n *NullProvider) Close() error {
	n.closeOnce.Do(func() {
		n.closeErr = n.raw.Close()
		n.metrics.ProviderRemoved(NameNull)
	})
	return n.closeErr
}
