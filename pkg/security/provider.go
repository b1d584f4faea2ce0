// Package security implements the byte-channel codecs installed on a client
// connection: a pass-through provider used before any protection is
// negotiated, a SASL provider framing integrity or confidentiality layers,
// and a TLS provider.
//
// A provider is connection affine. Reads must not be interleaved with other
// reads and Close must not race an in-flight Read; the connection handler
// serializes those calls. Writes are serialized internally so responses
// may be sent from worker goroutines.
package security

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
)

// Provider names, as reported by Provider.Name.
const (
	NameNull = "null"
	NameSASL = "sasl"
	NameTLS  = "tls"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultMaxFrameSize     = 16 << 20
	DefaultWriteTimeout     = 30 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

var (
	// ErrWriteTimeout is returned when a blocked write does not complete
	// before its deadline. The connection is closed when it is returned.
	ErrWriteTimeout = errors.New("security: write timed out")

	// ErrClosed is returned by operations on a closed provider.
	ErrClosed = errors.New("security: channel closed")
)

// RawChannel is the transport a provider protects. A Write returning 0
// bytes without error means the transport cannot accept data yet.
type RawChannel interface {
	io.ReadWriteCloser
	SetWriteDeadline(t time.Time) error
}

// Provider protects a RawChannel. Read returns unwrapped application bytes
// and Write wraps application bytes before they reach the transport.
type Provider interface {
	auth.ChannelSecurity
	io.ReadWriteCloser

	// WriteWithDeadline writes all of p or fails with ErrWriteTimeout once
	// deadline passes, closing the channel.
	WriteWithDeadline(p []byte, deadline time.Time) (int, error)
}

// Options selects and configures the provider built by WrapChannel.
// Layer and TLSConfig are mutually exclusive; with neither set the
// channel is wrapped by the null provider.
type Options struct {
	// Layer is a negotiated SASL integrity or confidentiality layer.
	Layer auth.SecurityLayer

	// TLSConfig starts a server-side TLS handshake. The raw channel must
	// be a net.Conn.
	TLSConfig        *tls.Config
	HandshakeTimeout time.Duration

	// MaxFrameSize bounds an inbound SASL frame.
	MaxFrameSize int

	// WriteTimeout bounds Write. WriteWithDeadline takes its own deadline.
	WriteTimeout time.Duration

	Metrics *Metrics
}

func (o Options) writeTimeout() time.Duration {
	if o.WriteTimeout > 0 {
		return o.WriteTimeout
	}
	return DefaultWriteTimeout
}

func (o Options) maxFrameSize() int {
	if o.MaxFrameSize > 0 {
		return o.MaxFrameSize
	}
	return DefaultMaxFrameSize
}

func (o Options) handshakeTimeout() time.Duration {
	if o.HandshakeTimeout > 0 {
		return o.HandshakeTimeout
	}
	return DefaultHandshakeTimeout
}

// WrapChannel installs the provider selected by opts on raw. It is called
// once per connection and again after a successful StartTLS or a bind that
// negotiated a SASL layer; in the latter case raw is the previous provider.
// A null provider passed with TLSConfig is detached from its transport.
func WrapChannel(ctx context.Context, raw RawChannel, opts Options) (Provider, error) {
	switch {
	case opts.Layer != nil && opts.TLSConfig != nil:
		return nil, fmt.Errorf("%w: SASL layer and TLS requested together", auth.ErrConfiguration)
	case opts.Layer != nil:
		return NewSASLProvider(raw, opts.Layer, opts), nil
	case opts.TLSConfig != nil:
		if n, ok := raw.(*NullProvider); ok {
			raw = n.Detach()
		}
		conn, ok := raw.(net.Conn)
		if !ok {
			return nil, fmt.Errorf("%w: TLS requires a network connection, got %T", auth.ErrConfiguration, raw)
		}
		return NewTLSProvider(ctx, conn, opts.TLSConfig, opts)
	default:
		return NewNullProvider(raw, opts), nil
	}
}

// writeFull writes p to raw before deadline. Zero-byte writes are retried
// with a short backoff until the deadline passes.
func writeFull(raw RawChannel, p []byte, deadline time.Time) error {
	if err := raw.SetWriteDeadline(deadline); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("set write deadline: %w", err)
	}
	defer func() { _ = raw.SetWriteDeadline(time.Time{}) }()

	backoff := time.Millisecond
	for len(p) > 0 {
		n, err := raw.Write(p)
		p = p[n:]
		if err != nil {
			if isTimeout(err) {
				return ErrWriteTimeout
			}
			return err
		}
		if n > 0 {
			backoff = time.Millisecond
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrWriteTimeout
		}
		time.Sleep(min(backoff, remaining))
		backoff = min(backoff*2, 50*time.Millisecond)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
