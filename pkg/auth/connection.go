package auth

import (
	"crypto/x509"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChannelSecurity describes the protection of the underlying channel.
type ChannelSecurity interface {
	Name() string
	IsSecure() bool

	// SSF is the security strength factor in bits. 0 means none.
	SSF() int

	// ClientCertificateChain is the peer chain, leaf first, or nil.
	ClientCertificateChain() []*x509.Certificate
}

// SecurityLayer is a SASL integrity or confidentiality layer negotiated by a
// mechanism. It is installed on the channel by the connection-security
// provider once the bind response has been sent.
type SecurityLayer interface {
	// Wrap protects one outgoing buffer. The result is framed by the caller.
	Wrap(p []byte) ([]byte, error)

	// Unwrap verifies and strips protection from one received frame.
	Unwrap(p []byte) ([]byte, error)

	// MaxSendSize is the largest plaintext Wrap accepts in one call.
	MaxSendSize() int

	SSF() int

	// QOP is "auth-int" or "auth-conf".
	QOP() string

	Dispose() error
}

// MechanismState is the per-connection state of a multi-stage bind.
// Dispose is called exactly once when the state is released.
type MechanismState interface {
	Dispose() error
}

// Connection is the per-client record shared by the bind dispatcher,
// the mechanisms and the channel. Safe for concurrent use.
type Connection struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	mu            sync.Mutex
	security      ChannelSecurity
	mechanismName string
	state         MechanismState
	authInfo      *AuthenticationInfo
	pendingLayer  SecurityLayer
	activeLayer   SecurityLayer
	closed        bool
}

// NewConnection creates a connection record. security may be nil for a
// plain channel.
func NewConnection(remoteAddr string, security ChannelSecurity) *Connection {
	return &Connection{
		ID:          uuid.NewString(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		security:    security,
	}
}

// ClientIP extracts the host part of RemoteAddr.
func (c *Connection) ClientIP() string {
	host, _, err := net.SplitHostPort(c.RemoteAddr)
	if err != nil {
		return c.RemoteAddr
	}
	return host
}

// ChannelSecurity returns the current channel protection, or nil.
func (c *Connection) ChannelSecurity() ChannelSecurity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.security
}

// SetChannelSecurity records a new channel protection, e.g. after StartTLS.
func (c *Connection) SetChannelSecurity(s ChannelSecurity) {
	c.mu.Lock()
	c.security = s
	c.mu.Unlock()
}

// SSF returns the strength of the channel or of the active SASL layer,
// whichever is greater.
func (c *Connection) SSF() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ssf := 0
	if c.security != nil {
		ssf = c.security.SSF()
	}
	if c.activeLayer != nil && c.activeLayer.SSF() > ssf {
		ssf = c.activeLayer.SSF()
	}
	return ssf
}

// IsSecure reports whether the channel is protected.
func (c *Connection) IsSecure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (c.security != nil && c.security.IsSecure()) || c.activeLayer != nil
}

// ClientCertificateChain returns the TLS peer chain, or nil.
func (c *Connection) ClientCertificateChain() []*x509.Certificate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.security == nil {
		return nil
	}
	return c.security.ClientCertificateChain()
}

// MechanismState returns the in-progress state if it belongs to mechanism.
func (c *Connection) MechanismState(mechanism string) MechanismState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil || c.mechanismName != mechanism {
		return nil
	}
	return c.state
}

// InProgressMechanism returns the name of the mechanism holding state.
func (c *Connection) InProgressMechanism() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return ""
	}
	return c.mechanismName
}

// SetMechanismState attaches state for mechanism. Any previous state that is
// a different value is disposed.
func (c *Connection) SetMechanismState(mechanism string, state MechanismState) error {
	c.mu.Lock()
	old := c.state
	c.mechanismName = mechanism
	c.state = state
	c.mu.Unlock()

	if old != nil && old != state {
		return old.Dispose()
	}
	return nil
}

// ClearMechanismState disposes and detaches the in-progress state.
func (c *Connection) ClearMechanismState() error {
	c.mu.Lock()
	old := c.state
	c.state = nil
	c.mechanismName = ""
	c.mu.Unlock()

	if old != nil {
		return old.Dispose()
	}
	return nil
}

// AuthenticationInfo returns the current identity, or nil before any bind.
func (c *Connection) AuthenticationInfo() *AuthenticationInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authInfo
}

// SetAuthenticationInfo replaces the connection identity.
func (c *Connection) SetAuthenticationInfo(info *AuthenticationInfo) {
	c.mu.Lock()
	c.authInfo = info
	c.mu.Unlock()
}

// SetPendingSecurityLayer stores a layer to install after the bind response.
// A layer already pending is disposed.
func (c *Connection) SetPendingSecurityLayer(layer SecurityLayer) error {
	c.mu.Lock()
	old := c.pendingLayer
	c.pendingLayer = layer
	c.mu.Unlock()

	if old != nil && old != layer {
		return old.Dispose()
	}
	return nil
}

// TakeSecurityLayer removes the pending layer and marks it active. The
// caller installs it on the channel.
func (c *Connection) TakeSecurityLayer() SecurityLayer {
	c.mu.Lock()
	defer c.mu.Unlock()
	layer := c.pendingLayer
	c.pendingLayer = nil
	if layer != nil {
		c.activeLayer = layer
	}
	return layer
}

// Close releases every resource held by the connection. Safe to call more
// than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	state := c.state
	pending := c.pendingLayer
	active := c.activeLayer
	c.state = nil
	c.mechanismName = ""
	c.pendingLayer = nil
	c.activeLayer = nil
	c.authInfo = nil
	c.mu.Unlock()

	var errs []error
	if state != nil {
		errs = append(errs, state.Dispose())
	}
	if pending != nil {
		errs = append(errs, pending.Dispose())
	}
	if active != nil {
		errs = append(errs, active.Dispose())
	}
	return errors.Join(errs...)
}
