package ldap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	ldapv3 "github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/security"
)

const readBufferSize = 4096

// Diagnostic messages sent with non-bind results.
const (
	msgUnsupportedOperation = "operation not supported by the authentication server"
	msgShuttingDown         = "server is shutting down"
	msgMessageTooLarge      = "message size limit exceeded"
	msgMalformed            = "malformed LDAP message"
)

// Connection handles one LDAP client connection. Requests are processed in
// order; a bind response is written before the next request is read so
// that a negotiated security layer applies from the following message on.
type Connection struct {
	server *Adapter
	raw    net.Conn
	auth   *auth.Connection

	channel security.Provider
	reader  *bufio.Reader
}

// NewConnection creates the handler for an accepted connection.
func NewConnection(server *Adapter, raw net.Conn) *Connection {
	return &Connection{
		server: server,
		raw:    raw,
		auth:   auth.NewConnection(raw.RemoteAddr().String(), nil),
	}
}

// Serve reads and answers requests until the client unbinds or
// disconnects, the connection idles out or ctx is cancelled.
func (c *Connection) Serve(ctx context.Context) {
	defer c.handleConnectionClose()

	ctx = logger.WithContext(ctx, logger.NewLogContext(c.auth.ID, c.auth.ClientIP()))

	// Unblock a pending read on shutdown even if the loop re-armed the idle
	// deadline after BaseAdapter interrupted it.
	stop := context.AfterFunc(ctx, func() { _ = c.raw.SetReadDeadline(time.Now()) })
	defer stop()

	opts := c.channelOptions()
	if c.server.config.TLS {
		opts.TLSConfig = c.server.deps.TLSConfig
	}
	if err := c.install(ctx, opts); err != nil {
		logger.DebugCtx(ctx, "Failed to establish connection security", logger.Err(err))
		return
	}
	logger.DebugCtx(ctx, "New "+c.server.Protocol()+" connection",
		"address", c.auth.RemoteAddr, logger.KeyProvider, c.channel.Name())

	idle := c.server.config.IdleTimeout
	for {
		if idle > 0 {
			_ = c.raw.SetReadDeadline(time.Now().Add(idle))
		}
		if ctx.Err() != nil {
			c.disconnect(ctx, auth.ResultUnavailable, msgShuttingDown)
			return
		}

		msg, err := readMessage(c.reader, c.server.config.MaxMessageSize)
		if err != nil {
			c.handleReadError(ctx, err)
			return
		}
		if !c.dispatch(ctx, msg) {
			return
		}
	}
}

func (c *Connection) channelOptions() security.Options {
	cfg := c.server.config
	return security.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		MaxFrameSize:     cfg.MaxFrameSize,
		WriteTimeout:     cfg.WriteTimeout,
		Metrics:          c.server.deps.SecurityMetrics,
	}
}

// install stacks a new provider on the current channel, or on the raw
// connection for the first one.
func (c *Connection) install(ctx context.Context, opts security.Options) error {
	if c.reader != nil && c.reader.Buffered() > 0 {
		return fmt.Errorf("%w: %d bytes received before the channel changed", auth.ErrFraming, c.reader.Buffered())
	}

	var below security.RawChannel = c.raw
	if c.channel != nil {
		below = c.channel.(security.RawChannel)
	}
	p, err := security.WrapChannel(ctx, below, opts)
	if err != nil {
		return err
	}

	c.channel = p
	c.reader = bufio.NewReaderSize(p, readBufferSize)
	c.auth.SetChannelSecurity(p)
	return nil
}

func (c *Connection) dispatch(ctx context.Context, msg *message) bool {
	listener := c.server.Protocol()
	metrics := c.server.deps.Metrics

	switch msg.op.Tag {
	case ldapv3.ApplicationBindRequest:
		metrics.recordRequest(listener, "bind")
		return c.handleBind(ctx, msg)

	case ldapv3.ApplicationUnbindRequest:
		metrics.recordRequest(listener, "unbind")
		logger.DebugCtx(ctx, "Unbind received")
		return false

	case ldapv3.ApplicationExtendedRequest:
		metrics.recordRequest(listener, "extended")
		return c.handleExtended(ctx, msg)

	case ldapv3.ApplicationAbandonRequest:
		metrics.recordRequest(listener, "abandon")
		return true
	}

	metrics.recordRequest(listener, "other")
	tag, ok := responseTag(msg.op.Tag)
	if !ok {
		logger.DebugCtx(ctx, "Unknown protocol operation", "tag", msg.op.Tag)
		metrics.recordProtocolError(listener, "malformed")
		c.disconnect(ctx, auth.ResultProtocolError, msgMalformed)
		return false
	}
	logger.DebugCtx(ctx, "Rejecting unsupported operation", "operation", ldapv3.ApplicationMap[uint8(msg.op.Tag)])
	return c.send(ctx, encodeMessage(msg.id, resultOp(tag, auth.ResultUnwillingToPerform, msgUnsupportedOperation)))
}

func (c *Connection) handleReadError(ctx context.Context, err error) {
	listener := c.server.Protocol()

	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.DebugCtx(ctx, "Connection closed by client")
	case ctx.Err() != nil:
		c.disconnect(ctx, auth.ResultUnavailable, msgShuttingDown)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.DebugCtx(ctx, "Connection idle timeout", "idle_timeout", c.server.config.IdleTimeout)
	case errors.Is(err, errMessageTooLarge):
		logger.InfoCtx(ctx, "Closing connection: message too large",
			"max_message_size", c.server.config.MaxMessageSize, logger.Err(err))
		c.server.deps.Metrics.recordProtocolError(listener, "too_large")
		c.disconnect(ctx, auth.ResultProtocolError, msgMessageTooLarge)
	case errors.Is(err, errMalformed):
		logger.InfoCtx(ctx, "Closing connection: malformed message", logger.Err(err))
		c.server.deps.Metrics.recordProtocolError(listener, "malformed")
		c.disconnect(ctx, auth.ResultProtocolError, msgMalformed)
	case errors.Is(err, auth.ErrFraming):
		logger.InfoCtx(ctx, "Closing connection: security layer failure", logger.Err(err))
	default:
		logger.DebugCtx(ctx, "Error reading LDAP request", logger.Err(err))
	}
}

// send writes one encoded response and reports whether the connection is
// still usable.
func (c *Connection) send(ctx context.Context, b []byte) bool {
	if _, err := c.channel.Write(b); err != nil {
		logger.DebugCtx(ctx, "Failed to write response", logger.Err(err))
		return false
	}
	return true
}

// disconnect sends a notice of disconnection. Write errors are ignored
// since the connection is closing anyway.
func (c *Connection) disconnect(ctx context.Context, code auth.ResultCode, diagnostic string) {
	if c.channel == nil {
		return
	}
	if _, err := c.channel.Write(encodeNoticeOfDisconnection(code, diagnostic)); err != nil {
		logger.DebugCtx(ctx, "Failed to send notice of disconnection", logger.Err(err))
	}
}

func (c *Connection) handleConnectionClose() {
	if r := recover(); r != nil {
		logger.Error("Panic in LDAP connection handler",
			"address", c.auth.RemoteAddr, "error", r, "stack", string(debug.Stack()))
	}

	if err := c.auth.Close(); err != nil {
		logger.Debug("Error releasing connection state", logger.ConnectionID(c.auth.ID), logger.Err(err))
	}
	if c.channel != nil {
		_ = c.channel.Close()
	}
	_ = c.raw.Close()
}
