// Package ldap serves LDAP bind traffic: simple and SASL binds, StartTLS,
// the Who am I? extended operation and unbind. Every other operation is
// answered with unwillingToPerform.
//
// Each connection owns an auth.Connection and a security.Provider stack.
// The provider is replaced after StartTLS and after a bind that negotiated
// a SASL integrity or confidentiality layer.
package ldap

import (
	"context"
	"net"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/adapter"
)

// Adapter is an LDAP or LDAPS listener.
//
// Adapter embeds BaseAdapter for the accept loop, connection limits and
// graceful shutdown. Protocol handling lives in Connection.
type Adapter struct {
	*adapter.BaseAdapter

	config Config
	deps   Dependencies
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a stopped listener. Call Serve to start it.
func New(cfg Config, deps Dependencies) (*Adapter, error) {
	cfg.applyDefaults()
	if err := validate(cfg, deps); err != nil {
		return nil, err
	}

	protocol := ProtocolLDAP
	if cfg.TLS {
		protocol = ProtocolLDAPS
	}

	base := adapter.NewBaseAdapter(adapter.BaseConfig{
		BindAddress:     cfg.BindAddress,
		Port:            cfg.Port,
		MaxConnections:  cfg.MaxConnections,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, protocol)
	if deps.Metrics != nil {
		base.Metrics = recorder{m: deps.Metrics, listener: protocol}
	}

	logger.Debug(protocol+" listener configured",
		"port", cfg.Port,
		"max_message_size", cfg.MaxMessageSize,
		"idle_timeout", cfg.IdleTimeout,
		"start_tls", !cfg.TLS && deps.TLSConfig != nil,
		"mechanisms", deps.Dispatcher.Mechanisms())

	return &Adapter{BaseAdapter: base, config: cfg, deps: deps}, nil
}

// Serve accepts connections until ctx is cancelled.
func (a *Adapter) Serve(ctx context.Context) error {
	return a.ServeWithFactory(ctx, a, nil, nil)
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return NewConnection(a, conn)
}
