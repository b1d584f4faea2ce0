// Package adapter runs the TCP front ends that receive LDAP bind traffic.
//
// BaseAdapter owns the listener, connection accounting and shutdown.
// Protocol packages (pkg/adapter/ldap) plug in through ConnectionFactory.
package adapter

import (
	"context"
)

// Adapter is a listener managed by the serve command.
//
// Lifecycle:
//  1. Creation with the listener configuration and its collaborators
//  2. Serve blocks until the context is cancelled or the listener fails
//  3. Stop may be called concurrently with Serve and is idempotent
type Adapter interface {
	// Serve accepts connections until ctx is cancelled. On cancellation it
	// stops accepting, waits for active connections up to the shutdown
	// timeout and returns nil. An early return is fatal for the process.
	Serve(ctx context.Context) error

	// Stop initiates shutdown and waits for active connections until ctx
	// expires.
	Stop(ctx context.Context) error

	// Protocol is the name used in logs and metrics: "LDAP" or "LDAPS".
	Protocol() string

	// Port is the configured TCP port. 0 means an ephemeral port was requested.
	Port() int

	// MapError translates a bind or channel error into an LDAP result.
	// It returns nil for errors without a protocol mapping.
	MapError(err error) ProtocolError
}
