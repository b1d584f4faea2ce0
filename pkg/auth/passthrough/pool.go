package passthrough

import (
	"context"
	"sync"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
)

// connPool bounds the connections open to one server and keeps released
// connections for reuse.
type connPool struct {
	addr string
	dial func(ctx context.Context) (Conn, error)

	// sem holds one token per connection handed out.
	sem chan struct{}

	mu     sync.Mutex
	idle   []Conn
	closed bool
}

func newConnPool(addr string, size int, dial func(ctx context.Context) (Conn, error)) *connPool {
	if size < 1 {
		size = 1
	}
	return &connPool{
		addr: addr,
		dial: dial,
		sem:  make(chan struct{}, size),
	}
}

// get returns an idle connection or dials a new one, waiting for a free
// slot while the pool is exhausted.
func (p *connPool) get(ctx context.Context) (*pooledConn, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return nil, errPoolClosed
	}
	var conn Conn
	for len(p.idle) > 0 && conn == nil {
		c := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if c.IsClosing() {
			_ = c.Close()
			continue
		}
		conn = c
	}
	p.mu.Unlock()

	if conn == nil {
		c, err := p.dial(ctx)
		if err != nil {
			<-p.sem
			return nil, err
		}
		conn = c
	}
	return &pooledConn{pool: p, conn: conn}, nil
}

func (p *connPool) put(c Conn, broken bool) {
	p.mu.Lock()
	if broken || p.closed || c.IsClosing() {
		p.mu.Unlock()
		_ = c.Close()
	} else {
		p.idle = append(p.idle, c)
		p.mu.Unlock()
	}
	<-p.sem
}

func (p *connPool) idleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// close closes idle connections. Connections still handed out are closed
// when released.
func (p *connPool) close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	for _, c := range idle {
		_ = c.Close()
	}
}

// pooledConn is a connection leased from a pool.
type pooledConn struct {
	pool     *connPool
	conn     Conn
	broken   bool
	released bool
}

// do runs op. A service error usually means a stale pooled connection, so
// op is retried once on a fresh connection; a second service error leaves
// the lease broken.
func (c *pooledConn) do(ctx context.Context, op func(Conn) error) error {
	err := op(c.conn)
	if !isServiceError(err) {
		return err
	}

	logger.DebugCtx(ctx, "Pass-through connection failed, reconnecting",
		logger.Server(c.pool.addr), logger.Err(err))
	_ = c.conn.Close()

	fresh, dialErr := c.pool.dial(ctx)
	if dialErr != nil {
		c.broken = true
		return dialErr
	}
	c.conn = fresh

	err = op(c.conn)
	if isServiceError(err) {
		c.broken = true
	}
	return err
}

// release returns the connection to its pool. It is idempotent.
func (c *pooledConn) release() {
	if c.released {
		return
	}
	c.released = true
	c.pool.put(c.conn, c.broken)
}
