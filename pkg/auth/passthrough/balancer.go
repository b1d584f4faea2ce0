package passthrough

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
)

// Server tiers.
const (
	TierPrimary   = "primary"
	TierSecondary = "secondary"
)

// Connection purposes.
const (
	PurposeBind   = "bind"
	PurposeSearch = "search"
)

// ServerStatus is a point-in-time view of one remote server.
type ServerStatus struct {
	Server    string    `json:"server" yaml:"server"`
	Tier      string    `json:"tier" yaml:"tier"`
	Purpose   string    `json:"purpose" yaml:"purpose"`
	Available bool      `json:"available" yaml:"available"`
	IdleConns int       `json:"idle_connections" yaml:"idle_connections"`
	LastError string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Since     time.Time `json:"since" yaml:"since"`
}

type server struct {
	addr      string
	tier      string
	pool      *connPool
	available atomic.Bool

	mu      sync.Mutex
	lastErr error
	since   time.Time
}

// balancer spreads requests round-robin over the primary servers and fails
// over to the secondary tier when no primary server can be used.
type balancer struct {
	purpose  string
	tiers    [2][]*server
	next     [2]atomic.Uint64
	interval time.Duration
	metrics  *Metrics
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type balancerConfig struct {
	purpose   string
	primary   []string
	secondary []string
	poolSize  int
	interval  time.Duration
	dial      func(ctx context.Context, addr string) (Conn, error)
	metrics   *Metrics
	now       func() time.Time
}

func newBalancer(cfg balancerConfig) *balancer {
	b := &balancer{
		purpose:  cfg.purpose,
		interval: cfg.interval,
		metrics:  cfg.metrics,
		now:      cfg.now,
		stop:     make(chan struct{}),
	}
	for i, addrs := range [2][]string{cfg.primary, cfg.secondary} {
		tier := TierPrimary
		if i == 1 {
			tier = TierSecondary
		}
		for _, addr := range addrs {
			dial := cfg.dial
			s := &server{
				addr: addr,
				tier: tier,
				pool: newConnPool(addr, cfg.poolSize, func(ctx context.Context) (Conn, error) {
					return dial(ctx, addr)
				}),
				since: b.now(),
			}
			s.available.Store(true)
			b.metrics.SetAvailable(addr, b.purpose, true)
			b.tiers[i] = append(b.tiers[i], s)
		}
	}

	if b.interval > 0 {
		b.wg.Add(1)
		go b.monitor()
	}
	return b
}

// order returns the servers to try, each tier rotated by one position per
// call.
func (b *balancer) order() []*server {
	out := make([]*server, 0, len(b.tiers[0])+len(b.tiers[1]))
	for i, tier := range b.tiers {
		n := len(tier)
		if n == 0 {
			continue
		}
		start := int((b.next[i].Add(1) - 1) % uint64(n))
		for j := 0; j < n; j++ {
			out = append(out, tier[(start+j)%n])
		}
	}
	return out
}

// do runs op on a connection to the first usable server. A server whose
// connection fails with a service error is marked unavailable and the next
// one is tried. It returns the address of the server that produced the
// result.
func (b *balancer) do(ctx context.Context, op func(Conn) error) (string, error) {
	var lastErr error
	lastAddr := ""
	for _, s := range b.order() {
		if !s.available.Load() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return lastAddr, &InfrastructureError{Server: lastAddr, Op: b.purpose, Err: err}
		}

		pc, err := s.pool.get(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.markDown(s, err)
			}
			lastErr, lastAddr = err, s.addr
			continue
		}

		err = pc.do(ctx, op)
		pc.release()
		if !isServiceError(err) {
			return s.addr, err
		}
		b.markDown(s, err)
		lastErr, lastAddr = err, s.addr
	}

	if lastErr == nil {
		lastErr = errNoServerAvailable
	}
	return lastAddr, &InfrastructureError{Server: lastAddr, Op: b.purpose, Err: lastErr}
}

func (b *balancer) markDown(s *server, err error) {
	s.mu.Lock()
	s.lastErr = err
	s.since = b.now()
	s.mu.Unlock()

	if s.available.CompareAndSwap(true, false) {
		b.metrics.SetAvailable(s.addr, b.purpose, false)
		logger.Warn("Pass-through server unavailable",
			logger.Server(s.addr), logger.KeyTier, s.tier, "purpose", b.purpose, logger.Err(err))
	}
}

func (b *balancer) markUp(s *server) {
	s.mu.Lock()
	s.lastErr = nil
	s.since = b.now()
	s.mu.Unlock()

	if s.available.CompareAndSwap(false, true) {
		b.metrics.SetAvailable(s.addr, b.purpose, true)
		logger.Info("Pass-through server available again",
			logger.Server(s.addr), logger.KeyTier, s.tier, "purpose", b.purpose)
	}
}

func (b *balancer) monitor() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.probe()
		}
	}
}

// probe dials every unavailable server and marks the reachable ones back up.
func (b *balancer) probe() {
	for _, tier := range b.tiers {
		for _, s := range tier {
			if s.available.Load() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), b.interval)
			conn, err := s.pool.dial(ctx)
			cancel()
			if err != nil {
				logger.Debug("Pass-through server still unavailable", logger.Server(s.addr), logger.Err(err))
				s.mu.Lock()
				s.lastErr = err
				s.mu.Unlock()
				continue
			}
			_ = conn.Close()
			b.markUp(s)
		}
	}
}

func (b *balancer) status() []ServerStatus {
	var out []ServerStatus
	for _, tier := range b.tiers {
		for _, s := range tier {
			s.mu.Lock()
			st := ServerStatus{
				Server:    s.addr,
				Tier:      s.tier,
				Purpose:   b.purpose,
				Available: s.available.Load(),
				IdleConns: s.pool.idleCount(),
				Since:     s.since,
			}
			if s.lastErr != nil {
				st.LastError = s.lastErr.Error()
			}
			s.mu.Unlock()
			out = append(out, st)
		}
	}
	return out
}

// close stops the monitor and closes idle connections.
func (b *balancer) close() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
	for _, tier := range b.tiers {
		for _, s := range tier {
			s.pool.close()
		}
	}
}
