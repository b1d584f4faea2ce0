package passthrough

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/logger"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/internal/telemetry"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/password"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/directory"
)

// MappingPolicy selects how the remote bind DN is derived from the local
// entry.
type MappingPolicy string

const (
	// Unmapped binds with the local entry's DN.
	Unmapped MappingPolicy = "unmapped"

	// MappedBind binds with the value of a mapped attribute.
	MappedBind MappingPolicy = "mapped-bind"

	// MappedSearch searches the remote server for the entry whose mapped
	// attributes equal the local ones and binds with its DN.
	MappedSearch MappingPolicy = "mapped-search"
)

// Remote search parameters for MappedSearch. A size limit of 2 is enough
// to detect ambiguity.
const (
	searchSizeLimit = 2
	noAttributes    = "1.1"
)

// Defaults applied to a zero config.PassThroughConfig field.
const (
	DefaultMonitorInterval = 5 * time.Second
	DefaultCacheTTL        = 8 * time.Hour
	DefaultCacheScheme     = "SSHA512"
)

var errPolicyClosed = errors.New("pass-through policy closed")

// Policy verifies passwords by binding to remote LDAP servers.
//
// Verifications hold a read lock on the current configuration snapshot.
// Reload builds a new snapshot, waits for in-flight verifications, closes
// the old connections and swaps the snapshot in.
type Policy struct {
	dialer   Dialer
	registry *password.Registry
	metrics  *Metrics
	now      func() time.Time

	reloadMu sync.Mutex

	mu   sync.RWMutex
	snap *snapshot
}

var _ auth.PasswordValidator = (*Policy)(nil)

// Option configures a Policy.
type Option func(*Policy)

// WithDialer replaces the go-ldap dialer built from configuration.
func WithDialer(d Dialer) Option {
	return func(p *Policy) { p.dialer = d }
}

// WithRegistry sets the scheme registry used for cached passwords.
func WithRegistry(r *password.Registry) Option {
	return func(p *Policy) { p.registry = r }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Policy) { p.metrics = m }
}

// WithClock overrides time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// New builds a policy from cfg.
func New(cfg config.PassThroughConfig, opts ...Option) (*Policy, error) {
	p := &Policy{
		registry: password.DefaultRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	snap, err := p.build(cfg, nil)
	if err != nil {
		return nil, err
	}
	p.snap = snap

	logger.Info("Pass-through authentication enabled",
		logger.KeyPolicy, string(snap.policy),
		"primary", len(snap.cfg.PrimaryServers),
		"secondary", len(snap.cfg.SecondaryServers),
		"password_cache", snap.cache != nil)
	return p, nil
}

// Reload replaces the configuration. In-flight verifications finish
// against the old configuration; on error the old one stays in place.
func (p *Policy) Reload(cfg config.PassThroughConfig) error {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	p.mu.RLock()
	prev := p.snap
	p.mu.RUnlock()
	if prev == nil {
		return errPolicyClosed
	}

	next, err := p.build(cfg, prev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.snap
	p.snap = next
	old.close(next)
	p.mu.Unlock()

	logger.Info("Pass-through configuration reloaded", logger.KeyPolicy, string(next.policy))
	return nil
}

// Close releases every connection and the password cache.
func (p *Policy) Close() error {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snap == nil {
		return nil
	}
	err := p.snap.close(nil)
	p.snap = nil
	return err
}

// Status reports every remote server of the current configuration.
func (p *Policy) Status() []ServerStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snap == nil {
		return nil
	}
	out := p.snap.bind.status()
	if p.snap.search != nil {
		out = append(out, p.snap.search.status()...)
	}
	return out
}

// CreatePolicyState binds the policy to a local entry.
func (p *Policy) CreatePolicyState(entry *ldap.Entry) (*PolicyState, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: no local entry", auth.ErrInvalidCredentials)
	}
	return &PolicyState{policy: p, entry: entry}, nil
}

// PasswordMatches implements auth.PasswordValidator.
func (p *Policy) PasswordMatches(ctx context.Context, entry *ldap.Entry, password []byte) (bool, error) {
	state, err := p.CreatePolicyState(entry)
	if err != nil {
		return false, err
	}
	return state.PasswordMatches(ctx, password)
}

// PolicyState verifies passwords for one local entry.
type PolicyState struct {
	policy *Policy
	entry  *ldap.Entry
}

// PasswordMatches reports whether password is accepted by the remote
// server. A wrong password or unknown remote entry is (false, nil); a
// remote failure is an *InfrastructureError.
func (s *PolicyState) PasswordMatches(ctx context.Context, password []byte) (bool, error) {
	p := s.policy
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := p.snap
	if snap == nil {
		return false, &InfrastructureError{Op: PurposeBind, Err: errPolicyClosed}
	}
	if len(password) == 0 {
		return false, nil
	}

	ctx, span := telemetry.StartPassThroughSpan(ctx, telemetry.SpanPassThroughBind, "",
		telemetry.MappingPolicy(string(snap.policy)), telemetry.BindDN(s.entry.DN))
	defer span.End()

	ok, err := snap.passwordMatches(ctx, s.entry, password)
	switch {
	case err != nil:
		telemetry.RecordError(ctx, err)
		p.metrics.RecordVerification(string(snap.policy), outcomeError)
	case ok:
		p.metrics.RecordVerification(string(snap.policy), outcomeMatch)
	default:
		p.metrics.RecordVerification(string(snap.policy), outcomeMismatch)
	}
	return ok, err
}

// snapshot is an immutable configuration with its connections.
type snapshot struct {
	cfg    config.PassThroughConfig
	policy MappingPolicy
	bind   *balancer
	search *balancer

	cache    Store
	storeKey string
	scheme   password.Scheme
	registry *password.Registry

	metrics *Metrics
	now     func() time.Time
}

func (p *Policy) build(cfg config.PassThroughConfig, prev *snapshot) (*snapshot, error) {
	applyDefaults(&cfg)
	policy, err := validate(cfg)
	if err != nil {
		return nil, err
	}

	dialer := p.dialer
	if dialer == nil {
		d, err := NewLDAPDialer(cfg)
		if err != nil {
			return nil, err
		}
		dialer = d
	}

	s := &snapshot{
		cfg:      cfg,
		policy:   policy,
		registry: p.registry,
		metrics:  p.metrics,
		now:      p.now,
	}

	if pc := cfg.PasswordCache; pc.Enabled {
		scheme, err := p.registry.Get(pc.Scheme)
		if err != nil {
			return nil, fmt.Errorf("%w: password cache scheme: %v", auth.ErrConfiguration, err)
		}
		s.scheme = scheme
		s.storeKey = pc.Store + ":" + pc.Path
		if prev != nil && prev.cache != nil && prev.storeKey == s.storeKey {
			s.cache = prev.cache
		} else {
			store, err := openStore(pc.Store, pc.Path, p.now)
			if err != nil {
				return nil, err
			}
			s.cache = store
		}
	}

	s.bind = newBalancer(balancerConfig{
		purpose:   PurposeBind,
		primary:   cfg.PrimaryServers,
		secondary: cfg.SecondaryServers,
		poolSize:  cfg.PoolSize,
		interval:  cfg.MonitorInterval,
		dial:      dialer.Dial,
		metrics:   p.metrics,
		now:       p.now,
	})

	if policy == MappedSearch {
		bindDN, bindPassword := cfg.MappedSearchBindDN, cfg.MappedSearchBindPassword
		s.search = newBalancer(balancerConfig{
			purpose:   PurposeSearch,
			primary:   cfg.PrimaryServers,
			secondary: cfg.SecondaryServers,
			poolSize:  cfg.PoolSize,
			interval:  cfg.MonitorInterval,
			dial: func(ctx context.Context, addr string) (Conn, error) {
				conn, err := dialer.Dial(ctx, addr)
				if err != nil || bindDN == "" {
					return conn, err
				}
				if err := conn.Bind(bindDN, bindPassword); err != nil {
					_ = conn.Close()
					return nil, err
				}
				return conn, nil
			},
			metrics: p.metrics,
			now:     p.now,
		})
	}
	return s, nil
}

func applyDefaults(cfg *config.PassThroughConfig) {
	if cfg.MappingPolicy == "" {
		cfg.MappingPolicy = string(Unmapped)
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2 * runtime.NumCPU()
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = DefaultMonitorInterval
	}
	if cfg.PasswordCache.TTL <= 0 {
		cfg.PasswordCache.TTL = DefaultCacheTTL
	}
	if cfg.PasswordCache.Scheme == "" {
		cfg.PasswordCache.Scheme = DefaultCacheScheme
	}
}

func validate(cfg config.PassThroughConfig) (MappingPolicy, error) {
	if len(cfg.PrimaryServers) == 0 {
		return "", fmt.Errorf("%w: passthrough requires at least one primary server", auth.ErrConfiguration)
	}

	policy := MappingPolicy(strings.ToLower(cfg.MappingPolicy))
	switch policy {
	case Unmapped:
	case MappedBind, MappedSearch:
		if len(cfg.MappedAttributes) == 0 {
			return "", fmt.Errorf("%w: %s requires mapped attributes", auth.ErrConfiguration, policy)
		}
	default:
		return "", fmt.Errorf("%w: unknown mapping policy %q", auth.ErrConfiguration, cfg.MappingPolicy)
	}
	if policy == MappedSearch && len(cfg.MappedSearchBaseDNs) == 0 {
		return "", fmt.Errorf("%w: mapped-search requires at least one base DN", auth.ErrConfiguration)
	}
	return policy, nil
}

// close releases the snapshot's resources. The password cache is kept
// open when next shares it.
func (s *snapshot) close(next *snapshot) error {
	s.bind.close()
	if s.search != nil {
		s.search.close()
	}
	if s.cache != nil && (next == nil || next.cache != s.cache) {
		return s.cache.Close()
	}
	return nil
}

func (s *snapshot) passwordMatches(ctx context.Context, entry *ldap.Entry, password []byte) (bool, error) {
	key := cacheKey(entry.DN)
	if s.cache != nil && s.cachedMatch(ctx, key, password) {
		return true, nil
	}

	bindDN, err := s.resolveBindDN(ctx, entry)
	if err != nil {
		return false, err
	}
	if bindDN == "" {
		return false, nil
	}

	start := time.Now()
	server, err := s.bind.do(ctx, func(c Conn) error {
		return c.Bind(bindDN, string(password))
	})
	s.metrics.RecordRemote(PurposeBind, time.Since(start))

	var infra *InfrastructureError
	switch {
	case err == nil:
	case errors.As(err, &infra):
		logger.WarnCtx(ctx, "Pass-through bind failed", logger.Server(infra.Server), logger.Err(err))
		return false, err
	case ldap.IsErrorAnyOf(err, ldap.LDAPResultNoSuchObject, ldap.LDAPResultInvalidCredentials):
		logger.DebugCtx(ctx, "Pass-through bind rejected",
			logger.Server(server), logger.BindDN(bindDN), logger.ResultCode(int(resultCode(err))))
		s.forget(key)
		return false, nil
	default:
		logger.WarnCtx(ctx, "Pass-through bind returned an unexpected result",
			logger.Server(server), logger.BindDN(bindDN), logger.Err(err))
		return false, &InfrastructureError{Server: server, Op: PurposeBind, Err: err}
	}

	logger.DebugCtx(ctx, "Pass-through bind succeeded", logger.Server(server), logger.BindDN(bindDN))
	s.remember(ctx, key, password)
	return true, nil
}

// resolveBindDN derives the remote bind DN from the local entry.
func (s *snapshot) resolveBindDN(ctx context.Context, entry *ldap.Entry) (string, error) {
	switch s.policy {
	case MappedBind:
		for _, attr := range s.cfg.MappedAttributes {
			for _, v := range entry.GetEqualFoldAttributeValues(attr) {
				if v != "" {
					return v, nil
				}
			}
		}
		return "", ErrMappingAttributeNotFound
	case MappedSearch:
		return s.searchBindDN(ctx, entry)
	default:
		return entry.DN, nil
	}
}

// searchBindDN finds the unique remote entry matching the local entry's
// mapped attribute values. Base DNs are searched in order; the first base
// with a match decides.
func (s *snapshot) searchBindDN(ctx context.Context, entry *ldap.Entry) (string, error) {
	filter := mappedFilter(entry, s.cfg.MappedAttributes)
	if filter == "" {
		return "", ErrMappingAttributeNotFound
	}

	ctx, span := telemetry.StartPassThroughSpan(ctx, telemetry.SpanPassThroughSearch, "")
	defer span.End()

	timeLimit := int((s.cfg.OperationTimeout + time.Second - 1) / time.Second)
	for _, base := range s.cfg.MappedSearchBaseDNs {
		req := ldap.NewSearchRequest(base, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			searchSizeLimit, timeLimit, false, filter, []string{noAttributes}, nil)

		var result *ldap.SearchResult
		start := time.Now()
		server, err := s.search.do(ctx, func(c Conn) error {
			r, err := c.Search(req)
			result = r
			return err
		})
		s.metrics.RecordRemote(PurposeSearch, time.Since(start))

		var infra *InfrastructureError
		switch {
		case err == nil:
		case errors.As(err, &infra):
			return "", err
		case ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded):
			return "", ErrTooManyCandidates
		case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
			logger.DebugCtx(ctx, "Pass-through search base not found", logger.Server(server), logger.BaseDN(base))
			continue
		default:
			return "", &InfrastructureError{Server: server, Op: PurposeSearch, Err: err}
		}

		n := 0
		if result != nil {
			n = len(result.Entries)
		}
		logger.DebugCtx(ctx, "Pass-through search completed",
			logger.Server(server), logger.BaseDN(base), logger.Filter(filter), logger.KeyEntries, n)
		switch {
		case n == 0:
			continue
		case n > 1:
			return "", ErrTooManyCandidates
		default:
			telemetry.SetAttributes(ctx, telemetry.Server(server), telemetry.Entries(n))
			return result.Entries[0].DN, nil
		}
	}
	return "", ErrNoCandidatesFound
}

// mappedFilter ORs equality assertions for every value of every mapped
// attribute. It returns "" when the entry has none.
func mappedFilter(entry *ldap.Entry, attrs []string) string {
	var terms []string
	for _, attr := range attrs {
		for _, v := range entry.GetEqualFoldAttributeValues(attr) {
			if v == "" {
				continue
			}
			terms = append(terms, "("+attr+"="+ldap.EscapeFilter(v)+")")
		}
	}
	switch len(terms) {
	case 0:
		return ""
	case 1:
		return terms[0]
	default:
		return "(|" + strings.Join(terms, "") + ")"
	}
}

func (s *snapshot) cachedMatch(ctx context.Context, key string, password []byte) bool {
	cached, ok, err := s.cache.Get(key)
	if err != nil {
		logger.WarnCtx(ctx, "Password cache lookup failed", logger.Err(err))
		return false
	}
	if !ok {
		s.metrics.RecordCacheLookup("miss")
		return false
	}
	if cached.expired(s.now(), s.cfg.PasswordCache.TTL) {
		s.metrics.RecordCacheLookup("expired")
		_ = s.cache.Delete(key)
		return false
	}

	match, err := s.registry.Matches(password, cached.Encoded)
	if err != nil || !match {
		s.metrics.RecordCacheLookup("miss")
		return false
	}
	s.metrics.RecordCacheLookup("hit")
	telemetry.SetAttributes(ctx, telemetry.CacheHit(true))
	logger.DebugCtx(ctx, "Pass-through password cache hit", logger.KeyCacheHit, true)
	return true
}

// remember caches a remotely verified password.
func (s *snapshot) remember(ctx context.Context, key string, password []byte) {
	if s.cache == nil {
		return
	}
	encoded, err := s.scheme.EncodeWithScheme(password)
	if err != nil {
		logger.WarnCtx(ctx, "Cannot encode password for caching", logger.Scheme(s.scheme.Name()), logger.Err(err))
		return
	}
	err = s.cache.Put(key, CachedPassword{Encoded: encoded, StoredAt: s.now()}, s.cfg.PasswordCache.TTL)
	if err != nil {
		logger.WarnCtx(ctx, "Cannot store cached password", logger.Err(err))
	}
}

func (s *snapshot) forget(key string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(key)
}

func cacheKey(dn string) string {
	if n, err := directory.NormalizeDN(dn); err == nil {
		return n
	}
	return strings.ToLower(dn)
}
