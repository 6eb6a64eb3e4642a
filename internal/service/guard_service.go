// Package service contains application services.
package service

import (
	"container/list"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"

	celeval "github.com/routewarden/routewarden/internal/adapter/outbound/cel"
	"github.com/routewarden/routewarden/internal/domain/audit"
	"github.com/routewarden/routewarden/internal/domain/guard"
	"github.com/routewarden/routewarden/internal/domain/intent"
	"github.com/routewarden/routewarden/internal/domain/role"
	"github.com/routewarden/routewarden/internal/domain/route"
)

// compiledPolicy is a route policy prepared for evaluation: parsed pattern,
// role set, and pre-compiled condition program.
type compiledPolicy struct {
	pattern       route.Pattern
	requiredRoles map[guard.Role]struct{}
	requiresAuth  bool
	fallback      string
	program       cel.Program
	hasCondition  bool
}

// tableSnapshot is the immutable compiled policy table stored in atomic.Value.
// Exact patterns get O(1) lookup; wildcards are kept sorted by descending
// prefix length so the first prefix hit is the most specific one.
//
// The decision cache belongs to the snapshot, not the service: a Decide
// racing a reload can only read and write the cache of the table it
// evaluated against, so a swap can never surface a decision computed from
// a previous table.
type tableSnapshot struct {
	exact     map[string]*compiledPolicy
	wildcards []*compiledPolicy
	source    []guard.RoutePolicy
	cache     *decisionCache
}

// match finds the policy for a concrete path, or nil (fail-open for
// unlisted routes, matching the documented default).
func (t *tableSnapshot) match(path string) *compiledPolicy {
	if cp, ok := t.exact[path]; ok {
		return cp
	}
	for _, cp := range t.wildcards {
		if strings.HasPrefix(path, cp.pattern.Prefix()) {
			return cp
		}
	}
	return nil
}

// cacheEntry is one LRU cache slot.
type cacheEntry struct {
	key      uint64
	decision guard.Decision
}

// decisionCache is a bounded LRU cache for guard decisions. Decisions are
// pure functions of (identity, path, table), so caching is sound; each
// table snapshot carries its own cache, discarded with the snapshot.
type decisionCache struct {
	mu    sync.Mutex
	max   int
	ll    *list.List
	items map[uint64]*list.Element
}

func newDecisionCache(max int) *decisionCache {
	return &decisionCache{
		max:   max,
		ll:    list.New(),
		items: make(map[uint64]*list.Element, max),
	}
}

// Get returns a cached decision and promotes the entry on hit.
func (c *decisionCache) Get(key uint64) (guard.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*cacheEntry).decision, true
	}
	return guard.Decision{}, false
}

// Put stores a decision, evicting the least recently used entry at capacity.
func (c *decisionCache) Put(key uint64, d guard.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).decision = d
		c.ll.MoveToFront(el)
		return
	}
	if c.ll.Len() >= c.max {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, decision: d})
}

// Len returns the current cache size.
func (c *decisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// cacheKey hashes the full decision input. Roles are sorted so identities
// with the same role set share entries regardless of order; each role is
// length-prefixed so distinct role sets can never collapse to the same
// byte stream, whatever characters the role names contain.
func cacheKey(rawPath string, identity guard.Identity) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(rawPath)
	_, _ = h.Write([]byte{0})

	roles := make([]string, len(identity.Roles))
	for i, r := range identity.Roles {
		roles[i] = string(r)
	}
	sort.Strings(roles)
	var lenBuf [8]byte
	for _, r := range roles {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(r)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.WriteString(r)
	}

	if identity.Authenticated {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.WriteString(identity.SubjectID)
	return h.Sum64()
}

// Settings holds the engine constants outside the policy table.
type Settings struct {
	// DefaultFallback is the redirect target for role and condition
	// denials when the matched policy has no fallback. Defaults to "/".
	DefaultFallback string
	// AuthOnlyPaths are pages meaningful only to unauthenticated visitors
	// (sign-in, sign-up). Authenticated requests for them are redirected
	// away regardless of the policy table.
	AuthOnlyPaths []string
}

// GuardService implements guard.Engine. The compiled policy table lives in
// an atomic.Value so the decision hot path is lock-free; Reload rebuilds
// the table and swaps it whole, never editing in place.
type GuardService struct {
	store     guard.PolicyStore
	resolver  *role.Resolver
	tracker   *intent.Tracker
	evaluator *celeval.Evaluator

	defaultFallback string
	authOnly        map[string]struct{}

	snapshot  atomic.Value // *tableSnapshot
	mu        sync.Mutex   // serializes Reload swaps
	cacheSize int
	cacheHits atomic.Uint64
	auditor   audit.Store
	logger    *slog.Logger
}

// GuardServiceOption configures GuardService.
type GuardServiceOption func(*GuardService)

// WithCacheSize sets the maximum number of cached decisions per table.
func WithCacheSize(size int) GuardServiceOption {
	return func(s *GuardService) {
		s.cacheSize = size
	}
}

// WithAuditStore attaches a decision audit store. Every Decide call is
// recorded, cached or not.
func WithAuditStore(store audit.Store) GuardServiceOption {
	return func(s *GuardService) {
		s.auditor = store
	}
}

// NewGuardService creates a GuardService, loading and compiling the policy
// table from the store. The ctx parameter covers the initial load and can
// be cancelled to abort startup.
func NewGuardService(ctx context.Context, store guard.PolicyStore, resolver *role.Resolver, tracker *intent.Tracker, settings Settings, logger *slog.Logger, opts ...GuardServiceOption) (*GuardService, error) {
	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create condition evaluator: %w", err)
	}

	if settings.DefaultFallback == "" {
		settings.DefaultFallback = "/"
	}
	authOnly := make(map[string]struct{}, len(settings.AuthOnlyPaths))
	for _, p := range settings.AuthOnlyPaths {
		authOnly[p] = struct{}{}
	}

	s := &GuardService{
		store:           store,
		resolver:        resolver,
		tracker:         tracker,
		evaluator:       evaluator,
		defaultFallback: settings.DefaultFallback,
		authOnly:        authOnly,
		cacheSize:       1000,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	policies, err := store.GetAllPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	snap, err := s.compileTable(policies)
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(snap)

	logger.Info("guard service initialized",
		"policies", len(policies),
		"exact_patterns", len(snap.exact),
		"wildcard_patterns", len(snap.wildcards),
		"auth_only_paths", len(authOnly),
		"cache_max_size", s.cacheSize,
	)
	return s, nil
}

// compileTable parses patterns, validates roles, compiles conditions, and
// rejects ambiguous tables (duplicate exact paths or wildcard prefixes).
func (s *GuardService) compileTable(policies []guard.RoutePolicy) (*tableSnapshot, error) {
	snap := &tableSnapshot{
		exact:  make(map[string]*compiledPolicy),
		source: policies,
		cache:  newDecisionCache(s.cacheSize),
	}
	seenPrefix := make(map[string]string)

	for _, p := range policies {
		pattern, err := route.Parse(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", p.Pattern, err)
		}
		if len(p.RequiredRoles) == 0 {
			return nil, fmt.Errorf("policy %q: required_roles must not be empty", p.Pattern)
		}
		if err := s.resolver.ValidateRoles(p.RequiredRoles); err != nil {
			return nil, fmt.Errorf("policy %q: %w", p.Pattern, err)
		}

		cp := &compiledPolicy{
			pattern:       pattern,
			requiredRoles: make(map[guard.Role]struct{}, len(p.RequiredRoles)),
			requiresAuth:  p.RequiresAuth,
			fallback:      p.Fallback,
			hasCondition:  p.Condition != "",
		}
		for _, r := range p.RequiredRoles {
			cp.requiredRoles[r] = struct{}{}
		}
		if cp.hasCondition {
			prg, err := s.evaluator.CompileCondition(p.Condition)
			if err != nil {
				return nil, fmt.Errorf("policy %q: %w", p.Pattern, err)
			}
			cp.program = prg
		}

		if pattern.IsWildcard() {
			if prev, dup := seenPrefix[pattern.Prefix()]; dup {
				return nil, fmt.Errorf("ambiguous policies: %q and %q share a wildcard prefix", prev, p.Pattern)
			}
			seenPrefix[pattern.Prefix()] = p.Pattern
			snap.wildcards = append(snap.wildcards, cp)
		} else {
			if _, dup := snap.exact[p.Pattern]; dup {
				return nil, fmt.Errorf("ambiguous policies: duplicate exact pattern %q", p.Pattern)
			}
			snap.exact[p.Pattern] = cp
		}
	}

	// Longest prefix first: the first hit during matching is the most
	// specific policy.
	sort.SliceStable(snap.wildcards, func(i, j int) bool {
		return len(snap.wildcards[i].pattern.Prefix()) > len(snap.wildcards[j].pattern.Prefix())
	})
	return snap, nil
}

// loadSnapshot returns the current compiled table atomically (lock-free).
func (s *GuardService) loadSnapshot() *tableSnapshot {
	return s.snapshot.Load().(*tableSnapshot)
}

// Decide evaluates the identity against the policy matching path.
//
// The path may include a query string; matching uses the path part only,
// while the query is consulted when resolving a pending return-to target
// for auth-only pages. Rule order (first applicable wins):
//
//  1. Authenticated identity on an auth-only page: deny, redirect to the
//     pending return-to target or home.
//  2. No matching policy: allow (fail-open for unlisted routes).
//  3. Policy requires auth, identity unauthenticated: deny, redirect to
//     sign-in carrying the original path.
//  4. Authenticated identity without any required role: deny, redirect to
//     the policy fallback or the default fallback.
//  5. Policy condition evaluates false: deny, same redirect as rule 4.
//  6. Otherwise allow.
//
// Returns an error only when the identity carries a role unknown to the
// resolver; that is a configuration defect and is surfaced loudly.
func (s *GuardService) Decide(ctx context.Context, identity guard.Identity, rawPath string) (guard.Decision, error) {
	start := time.Now()

	if err := s.resolver.ValidateRoles(identity.Roles); err != nil {
		return guard.Decision{}, fmt.Errorf("identity %q: %w", identity.SubjectID, err)
	}

	// One snapshot load covers both the cache and the evaluation, so the
	// decision stored is always the one this table produces.
	snap := s.loadSnapshot()
	key := cacheKey(rawPath, identity)
	if d, ok := snap.cache.Get(key); ok {
		s.cacheHits.Add(1)
		s.record(ctx, identity, rawPath, d, start)
		return d, nil
	}

	d := s.evaluate(snap, identity, rawPath)
	snap.cache.Put(key, d)
	s.record(ctx, identity, rawPath, d, start)
	return d, nil
}

// evaluate computes one decision against snap, without caching or auditing.
func (s *GuardService) evaluate(snap *tableSnapshot, identity guard.Identity, rawPath string) guard.Decision {
	path, rawQuery, _ := strings.Cut(rawPath, "?")

	// Auth-only pages are checked independently of the policy table and
	// override otherwise-allowed decisions for that fixed set.
	if identity.Authenticated {
		if _, ok := s.authOnly[path]; ok {
			return guard.Decision{
				Allowed:    false,
				RedirectTo: s.tracker.ResolveReturnTo(rawQuery),
				Reason:     guard.ReasonAuthOnlyPage,
			}
		}
	}

	cp := snap.match(path)
	if cp == nil {
		return guard.Decision{Allowed: true, Reason: guard.ReasonNone}
	}

	if cp.requiresAuth && !identity.Authenticated {
		return guard.Decision{
			Allowed:    false,
			RedirectTo: s.tracker.SignInURL(rawPath),
			Reason:     guard.ReasonNotAuthenticated,
			Pattern:    cp.pattern.String(),
		}
	}

	if identity.Authenticated {
		hasRequiredRole := false
		for _, r := range identity.Roles {
			if _, ok := cp.requiredRoles[r]; ok {
				hasRequiredRole = true
				break
			}
		}
		if !hasRequiredRole {
			return guard.Decision{
				Allowed:    false,
				RedirectTo: s.fallbackFor(cp),
				Reason:     guard.ReasonMissingRole,
				Pattern:    cp.pattern.String(),
			}
		}
	}

	if cp.hasCondition {
		in := celeval.Input{
			Path:          path,
			Authenticated: identity.Authenticated,
			SubjectID:     identity.SubjectID,
			Roles:         make([]string, len(identity.Roles)),
		}
		for i, r := range identity.Roles {
			in.Roles[i] = string(r)
		}
		ok, err := s.evaluator.Evaluate(cp.program, in)
		if err != nil {
			// Fail closed: a broken condition must not grant access,
			// and navigation must still get a redirect target.
			s.logger.Warn("condition evaluation failed",
				"pattern", cp.pattern.String(), "error", err)
			ok = false
		}
		if !ok {
			return guard.Decision{
				Allowed:    false,
				RedirectTo: s.fallbackFor(cp),
				Reason:     guard.ReasonConditionFailed,
				Pattern:    cp.pattern.String(),
			}
		}
	}

	return guard.Decision{Allowed: true, Reason: guard.ReasonNone, Pattern: cp.pattern.String()}
}

// fallbackFor returns the policy fallback, or the configured default.
func (s *GuardService) fallbackFor(cp *compiledPolicy) string {
	if cp.fallback != "" {
		return cp.fallback
	}
	return s.defaultFallback
}

// record writes the decision to the audit store, if one is attached.
func (s *GuardService) record(ctx context.Context, identity guard.Identity, rawPath string, d guard.Decision, start time.Time) {
	if s.auditor == nil {
		return
	}
	roles := make([]string, len(identity.Roles))
	for i, r := range identity.Roles {
		roles[i] = string(r)
	}
	rec := audit.DecisionRecord{
		Timestamp:     start.UTC(),
		SubjectID:     identity.SubjectID,
		Roles:         roles,
		Authenticated: identity.Authenticated,
		Path:          rawPath,
		Allowed:       d.Allowed,
		Reason:        string(d.Reason),
		RedirectTo:    d.RedirectTo,
		Pattern:       d.Pattern,
		LatencyMicros: time.Since(start).Microseconds(),
	}
	if err := s.auditor.Record(ctx, rec); err != nil {
		s.logger.Warn("failed to record audit entry", "error", err)
	}
}

// Reload rebuilds the compiled table from the store and swaps it
// atomically. Safe to call concurrently with Decide: in-flight readers
// keep the old snapshot, later readers see the new one, never a mix.
func (s *GuardService) Reload(ctx context.Context) error {
	policies, err := s.store.GetAllPolicies(ctx)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	snap, err := s.compileTable(policies)
	if err != nil {
		return fmt.Errorf("failed to compile policies: %w", err)
	}

	// The new snapshot carries a fresh, empty cache. Decides racing the
	// swap keep writing into the old snapshot's cache, which becomes
	// unreachable with it, so no pre-reload decision can survive.
	s.mu.Lock()
	s.snapshot.Store(snap)
	s.mu.Unlock()

	s.logger.Info("guard service reloaded",
		"policies", len(policies),
		"exact_patterns", len(snap.exact),
		"wildcard_patterns", len(snap.wildcards),
	)
	return nil
}

// Policies returns the source policies of the current snapshot.
func (s *GuardService) Policies() []guard.RoutePolicy {
	return s.loadSnapshot().source
}

// PolicyCount returns the number of loaded policies.
func (s *GuardService) PolicyCount() int {
	return len(s.loadSnapshot().source)
}

// CacheHits returns the total number of decision cache hits.
func (s *GuardService) CacheHits() uint64 {
	return s.cacheHits.Load()
}

// CacheLen returns the number of decisions cached for the current table.
func (s *GuardService) CacheLen() int {
	return s.loadSnapshot().cache.Len()
}

// Compile-time interface verification.
var _ guard.Engine = (*GuardService)(nil)
