package theme

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/slotwise/portal/internal/api"
	"github.com/slotwise/portal/internal/platform/kv"
	"github.com/slotwise/portal/internal/principal"
	"github.com/slotwise/portal/internal/rbac"
)

// Style variables written by the cascade.
const (
	VarPrimary   = "--color-primary"
	VarSecondary = "--color-secondary"
	VarAccent    = "--color-accent"
)

var variables = []string{VarPrimary, VarSecondary, VarAccent}

// DefaultCacheKey stores the last applied tenant slug.
const DefaultCacheKey = "portal:theme:last_tenant"

// TenantSource fetches the authoritative tenant record.
type TenantSource interface {
	Tenant(ctx context.Context, id int64) (*api.Tenant, error)
}

// Transition kinds reported to an Observer.
const (
	TransitionApplied  = "applied"
	TransitionReverted = "reverted"
	TransitionFailed   = "failed"
)

// Transitions lists every kind the cascade reports.
var Transitions = []string{TransitionApplied, TransitionReverted, TransitionFailed}

// Observer receives theme transitions.
type Observer interface {
	ObserveTheme(kind string)
}

// Option configures a Cascade.
type Option func(*Cascade)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cascade) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver reports transitions to o.
func WithObserver(o Observer) Option {
	return func(c *Cascade) { c.metrics = o }
}

// WithCache remembers the applied tenant slug under key.
func WithCache(store kv.Store, key string) Option {
	return func(c *Cascade) {
		c.cache = store
		if key != "" {
			c.cacheKey = key
		}
	}
}

// WithFetchTimeout bounds tenant fetches started by Observe.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cascade) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Cascade keeps the style scope in step with the principal's active tenant.
// Every transition reverts the previous tenant's variables before anything new is applied.
type Cascade struct {
	scope    StyleScope
	tenants  TenantSource
	logger   *slog.Logger
	metrics  Observer
	cache    kv.Store
	cacheKey string
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	gen      uint64
	selected int64
	hasSel   bool
	applied  *api.Tenant
	slug     string
	closed   bool
}

// NewCascade constructs a cascade writing to scope.
func NewCascade(scope StyleScope, tenants TenantSource, opts ...Option) *Cascade {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cascade{
		scope:    scope,
		tenants:  tenants,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		cacheKey: DefaultCacheKey,
		timeout:  15 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectTenant returns the tenant of the first tenant-scoped assignment in
// the order the server listed them.
func SelectTenant(p *rbac.Principal) (int64, bool) {
	if p == nil {
		return 0, false
	}
	for _, a := range p.Roles {
		if !a.RoleName.TenantScoped() || a.TenantID == nil {
			continue
		}
		if a.Scope == rbac.ScopeTenant || a.Scope == rbac.ScopeBranch {
			return *a.TenantID, true
		}
	}
	return 0, false
}

// Warm loads the cached slug so layouts rendered before resolution can carry it.
func (c *Cascade) Warm(ctx context.Context) {
	if c.cache == nil {
		return
	}
	slug, ok, err := c.cache.Get(ctx, c.cacheKey)
	if err != nil {
		c.logger.Warn("read theme cache", slog.Any("error", err))
		return
	}
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasSel && c.applied == nil {
		c.slug = slug
	}
}

// Slug returns the applied tenant's slug, or the cached one before resolution.
func (c *Cascade) Slug() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slug
}

// Applied returns the tenant whose colors are in the scope, if any.
func (c *Cascade) Applied() *api.Tenant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// Sync transitions to p's active tenant and waits for the fetch.
// A fetch failure leaves no tenant applied.
func (c *Cascade) Sync(ctx context.Context, p *rbac.Principal) error {
	gen, id, ok, changed := c.begin(p, false)
	if !changed {
		return nil
	}
	if !ok {
		c.forget(ctx, gen)
		return nil
	}
	return c.load(ctx, gen, id)
}

// Observe is a principal.Resolver subscriber. The revert happens before it
// returns; the tenant fetch runs in the background.
func (c *Cascade) Observe(st principal.State) {
	var p *rbac.Principal
	switch st.Status {
	case principal.StatusLoading:
		return
	case principal.StatusAuthenticated:
		p = st.Principal
	}
	gen, id, ok, changed := c.begin(p, true)
	if !changed {
		return
	}
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()
		if !ok {
			c.forget(ctx, gen)
			return
		}
		_ = c.load(ctx, gen, id)
	}()
}

// Close reverts the scope and waits for background fetches. The slug cache is kept.
func (c *Cascade) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.revertLocked()
	c.hasSel = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Cascade) begin(p *rbac.Principal, async bool) (gen uint64, id int64, ok, changed bool) {
	id, ok = SelectTenant(p)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, 0, false, false
	}
	if ok && c.hasSel && c.selected == id {
		return 0, 0, false, false
	}
	if !ok && !c.hasSel && c.slug == "" {
		return 0, 0, false, false
	}
	c.gen++
	c.revertLocked()
	c.selected, c.hasSel = id, ok
	if async {
		c.wg.Add(1)
	}
	return c.gen, id, ok, true
}

func (c *Cascade) load(ctx context.Context, gen uint64, id int64) error {
	t, err := c.tenants.Tenant(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		c.logger.Debug("discarding stale tenant theme", slog.Int64("tenant_id", id))
		return nil
	}
	if err != nil {
		c.hasSel = false
		c.observe(TransitionFailed)
		c.logger.Warn("tenant theme fetch failed", slog.Int64("tenant_id", id), slog.Any("error", err))
		return fmt.Errorf("theme: fetch tenant %d: %w", id, err)
	}
	c.applyLocked(t)
	if c.cache != nil && c.slug != "" {
		if err := c.cache.SetMany(ctx, map[string]string{c.cacheKey: c.slug}); err != nil {
			c.logger.Warn("write theme cache", slog.Any("error", err))
		}
	}
	return nil
}

func (c *Cascade) forget(ctx context.Context, gen uint64) {
	if c.cache == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	if err := c.cache.Delete(ctx, c.cacheKey); err != nil {
		c.logger.Warn("clear theme cache", slog.Any("error", err))
	}
}

func (c *Cascade) applyLocked(t *api.Tenant) {
	tokens := []*string{t.PrimaryColor, t.SecondaryColor, t.AccentColor}
	c.batch(func(s StyleScope) {
		for _, name := range variables {
			s.Clear(name)
		}
		for i, raw := range tokens {
			if raw == nil {
				continue
			}
			triplet, ok := DecodeHex(*raw)
			if !ok {
				c.logger.Warn("skipping invalid tenant color", slog.Int64("tenant_id", t.ID), slog.String("var", variables[i]), slog.String("value", *raw))
				continue
			}
			s.Set(variables[i], triplet)
		}
	})
	c.applied = t
	c.slug = tenantSlug(t)
	c.observe(TransitionApplied)
	c.logger.Info("tenant theme applied", slog.Int64("tenant_id", t.ID), slog.String("slug", c.slug))
}

func (c *Cascade) revertLocked() {
	c.batch(func(s StyleScope) {
		for _, name := range variables {
			s.Clear(name)
		}
	})
	c.slug = ""
	if c.applied != nil {
		c.applied = nil
		c.observe(TransitionReverted)
	}
}

func (c *Cascade) batch(fn func(StyleScope)) {
	if b, ok := c.scope.(Batcher); ok {
		b.Batch(fn)
		return
	}
	fn(c.scope)
}

func (c *Cascade) observe(kind string) {
	if c.metrics != nil {
		c.metrics.ObserveTheme(kind)
	}
}

func tenantSlug(t *api.Tenant) string {
	if t.Slug != "" {
		return Slugify(t.Slug)
	}
	return Slugify(t.Name)
}
