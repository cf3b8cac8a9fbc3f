package strata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Option configures a Container.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	strict   bool
	implicit bool
	scopes   []ScopeConfig
	hooks    []Hook
}

// WithLogger sets the logger used by the container and its injectors.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStrict makes repeated preparation an error.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithImplicit enables just-in-time registration of unregistered
// functions, callables and struct types requested directly.
func WithImplicit(implicit bool) Option {
	return func(o *options) {
		o.implicit = implicit
	}
}

// WithScopes defines scopes in addition to MainScope.
func WithScopes(cfgs ...ScopeConfig) Option {
	return func(o *options) {
		o.scopes = append(o.scopes, cfgs...)
	}
}

// WithHooks installs resolution hooks on the container's Make calls.
func WithHooks(hooks ...Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks...)
	}
}

// Container is the facade applications use to register providers,
// activate scopes and resolve values.
type Container struct {
	opts     options
	logger   *zap.Logger
	registry *registry
	hooks    *hookChain

	mu       sync.RWMutex
	scopes   map[string]*Scope
	order    []string
	prepared atomic.Bool

	rootMu sync.Mutex
	root   *Injector
	closed bool
}

// New creates a container with MainScope and any scopes from WithScopes.
func New(opts ...Option) (*Container, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{
		opts:     o,
		logger:   o.logger,
		registry: newRegistry(),
		hooks:    newHookChain(o.hooks...),
		scopes:   make(map[string]*Scope),
	}

	if _, err := c.DefineScope(ScopeConfig{Name: MainScope}); err != nil {
		return nil, err
	}

	for _, cfg := range o.scopes {
		if _, err := c.DefineScope(cfg); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(opts ...Option) *Container {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}

	return c
}

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// =============================================================================
// REGISTRATION
// =============================================================================

// RegisterValue registers a constant for token.
func (c *Container) RegisterValue(token, value any, opts ...ProviderOption) (*Provider, error) {
	return c.register(KindValue, token, value, opts)
}

// RegisterAlias makes token resolve to whatever target resolves to.
func (c *Container) RegisterAlias(token, target any, opts ...ProviderOption) (*Provider, error) {
	return c.register(KindAlias, token, target, opts)
}

// RegisterFactory registers a function or *Callable producing the value
// for token. Its parameters are auto-wired.
func (c *Container) RegisterFactory(token, factory any, opts ...ProviderOption) (*Provider, error) {
	return c.register(KindFactory, token, factory, opts)
}

func (c *Container) register(kind Kind, token, concrete any, opts []ProviderOption) (*Provider, error) {
	cfg := newProviderConfig(opts)

	p, err := newProvider(kind, token, concrete, cfg)
	if err != nil {
		return nil, err
	}

	c.registry.add(p)

	if !cfg.noFlush {
		c.flushKey(p.Abstract, p.Scope)
	}

	c.logger.Debug("provider registered",
		zap.Stringer("token", p.Abstract),
		zap.Stringer("kind", p.Kind),
		zap.String("scope", p.Scope),
		zap.Int("priority", p.Priority),
		zap.Bool("implicit", p.Implicit),
	)

	return p, nil
}

// Unregister marks p inactive and flushes its token. The token is never
// registered implicitly afterwards.
func (c *Container) Unregister(p *Provider) error {
	if p == nil {
		return configError("unregister", "nil provider", nil)
	}

	if c.registry.remove(p) {
		c.flushKey(p.Abstract, p.Scope)
		c.logger.Debug("provider unregistered", zap.Stringer("token", p.Abstract), zap.String("scope", p.Scope))
	}

	return nil
}

// Flush drops compiled resolvers and cached values for token in scope and
// every scope layered on it. An empty scope flushes every scope.
func (c *Container) Flush(token any, scope string) error {
	key, err := KeyOf(token)
	if err != nil {
		return err
	}

	c.flushKey(key, scope)

	return nil
}

func (c *Container) flushKey(key Key, scope string) {
	visited := make(map[*Scope]bool)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if scope == "" {
		for _, name := range c.order {
			c.scopes[name].flush(key, visited)
		}

		return
	}

	if s := c.scopes[scope]; s != nil {
		s.flush(key, visited)
	}

	c.logger.Debug("flushed", zap.Stringer("token", key), zap.String("scope", scope), zap.Int("scopes", len(visited)))
}

// =============================================================================
// SCOPES
// =============================================================================

// DefineScope adds a scope. Scopes defined after Prepare are prepared
// immediately, so their dependencies must already exist.
func (c *Container) DefineScope(cfg ScopeConfig) (*Scope, error) {
	if cfg.Name == "" {
		return nil, configError("define scope", "scope name cannot be empty", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.scopes[cfg.Name]; ok {
		return nil, configError("define scope", fmt.Sprintf("scope %q already defined", cfg.Name), nil)
	}

	s := newScope(c, cfg)

	if c.prepared.Load() {
		if err := s.prepare(c.findLocked); err != nil {
			return nil, err
		}
	}

	c.scopes[cfg.Name] = s
	c.order = append(c.order, cfg.Name)

	return s, nil
}

// Scope returns the named scope.
func (c *Container) Scope(name string) (*Scope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.scopes[name]

	return s, ok
}

// Scopes returns every scope in definition order.
func (c *Container) Scopes() []*Scope {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Scope, len(c.order))
	for i, name := range c.order {
		out[i] = c.scopes[name]
	}

	return out
}

func (c *Container) findLocked(name string) *Scope {
	return c.scopes[name]
}

// Prepare validates the scope graph and prepares every scope in
// dependency order. It runs implicitly on first activation.
func (c *Container) Prepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prepared.Load() {
		if c.opts.strict {
			return configError("prepare", "container already prepared", nil)
		}

		return nil
	}

	graph := NewDependencyGraph()
	for _, name := range c.order {
		graph.AddNode(name, c.scopes[name].cfg.depends())
	}

	for _, name := range c.order {
		for _, dep := range graph.GetDependencies(name) {
			if !graph.HasNode(dep) {
				return configError("prepare", fmt.Sprintf("scope %q depends on unknown scope %q", name, dep), nil)
			}
		}
	}

	sorted, err := graph.TopologicalSort()
	if err != nil {
		return err
	}

	for _, name := range sorted {
		if err := c.scopes[name].prepare(c.findLocked); err != nil {
			return err
		}
	}

	c.prepared.Store(true)
	c.logger.Debug("scopes prepared", zap.Strings("order", sorted))

	return nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

// Root returns the process-lifetime injector of MainScope, preparing the
// container and entering the root context on first use.
func (c *Container) Root() (*Injector, error) {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()

	if c.closed {
		return nil, ErrInjectorClosed.WithContext("container", "shut down")
	}

	if c.root != nil {
		return c.root, nil
	}

	if !c.prepared.Load() {
		if err := c.Prepare(); err != nil {
			return nil, err
		}
	}

	main, _ := c.Scope(MainScope)

	root, err := main.Create(nil)
	if err != nil {
		return nil, err
	}

	if err := root.ctx.Enter(); err != nil {
		return nil, err
	}

	c.root = root

	return root, nil
}

// Current returns the injector carried by ctx, or the root injector.
func (c *Container) Current(ctx context.Context) (*Injector, error) {
	if inj, ok := InjectorFrom(ctx); ok {
		return inj, nil
	}

	return c.Root()
}

// Make resolves token from the current injector.
func (c *Container) Make(ctx context.Context, token any, args ...any) (any, error) {
	key, err := KeyOf(token)
	if err != nil {
		return nil, err
	}

	if err := c.hooks.beforeMake(ctx, key); err != nil {
		return nil, err
	}

	inj, err := c.Current(ctx)

	var v any
	if err == nil {
		v, err = inj.make(newResolution(), key, token, args)
	}

	if hookErr := c.hooks.afterMake(ctx, key, v, err); hookErr != nil {
		return nil, hookErr
	}

	return v, err
}

// Get is the best-effort form of Make: any failure yields def.
func (c *Container) Get(ctx context.Context, token, def any) any {
	v, err := c.Make(ctx, token)
	if err != nil {
		return def
	}

	return v
}

// Invoke calls fn with auto-wired arguments from the current injector.
func (c *Container) Invoke(ctx context.Context, fn any, args ...any) (any, error) {
	inj, err := c.Current(ctx)
	if err != nil {
		return nil, err
	}

	return inj.Invoke(fn, args...)
}

// At returns the nearest injector in the current chain whose scope has
// one of the given names.
func (c *Container) At(ctx context.Context, names ...string) (*Injector, bool) {
	inj, err := c.Current(ctx)
	if err != nil {
		return nil, false
	}

	return inj.At(names...)
}

// =============================================================================
// ACTIVATION
// =============================================================================

// Activation is an entered injector context. Close exits it.
type Activation struct {
	ctx  context.Context
	inj  *Injector
	once sync.Once
	err  error
}

// Context returns a context carrying the activated injector as current.
func (a *Activation) Context() context.Context { return a.ctx }

// Injector returns the activated injector.
func (a *Activation) Injector() *Injector { return a.inj }

// Close exits the injector context once; later calls return the first
// result.
func (a *Activation) Close() error {
	a.once.Do(func() {
		a.err = a.inj.ctx.Exit()
	})

	return a.err
}

// Use activates target, a scope name, *Scope or *Injector, below the
// current injector and enters its context. If the current chain already
// holds an injector of the scope, that injector is re-entered.
//
// Example:
//
//	act, err := c.Use(ctx, "request")
//	if err != nil {
//	    return err
//	}
//	defer act.Close()
//
//	handler, err := c.Make(act.Context(), HandlerToken)
func (c *Container) Use(ctx context.Context, target any) (*Activation, error) {
	parent, err := c.Current(ctx)
	if err != nil {
		return nil, err
	}

	var inj *Injector

	switch t := target.(type) {
	case string:
		s, ok := c.Scope(t)
		if !ok {
			return nil, configError("use", fmt.Sprintf("unknown scope %q", t), nil)
		}

		inj, err = s.Create(parent)
	case *Scope:
		inj, err = t.Create(parent)
	case *Injector:
		inj = t
	default:
		return nil, configError("use", fmt.Sprintf("cannot activate %T", target), nil)
	}

	if err != nil {
		return nil, err
	}

	if err := inj.ctx.Enter(); err != nil {
		return nil, err
	}

	inj.logger.Debug("scope activated", zap.Int("depth", inj.ctx.Level()))

	return &Activation{ctx: WithInjector(ctx, inj), inj: inj}, nil
}

// Within runs fn inside an activation of scope and exits it afterwards,
// joining fn's error with any teardown error.
func (c *Container) Within(ctx context.Context, scope string, fn func(ctx context.Context, inj *Injector) error) (err error) {
	act, err := c.Use(ctx, scope)
	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, act.Close())
	}()

	return fn(act.Context(), act.Injector())
}

// Shutdown exits the root context. The container cannot be used
// afterwards.
func (c *Container) Shutdown() error {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if c.root == nil {
		return nil
	}

	c.logger.Debug("container shutting down")

	return c.root.ctx.Exit()
}
