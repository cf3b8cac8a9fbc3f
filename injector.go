package strata

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Disposable is implemented by cached values that release resources when
// the injector owning them shuts down.
type Disposable interface {
	Dispose() error
}

var injectorKey = TypeKey[*Injector]()

// Injector is one activation of a scope. It holds the values resolved for
// that activation and falls back to its parent for everything else.
type Injector struct {
	id     uuid.UUID
	scope  *Scope
	parent *Injector
	level  int
	ctx    *InjectorContext
	logger *zap.Logger

	vars   sync.Map // Key -> *Resolver
	booted atomic.Bool
	closed atomic.Bool

	mu       sync.Mutex
	produced []any // cached values needing disposal, in creation order
}

func newInjector(s *Scope, parent *Injector) *Injector {
	inj := &Injector{
		id:     uuid.New(),
		scope:  s,
		parent: parent,
	}

	var pctx *InjectorContext
	if parent != nil {
		inj.level = parent.level + 1
		pctx = parent.ctx
	}

	inj.ctx = &InjectorContext{inj: inj, parent: pctx}
	inj.logger = s.c.logger.With(
		zap.String("scope", s.Name()),
		zap.Int("level", inj.level),
		zap.Stringer("injector", inj.id),
	)
	inj.vars.Store(injectorKey, pinned(injectorKey, inj, inj))

	return inj
}

// ID returns the unique identifier of the injector.
func (inj *Injector) ID() uuid.UUID { return inj.id }

// Scope returns the scope this injector activates.
func (inj *Injector) Scope() *Scope { return inj.scope }

// Parent returns the parent injector, nil at the root.
func (inj *Injector) Parent() *Injector { return inj.parent }

// Level returns the depth of the injector; the root is level 0.
func (inj *Injector) Level() int { return inj.level }

// Context returns the lifecycle context bounding this injector.
func (inj *Injector) Context() *InjectorContext { return inj.ctx }

// Booted reports whether the injector has been entered at least once.
func (inj *Injector) Booted() bool { return inj.booted.Load() }

// Closed reports whether the injector has been shut down.
func (inj *Injector) Closed() bool { return inj.closed.Load() }

func (inj *Injector) String() string {
	return fmt.Sprintf("injector(%s, level=%d, id=%s)", inj.scope.Name(), inj.level, inj.id)
}

// Make resolves token through this injector and its parents. Call-time
// arguments are only accepted by uncached factory and alias providers.
func (inj *Injector) Make(token any, args ...any) (any, error) {
	key, err := KeyOf(token)
	if err != nil {
		return nil, err
	}

	return inj.make(newResolution(), key, token, args)
}

// Get is the best-effort form of Make: any failure yields def.
func (inj *Injector) Get(token any, def any) any {
	v, err := inj.Make(token)
	if err != nil {
		return def
	}

	return v
}

// Has reports whether token resolves to a provider or a set value
// without producing it.
func (inj *Injector) Has(token any) bool {
	key, err := KeyOf(token)
	if err != nil {
		return false
	}

	for cur := inj; cur != nil; cur = cur.parent {
		if r, err := cur.resolver(key); err == nil && r != nil {
			return true
		}
	}

	return false
}

// Invoke calls fn with auto-wired arguments resolved from this injector.
func (inj *Injector) Invoke(fn any, args ...any) (any, error) {
	call, err := callableOf(fn)
	if err != nil {
		return nil, configError("invoke", "invalid callable", err)
	}

	return call.invoke(newResolution(), inj, args)
}

// Set stores value for token directly on this injector. Set values are
// not dropped by Flush; use Remove.
func (inj *Injector) Set(token any, value any) error {
	key, err := KeyOf(token)
	if err != nil {
		return err
	}

	inj.vars.Store(key, pinned(key, inj, value))

	return nil
}

// Remove drops whatever this injector holds for token.
func (inj *Injector) Remove(token any) error {
	key, err := KeyOf(token)
	if err != nil {
		return err
	}

	inj.vars.Delete(key)

	return nil
}

// At returns the nearest injector in the chain, starting with this one,
// whose scope has one of the given names.
func (inj *Injector) At(names ...string) (*Injector, bool) {
	for cur := inj; cur != nil; cur = cur.parent {
		if slices.Contains(names, cur.scope.Name()) {
			return cur, true
		}
	}

	return nil, false
}

// find returns the live injector of s in the chain starting at inj.
func (inj *Injector) find(s *Scope) *Injector {
	for cur := inj; cur != nil; cur = cur.parent {
		if cur.scope == s && !cur.Closed() {
			return cur
		}
	}

	return nil
}

func (inj *Injector) make(rs *resolution, key Key, token any, args []any) (any, error) {
	if inj.Closed() {
		return nil, ErrInjectorClosed.WithContext("injector", inj.String())
	}

	if err := rs.enter(inj, key); err != nil {
		return nil, err
	}
	defer rs.leave()

	for attempt := 0; ; attempt++ {
		for cur := inj; cur != nil; cur = cur.parent {
			r, err := cur.resolver(key)
			if err != nil {
				return nil, err
			}

			if r != nil {
				return r.resolve(rs, args)
			}
		}

		if attempt > 0 || !inj.registerImplicit(rs, key, token) {
			break
		}
	}

	return nil, &InjectorKeyError{
		Key:      key,
		Scope:    inj.scope.Name(),
		Level:    inj.level,
		Injector: inj.id,
	}
}

// resolver returns the resolver this injector owns for key, binding one
// from its scope's providers on first use.
func (inj *Injector) resolver(key Key) (*Resolver, error) {
	if v, ok := inj.vars.Load(key); ok {
		return v.(*Resolver), nil
	}

	for {
		version := inj.scope.version.Load()

		p, err := inj.scope.lookup(key)
		if err != nil || p == nil {
			return nil, err
		}

		r := newResolver(p, inj)

		v, loaded := inj.vars.LoadOrStore(key, r)
		if loaded {
			return v.(*Resolver), nil
		}

		if inj.scope.version.Load() == version {
			return r, nil
		}

		inj.vars.CompareAndDelete(key, r)
	}
}

// registerImplicit registers a directly constructible token as a
// low-priority factory in this injector's scope. It fires at most once
// per top-level resolution.
func (inj *Injector) registerImplicit(rs *resolution, key Key, token any) bool {
	c := inj.scope.c
	if !c.opts.implicit || rs.implicitUsed || c.registry.wasRemoved(key) {
		return false
	}

	concrete := constructible(token)
	if concrete == nil {
		return false
	}

	rs.implicitUsed = true

	if _, err := c.register(KindFactory, token, concrete, []ProviderOption{InScope(inj.scope.Name()), implicitProvider()}); err != nil {
		inj.logger.Debug("implicit registration rejected", zap.Stringer("token", key), zap.Error(err))

		return false
	}

	inj.logger.Debug("implicit registration", zap.Stringer("token", key))

	return true
}

// evict drops resolver-held values for key. Set values stay.
func (inj *Injector) evict(key Key) {
	inj.vars.Range(func(k, v any) bool {
		if flushes(key, k.(Key)) && !v.(*Resolver).pinned {
			inj.vars.Delete(k)
		}

		return true
	})
}

// track records a cached value for disposal at shutdown.
func (inj *Injector) track(v any) {
	switch v.(type) {
	case Disposable, io.Closer:
		inj.mu.Lock()
		inj.produced = append(inj.produced, v)
		inj.mu.Unlock()
	}
}

func (inj *Injector) boot() error {
	if !inj.booted.CompareAndSwap(false, true) {
		return nil
	}

	if hook := inj.scope.cfg.OnBoot; hook != nil {
		if err := hook(inj); err != nil {
			return newError(CodeConfiguration, fmt.Sprintf("booting %s", inj), err)
		}
	}

	inj.logger.Debug("injector booted")

	return nil
}

// shutdown disposes cached values in reverse creation order, runs the
// scope's shutdown hook and stops tracking the injector.
func (inj *Injector) shutdown() error {
	if !inj.closed.CompareAndSwap(false, true) {
		return nil
	}

	inj.mu.Lock()
	produced := inj.produced
	inj.produced = nil
	inj.mu.Unlock()

	var errs error

	for i := len(produced) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, dispose(produced[i]))
	}

	if hook := inj.scope.cfg.OnShutdown; hook != nil {
		errs = multierr.Append(errs, safeCall(func() error { return hook(inj) }))
	}

	inj.scope.injectors.Delete(inj)
	inj.logger.Debug("injector shut down", zap.Int("disposed", len(produced)), zap.Error(errs))

	return errs
}

func dispose(v any) error {
	switch d := v.(type) {
	case Disposable:
		return safeCall(d.Dispose)
	case io.Closer:
		return safeCall(d.Close)
	}

	return nil
}

// frame is one step of a resolution path.
type frame struct {
	inj *Injector
	key Key
}

// resolution carries per-call state through nested resolutions.
type resolution struct {
	path         []frame
	implicitUsed bool
}

func newResolution() *resolution {
	return &resolution{}
}

func (rs *resolution) enter(inj *Injector, key Key) error {
	f := frame{inj: inj, key: key}

	for i, cur := range rs.path {
		if cur == f {
			keys := make([]Key, 0, len(rs.path)-i+1)
			for _, p := range rs.path[i:] {
				keys = append(keys, p.key)
			}

			return &CircularDependencyError{Path: append(keys, key)}
		}
	}

	rs.path = append(rs.path, f)

	return nil
}

func (rs *resolution) leave() {
	rs.path = rs.path[:len(rs.path)-1]
}
