package strata

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Scope is one named layer of visibility. Scopes are singletons owned by
// a Container and live as long as it does; only their injectors are torn
// down.
type Scope struct {
	cfg ScopeConfig
	c   *Container

	mu        sync.Mutex
	prepared  atomic.Bool
	parents   []*Scope // non-embedded depends, with those inherited through embedded scopes
	layers    []*Scope // self, then embedded scopes by priority
	ancestors []*Scope

	version    atomic.Uint64
	dependants sync.Map // *Scope -> struct{}
	resolvers  sync.Map // Key -> *compiled
	injectors  sync.Map // *Injector -> struct{}
}

// compiled is the per-scope resolution of a key to a provider, not yet
// bound to any injector. A nil provider records a miss.
type compiled struct {
	provider *Provider
}

func newScope(c *Container, cfg ScopeConfig) *Scope {
	return &Scope{cfg: cfg, c: c}
}

// Name returns the scope name.
func (s *Scope) Name() string {
	return s.cfg.Name
}

// Config returns the configuration the scope was defined with.
func (s *Scope) Config() ScopeConfig {
	return s.cfg
}

// Prepared reports whether the scope is ready to create injectors.
func (s *Scope) Prepared() bool {
	return s.prepared.Load()
}

// prepare resolves depends names, flattens embedded scopes and records
// this scope as a dependant of every ancestor. Dependencies must already
// be prepared.
func (s *Scope) prepare(find func(string) *Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prepared.Load() {
		if s.c.opts.strict {
			return configError("prepare scope", fmt.Sprintf("scope %q already prepared", s.Name()), nil)
		}

		return nil
	}

	var (
		parents   []*Scope
		embedded  []*Scope
		ancestors []*Scope
	)

	for _, name := range s.cfg.depends() {
		if name == s.Name() {
			return &CycleError{Chain: []string{name, name}}
		}

		d := find(name)
		if d == nil {
			return configError("prepare scope", fmt.Sprintf("scope %q depends on unknown scope %q", s.Name(), name), nil)
		}

		if !d.Prepared() {
			return configError("prepare scope", fmt.Sprintf("scope %q prepared before its dependency %q", s.Name(), name), nil)
		}

		if d.cfg.Embedded {
			embedded = appendUnique(embedded, d.layers...)
			parents = appendUnique(parents, d.parents...)
		} else {
			parents = appendUnique(parents, d)
		}

		ancestors = appendUnique(ancestors, d)
		ancestors = appendUnique(ancestors, d.ancestors...)
	}

	sort.SliceStable(embedded, func(i, j int) bool {
		return embedded[i].cfg.Priority > embedded[j].cfg.Priority
	})

	// Create chains parents in order, so the last one sits closest to the
	// child and is consulted first.
	sort.SliceStable(parents, func(i, j int) bool {
		return parents[i].cfg.Priority < parents[j].cfg.Priority
	})

	s.parents = parents
	s.layers = append([]*Scope{s}, embedded...)
	s.ancestors = ancestors

	for _, a := range ancestors {
		a.dependants.Store(s, struct{}{})
	}

	s.prepared.Store(true)

	s.c.logger.Debug("scope prepared",
		zap.String("scope", s.Name()),
		zap.Int("parents", len(parents)),
		zap.Int("layers", len(s.layers)),
	)

	return nil
}

func appendUnique(dst []*Scope, src ...*Scope) []*Scope {
outer:
	for _, s := range src {
		for _, d := range dst {
			if d == s {
				continue outer
			}
		}

		dst = append(dst, s)
	}

	return dst
}

// Create returns an injector for this scope chained to parent. If the
// parent chain already holds a live injector of this scope it is returned
// instead; missing depends scopes are created first.
func (s *Scope) Create(parent *Injector) (*Injector, error) {
	if !s.Prepared() {
		return nil, configError("create injector", fmt.Sprintf("scope %q is not prepared", s.Name()), nil)
	}

	if s.cfg.Abstract {
		return nil, configError("create injector", fmt.Sprintf("scope %q is abstract", s.Name()), nil)
	}

	if s.cfg.Embedded {
		return nil, configError("create injector", fmt.Sprintf("scope %q is embedded and has no injector", s.Name()), nil)
	}

	if inj := parent.find(s); inj != nil {
		return inj, nil
	}

	for _, p := range s.parents {
		if parent.find(p) != nil {
			continue
		}

		var err error

		parent, err = p.Create(parent)
		if err != nil {
			return nil, err
		}
	}

	inj := newInjector(s, parent)
	s.injectors.Store(inj, struct{}{})

	return inj, nil
}

// lookup returns the provider visible to this scope for key, consulting
// its own registrations first, then embedded scopes. Results, misses
// included, are cached until the key is flushed.
func (s *Scope) lookup(key Key) (*Provider, error) {
	if v, ok := s.resolvers.Load(key); ok {
		p := v.(*compiled).provider
		if p == nil || p.Active() {
			return p, nil
		}
	}

	for {
		version := s.version.Load()

		found, err := s.find(key)
		if err != nil {
			return nil, err
		}

		entry := &compiled{provider: found}
		s.resolvers.Store(key, entry)

		// A flush that raced with this lookup wins.
		if s.version.Load() == version {
			return found, nil
		}

		s.resolvers.CompareAndDelete(key, entry)
	}
}

// find consults the layers, then specializes a parameterized key from
// its base.
func (s *Scope) find(key Key) (*Provider, error) {
	for _, layer := range s.layers {
		if p := s.c.registry.lookup(layer.Name(), key); p != nil {
			return p, nil
		}
	}

	if !key.IsParameterized() {
		return nil, nil
	}

	for _, layer := range s.layers {
		p, err := s.c.registry.specialize(layer.Name(), key)
		if err != nil || p != nil {
			return p, err
		}
	}

	return nil, nil
}

// flush drops compiled resolvers and injector-held values for key here
// and in every dependant scope.
func (s *Scope) flush(key Key, visited map[*Scope]bool) {
	if visited[s] {
		return
	}

	visited[s] = true

	s.version.Add(1)

	s.resolvers.Range(func(k, _ any) bool {
		if flushes(key, k.(Key)) {
			s.resolvers.Delete(k)
		}

		return true
	})

	s.injectors.Range(func(k, _ any) bool {
		k.(*Injector).evict(key)

		return true
	})

	s.dependants.Range(func(k, _ any) bool {
		k.(*Scope).flush(key, visited)

		return true
	})
}

// flushes reports whether flushing key invalidates k. Flushing a base key
// also drops its parameterized specializations.
func flushes(key, k Key) bool {
	if k == key {
		return true
	}

	return !key.IsParameterized() && k.IsParameterized() && k.Base() == key
}

// Dependants returns every scope layered on this one, directly or not.
func (s *Scope) Dependants() []*Scope {
	var out []*Scope

	s.dependants.Range(func(k, _ any) bool {
		out = append(out, k.(*Scope))

		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })

	return out
}

// HasDescendant reports whether other is layered on this scope.
func (s *Scope) HasDescendant(other *Scope) bool {
	_, ok := s.dependants.Load(other)

	return ok
}

// Providers returns the winning provider per key visible to this scope,
// with closer layers shadowing embedded ones.
func (s *Scope) Providers() map[Key]*Provider {
	out := make(map[Key]*Provider)

	for i := len(s.layers) - 1; i >= 0; i-- {
		for _, p := range s.c.registry.entries(s.layers[i].Name()) {
			if !p.Active() {
				continue
			}

			if cur, ok := out[p.Abstract]; ok && cur.Scope == p.Scope && outranks(cur, p) {
				continue
			}

			out[p.Abstract] = p
		}
	}

	return out
}

func outranks(a, b *Provider) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}

	return a.Order > b.Order
}

// liveInjectors returns the number of injectors not yet shut down.
func (s *Scope) liveInjectors() int {
	n := 0

	s.injectors.Range(func(_, _ any) bool {
		n++

		return true
	})

	return n
}

// Lookup returns the provider this scope would bind for token, or nil.
func (s *Scope) Lookup(token any) (*Provider, error) {
	key, err := KeyOf(token)
	if err != nil {
		return nil, err
	}

	return s.lookup(key)
}
