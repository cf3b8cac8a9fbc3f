package strata

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Specializer is implemented by provider concretes that can produce a
// copy specialized for a parameterized token. For factory providers the
// returned concrete must itself be a valid factory.
type Specializer interface {
	Specialize(params ...Key) (any, error)
}

// SpecializerFunc adapts a function to Specializer.
type SpecializerFunc func(params ...Key) (any, error)

// Specialize implements Specializer.
func (f SpecializerFunc) Specialize(params ...Key) (any, error) {
	return f(params...)
}

// regKey identifies one competing-registration stack.
type regKey struct {
	scope string
	key   Key
}

// stack holds the registrations for one (scope, key) pair, ordered by
// (priority, order) ascending so the winner is the last active entry.
// Entries are never pruned; removal marks them inactive.
type stack struct {
	mu      sync.RWMutex
	entries []*Provider
}

func (s *stack) top() *Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if p := s.entries[i]; p.Active() {
			return p
		}
	}

	return nil
}

func (s *stack) push(p *Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, p)
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}

		return a.Order < b.Order
	})
}

func (s *stack) snapshot() []*Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Provider, len(s.entries))
	copy(out, s.entries)

	return out
}

type specKey struct {
	base   *Provider
	params *paramList
}

// registry stores providers for every scope. Reads never take a
// registry-wide lock; writers lock only the stack they touch.
type registry struct {
	stacks      sync.Map // regKey -> *stack
	removed     sync.Map // Key -> struct{}
	specialized sync.Map // specKey -> *Provider
	order       atomic.Uint64
}

func newRegistry() *registry {
	return &registry{}
}

func (r *registry) stackFor(rk regKey) *stack {
	if v, ok := r.stacks.Load(rk); ok {
		return v.(*stack)
	}

	v, _ := r.stacks.LoadOrStore(rk, &stack{})

	return v.(*stack)
}

// add appends p to its stack and assigns its registration order.
func (r *registry) add(p *Provider) {
	p.Order = r.order.Add(1)
	r.stackFor(regKey{scope: p.Scope, key: p.Abstract}).push(p)
}

// lookup returns the winning active provider or nil.
func (r *registry) lookup(scope string, key Key) *Provider {
	v, ok := r.stacks.Load(regKey{scope: scope, key: key})
	if !ok {
		return nil
	}

	return v.(*stack).top()
}

// remove marks p inactive. Explicit removals are remembered so implicit
// registration never resurrects the token.
func (r *registry) remove(p *Provider) bool {
	if !p.inactive.CompareAndSwap(false, true) {
		return false
	}

	if !p.Implicit {
		r.removed.Store(p.Abstract, struct{}{})
	}

	return true
}

func (r *registry) wasRemoved(key Key) bool {
	_, ok := r.removed.Load(key)

	return ok
}

// specialize synthesizes a provider for a parameterized key from the
// provider of its base, caching it for the registry lifetime.
func (r *registry) specialize(scope string, key Key) (*Provider, error) {
	if !key.IsParameterized() {
		return nil, nil
	}

	base := r.lookup(scope, key.Base())
	if base == nil {
		return nil, nil
	}

	s, ok := base.Concrete.(Specializer)
	if !ok {
		return nil, nil
	}

	sk := specKey{base: base, params: key.args}
	if v, ok := r.specialized.Load(sk); ok {
		return v.(*Provider), nil
	}

	concrete, err := s.Specialize(key.Params()...)
	if err != nil {
		return nil, fmt.Errorf("specializing %s: %w", key, err)
	}

	p, err := newProvider(base.Kind, key, concrete, &providerConfig{
		scope:    base.Scope,
		priority: base.Priority,
		cache:    base.Cache,
		args:     base.Args,
		kwargs:   base.Kwargs,
		implicit: base.Implicit,
	})
	if err != nil {
		return nil, err
	}

	p.Order = base.Order

	v, _ := r.specialized.LoadOrStore(sk, p)

	return v.(*Provider), nil
}

// entries returns every registration in scope, including inactive ones.
func (r *registry) entries(scope string) []*Provider {
	var out []*Provider

	r.stacks.Range(func(k, v any) bool {
		if k.(regKey).scope == scope {
			out = append(out, v.(*stack).snapshot()...)
		}

		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })

	return out
}

// scopes returns the names of every scope with at least one registration.
func (r *registry) scopes() []string {
	seen := make(map[string]struct{})

	r.stacks.Range(func(k, _ any) bool {
		seen[k.(regKey).scope] = struct{}{}

		return true
	})

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}
