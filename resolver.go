package strata

import (
	"sync"

	"go.uber.org/zap"
)

// Resolver is a provider bound to one injector. Its only mutable state
// is the cached-value slot.
type Resolver struct {
	key      Key
	provider *Provider
	inj      *Injector
	pinned   bool

	mu    sync.Mutex
	value any
	set   bool
}

func newResolver(p *Provider, inj *Injector) *Resolver {
	r := &Resolver{key: p.Abstract, provider: p, inj: inj}
	if p.Kind == KindValue {
		r.value, r.set = p.Concrete, true
	}

	return r
}

// pinned builds a resolver for a value set directly on an injector.
func pinned(key Key, inj *Injector, value any) *Resolver {
	return &Resolver{key: key, inj: inj, pinned: true, value: value, set: true}
}

// Provider returns the bound provider, nil for values set on the injector.
func (r *Resolver) Provider() *Provider { return r.provider }

// Injector returns the injector the resolver is bound to.
func (r *Resolver) Injector() *Injector { return r.inj }

// Call produces the value, as Injector.Make would for the bound token.
func (r *Resolver) Call(args ...any) (any, error) {
	return r.resolve(newResolution(), args)
}

func (r *Resolver) resolve(rs *resolution, args []any) (any, error) {
	if r.pinned || r.provider.Kind == KindValue {
		if len(args) > 0 {
			return nil, errArgsNotAccepted(r.key, KindValue)
		}

		return r.value, nil
	}

	p := r.provider
	if len(args) > 0 && !p.acceptsArgs() {
		return nil, errArgsNotAccepted(r.key, p.Kind)
	}

	if p.Cache {
		r.mu.Lock()
		if r.set {
			v := r.value
			r.mu.Unlock()

			return v, nil
		}
		r.mu.Unlock()
	}

	v, err := r.produce(rs, args)
	if err != nil {
		return nil, err
	}

	if !p.Cache {
		return v, nil
	}

	r.mu.Lock()
	if r.set {
		// A concurrent first call won; keep its value and release ours.
		won := r.value
		r.mu.Unlock()

		if err := dispose(v); err != nil {
			r.inj.logger.Warn("disposing duplicate value", zap.Stringer("token", r.key), zap.Error(err))
		}

		return won, nil
	}

	r.value, r.set = v, true
	r.inj.track(v)
	r.mu.Unlock()

	return v, nil
}

func (r *Resolver) produce(rs *resolution, args []any) (any, error) {
	p := r.provider
	merged := mergeArgs(p.Args, p.Kwargs, args)

	if p.Kind == KindAlias {
		return r.inj.make(rs, p.target, p.targetTok, merged)
	}

	return p.call.invoke(rs, r.inj, merged)
}

// splitArgs separates named arguments from positional ones.
func splitArgs(args []any) ([]any, Kwargs) {
	var (
		pos []any
		kw  Kwargs
	)

	for _, a := range args {
		named, ok := a.(Kwargs)
		if !ok {
			pos = append(pos, a)

			continue
		}

		if kw == nil {
			kw = make(Kwargs, len(named))
		}

		for k, v := range named {
			kw[k] = v
		}
	}

	return pos, kw
}

// mergeArgs prepends pre-bound positional arguments and overlays
// call-time named arguments on pre-bound ones.
func mergeArgs(preArgs []any, preKw Kwargs, call []any) []any {
	if len(preArgs) == 0 && len(preKw) == 0 {
		return call
	}

	pos, kw := splitArgs(call)

	out := make([]any, 0, len(preArgs)+len(pos)+1)
	out = append(out, preArgs...)
	out = append(out, pos...)

	merged := make(Kwargs, len(preKw)+len(kw))
	for k, v := range preKw {
		merged[k] = v
	}

	for k, v := range kw {
		merged[k] = v
	}

	if len(merged) > 0 {
		out = append(out, merged)
	}

	return out
}
