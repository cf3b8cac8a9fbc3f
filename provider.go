package strata

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Kind is how a provider produces its value.
type Kind uint8

const (
	// KindValue returns a constant.
	KindValue Kind = iota + 1
	// KindAlias delegates to another token.
	KindAlias
	// KindFactory invokes a callable with auto-wired arguments.
	KindFactory
)

// ImplicitPriority is the priority of providers created by just-in-time
// registration. Any explicit registration outranks it.
const ImplicitPriority = math.MinInt32

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindAlias:
		return "alias"
	case KindFactory:
		return "factory"
	default:
		return "unknown"
	}
}

// Kwargs carries named call-time arguments. Pass it among the positional
// arguments of Make; names match Dependency.Named annotations and the
// field names of In parameter structs.
type Kwargs map[string]any

// Provider describes how to obtain a value for one abstract token within
// a scope. Providers are immutable once registered; fields are exported
// for inspection only.
type Provider struct {
	Abstract Key
	Concrete any
	Kind     Kind
	Scope    string
	Cache    bool
	Priority int
	Order    uint64
	Args     []any
	Kwargs   Kwargs
	Implicit bool

	target    Key       // alias target
	targetTok any       // alias target as given, kept for implicit registration
	call      *Callable // factory callable
	inactive  atomic.Bool
}

// Active reports whether the provider is still registered.
func (p *Provider) Active() bool {
	return !p.inactive.Load()
}

// String renders the provider for diagnostics.
func (p *Provider) String() string {
	return fmt.Sprintf("%s provider for %s in %q (priority=%d, order=%d, cache=%t)",
		p.Kind, p.Abstract, p.Scope, p.Priority, p.Order, p.Cache)
}

// acceptsArgs reports whether call-time arguments may be passed.
func (p *Provider) acceptsArgs() bool {
	return (p.Kind == KindFactory || p.Kind == KindAlias) && !p.Cache
}

// newProvider validates a registration eagerly so configuration errors
// surface at registration time rather than at first use.
func newProvider(kind Kind, token, concrete any, cfg *providerConfig) (*Provider, error) {
	op := "register " + kind.String()

	key, err := KeyOf(token)
	if err != nil {
		return nil, configError(op, "invalid abstract token", err)
	}

	if cfg.scope == "" {
		return nil, configError(op, "scope name cannot be empty", nil)
	}

	p := &Provider{
		Abstract: key,
		Concrete: concrete,
		Kind:     kind,
		Scope:    cfg.scope,
		Cache:    cfg.cache,
		Priority: cfg.priority,
		Args:     cfg.args,
		Kwargs:   cfg.kwargs,
		Implicit: cfg.implicit,
	}

	switch kind {
	case KindValue:
		if len(cfg.args) > 0 || len(cfg.kwargs) > 0 {
			return nil, configError(op, fmt.Sprintf("value provider for %s cannot carry arguments", key), nil)
		}

		p.Cache = true

	case KindAlias:
		target, err := KeyOf(concrete)
		if err != nil {
			return nil, configError(op, "invalid alias target", err)
		}

		if target == key {
			return nil, configError(op, fmt.Sprintf("%s is aliased to itself", key), nil)
		}

		p.target = target
		p.targetTok = concrete

	case KindFactory:
		call, err := callableOf(concrete)
		if err != nil {
			return nil, configError(op, fmt.Sprintf("factory for %s", key), err)
		}

		if _, err := call.factorySignature(); err != nil {
			return nil, configError(op, fmt.Sprintf("factory for %s", key), err)
		}

		p.call = call

	default:
		return nil, configError(op, fmt.Sprintf("unknown provider kind %d", kind), nil)
	}

	return p, nil
}
