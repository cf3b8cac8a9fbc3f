package strata

// ProviderOption configures a provider registration.
type ProviderOption func(*providerConfig)

type providerConfig struct {
	scope    string
	priority int
	cache    bool
	args     []any
	kwargs   Kwargs
	noFlush  bool
	implicit bool
}

func newProviderConfig(opts []ProviderOption) *providerConfig {
	cfg := &providerConfig{scope: MainScope}
	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// InScope registers the provider in the named scope (default MainScope).
func InScope(name string) ProviderOption {
	return func(c *providerConfig) {
		c.scope = name
	}
}

// WithPriority sets the provider priority. Higher wins; equal priorities
// are won by the most recent registration.
func WithPriority(priority int) ProviderOption {
	return func(c *providerConfig) {
		c.priority = priority
	}
}

// Cached memoizes the first produced value on the owning injector.
func Cached() ProviderOption {
	return func(c *providerConfig) {
		c.cache = true
	}
}

// Uncached produces a fresh value on every resolution (default).
func Uncached() ProviderOption {
	return func(c *providerConfig) {
		c.cache = false
	}
}

// WithArgs pre-binds positional arguments for factory and alias providers.
func WithArgs(args ...any) ProviderOption {
	return func(c *providerConfig) {
		c.args = append(c.args, args...)
	}
}

// WithKwargs pre-binds named arguments for factory and alias providers.
// Call-time named arguments win on conflict.
func WithKwargs(kwargs Kwargs) ProviderOption {
	return func(c *providerConfig) {
		if c.kwargs == nil {
			c.kwargs = make(Kwargs, len(kwargs))
		}

		for k, v := range kwargs {
			c.kwargs[k] = v
		}
	}
}

// NoFlush skips invalidating resolvers already compiled for the token.
// Injectors that resolved the token keep the previous provider until the
// next Flush.
func NoFlush() ProviderOption {
	return func(c *providerConfig) {
		c.noFlush = true
	}
}

func implicitProvider() ProviderOption {
	return func(c *providerConfig) {
		c.implicit = true
		c.priority = ImplicitPriority
	}
}
