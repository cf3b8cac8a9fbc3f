package strata

// Binding holds one provider registration for batch registration.
type Binding struct {
	Kind     Kind
	Token    any
	Concrete any
	Options  []ProviderOption
}

// Value creates a value Binding.
func Value(token, value any, opts ...ProviderOption) Binding {
	return Binding{Kind: KindValue, Token: token, Concrete: value, Options: opts}
}

// Alias creates an alias Binding.
func Alias(token, target any, opts ...ProviderOption) Binding {
	return Binding{Kind: KindAlias, Token: token, Concrete: target, Options: opts}
}

// Factory creates a factory Binding.
func Factory(token, factory any, opts ...ProviderOption) Binding {
	return Binding{Kind: KindFactory, Token: token, Concrete: factory, Options: opts}
}

// Register registers several bindings in order. It stops at the first
// failure, returning the providers registered so far.
//
// Example:
//
//	_, err := c.Register(
//	    strata.Value("dsn", dsn),
//	    strata.Factory(DatabaseToken, NewDatabase, strata.Cached()),
//	    strata.Alias("db", DatabaseToken),
//	)
func (c *Container) Register(bindings ...Binding) ([]*Provider, error) {
	out := make([]*Provider, 0, len(bindings))

	for _, b := range bindings {
		p, err := c.register(b.Kind, b.Token, b.Concrete, b.Options)
		if err != nil {
			return out, err
		}

		out = append(out, p)
	}

	return out, nil
}
