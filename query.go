package strata

// ProviderInfo describes one registration for diagnostics.
type ProviderInfo struct {
	Key      Key
	Kind     Kind
	Scope    string
	Priority int
	Order    uint64
	Cache    bool
	Implicit bool
	Active   bool
}

func infoOf(p *Provider) ProviderInfo {
	return ProviderInfo{
		Key:      p.Abstract,
		Kind:     p.Kind,
		Scope:    p.Scope,
		Priority: p.Priority,
		Order:    p.Order,
		Cache:    p.Cache,
		Implicit: p.Implicit,
		Active:   p.Active(),
	}
}

// Inspect returns the provider scope would bind for token, looking
// through embedded layers but not parent scopes.
func (c *Container) Inspect(token any, scope string) (ProviderInfo, bool) {
	s, ok := c.Scope(scope)
	if !ok || !s.Prepared() {
		return ProviderInfo{}, false
	}

	p, err := s.Lookup(token)
	if err != nil || p == nil {
		return ProviderInfo{}, false
	}

	return infoOf(p), true
}

// ProviderQuery defines criteria for querying registrations.
type ProviderQuery struct {
	// Scope filters by owning scope.
	// Empty string matches all scopes.
	Scope string

	// Kind filters by provider kind.
	// Zero matches all kinds.
	Kind Kind

	// Token filters by abstract token.
	// nil matches all tokens.
	Token any

	// Cached filters by cache flag.
	// nil matches cached and uncached providers.
	Cached *bool

	// Implicit filters by just-in-time registration.
	// nil matches all providers.
	Implicit *bool

	// IncludeInactive also returns unregistered providers.
	IncludeInactive bool
}

// Query returns registrations matching the query criteria in
// registration order per scope.
//
// Example:
//
//	// Find all cached factories in the request scope
//	cached := true
//	results := strata.Query(c, strata.ProviderQuery{
//	    Scope:  "request",
//	    Kind:   strata.KindFactory,
//	    Cached: &cached,
//	})
func Query(c *Container, query ProviderQuery) []ProviderInfo {
	var key Key

	if query.Token != nil {
		k, err := KeyOf(query.Token)
		if err != nil {
			return nil
		}

		key = k
	}

	scopes := c.registry.scopes()
	if query.Scope != "" {
		scopes = []string{query.Scope}
	}

	var results []ProviderInfo

	for _, scope := range scopes {
		for _, p := range c.registry.entries(scope) {
			// Filter by activity
			if !query.IncludeInactive && !p.Active() {
				continue
			}

			// Filter by kind
			if query.Kind != 0 && p.Kind != query.Kind {
				continue
			}

			// Filter by token
			if !key.IsZero() && p.Abstract != key {
				continue
			}

			// Filter by cache flag
			if query.Cached != nil && p.Cache != *query.Cached {
				continue
			}

			// Filter by implicit registration
			if query.Implicit != nil && p.Implicit != *query.Implicit {
				continue
			}

			results = append(results, infoOf(p))
		}
	}

	return results
}

// QueryKeys returns the keys of registrations matching the query.
func QueryKeys(c *Container, query ProviderQuery) []Key {
	results := Query(c, query)

	keys := make([]Key, len(results))
	for i, info := range results {
		keys[i] = info.Key
	}

	return keys
}

// FindByScope returns all active registrations in scope.
func FindByScope(c *Container, scope string) []ProviderInfo {
	return Query(c, ProviderQuery{Scope: scope})
}

// FindByKind returns all active registrations of kind.
func FindByKind(c *Container, kind Kind) []ProviderInfo {
	return Query(c, ProviderQuery{Kind: kind})
}

// FindImplicit returns every provider created by just-in-time registration.
func FindImplicit(c *Container) []ProviderInfo {
	implicit := true

	return Query(c, ProviderQuery{Implicit: &implicit})
}
