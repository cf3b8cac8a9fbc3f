// Package strata is a scoped dependency injection runtime.
//
// Providers (values, aliases and factories) are registered per scope
// against tokens. Scopes form a layered graph rooted at MainScope; each
// activation of a scope is an Injector chained to the injector of the
// scope it depends on. Resolution walks the injector chain from the
// current injector to the root, binding providers to injectors lazily
// and caching values where the provider asks for it.
//
// The current injector travels on context.Context:
//
//	c := strata.MustNew(strata.WithScopes(strata.RequestScope()))
//
//	c.RegisterValue("name", "widget")
//	c.RegisterFactory(strata.TypeOf[*Widget](), NewWidget, strata.Cached())
//
//	err := c.Within(ctx, "request", func(ctx context.Context, inj *strata.Injector) error {
//	    w, err := strata.Resolve[*Widget](ctx, c)
//	    ...
//	})
//
// Factory parameters are auto-wired by type, by Annotate'd Dependency
// annotations, or through parameter structs embedding In.
package strata
