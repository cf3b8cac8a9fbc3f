package strata

import "context"

// RegisterWithToken registers a typed factory under a typed token.
//
// Example:
//
//	var DatabaseToken = strata.NewToken[*Database]("database")
//	strata.RegisterWithToken(c, DatabaseToken, NewDatabase, strata.Cached())
func RegisterWithToken[T any](c *Container, token Token[T], factory any, opts ...ProviderOption) (*Provider, error) {
	return c.RegisterFactory(token, factory, opts...)
}

// MakeToken resolves a typed token.
func MakeToken[T any](ctx context.Context, c *Container, token Token[T], args ...any) (T, error) {
	return Make[T](ctx, c, token, args...)
}

// MustToken resolves a typed token or panics.
func MustToken[T any](ctx context.Context, c *Container, token Token[T], args ...any) T {
	return MustMake[T](ctx, c, token, args...)
}

// HasToken reports whether a typed token resolves from the current injector.
func HasToken[T any](ctx context.Context, c *Container, token Token[T]) bool {
	inj, err := c.Current(ctx)
	if err != nil {
		return false
	}

	return inj.Has(token)
}
