package strata

import (
	"context"
	"fmt"
)

// Make resolves token from the current injector with type safety.
func Make[T any](ctx context.Context, c *Container, token any, args ...any) (T, error) {
	instance, err := c.Make(ctx, token, args...)
	if err != nil {
		var zero T

		return zero, err
	}

	return cast[T](instance, token)
}

// MustMake resolves or panics - use only during startup.
func MustMake[T any](ctx context.Context, c *Container, token any, args ...any) T {
	instance, err := Make[T](ctx, c, token, args...)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %v: %v", token, err))
	}

	return instance
}

// Resolve resolves the provider registered for the type T.
func Resolve[T any](ctx context.Context, c *Container, args ...any) (T, error) {
	return Make[T](ctx, c, TypeOf[T](), args...)
}

// Get resolves token, returning def on any failure.
func Get[T any](ctx context.Context, c *Container, token any, def T) T {
	instance, err := Make[T](ctx, c, token)
	if err != nil {
		return def
	}

	return instance
}

// Invoke calls fn with auto-wired arguments and returns its typed result.
func Invoke[T any](ctx context.Context, c *Container, fn any, args ...any) (T, error) {
	instance, err := c.Invoke(ctx, fn, args...)
	if err != nil {
		var zero T

		return zero, err
	}

	return cast[T](instance, fn)
}

// MakeFrom is a helper for resolving from an explicit injector.
func MakeFrom[T any](inj *Injector, token any, args ...any) (T, error) {
	instance, err := inj.Make(token, args...)
	if err != nil {
		var zero T

		return zero, err
	}

	return cast[T](instance, token)
}

// MustFrom resolves from inj or panics.
func MustFrom[T any](inj *Injector, token any, args ...any) T {
	instance, err := MakeFrom[T](inj, token, args...)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %v from %s: %v", token, inj, err))
	}

	return instance
}

func cast[T any](instance, token any) (T, error) {
	var zero T

	if instance == nil {
		return zero, nil
	}

	typed, ok := instance.(T)
	if !ok {
		key, _ := KeyOf(token)

		return zero, errTypeMismatch(fmt.Sprintf("resolving %s", key), instance, TypeOf[T]())
	}

	return typed, nil
}

// Provide registers factory as the provider for the type T.
//
// Example:
//
//	strata.Provide[*Database](c, NewDatabase, strata.Cached())
//	db, err := strata.Resolve[*Database](ctx, c)
func Provide[T any](c *Container, factory any, opts ...ProviderOption) (*Provider, error) {
	return c.RegisterFactory(TypeOf[T](), factory, opts...)
}

// ProvideValue registers value as the provider for the type T.
func ProvideValue[T any](c *Container, value T, opts ...ProviderOption) (*Provider, error) {
	return c.RegisterValue(TypeOf[T](), value, opts...)
}

// Bind aliases the interface type I to the type T.
func Bind[I, T any](c *Container, opts ...ProviderOption) (*Provider, error) {
	if !TypeOf[T]().AssignableTo(TypeOf[I]()) {
		return nil, configError("bind", fmt.Sprintf("%s does not implement %s", TypeOf[T](), TypeOf[I]()), nil)
	}

	return c.RegisterAlias(TypeOf[I](), TypeOf[T](), opts...)
}
