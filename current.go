package strata

import "context"

type currentKey struct{}

// WithInjector returns a copy of ctx carrying inj as the current
// injector. The parent context is untouched, so leaving the derived
// context restores the previous injector.
func WithInjector(ctx context.Context, inj *Injector) context.Context {
	return context.WithValue(ctx, currentKey{}, inj)
}

// InjectorFrom returns the current injector carried by ctx.
func InjectorFrom(ctx context.Context) (*Injector, bool) {
	if ctx == nil {
		return nil, false
	}

	inj, ok := ctx.Value(currentKey{}).(*Injector)

	return inj, ok && inj != nil
}
