package strata

import (
	"context"
	"fmt"
	"sync"
)

// Lazy is a handle to a token that is resolved on first access, so a
// value can be referenced before the scope providing it is active.
type Lazy[T any] struct {
	c      *Container
	token  any
	cached bool

	mu       sync.Mutex
	value    T
	resolved bool
}

// Proxy creates a lazy handle for token. When cached is true the first
// successful resolution is kept; otherwise every Get resolves afresh
// from the injector current in its context.
func Proxy[T any](c *Container, token any, cached bool) *Lazy[T] {
	return &Lazy[T]{c: c, token: token, cached: cached}
}

// Get resolves the token. Failures are not cached.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	if !l.cached {
		return Make[T](ctx, l.c, l.token)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.resolved {
		return l.value, nil
	}

	v, err := Make[T](ctx, l.c, l.token)
	if err != nil {
		return v, err
	}

	l.value, l.resolved = v, true

	return v, nil
}

// MustGet resolves the token, panicking on error.
func (l *Lazy[T]) MustGet(ctx context.Context) T {
	value, err := l.Get(ctx)
	if err != nil {
		panic(fmt.Sprintf("lazy dependency %v failed: %v", l.token, err))
	}

	return value
}

// IsResolved returns true if a cached handle holds a value.
func (l *Lazy[T]) IsResolved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.resolved
}

// Reset forgets the cached value.
func (l *Lazy[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T

	l.value, l.resolved = zero, false
}

// Token returns the token the handle resolves.
func (l *Lazy[T]) Token() any {
	return l.token
}
