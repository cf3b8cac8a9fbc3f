package strata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake_Typed(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	_, err := c.RegisterValue("count", 3)
	require.NoError(t, err)

	n, err := Make[int](ctx, c, "count")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = Make[string](ctx, c, "count")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Make[int](ctx, c, "missing")
	assert.ErrorIs(t, err, ErrInjectorKey)

	assert.Equal(t, 3, MustMake[int](ctx, c, "count"))
	assert.Panics(t, func() { MustMake[int](ctx, c, "missing") })

	assert.Equal(t, 3, Get(ctx, c, "count", 0))
	assert.Equal(t, 7, Get(ctx, c, "missing", 7))
}

func TestMake_NilValueIsZero(t *testing.T) {
	c := newTestContainer(t)

	_, err := c.RegisterValue("nothing", nil)
	require.NoError(t, err)

	foo, err := Make[*Foo](context.Background(), c, "nothing")
	require.NoError(t, err)
	assert.Nil(t, foo)
}

func TestProvide(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	_, err := ProvideValue(c, &Foo{N: 5})
	require.NoError(t, err)

	_, err = Provide[*Bar](c, func(f *Foo) *Bar {
		return &Bar{Name: "bar" + string(rune('0'+f.N))}
	}, Cached())
	require.NoError(t, err)

	bar, err := Resolve[*Bar](ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "bar5", bar.Name)

	again, err := Resolve[*Bar](ctx, c)
	require.NoError(t, err)
	assert.Same(t, bar, again)
}

func TestBind(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	_, err := ProvideValue(c, englishGreeter{})
	require.NoError(t, err)

	_, err = Bind[Greeter, englishGreeter](c)
	require.NoError(t, err)

	g, err := Resolve[Greeter](ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "hello", g.Greet())

	_, err = Bind[Greeter, *Foo](c)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestInvoke_Typed(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	_, err := ProvideValue(c, &Foo{N: 9})
	require.NoError(t, err)

	n, err := Invoke[int](ctx, c, func(f *Foo) int { return f.N })
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	add := Annotate(func(extra int, f *Foo) int { return f.N + extra }, Arg())

	n, err = Invoke[int](ctx, c, add, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = Invoke[int](ctx, c, add)
	assert.ErrorIs(t, err, ErrMissingArgument)

	named := Annotate(func(f *Foo, extra int) int { return f.N + extra }, nil, Arg().Named("extra"))

	n, err = Invoke[int](ctx, c, named, Kwargs{"extra": 2})
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	_, err = Invoke[string](ctx, c, func(f *Foo) int { return f.N })
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestMakeFrom(t *testing.T) {
	c := newTestContainer(t, WithScopes(RequestScope()))
	ctx := context.Background()

	_, err := c.RegisterValue("user", "bob", InScope("request"))
	require.NoError(t, err)

	act := use(t, c, ctx, "request")

	user, err := MakeFrom[string](act.Injector(), "user")
	require.NoError(t, err)
	assert.Equal(t, "bob", user)

	root, err := c.Root()
	require.NoError(t, err)

	_, err = MakeFrom[string](root, "user")
	assert.ErrorIs(t, err, ErrInjectorKey)

	assert.Equal(t, "bob", MustFrom[string](act.Injector(), "user"))
	assert.Panics(t, func() { MustFrom[string](root, "user") })
}
