package strata

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func describe(a *Foo, b *Bar) string {
	if b == nil {
		return fmt.Sprintf("foo=%d bar=<none>", a.N)
	}

	return fmt.Sprintf("foo=%d bar=%s", a.N, b.Name)
}

func TestAutowire_DefaultForMissingDependency(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	f := Annotate(describe, Dep(), Dep().Optional())

	p, err := ProvideValue(c, &Foo{N: 1})
	require.NoError(t, err)

	v, err := c.Invoke(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, "foo=1 bar=<none>", v)

	require.NoError(t, c.Unregister(p))

	_, err = c.Invoke(ctx, f)
	require.ErrorIs(t, err, ErrInjectorKey)

	var keyErr *InjectorKeyError
	require.ErrorAs(t, err, &keyErr)
	assert.Equal(t, TypeKey[*Foo](), keyErr.Key)
	assert.Contains(t, keyErr.Param, "*strata.Foo")
	assert.Contains(t, keyErr.Callable, "describe")
	assert.Contains(t, err.Error(), "while binding parameter")
}

func TestAutowire_UnannotatedParametersUseTheirType(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	_, err := ProvideValue(c, &Foo{N: 2})
	require.NoError(t, err)
	_, err = ProvideValue(c, &Bar{Name: "b"})
	require.NoError(t, err)

	v, err := c.Invoke(ctx, describe)
	require.NoError(t, err)
	assert.Equal(t, "foo=2 bar=b", v)
}

func TestAutowire_CandidateOrder(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	pick := Annotate(func(dsn string) string { return dsn }, Dep("db.primary", "db.fallback"))

	_, err := c.RegisterValue("db.fallback", "fallback")
	require.NoError(t, err)

	v, err := c.Invoke(ctx, pick)
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	_, err = c.RegisterValue("db.primary", "primary")
	require.NoError(t, err)

	v, err = c.Invoke(ctx, pick)
	require.NoError(t, err)
	assert.Equal(t, "primary", v)
}

func TestAutowire_CandidateFailureIsNotSkipped(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	errBroken := errors.New("broken")

	_, err := c.RegisterFactory("primary", func() (string, error) { return "", errBroken })
	require.NoError(t, err)
	_, err = c.RegisterValue("fallback", "fallback")
	require.NoError(t, err)

	_, err = c.Invoke(ctx, Annotate(func(s string) string { return s }, Dep("primary", "fallback")))
	assert.ErrorIs(t, err, errBroken)
}

func TestAutowire_Defaults(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	calls := 0

	fn := Annotate(func(port int, host string) string {
		return fmt.Sprintf("%s:%d", host, port)
	},
		Dep("port").Or(8080),
		Dep("host").OrElse(func() any {
			calls++

			return "localhost"
		}),
	)

	v, err := c.Invoke(ctx, fn)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", v)
	assert.Equal(t, 1, calls)

	_, err = c.RegisterValue("port", 9000)
	require.NoError(t, err)

	v, err = c.Invoke(ctx, fn)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", v)
}

func TestAutowire_FromScope(t *testing.T) {
	c := newTestContainer(t, WithScopes(RequestScope()))
	ctx := context.Background()

	fn := Annotate(func(user string) string { return user }, Dep("user").From("request"))
	withDefault := Annotate(func(user string) string { return user }, Dep("user").From("request").Or("anonymous"))

	_, err := c.RegisterValue("user", "from main")
	require.NoError(t, err)

	// Outside a request there is no request injector.
	_, err = c.Invoke(ctx, fn)
	require.ErrorIs(t, err, ErrInjectorKey)

	v, err := c.Invoke(ctx, withDefault)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", v)

	act := use(t, c, ctx, "request")
	require.NoError(t, act.Injector().Set("user", "alice"))

	v, err = c.Invoke(act.Context(), fn)
	require.NoError(t, err)
	assert.Equal(t, "alice", v)
}

type handlerParams struct {
	In

	Foo      *Foo
	Bar      *Bar   `optional:"true"`
	Greeting string `inject:"greeting.custom,greeting"`
	Limit    int    `inject:"limit"`
	internal int
}

func TestAutowire_InStruct(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	_, err := ProvideValue(c, &Foo{N: 3})
	require.NoError(t, err)
	_, err = c.RegisterValue("greeting", "hi")
	require.NoError(t, err)
	_, err = c.RegisterValue("limit", 10)
	require.NoError(t, err)

	v, err := c.Invoke(ctx, func(p handlerParams) string {
		return fmt.Sprintf("%d %v %s %d %d", p.Foo.N, p.Bar, p.Greeting, p.Limit, p.internal)
	})
	require.NoError(t, err)
	assert.Equal(t, "3 <nil> hi 10 0", v)

	// Pointer parameter objects work too, and fields take named arguments.
	v, err = c.Invoke(ctx, func(p *handlerParams) int { return p.Limit }, Kwargs{"Limit": 99})
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestAutowire_InStructMissingField(t *testing.T) {
	c := newTestContainer(t)

	_, err := c.Invoke(context.Background(), func(p handlerParams) int { return 0 })
	require.ErrorIs(t, err, ErrInjectorKey)

	var keyErr *InjectorKeyError
	require.ErrorAs(t, err, &keyErr)
	assert.Contains(t, keyErr.Param, "Foo")
}

type service struct {
	Foo   *Foo   `inject:""`
	Name  string `inject:"service.name"`
	Bar   *Bar   `inject:"" optional:"true"`
	Plain string
}

func TestAutowire_Construct(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	_, err := ProvideValue(c, &Foo{N: 4})
	require.NoError(t, err)
	_, err = c.RegisterValue("service.name", "svc")
	require.NoError(t, err)
	_, err = c.RegisterFactory(TypeOf[*service](), Construct[*service](), Cached())
	require.NoError(t, err)

	svc, err := Resolve[*service](ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 4, svc.Foo.N)
	assert.Equal(t, "svc", svc.Name)
	assert.Nil(t, svc.Bar)
	assert.Empty(t, svc.Plain)

	// Value structs and named overrides.
	_, err = c.RegisterFactory("service.value", Construct[service]())
	require.NoError(t, err)

	v, err := Make[service](ctx, c, "service.value", Kwargs{"Name": "override"})
	require.NoError(t, err)
	assert.Equal(t, "override", v.Name)

	_, err = c.Make(ctx, "service.value", 1)
	assert.ErrorIs(t, err, ErrArgsNotAccepted)

	assert.Same(t, Construct[*service](), Construct[*service]())
}

func TestAutowire_ConstructInvalid(t *testing.T) {
	type unexportedTagged struct {
		foo *Foo `inject:""`
	}

	c := newTestContainer(t)

	_, err := c.RegisterFactory("bad", Construct[int]())
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = c.RegisterFactory("bad", Construct[unexportedTagged]())
	assert.ErrorIs(t, err, ErrConfiguration)
}

type plugin interface {
	Name() string
}

type namedPlugin string

func (p namedPlugin) Name() string { return string(p) }

func TestAutowire_Collect(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	names := func(plugins ...plugin) []string {
		out := make([]string, len(plugins))
		for i, p := range plugins {
			out[i] = p.Name()
		}

		return out
	}

	collect := Annotate(names, Collect("plugin.auth", "plugin.missing", "plugin.cache"))

	_, err := c.RegisterValue("plugin.auth", namedPlugin("auth"))
	require.NoError(t, err)
	_, err = c.RegisterValue("plugin.cache", namedPlugin("cache"))
	require.NoError(t, err)

	v, err := c.Invoke(ctx, collect)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "cache"}, v)

	// Extra positional arguments are appended.
	v, err = c.Invoke(ctx, collect, namedPlugin("extra"))
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "cache", "extra"}, v)

	// Without Collect, variadics only take arguments.
	v, err = c.Invoke(ctx, names)
	require.NoError(t, err)
	assert.Equal(t, []string{}, v)

	_, err = c.RegisterFactory("bad", Annotate(names, Dep()))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAutowire_ErrorResults(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	errFailed := errors.New("failed")

	_, err := c.RegisterFactory("failing", func() (*Foo, error) { return nil, errFailed })
	require.NoError(t, err)

	_, err = c.Make(ctx, "failing")
	require.ErrorIs(t, err, errFailed)
	assert.Contains(t, err.Error(), "calling")

	out, err := c.Invoke(ctx, func() error { return nil })
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = c.Invoke(ctx, func() error { return errFailed })
	assert.ErrorIs(t, err, errFailed)

	_, err = c.Invoke(ctx, 42)
	assert.ErrorIs(t, err, ErrConfiguration)
}

type valueError struct{}

func (valueError) Error() string { return "value error" }

type pointerError struct{ msg string }

func (e *pointerError) Error() string { return e.msg }

func TestAutowire_ErrorResultTypes(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	_, err := c.RegisterFactory("by-value", func() (int, valueError) { return 1, valueError{} })
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "interface or pointer")

	_, err = c.Invoke(ctx, func() (int, valueError) { return 1, valueError{} })
	assert.ErrorIs(t, err, ErrConfiguration)

	fail := false

	_, err = c.RegisterFactory("by-pointer", func() (int, *pointerError) {
		if fail {
			return 0, &pointerError{msg: "pointer error"}
		}

		return 2, nil
	})
	require.NoError(t, err)

	v, err := c.Make(ctx, "by-pointer")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	fail = true

	_, err = c.Make(ctx, "by-pointer")
	assert.ErrorContains(t, err, "pointer error")
}

func TestAutowire_TypeConversion(t *testing.T) {
	type port int

	c := newTestContainer(t)
	ctx := context.Background()

	_, err := c.RegisterValue("port", 8080)
	require.NoError(t, err)
	_, err = c.RegisterValue("name", "x")
	require.NoError(t, err)
	_, err = c.RegisterValue(TypeOf[Greeter](), englishGreeter{})
	require.NoError(t, err)

	v, err := c.Invoke(ctx, Annotate(func(p port) port { return p }, Dep("port")))
	require.NoError(t, err)
	assert.Equal(t, port(8080), v)

	v, err = c.Invoke(ctx, func(g Greeter) string { return g.Greet() })
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	_, err = c.Invoke(ctx, Annotate(func(n int) int { return n }, Dep("name")))
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Contains(t, err.Error(), "got string")
}

func TestCallable_SignatureCache(t *testing.T) {
	fn := func(a *Foo) int { return a.N }

	first, err := callableOf(fn)
	require.NoError(t, err)
	second, err := callableOf(fn)
	require.NoError(t, err)

	s1, err := first.signature()
	require.NoError(t, err)
	s2, err := second.signature()
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	call := Annotate(fn)
	got, err := callableOf(call)
	require.NoError(t, err)
	assert.Same(t, call, got)

	_, err = callableOf((*Callable)(nil))
	assert.Error(t, err)
	assert.Contains(t, call.String(), "TestCallable_SignatureCache")
}

func TestCallable_ClosuresKeepTheirCaptures(t *testing.T) {
	c := newTestContainer(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		_, err := c.RegisterFactory(name, func() string { return name })
		require.NoError(t, err)
	}

	assert.Equal(t, "a", c.Get(ctx, "a", nil))
	assert.Equal(t, "b", c.Get(ctx, "b", nil))
}
