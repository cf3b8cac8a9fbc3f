package strata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func countingScope(name string, boots, shutdowns *int) ScopeConfig {
	return ScopeConfig{
		Name: name,
		OnBoot: func(*Injector) error {
			*boots++

			return nil
		},
		OnShutdown: func(*Injector) error {
			*shutdowns++

			return nil
		},
	}
}

func TestInjectorContext_Reentrancy(t *testing.T) {
	var boots, shutdowns int

	c := newTestContainer(t, WithScopes(countingScope("request", &boots, &shutdowns)))

	root, err := c.Root()
	require.NoError(t, err)

	s, _ := c.Scope("request")
	inj, err := s.Create(root)
	require.NoError(t, err)

	x := inj.Context()
	assert.Same(t, inj, x.Injector())

	require.NoError(t, x.Enter())
	require.NoError(t, x.Enter())
	assert.Equal(t, 2, x.Level())
	assert.Equal(t, 1, boots)

	require.NoError(t, x.Exit())
	assert.Equal(t, 0, shutdowns)
	assert.False(t, inj.Closed())

	require.NoError(t, x.Exit())
	assert.Equal(t, 1, boots)
	assert.Equal(t, 1, shutdowns)
	assert.True(t, inj.Closed())

	assert.ErrorIs(t, x.Exit(), ErrNotEntered)
	assert.ErrorIs(t, x.Enter(), ErrInjectorClosed)

	// The root context is still held by the container.
	assert.Equal(t, 1, root.Context().Level())
}

func TestInjectorContext_CallbackOrder(t *testing.T) {
	c := newTestContainer(t, WithScopes(RequestScope()))

	root, err := c.Root()
	require.NoError(t, err)

	s, _ := c.Scope("request")
	inj, err := s.Create(root)
	require.NoError(t, err)

	var log []string

	x := inj.Context()
	for _, name := range []string{"a", "b", "c"} {
		x.OnEnter(func() error {
			log = append(log, "enter "+name)

			return nil
		})
		x.OnExit(func() error {
			log = append(log, "exit "+name)

			return nil
		})
	}

	require.NoError(t, x.Enter())
	require.NoError(t, x.Enter())
	require.NoError(t, x.Exit())
	require.NoError(t, x.Exit())

	assert.Equal(t, []string{
		"enter a", "enter b", "enter c",
		"exit c", "exit b", "exit a",
	}, log)
}

func TestInjectorContext_TeardownAggregation(t *testing.T) {
	c := newTestContainer(t, WithScopes(RequestScope()))

	act, err := c.Use(context.Background(), "request")
	require.NoError(t, err)

	errFirst := errors.New("first failure")
	errSecond := errors.New("second failure")

	var ran []string

	x := act.Injector().Context()
	x.OnExit(func() error {
		ran = append(ran, "registered first")

		return errSecond
	})
	x.OnExit(func() error {
		ran = append(ran, "panics")

		panic("boom")
	})
	x.OnExit(func() error {
		ran = append(ran, "registered last")

		return errFirst
	})

	err = act.Close()
	require.Error(t, err)

	// Every callback ran, in reverse order.
	assert.Equal(t, []string{"registered last", "panics", "registered first"}, ran)

	// The first failure is the one surfaced.
	assert.ErrorIs(t, err, errFirst)
	assert.ErrorIs(t, err, ErrTeardown)

	var td *TeardownError
	require.ErrorAs(t, err, &td)
	require.Len(t, td.Errors(), 3)
	assert.Contains(t, td.Errors()[1].Error(), "panic: boom")
	assert.Equal(t, errSecond, td.Errors()[2])
	assert.Len(t, multierr.Errors(td.Combined()), 3)

	assert.True(t, act.Injector().Closed())
}

func TestInjectorContext_BootActivatesDependant(t *testing.T) {
	var c *Container

	c = newTestContainer(t, WithScopes(
		ScopeConfig{
			Name: "request",
			OnBoot: func(inj *Injector) error {
				// A scope layered on this one enters it while it boots.
				act, err := c.Use(WithInjector(context.Background(), inj), "sub")
				if err != nil {
					return err
				}

				if act.Injector().Parent() != inj {
					return errors.New("sub is not chained to the booting injector")
				}

				return act.Close()
			},
		},
		ScopeConfig{Name: "sub", Depends: []string{"request"}},
	))

	done := make(chan error, 1)

	go func() {
		act, err := c.Use(context.Background(), "request")
		if err == nil {
			err = act.Close()
		}

		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Use did not return while a boot hook activated a dependant scope")
	}
}

func TestInjectorContext_BootFailure(t *testing.T) {
	bootErr := errors.New("no database")
	shutdowns := 0

	c := newTestContainer(t, WithScopes(ScopeConfig{
		Name:   "request",
		OnBoot: func(*Injector) error { return bootErr },
		OnShutdown: func(*Injector) error {
			shutdowns++

			return nil
		},
	}))

	root, err := c.Root()
	require.NoError(t, err)

	_, err = c.Use(context.Background(), "request")
	require.Error(t, err)
	assert.ErrorIs(t, err, bootErr)
	assert.Equal(t, 1, shutdowns)

	// The parent entry taken for the failed start was released.
	assert.Equal(t, 1, root.Context().Level())
}

func TestInjectorContext_EnterCallbackFailure(t *testing.T) {
	c := newTestContainer(t, WithScopes(RequestScope()))

	root, err := c.Root()
	require.NoError(t, err)

	s, _ := c.Scope("request")
	inj, err := s.Create(root)
	require.NoError(t, err)

	exitRan := false

	x := inj.Context()
	x.OnEnter(func() error { return errors.New("refused") })
	x.OnExit(func() error {
		exitRan = true

		return nil
	})

	err = x.Enter()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	assert.True(t, inj.Closed())
	assert.Equal(t, 0, x.Level())
	assert.False(t, exitRan)
	assert.ErrorIs(t, x.Enter(), ErrInjectorClosed)
}

func TestContainer_ShutdownClosesRoot(t *testing.T) {
	var log []string

	c := newTestContainer(t)

	_, err := c.RegisterFactory("res", func() *closer { return &closer{name: "res", log: &log} }, Cached())
	require.NoError(t, err)

	_, err = c.Make(context.Background(), "res")
	require.NoError(t, err)

	root, err := c.Root()
	require.NoError(t, err)

	require.NoError(t, c.Shutdown())
	assert.Equal(t, []string{"res"}, log)
	assert.True(t, root.Closed())

	_, err = c.Root()
	assert.ErrorIs(t, err, ErrInjectorClosed)

	_, err = c.Make(context.Background(), "res")
	assert.ErrorIs(t, err, ErrInjectorClosed)

	require.NoError(t, c.Shutdown())
}
