package strata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type Foo struct {
	N int
}

type Bar struct {
	Name string
}

type Widget struct {
	Name string
}

type Greeter interface {
	Greet() string
}

type englishGreeter struct{}

func (englishGreeter) Greet() string { return "hello" }

// closer records Close calls into a shared log.
type closer struct {
	name string
	log  *[]string
	err  error
}

func (c *closer) Close() error {
	*c.log = append(*c.log, c.name)

	return c.err
}

func newTestContainer(t testing.TB, opts ...Option) *Container {
	t.Helper()

	c, err := New(append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Shutdown() })

	return c
}

// use activates scope and closes it at test cleanup.
func use(t testing.TB, c *Container, ctx context.Context, scope string) *Activation {
	t.Helper()

	act, err := c.Use(ctx, scope)
	require.NoError(t, err)

	t.Cleanup(func() { _ = act.Close() })

	return act
}
