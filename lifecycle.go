package strata

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// InjectorContext bounds the lifetime of one injector with reentrant
// Enter/Exit. The first Enter enters the parent context and boots the
// injector; the matching last Exit runs exit callbacks, shuts the
// injector down and exits the parent.
//
// The counter is guarded by a mutex, but the work done between Enter and
// Exit is not serialized.
type InjectorContext struct {
	mu     sync.Mutex // guards level transitions and done
	inj    *Injector
	parent *InjectorContext
	level  atomic.Int32
	done   bool

	cbMu    sync.Mutex
	onEnter []func() error
	onExit  []func() error
}

// Injector returns the injector this context bounds.
func (x *InjectorContext) Injector() *Injector {
	return x.inj
}

// Level returns the current reentrancy depth.
func (x *InjectorContext) Level() int {
	return int(x.level.Load())
}

// OnEnter registers fn to run, in registration order, on the next
// outermost Enter.
func (x *InjectorContext) OnEnter(fn func() error) {
	x.cbMu.Lock()
	defer x.cbMu.Unlock()

	x.onEnter = append(x.onEnter, fn)
}

// OnExit registers fn to run on the outermost Exit. Exit callbacks run in
// reverse registration order.
func (x *InjectorContext) OnExit(fn func() error) {
	x.cbMu.Lock()
	defer x.cbMu.Unlock()

	x.onExit = append(x.onExit, fn)
}

// Enter acquires the context. Entering a context that was torn down
// fails with ErrInjectorClosed.
//
// The outermost Enter enters the parent, boots the injector and runs the
// enter callbacks without holding the context lock, so boot hooks and
// callbacks may activate scopes layered on this one. Enter calls made
// while that is in progress count as nested and return at once.
func (x *InjectorContext) Enter() error {
	x.mu.Lock()

	if x.done {
		x.mu.Unlock()

		return ErrInjectorClosed.WithContext("injector", x.inj.String())
	}

	if x.level.Add(1) > 1 {
		x.mu.Unlock()

		return nil
	}

	x.mu.Unlock()

	if err := x.start(); err != nil {
		x.mu.Lock()
		x.done = true
		x.level.Store(0)
		x.mu.Unlock()

		return err
	}

	return nil
}

// start runs the 0 -> 1 transition. On failure the injector is torn down.
func (x *InjectorContext) start() error {
	if x.parent != nil {
		if err := x.parent.Enter(); err != nil {
			return err
		}
	}

	err := x.inj.boot()
	if err == nil {
		callbacks := x.takeCallbacks(&x.onEnter)

		for _, fn := range callbacks {
			if err = safeCall(fn); err != nil {
				break
			}
		}
	}

	if err == nil {
		return nil
	}

	err = multierr.Append(err, x.inj.shutdown())

	if x.parent != nil {
		err = multierr.Append(err, x.parent.Exit())
	}

	return err
}

// Exit releases the context. On the outermost Exit every exit callback
// runs even if some fail; the returned error surfaces the first failure
// and exposes all of them through TeardownError.Errors and Combined.
func (x *InjectorContext) Exit() error {
	x.mu.Lock()

	if x.level.Load() == 0 {
		x.mu.Unlock()

		return ErrNotEntered.WithContext("injector", x.inj.String())
	}

	if x.level.Add(-1) > 0 {
		x.mu.Unlock()

		return nil
	}

	// Later Enter calls fail; teardown runs outside the lock so callbacks
	// may use the context.
	x.done = true
	x.mu.Unlock()

	var errs []error

	callbacks := x.takeCallbacks(&x.onExit)

	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := safeCall(callbacks[i]); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, multierr.Errors(x.inj.shutdown())...)

	if x.parent != nil {
		if err := x.parent.Exit(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		x.inj.logger.Warn("teardown failed", zap.Errors("errors", errs))
	}

	return teardownError(errs)
}

func (x *InjectorContext) takeCallbacks(list *[]func() error) []func() error {
	x.cbMu.Lock()
	defer x.cbMu.Unlock()

	out := *list
	*list = nil

	return out
}

// safeCall runs fn, converting a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	return fn()
}
