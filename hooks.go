package strata

import "context"

// Hook intercepts container resolutions. Hooks can be used for logging,
// metrics, access checks or testing.
type Hook interface {
	// BeforeMake is called before resolving a token.
	// Return error to abort resolution.
	BeforeMake(ctx context.Context, key Key) error

	// AfterMake is called after resolving a token.
	// Called even if resolution failed (value and err may both be set).
	AfterMake(ctx context.Context, key Key, value any, err error) error
}

// hookChain manages multiple hooks.
type hookChain struct {
	hooks []Hook
}

func newHookChain(hooks ...Hook) *hookChain {
	return &hookChain{hooks: hooks}
}

// beforeMake calls BeforeMake on all hooks.
func (h *hookChain) beforeMake(ctx context.Context, key Key) error {
	for _, hook := range h.hooks {
		if err := hook.BeforeMake(ctx, key); err != nil {
			return err
		}
	}

	return nil
}

// afterMake calls AfterMake on all hooks.
func (h *hookChain) afterMake(ctx context.Context, key Key, value any, err error) error {
	for _, hook := range h.hooks {
		if hookErr := hook.AfterMake(ctx, key, value, err); hookErr != nil {
			return hookErr
		}
	}

	return nil
}

// FuncHook wraps functions as a Hook.
type FuncHook struct {
	BeforeMakeFunc func(ctx context.Context, key Key) error
	AfterMakeFunc  func(ctx context.Context, key Key, value any, err error) error
}

// BeforeMake implements Hook.
func (f *FuncHook) BeforeMake(ctx context.Context, key Key) error {
	if f.BeforeMakeFunc != nil {
		return f.BeforeMakeFunc(ctx, key)
	}

	return nil
}

// AfterMake implements Hook.
func (f *FuncHook) AfterMake(ctx context.Context, key Key, value any, err error) error {
	if f.AfterMakeFunc != nil {
		return f.AfterMakeFunc(ctx, key, value, err)
	}

	return nil
}
