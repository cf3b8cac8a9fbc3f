package strata

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeConfiguration indicates a malformed registration or scope definition
	CodeConfiguration = "CONFIGURATION"

	// CodeInjectorKey indicates no provider was found for a token
	CodeInjectorKey = "INJECTOR_KEY"

	// CodeScopeCycle indicates the scope depends graph contains a cycle
	CodeScopeCycle = "SCOPE_CYCLE"

	// CodeCircularDependency indicates factories depend on each other in a loop
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"

	// CodeArgsNotAccepted indicates call-time arguments were passed to a provider that cannot take them
	CodeArgsNotAccepted = "ARGS_NOT_ACCEPTED"

	// CodeMissingArgument indicates a caller-supplied parameter was not supplied
	CodeMissingArgument = "MISSING_ARGUMENT"

	// CodeNotEntered indicates an injector context was exited more times than entered
	CodeNotEntered = "NOT_ENTERED"

	// CodeInjectorClosed indicates use of an injector after its context was torn down
	CodeInjectorClosed = "INJECTOR_CLOSED"

	// CodeTypeMismatch indicates a resolved value is not assignable to the requested type
	CodeTypeMismatch = "TYPE_MISMATCH"

	// CodeTeardown indicates one or more exit callbacks failed
	CodeTeardown = "TEARDOWN"
)

// Error is the coded error type used throughout the package. Two errors
// match under errors.Is when their codes are equal.
type Error struct {
	Code    string
	Message string
	Cause   error
	Context map[string]any
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("strata: %s: %v", e.Message, e.Cause)
	}

	return "strata: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	return ok && t.Code == e.Code
}

// WithContext returns a copy of e with an extra diagnostic field.
func (e *Error) WithContext(key string, value any) *Error {
	out := *e

	out.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		out.Context[k] = v
	}

	out.Context[key] = value

	return &out
}

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// ErrConfiguration matches every configuration failure.
var ErrConfiguration = newError(CodeConfiguration, "configuration error", nil)

// ErrInjectorKey matches every unresolved-token failure.
var ErrInjectorKey = newError(CodeInjectorKey, "no provider found", nil)

// ErrScopeCycle matches scope graph cycles.
var ErrScopeCycle = newError(CodeScopeCycle, "scope dependency cycle", nil)

// ErrCircularDependency matches factory dependency loops.
var ErrCircularDependency = newError(CodeCircularDependency, "circular dependency", nil)

// ErrArgsNotAccepted is returned when arguments are passed to a cached or value provider.
var ErrArgsNotAccepted = newError(CodeArgsNotAccepted, "provider does not accept arguments", nil)

// ErrMissingArgument is returned when a caller-supplied parameter is missing.
var ErrMissingArgument = newError(CodeMissingArgument, "missing argument", nil)

// ErrNotEntered is returned by Exit on a context that is not entered.
var ErrNotEntered = newError(CodeNotEntered, "injector context not entered", nil)

// ErrInjectorClosed is returned when a torn-down injector is used.
var ErrInjectorClosed = newError(CodeInjectorClosed, "injector has been shut down", nil)

// ErrTypeMismatch matches failed conversions of resolved values.
var ErrTypeMismatch = newError(CodeTypeMismatch, "type mismatch", nil)

// ErrTeardown matches aggregated teardown failures.
var ErrTeardown = newError(CodeTeardown, "teardown failed", nil)

// =============================================================================
// TYPED ERRORS
// =============================================================================

// ConfigurationError reports a malformed registration or scope definition.
type ConfigurationError struct {
	Op     string
	Reason string
	Cause  error
}

func configError(op, reason string, cause error) *ConfigurationError {
	return &ConfigurationError{Op: op, Reason: reason, Cause: cause}
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("strata: %s: %s: %v", e.Op, e.Reason, e.Cause)
	}

	return fmt.Sprintf("strata: %s: %s", e.Op, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// InjectorKeyError reports a token that no provider in the scope chain
// could resolve. Param and Callable are set when the failure happened
// while auto-wiring a parameter.
type InjectorKeyError struct {
	Key      Key
	Scope    string
	Level    int
	Injector uuid.UUID
	Param    string
	Callable string
	Cause    error
}

func (e *InjectorKeyError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "strata: no provider for %s (scope=%s, level=%d)", e.Key, e.Scope, e.Level)

	if e.Param != "" {
		fmt.Fprintf(&b, " while binding parameter %s of %s", e.Param, e.Callable)
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	return b.String()
}

func (e *InjectorKeyError) Unwrap() error { return e.Cause }

func (e *InjectorKeyError) Is(target error) bool { return target == ErrInjectorKey }

// CycleError reports a cycle in the scope depends graph.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "strata: scope dependency cycle: " + strings.Join(e.Chain, " -> ")
}

func (e *CycleError) Is(target error) bool { return target == ErrScopeCycle }

// CircularDependencyError reports factories that depend on each other.
type CircularDependencyError struct {
	Path []Key
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = k.String()
	}

	return "strata: circular dependency: " + strings.Join(parts, " -> ")
}

func (e *CircularDependencyError) Is(target error) bool { return target == ErrCircularDependency }

// TeardownError aggregates failures from exit callbacks and disposal.
// Every callback runs; Unwrap surfaces the first failure and Combined
// returns the multierr aggregate of all of them.
type TeardownError struct {
	errs     []error
	combined error
}

func teardownError(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}

	return &TeardownError{errs: errs, combined: multierr.Combine(errs...)}
}

func (e *TeardownError) Error() string {
	return "strata: teardown: " + e.combined.Error()
}

// Unwrap returns the first failure.
func (e *TeardownError) Unwrap() error { return e.errs[0] }

// Errors returns every failure in the order they occurred.
func (e *TeardownError) Errors() []error {
	out := make([]error, len(e.errs))
	copy(out, e.errs)

	return out
}

// Combined returns the failures as one multierr error, which
// multierr.Errors expands.
func (e *TeardownError) Combined() error { return e.combined }

func (e *TeardownError) Is(target error) bool { return target == ErrTeardown }

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

// errArgsNotAccepted creates an error for arguments passed to a provider that cannot take them
func errArgsNotAccepted(key Key, kind Kind) *Error {
	return newError(
		CodeArgsNotAccepted,
		fmt.Sprintf("%s provider for %s does not accept call-time arguments", kind, key),
		nil,
	).WithContext("token", key.String())
}

// errMissingArgument creates an error for a caller-only parameter left unfilled
func errMissingArgument(param, callable string) *Error {
	return newError(
		CodeMissingArgument,
		fmt.Sprintf("parameter %s of %s must be supplied by the caller", param, callable),
		nil,
	).WithContext("param", param)
}

// errTypeMismatch creates an error for a value that cannot be used as the wanted type
func errTypeMismatch(what string, value any, want fmt.Stringer) *Error {
	return newError(
		CodeTypeMismatch,
		fmt.Sprintf("%s: got %T, want %s", what, value, want),
		nil,
	)
}

// errTooManyArgs creates an error for positional arguments beyond a callable's parameters
func errTooManyArgs(callable string, got, max int) *Error {
	return newError(
		CodeArgsNotAccepted,
		fmt.Sprintf("%s takes at most %d positional arguments, got %d", callable, max, got),
		nil,
	).WithContext("callable", callable)
}
