package strata

// Dependency annotates a callable parameter as auto-wired. Candidate
// tokens are tried in order; the first that resolves wins. With no
// tokens the parameter's own type is used.
//
// Usage:
//
//	strata.Annotate(NewHandler,
//	    strata.Dep("db.primary", "db"),
//	    strata.Dep().Or(defaultClock),
//	    strata.Dep(RequestToken).From("request"),
//	)
type Dependency struct {
	tokens     []any
	scope      string
	name       string
	def        func() any
	hasDefault bool
}

// Dep creates a dependency annotation over the given candidate tokens.
func Dep(tokens ...any) Dependency {
	return Dependency{tokens: tokens}
}

// Inject creates a dependency on T, or on the given tokens when present.
func Inject[T any](tokens ...any) Dependency {
	if len(tokens) == 0 {
		return Dep(TypeOf[T]())
	}

	return Dep(tokens...)
}

// Or supplies value when no candidate resolves.
func (d Dependency) Or(value any) Dependency {
	d.def = func() any { return value }
	d.hasDefault = true

	return d
}

// OrElse calls fn for a default when no candidate resolves.
func (d Dependency) OrElse(fn func() any) Dependency {
	d.def = fn
	d.hasDefault = true

	return d
}

// Optional falls back to the zero value when no candidate resolves.
func (d Dependency) Optional() Dependency {
	return d.Or(nil)
}

// From restricts resolution to the nearest injector of the named scope.
func (d Dependency) From(scope string) Dependency {
	d.scope = scope

	return d
}

// Named lets a Kwargs entry with this name supply the parameter.
func (d Dependency) Named(name string) Dependency {
	d.name = name

	return d
}

// Tokens returns the candidate tokens.
func (d Dependency) Tokens() []any {
	return append([]any(nil), d.tokens...)
}

// Argument marks a parameter as supplied by the caller only.
type Argument struct {
	name string
}

// Arg marks a parameter as caller-supplied; it is never auto-wired.
func Arg() Argument {
	return Argument{}
}

// Named lets a Kwargs entry with this name supply the argument.
func (a Argument) Named(name string) Argument {
	a.name = name

	return a
}

// Collection annotates a variadic parameter that collects the values of
// every candidate token that resolves, followed by any extra positional
// arguments.
type Collection struct {
	tokens []any
}

// Collect creates a collection annotation for a variadic parameter.
func Collect(tokens ...any) Collection {
	return Collection{tokens: tokens}
}
