package strata

// MainScope is the process-wide root scope every container defines.
const MainScope = "main"

// ScopeConfig describes one named scope. Configs compose through Merge
// and Extend instead of inheritance.
type ScopeConfig struct {
	// Name uniquely identifies the scope.
	Name string

	// Priority breaks ties between ancestors that could both resolve a
	// token: higher is consulted first, among embedded layers and among
	// the injectors a dependant scope chains to. Equal priorities keep
	// Depends order, the last entry first.
	Priority int

	// Depends lists the scopes this one is layered on, in order. A nil
	// slice means []string{MainScope} for every scope except MainScope.
	Depends []string

	// Embedded scopes contribute their providers to the scopes that
	// depend on them instead of creating an injector layer.
	Embedded bool

	// Abstract scopes exist only to be extended and cannot be activated.
	Abstract bool

	// OnBoot runs once when an injector of the scope is first entered.
	OnBoot func(*Injector) error

	// OnShutdown runs when an injector of the scope is torn down.
	OnShutdown func(*Injector) error
}

// Merge returns c overridden by the non-zero fields of override. Depends
// is replaced when override sets it; hooks are chained, c's first.
func (c ScopeConfig) Merge(override ScopeConfig) ScopeConfig {
	out := c

	if override.Name != "" {
		out.Name = override.Name
	}

	if override.Priority != 0 {
		out.Priority = override.Priority
	}

	if override.Depends != nil {
		out.Depends = append([]string(nil), override.Depends...)
	}

	out.Embedded = c.Embedded || override.Embedded
	out.Abstract = override.Abstract
	out.OnBoot = chainHooks(c.OnBoot, override.OnBoot)
	out.OnShutdown = chainHooks(c.OnShutdown, override.OnShutdown)

	return out
}

// Extend derives a concrete scope named name from c.
func (c ScopeConfig) Extend(name string) ScopeConfig {
	return c.Merge(ScopeConfig{Name: name})
}

func (c ScopeConfig) depends() []string {
	if c.Depends == nil && c.Name != MainScope {
		return []string{MainScope}
	}

	return c.Depends
}

func chainHooks(first, second func(*Injector) error) func(*Injector) error {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	}

	return func(inj *Injector) error {
		if err := first(inj); err != nil {
			return err
		}

		return second(inj)
	}
}

// RequestScope returns the conventional per-request scope layered on MainScope.
func RequestScope() ScopeConfig {
	return ScopeConfig{Name: "request", Depends: []string{MainScope}}
}

// CommandScope returns the conventional per-command scope layered on MainScope.
func CommandScope() ScopeConfig {
	return ScopeConfig{Name: "command", Depends: []string{MainScope}}
}
