package tool

import (
	"slices"

	"github.com/hupe1980/runmesh/core"
)

// ScopePolicy is an immutable set of granted capability strings. It is built
// once per execution context and shared by every tool invoked under it.
type ScopePolicy struct {
	granted map[string]struct{}
}

// NewScopePolicy grants the given scopes. Duplicates are ignored.
func NewScopePolicy(scopes ...string) ScopePolicy {
	granted := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		granted[s] = struct{}{}
	}
	return ScopePolicy{granted: granted}
}

// Allows reports whether a single scope is granted.
func (p ScopePolicy) Allows(scope string) bool {
	_, ok := p.granted[scope]
	return ok
}

// AssertAllowed checks every required scope and returns a
// *core.ScopeDeniedError listing all missing ones, in the order given.
func (p ScopePolicy) AssertAllowed(required []string) error {
	var missing []string
	for _, s := range required {
		if !p.Allows(s) && !slices.Contains(missing, s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return &core.ScopeDeniedError{Missing: missing}
	}
	return nil
}

// Scopes returns the granted scopes sorted alphabetically.
func (p ScopePolicy) Scopes() []string {
	out := make([]string, 0, len(p.granted))
	for s := range p.granted {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
