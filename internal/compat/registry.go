package compat

import (
	"sort"
	"sync"

	"github.com/voxtype/voxtype/internal/target"
)

// Registry holds one profile per application category. Reads dominate;
// Override exists for startup configuration and diagnostics tuning, and a
// reader sees either the old or the new profile, never a partial one.
type Registry struct {
	mu       sync.RWMutex
	profiles map[target.App]Profile
}

// NewRegistry builds a registry from the built-in compatibility table.
func NewRegistry() *Registry {
	return &Registry{profiles: defaultProfiles()}
}

// Lookup returns the profile for an application category. It is total:
// categories without an entry get the conservative unknown-app profile
// (compatible, clipboard paste, no special handling). The returned profile
// is a copy.
func (r *Registry) Lookup(app target.App) Profile {
	r.mu.RLock()
	p, ok := r.profiles[app]
	if !ok {
		p, ok = r.profiles[target.AppUnknown]
	}
	r.mu.RUnlock()

	if !ok {
		// Unknown entry was overridden away; rebuild the conservative default.
		p = profile(app, MethodPaste)
	}
	cp := p.Clone()
	cp.App = app
	return cp
}

// Override replaces the profile for a category. The profile is copied in,
// so the caller keeps no handle on registry state.
func (r *Registry) Override(app target.App, p Profile) {
	cp := p.Clone()
	cp.App = app
	r.mu.Lock()
	r.profiles[app] = cp
	r.mu.Unlock()
}

// Incompatible lists categories currently marked incompatible, in a stable
// order for reporting.
func (r *Registry) Incompatible() []target.App {
	r.mu.RLock()
	var apps []target.App
	for app, p := range r.profiles {
		if !p.Compatible {
			apps = append(apps, app)
		}
	}
	r.mu.RUnlock()

	sort.Slice(apps, func(i, j int) bool { return apps[i] < apps[j] })
	return apps
}
