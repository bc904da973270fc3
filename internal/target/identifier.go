package target

import "fmt"

// Prober is the OS-facing capability the Identifier needs: a snapshot of
// the currently focused window. Implementations live next to this package
// (OSProber) or in tests.
type Prober interface {
	ActiveWindow() (WindowInfo, error)
}

// Identifier resolves the current foreground target.
type Identifier struct {
	prober Prober
}

// NewIdentifier creates an Identifier backed by the given prober.
// Panics if prober is nil (programmer error).
func NewIdentifier(p Prober) *Identifier {
	if p == nil {
		panic("target: NewIdentifier called with nil prober")
	}
	return &Identifier{prober: p}
}

// Identify captures the focused window. It fails with ErrNoForegroundTarget
// when no window holds focus; any probe failure is folded into the same
// error so callers see a single kind.
func (i *Identifier) Identify() (WindowInfo, error) {
	info, err := i.prober.ActiveWindow()
	if err != nil {
		return WindowInfo{}, fmt.Errorf("%w: %v", ErrNoForegroundTarget, err)
	}
	if info.PID <= 0 {
		return WindowInfo{}, ErrNoForegroundTarget
	}
	return info, nil
}
