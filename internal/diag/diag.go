// Package diag exposes on-demand self-testing and a human-readable issues
// report. The self-test runs through the real delivery pipeline so its
// result is representative of actual dictation, not a mocked happy path.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxtype/voxtype/internal/compat"
	"github.com/voxtype/voxtype/internal/inject"
	"github.com/voxtype/voxtype/internal/monitor"
)

// selfTestText is the short known string injected by SelfTest. Focus a
// scratch buffer before running it.
const selfTestText = "voxtype self-test"

// DefaultWindow is the trailing span health figures are computed over.
const DefaultWindow = 5 * time.Minute

// TestResult reports one self-test delivery.
type TestResult struct {
	Success  bool
	Duration time.Duration
	Method   compat.Method
	Issues   []string
}

// Facade ties the engine, monitor and registry together for the UI layer.
type Facade struct {
	eng *inject.Engine
	mon *monitor.Monitor
	reg *compat.Registry
	log *slog.Logger

	// Window is the reliability window for Metrics and Report.
	Window time.Duration
}

// New creates a Facade. log may be nil.
func New(eng *inject.Engine, mon *monitor.Monitor, reg *compat.Registry, log *slog.Logger) *Facade {
	if eng == nil || mon == nil || reg == nil {
		panic("diag: New called with nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Facade{eng: eng, mon: mon, reg: reg, log: log, Window: DefaultWindow}
}

// SelfTest injects a short known string into the focused target through
// the normal pipeline. The attempt lands in the monitor like any real
// delivery.
func (f *Facade) SelfTest(ctx context.Context) (TestResult, error) {
	opts := inject.DefaultOptions()
	opts.Timeout = 5 * time.Second

	start := time.Now()
	out, err := f.eng.Deliver(ctx, selfTestText, opts)
	if err != nil {
		res := TestResult{Duration: time.Since(start)}
		res.Issues = append(res.Issues, err.Error())
		res.Issues = append(res.Issues, f.Report().Recommendations...)
		return res, err
	}
	return TestResult{Success: true, Duration: out.Duration, Method: out.Method}, nil
}

// Metrics returns live figures over the facade window.
func (f *Facade) Metrics() monitor.Metrics {
	return f.mon.Metrics(f.Window)
}

// Report combines the monitor's health report with any application
// categories currently marked incompatible in the registry.
func (f *Facade) Report() monitor.Report {
	rep := f.mon.Report(f.Window)
	for _, app := range f.reg.Incompatible() {
		rep.Issues = append(rep.Issues, fmt.Sprintf("application category %q is marked incompatible", app))
	}
	rep.IssueCount = len(rep.Issues)
	return rep
}

// SetDebugMode toggles verbose per-attempt tracing on the engine.
func (f *Facade) SetDebugMode(on bool) {
	f.eng.SetDebugMode(on)
	f.log.Info("debug mode toggled", "enabled", on)
}
