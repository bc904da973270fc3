// Package inject delivers text into the focused application. It resolves
// the foreground target, consults the compatibility registry for a
// delivery profile, then either synthesizes keystrokes or substitutes a
// clipboard paste, with bounded retries and mechanism fallback. Every
// terminal outcome is recorded with the reliability monitor.
package inject

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/voxtype/voxtype/internal/compat"
	"github.com/voxtype/voxtype/internal/monitor"
	"github.com/voxtype/voxtype/internal/target"
)

const (
	// pacedCharDelay is the minimum inter-character delay enforced for
	// targets flagged as dropping fast input.
	pacedCharDelay = 10 * time.Millisecond

	// Linear retry backoff: attempt × step, capped.
	retryBackoffStep = 50 * time.Millisecond
	maxRetryBackoff  = 500 * time.Millisecond

	// Settle pauses around the paste chord. The clipboard needs a beat to
	// propagate before the chord, and the target needs one to consume it
	// before the original contents come back.
	clipboardSettle = 80 * time.Millisecond
	pasteSettle     = 120 * time.Millisecond
)

// Policy decides what happens when a delivery arrives while another is in
// flight.
type Policy int

const (
	// PolicyQueue serializes deliveries with a queue depth of one: a newer
	// request supersedes a not-yet-started queued one, so stale dictation
	// is never typed after the user has moved on.
	PolicyQueue Policy = iota
	// PolicyReject fails immediately with ErrEngineBusy.
	PolicyReject
)

// Options are caller-supplied delivery overrides.
type Options struct {
	// Method forces a mechanism; MethodAuto defers to the profile.
	Method compat.Method
	// Retries is the number of same-mechanism retries after the first
	// attempt fails with a transient error.
	Retries int
	// CharDelay paces keystroke synthesis between characters.
	CharDelay time.Duration
	// Timeout bounds the whole delivery, retries included.
	Timeout time.Duration
}

// DefaultOptions returns the engine defaults: 3 retries, 5ms pacing, 10s
// budget.
func DefaultOptions() Options {
	return Options{
		Method:    compat.MethodAuto,
		Retries:   3,
		CharDelay: 5 * time.Millisecond,
		Timeout:   10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.CharDelay < 0 {
		o.CharDelay = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultOptions().Timeout
	}
	return o
}

// Outcome reports a successful delivery.
type Outcome struct {
	Method   compat.Method
	Duration time.Duration
}

// EventKind tags progress notifications.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventRetry    EventKind = "retry"
	EventFallback EventKind = "fallback"
	EventDone     EventKind = "done"
)

// Event is an optional progress notification emitted synchronously during
// delivery. Err is set only on EventDone for failed deliveries.
type Event struct {
	Kind    EventKind
	Method  compat.Method
	Attempt int
	Err     error
}

// Engine executes deliveries. At most one is in flight at a time: the OS
// input queue and clipboard are process-wide exclusive resources.
type Engine struct {
	ident   *target.Identifier
	reg     *compat.Registry
	backend Backend
	mon     *monitor.Monitor
	log     *slog.Logger

	// Policy selects queue-or-reject behavior for concurrent deliveries.
	// Set before the first Deliver call.
	Policy Policy

	// Notify, when set, receives progress events. Set before the first
	// Deliver call.
	Notify func(Event)

	// OnAttempt, when set, receives every recorded attempt. This is the
	// hook the usage-accounting collaborator persists from. Set before
	// the first Deliver call.
	OnAttempt func(monitor.Attempt)

	debug atomic.Bool
	mu    sync.Mutex
	seq   atomic.Uint64
}

// NewEngine creates an Engine. All dependencies are required; log may be
// nil and defaults to slog.Default().
func NewEngine(ident *target.Identifier, reg *compat.Registry, backend Backend, mon *monitor.Monitor, log *slog.Logger) *Engine {
	if ident == nil || reg == nil || backend == nil || mon == nil {
		panic("inject: NewEngine called with nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{ident: ident, reg: reg, backend: backend, mon: mon, log: log}
}

// SetDebugMode toggles verbose per-attempt tracing. It never alters
// delivery behavior.
func (e *Engine) SetDebugMode(on bool) {
	e.debug.Store(on)
}

// DebugMode reports whether verbose tracing is on.
func (e *Engine) DebugMode() bool {
	return e.debug.Load()
}

// Deliver injects text into the currently focused application. Empty text
// is a no-op. The call is serialized against other deliveries per the
// engine Policy; cancellation of ctx stops emission at the next character
// or pause and surfaces ErrCancelled.
func (e *Engine) Deliver(ctx context.Context, text string, opts Options) (Outcome, error) {
	if text == "" {
		return Outcome{}, nil
	}
	opts = opts.withDefaults()

	switch e.Policy {
	case PolicyReject:
		if !e.mu.TryLock() {
			e.record(target.WindowInfo{}, target.AppUnknown, opts.Method, 0, ErrEngineBusy)
			return Outcome{}, ErrEngineBusy
		}
	default:
		ticket := e.seq.Add(1)
		e.mu.Lock()
		if e.seq.Load() != ticket {
			// A newer delivery queued up while this one waited.
			e.mu.Unlock()
			e.record(target.WindowInfo{}, target.AppUnknown, opts.Method, 0, ErrSuperseded)
			return Outcome{}, ErrSuperseded
		}
	}
	defer e.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	info, err := e.ident.Identify()
	if err != nil {
		e.record(target.WindowInfo{}, target.AppUnknown, opts.Method, time.Since(start), err)
		return Outcome{}, err
	}

	app := target.Classify(info)
	prof := e.reg.Lookup(app)
	forced := opts.Method != compat.MethodAuto

	method, err := resolveMethod(opts.Method, prof, text)
	if err != nil {
		e.record(info, app, opts.Method, time.Since(start), err)
		return Outcome{}, err
	}

	e.trace("delivery start", "app", app.String(), "process", info.ProcessName, "method", method.String(), "chars", len([]rune(text)))
	e.emit(Event{Kind: EventStart, Method: method, Attempt: 1})

	method, err = e.execute(ctx, prof, method, forced, text, opts)
	outcome := Outcome{Method: method, Duration: time.Since(start)}
	e.record(info, app, method, outcome.Duration, err)
	e.emit(Event{Kind: EventDone, Method: method, Err: err})
	if err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// resolveMethod picks the concrete mechanism: a forced method wins, then
// the profile's preference, with auto resolving to paste for text the
// target cannot take as keystrokes. Text that cannot be synthesized at all
// moves to paste when the profile allows fallback, otherwise fails with
// ErrUnsupportedCharacter.
func resolveMethod(forcedM compat.Method, prof compat.Profile, text string) (compat.Method, error) {
	forced := forcedM != compat.MethodAuto

	m := forcedM
	if m == compat.MethodAuto {
		m = prof.Preferred
	}
	if m == compat.MethodAuto {
		if hasNonASCII(text) || prof.Handling[compat.FlagPasteNonASCII] {
			m = compat.MethodPaste
		} else {
			m = compat.MethodType
		}
	}

	if m == compat.MethodType && !forced && hasNonASCII(text) && prof.Handling[compat.FlagPasteNonASCII] {
		m = compat.MethodPaste
	}

	if m == compat.MethodType && !synthesizable(text) {
		if !forced && prof.Settings[compat.SettingClipboardFallback] {
			return compat.MethodPaste, nil
		}
		return m, ErrUnsupportedCharacter
	}
	return m, nil
}

// execute runs the retry/fallback loop. A transient keystroke failure
// falls back to paste once when the profile permits it and the caller did
// not force the method; otherwise the same mechanism retries with linear
// backoff, never past the caller deadline.
func (e *Engine) execute(ctx context.Context, prof compat.Profile, method compat.Method, forced bool, text string, opts Options) (compat.Method, error) {
	delay := opts.CharDelay
	if prof.Handling[compat.FlagPerCharDelay] && delay < pacedCharDelay {
		delay = pacedCharDelay
	}
	canFallback := !forced && prof.Settings[compat.SettingClipboardFallback]

	var lastErr error
	attempts := opts.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			e.emit(Event{Kind: EventRetry, Method: method, Attempt: attempt})
			backoff := time.Duration(attempt-1) * retryBackoffStep
			if backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
			select {
			case <-ctx.Done():
				return method, ctxErr(ctx)
			case <-time.After(backoff):
			}
		}

		var err error
		if method == compat.MethodPaste {
			err = e.paste(ctx, text)
		} else {
			err = e.typeText(ctx, text, delay)
		}
		if err == nil {
			return method, nil
		}
		lastErr = err
		e.trace("attempt failed", "attempt", attempt, "method", method.String(), "error", err)

		if !transient(err) {
			return method, err
		}
		if method == compat.MethodType && canFallback {
			e.emit(Event{Kind: EventFallback, Method: compat.MethodPaste, Attempt: attempt})
			method = compat.MethodPaste
			canFallback = false
			attempts++ // the clipboard substitute gets its own try
		}
	}
	return method, &RetryExhaustedError{Attempts: attempts, Last: lastErr}
}

// typeText emits text one character at a time, pausing delay between
// characters. Both the pause and the emission loop observe ctx.
func (e *Engine) typeText(ctx context.Context, text string, delay time.Duration) error {
	runes := []rune(text)
	for i, r := range runes {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		if err := e.backend.KeyChar(r); err != nil {
			return fmt.Errorf("%w: char %q: %v", errSynthesisRejected, r, err)
		}
		if delay > 0 && i < len(runes)-1 {
			if err := e.pause(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// paste stages text on the clipboard, sends the paste chord, and restores
// the prior clipboard contents. Restoration is best-effort: the text has
// already been delivered, so a restore failure is logged, not surfaced.
func (e *Engine) paste(ctx context.Context, text string) error {
	prev, prevErr := e.backend.ClipboardRead()

	if err := e.backend.ClipboardWrite(text); err != nil {
		return fmt.Errorf("%w: %v", ErrClipboardBusy, err)
	}
	if err := e.pause(ctx, clipboardSettle); err != nil {
		e.restoreClipboard(prev, prevErr)
		return err
	}
	if err := e.backend.PasteChord(); err != nil {
		e.restoreClipboard(prev, prevErr)
		return fmt.Errorf("%w: paste chord: %v", errSynthesisRejected, err)
	}
	if err := e.pause(ctx, pasteSettle); err != nil {
		e.restoreClipboard(prev, prevErr)
		return err
	}
	e.restoreClipboard(prev, prevErr)
	return nil
}

func (e *Engine) restoreClipboard(prev string, readErr error) {
	if readErr != nil {
		e.log.Warn("clipboard restore skipped, original contents unreadable", "error", readErr)
		return
	}
	if err := e.backend.ClipboardWrite(prev); err != nil {
		e.log.Warn("clipboard restore failed", "error", err)
	}
}

// pause sleeps for d or until ctx ends, translating the context error.
func (e *Engine) pause(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctxErr(ctx)
	case <-time.After(d):
		return nil
	}
}

func (e *Engine) record(info target.WindowInfo, app target.App, m compat.Method, d time.Duration, err error) {
	a := monitor.Attempt{
		ID:       uuid.NewString(),
		Time:     time.Now().UTC(),
		Target:   info,
		App:      app,
		Method:   m,
		Duration: d,
		Success:  err == nil,
		Reason:   reasonFor(err),
	}
	e.mon.Record(a)
	if e.OnAttempt != nil {
		e.OnAttempt(a)
	}
	e.trace("attempt recorded", "id", a.ID, "success", a.Success, "reason", string(a.Reason), "duration", d)
}

func (e *Engine) emit(ev Event) {
	if e.Notify != nil {
		e.Notify(ev)
	}
}

func (e *Engine) trace(msg string, args ...any) {
	if e.debug.Load() {
		e.log.Debug(msg, args...)
	}
}

// hasNonASCII reports whether text has characters outside the basic
// printable ASCII range. Tab and newline count as printable here; they
// have dedicated keys.
func hasNonASCII(text string) bool {
	for _, r := range text {
		if r > unicode.MaxASCII {
			return true
		}
		if r < 0x20 && r != '\n' && r != '\t' {
			return true
		}
	}
	return false
}

// synthesizable reports whether every character can be emitted as
// keystrokes: printable characters plus tab and newline.
func synthesizable(text string) bool {
	for _, r := range text {
		if r == '\n' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
