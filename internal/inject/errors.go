package inject

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxtype/voxtype/internal/monitor"
	"github.com/voxtype/voxtype/internal/target"
)

// The delivery error taxonomy. Every mechanism-level failure is translated
// into one of these before it crosses the package boundary; raw OS errors
// never do.
var (
	// ErrNoForegroundTarget mirrors the identifier's failure so callers
	// match a single sentinel regardless of which layer detected it.
	ErrNoForegroundTarget = target.ErrNoForegroundTarget

	// ErrUnsupportedCharacter means the text cannot be synthesized as
	// keystrokes and the clipboard substitute is disallowed.
	ErrUnsupportedCharacter = errors.New("unsupported character")

	// ErrClipboardBusy means the clipboard could not be written, usually
	// because another process holds it open.
	ErrClipboardBusy = errors.New("clipboard busy")

	// ErrTimeout means the delivery exceeded the caller's wall-clock budget.
	ErrTimeout = errors.New("injection timeout")

	// ErrEngineBusy means a delivery was already in flight and the engine
	// is configured to reject rather than queue.
	ErrEngineBusy = errors.New("engine busy")

	// ErrCancelled means the caller cancelled mid-delivery.
	ErrCancelled = errors.New("delivery cancelled")

	// ErrSuperseded means a queued delivery was replaced by a newer one
	// before it started.
	ErrSuperseded = errors.New("delivery superseded")
)

// errSynthesisRejected marks a keystroke the OS input queue refused. It is
// transient: retried, and surfaced only inside a RetryExhaustedError.
var errSynthesisRejected = errors.New("synthesis rejected")

// RetryExhaustedError reports a delivery that failed after all retries and
// fallbacks were spent, wrapping the last underlying failure.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// transient reports whether a failure may be retried or fallen back from.
func transient(err error) bool {
	return errors.Is(err, ErrClipboardBusy) || errors.Is(err, errSynthesisRejected)
}

// ctxErr translates a context failure into the taxonomy.
func ctxErr(ctx context.Context) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ErrTimeout
	case context.Canceled:
		return ErrCancelled
	default:
		return nil
	}
}

// reasonFor maps a terminal delivery error to the monitor's failure
// categories. Every failed attempt gets a non-empty reason.
func reasonFor(err error) monitor.Reason {
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		err = exhausted.Last
	}

	switch {
	case err == nil:
		return monitor.ReasonNone
	case errors.Is(err, ErrNoForegroundTarget):
		return monitor.ReasonNoTarget
	case errors.Is(err, ErrUnsupportedCharacter):
		return monitor.ReasonUnsupportedChar
	case errors.Is(err, ErrClipboardBusy):
		return monitor.ReasonClipboardBusy
	case errors.Is(err, ErrTimeout):
		return monitor.ReasonTimeout
	case errors.Is(err, ErrEngineBusy):
		return monitor.ReasonEngineBusy
	case errors.Is(err, ErrCancelled), errors.Is(err, ErrSuperseded):
		return monitor.ReasonCancelled
	default:
		return monitor.ReasonSynthesisRejected
	}
}
