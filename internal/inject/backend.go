package inject

// Backend is the narrow OS-facing capability the engine delivers through.
// The engine owns pacing, timeouts, retries and cancellation; a backend
// only turns single operations into OS calls, so a fake backend makes the
// whole pipeline unit-testable.
type Backend interface {
	// KeyChar synthesizes one character as keystroke events.
	KeyChar(r rune) error

	// PasteChord synthesizes the platform paste shortcut.
	PasteChord() error

	// ClipboardRead returns the current clipboard text.
	ClipboardRead() (string, error)

	// ClipboardWrite replaces the clipboard text.
	ClipboardWrite(text string) error
}
