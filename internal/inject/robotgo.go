package inject

import (
	"fmt"
	"runtime"

	"github.com/go-vgo/robotgo"
)

// RobotgoBackend drives the real OS input queue and clipboard through
// robotgo. This is the default backend on every platform.
type RobotgoBackend struct{}

var _ Backend = RobotgoBackend{}

// KeyChar emits one character. Newline and tab go through their dedicated
// keys; everything else is typed as text so non-ASCII reaches targets that
// accept it.
func (RobotgoBackend) KeyChar(r rune) error {
	switch r {
	case '\n':
		return robotgo.KeyTap("enter")
	case '\t':
		return robotgo.KeyTap("tab")
	default:
		robotgo.TypeStr(string(r))
		return nil
	}
}

// PasteChord sends Cmd+V on macOS and Ctrl+V elsewhere.
func (RobotgoBackend) PasteChord() error {
	if runtime.GOOS == "darwin" {
		return robotgo.KeyTap("v", "cmd")
	}
	return robotgo.KeyTap("v", "ctrl")
}

func (RobotgoBackend) ClipboardRead() (string, error) {
	return robotgo.ReadAll()
}

func (RobotgoBackend) ClipboardWrite(text string) error {
	if err := robotgo.WriteAll(text); err != nil {
		return fmt.Errorf("write to clipboard: %w", err)
	}
	return nil
}
