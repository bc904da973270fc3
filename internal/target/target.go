// Package target identifies the application that currently owns keyboard
// focus and classifies it into a known category. Classification is a pure
// lookup over process names so it can be tested without a desktop session.
package target

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoForegroundTarget is returned when no window currently holds focus.
var ErrNoForegroundTarget = errors.New("no foreground target")

// App is a known application category.
type App int

const (
	AppUnknown App = iota
	AppNotepad
	AppChrome
	AppFirefox
	AppEdge
	AppWord
	AppOutlook
	AppExcel
	AppVisualStudio
	AppVSCode
	AppNotepadPlus
	AppCommandPrompt
	AppPowerShell
	AppWindowsTerminal
)

var appNames = map[App]string{
	AppUnknown:         "unknown",
	AppNotepad:         "notepad",
	AppChrome:          "chrome",
	AppFirefox:         "firefox",
	AppEdge:            "edge",
	AppWord:            "word",
	AppOutlook:         "outlook",
	AppExcel:           "excel",
	AppVisualStudio:    "visualstudio",
	AppVSCode:          "vscode",
	AppNotepadPlus:     "notepad++",
	AppCommandPrompt:   "cmd",
	AppPowerShell:      "powershell",
	AppWindowsTerminal: "windowsterminal",
}

func (a App) String() string {
	if s, ok := appNames[a]; ok {
		return s
	}
	return "unknown"
}

// ParseApp parses the string form produced by String.
func ParseApp(s string) (App, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for app, name := range appNames {
		if name == want {
			return app, nil
		}
	}
	return AppUnknown, fmt.Errorf("unknown application category %q", s)
}

// All returns every application category, AppUnknown included.
func All() []App {
	return []App{
		AppUnknown, AppNotepad, AppChrome, AppFirefox, AppEdge,
		AppWord, AppOutlook, AppExcel, AppVisualStudio, AppVSCode,
		AppNotepadPlus, AppCommandPrompt, AppPowerShell, AppWindowsTerminal,
	}
}

// WindowInfo describes the focused window at the moment of capture.
type WindowInfo struct {
	ProcessName string
	PID         int32
	WindowID    int64
}

// classEntry maps a process-name fragment to a category. Order matters:
// ties on match length resolve to the earliest entry.
type classEntry struct {
	pattern string
	app     App
}

var classTable = []classEntry{
	{"notepad++", AppNotepadPlus},
	{"notepad", AppNotepad},
	{"chrome", AppChrome},
	{"firefox", AppFirefox},
	{"msedge", AppEdge},
	{"winword", AppWord},
	{"outlook", AppOutlook},
	{"excel", AppExcel},
	{"devenv", AppVisualStudio},
	{"code", AppVSCode},
	{"windowsterminal", AppWindowsTerminal},
	{"powershell", AppPowerShell},
	{"pwsh", AppPowerShell},
	{"cmd", AppCommandPrompt},
}

// Classify maps a window's process name to an application category.
// The match is case-insensitive, longest-pattern-wins, and total:
// anything unmatched is AppUnknown.
func Classify(info WindowInfo) App {
	name := strings.ToLower(info.ProcessName)
	name = strings.TrimSuffix(name, ".exe")

	best := AppUnknown
	bestLen := 0
	for _, e := range classTable {
		if len(e.pattern) > bestLen && strings.Contains(name, e.pattern) {
			best = e.app
			bestLen = len(e.pattern)
		}
	}
	return best
}
