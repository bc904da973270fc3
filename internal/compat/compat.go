// Package compat maps application categories to delivery profiles: which
// mechanism to prefer ("type" keystroke synthesis or "paste" clipboard
// substitution) and which special handling a target needs.
package compat

import (
	"fmt"
	"strings"

	"github.com/voxtype/voxtype/internal/target"
)

// Method selects a delivery mechanism.
type Method int

const (
	// MethodAuto defers the choice to the profile and text contents.
	MethodAuto Method = iota
	// MethodType emits the text as individual keystrokes.
	MethodType
	// MethodPaste places the text on the clipboard and sends a paste chord.
	MethodPaste
)

func (m Method) String() string {
	switch m {
	case MethodType:
		return "type"
	case MethodPaste:
		return "paste"
	default:
		return "auto"
	}
}

// ParseMethod parses "auto", "type" or "paste".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return MethodAuto, nil
	case "type":
		return MethodType, nil
	case "paste":
		return MethodPaste, nil
	default:
		return MethodAuto, fmt.Errorf("method must be \"auto\", \"type\" or \"paste\", got %q", s)
	}
}

// Flag marks special handling a target requires.
type Flag string

const (
	// FlagPerCharDelay marks targets that drop keystrokes when input
	// arrives faster than a human could type.
	FlagPerCharDelay Flag = "per_char_delay"
	// FlagPasteNonASCII marks targets whose input queue mangles
	// synthesized non-ASCII characters; auto resolution pastes instead.
	FlagPasteNonASCII Flag = "paste_non_ascii"
)

// ParseFlag parses the string form of a handling flag.
func ParseFlag(s string) (Flag, error) {
	switch Flag(strings.ToLower(strings.TrimSpace(s))) {
	case FlagPerCharDelay:
		return FlagPerCharDelay, nil
	case FlagPasteNonASCII:
		return FlagPasteNonASCII, nil
	default:
		return "", fmt.Errorf("unknown handling flag %q", s)
	}
}

// SettingClipboardFallback, when true, lets a failed keystroke delivery
// retry once over the clipboard before burning same-mechanism retries.
const SettingClipboardFallback = "clipboard_fallback"

// Profile describes how to deliver text into one application category.
type Profile struct {
	App        target.App
	Compatible bool
	Preferred  Method
	Handling   map[Flag]bool
	Settings   map[string]bool
}

// Clone returns a deep copy so callers can't mutate registry state.
func (p Profile) Clone() Profile {
	cp := p
	cp.Handling = make(map[Flag]bool, len(p.Handling))
	for k, v := range p.Handling {
		cp.Handling[k] = v
	}
	cp.Settings = make(map[string]bool, len(p.Settings))
	for k, v := range p.Settings {
		cp.Settings[k] = v
	}
	return cp
}

func profile(app target.App, preferred Method, flags ...Flag) Profile {
	p := Profile{
		App:        app,
		Compatible: true,
		Preferred:  preferred,
		Handling:   make(map[Flag]bool, len(flags)),
		Settings:   map[string]bool{SettingClipboardFallback: true},
	}
	for _, f := range flags {
		p.Handling[f] = true
	}
	return p
}

// defaultProfiles is the built-in compatibility table. Browsers and Office
// tolerate synthesized keystrokes but need pacing; terminals drop fast
// input and mishandle non-ASCII key events, so they get the clipboard.
func defaultProfiles() map[target.App]Profile {
	return map[target.App]Profile{
		target.AppNotepad:         profile(target.AppNotepad, MethodType),
		target.AppChrome:          profile(target.AppChrome, MethodType, FlagPerCharDelay),
		target.AppFirefox:         profile(target.AppFirefox, MethodType, FlagPerCharDelay),
		target.AppEdge:            profile(target.AppEdge, MethodType, FlagPerCharDelay),
		target.AppWord:            profile(target.AppWord, MethodType, FlagPerCharDelay),
		target.AppOutlook:         profile(target.AppOutlook, MethodType, FlagPerCharDelay),
		target.AppExcel:           profile(target.AppExcel, MethodPaste),
		target.AppVisualStudio:    profile(target.AppVisualStudio, MethodType),
		target.AppVSCode:          profile(target.AppVSCode, MethodType),
		target.AppNotepadPlus:     profile(target.AppNotepadPlus, MethodType),
		target.AppCommandPrompt:   profile(target.AppCommandPrompt, MethodPaste, FlagPerCharDelay, FlagPasteNonASCII),
		target.AppPowerShell:      profile(target.AppPowerShell, MethodPaste, FlagPasteNonASCII),
		target.AppWindowsTerminal: profile(target.AppWindowsTerminal, MethodPaste, FlagPasteNonASCII),
		target.AppUnknown:         profile(target.AppUnknown, MethodPaste),
	}
}
