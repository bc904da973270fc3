// Package hotkey provides a global pause hotkey using gohook. In "toggle"
// mode each press flips injection between paused and active; in "hold"
// mode injection is paused only while the combo is held down.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType indicates whether injection should pause or resume.
type EventType int

const (
	// EventPause signals that deliveries should be suppressed.
	EventPause EventType = iota
	// EventResume signals that deliveries should flow again.
	EventResume
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener manages the global pause hotkey and emits pause/resume events.
type Listener struct {
	keys []string
	mode string // "hold" or "toggle"
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewListener creates a Listener for the given key combo and mode.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "space"]).
// mode must be "hold" or "toggle".
func NewListener(keys []string, mode string) *Listener {
	return &Listener{
		keys: keys,
		mode: mode,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events.
// The channel is closed when Stop is called.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	switch l.mode {
	case "hold":
		l.startHold()
	default: // "toggle"
		l.startToggle()
	}
}

// startHold pauses while the combo is held:
// KeyDown -> EventPause, KeyUp -> EventResume.
func (l *Listener) startHold() {
	hook.Register(hook.KeyDown, l.keys, func(e hook.Event) {
		select {
		case l.ch <- Event{Type: EventPause}:
		default: // don't block if channel is full
		}
	})

	hook.Register(hook.KeyUp, l.keys, func(e hook.Event) {
		select {
		case l.ch <- Event{Type: EventResume}:
		default:
		}
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// startToggle flips pause state on each press:
// first press -> EventPause, second press -> EventResume, etc.
func (l *Listener) startToggle() {
	var mu sync.Mutex
	paused := false

	hook.Register(hook.KeyDown, l.keys, func(e hook.Event) {
		mu.Lock()
		defer mu.Unlock()
		if paused {
			select {
			case l.ch <- Event{Type: EventResume}:
			default:
			}
			paused = false
		} else {
			select {
			case l.ch <- Event{Type: EventPause}:
			default:
			}
			paused = true
		}
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
