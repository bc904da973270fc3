package inject

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxtype/voxtype/internal/compat"
	"github.com/voxtype/voxtype/internal/monitor"
	"github.com/voxtype/voxtype/internal/target"
)

// fakeBackend records every operation in order and fails on demand.
type fakeBackend struct {
	mu          sync.Mutex
	ops         []string
	clip        string
	keyFailures int   // fail this many KeyChar calls, then succeed
	keyErr      error // if set, KeyChar always fails
	writeErr    error
	chordErr    error
	keyCalls    int
}

func (b *fakeBackend) KeyChar(r rune) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keyCalls++
	if b.keyErr != nil {
		return b.keyErr
	}
	if b.keyFailures > 0 {
		b.keyFailures--
		return errors.New("synthetic key failure")
	}
	b.ops = append(b.ops, "key:"+string(r))
	return nil
}

func (b *fakeBackend) PasteChord() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chordErr != nil {
		return b.chordErr
	}
	b.ops = append(b.ops, "chord")
	return nil
}

func (b *fakeBackend) ClipboardRead() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, "read")
	return b.clip, nil
}

func (b *fakeBackend) ClipboardWrite(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	b.ops = append(b.ops, "write:"+text)
	b.clip = text
	return nil
}

func (b *fakeBackend) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ops...)
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keyCalls
}

type fakeProber struct {
	info target.WindowInfo
	err  error
}

func (f fakeProber) ActiveWindow() (target.WindowInfo, error) {
	return f.info, f.err
}

// attemptLog captures recorded attempts through the OnAttempt hook.
type attemptLog struct {
	mu       sync.Mutex
	attempts []monitor.Attempt
}

func (l *attemptLog) add(a monitor.Attempt) {
	l.mu.Lock()
	l.attempts = append(l.attempts, a)
	l.mu.Unlock()
}

func (l *attemptLog) all() []monitor.Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]monitor.Attempt(nil), l.attempts...)
}

func chromeWindow() target.WindowInfo {
	return target.WindowInfo{ProcessName: "chrome.exe", PID: 1234, WindowID: 7}
}

func unknownWindow() target.WindowInfo {
	return target.WindowInfo{ProcessName: "mysteryapp.exe", PID: 77, WindowID: 3}
}

func newTestEngine(b Backend, prober target.Prober) (*Engine, *attemptLog) {
	log := &attemptLog{}
	eng := NewEngine(
		target.NewIdentifier(prober),
		compat.NewRegistry(),
		b,
		monitor.New(64),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	eng.OnAttempt = log.add
	return eng, log
}

func testOptions() Options {
	return Options{Retries: 0, CharDelay: 0, Timeout: 2 * time.Second}
}

func TestDeliverForcedTypeASCIINeverPastes(t *testing.T) {
	b := &fakeBackend{}
	eng, _ := newTestEngine(b, fakeProber{info: chromeWindow()})

	opts := testOptions()
	opts.Method = compat.MethodType
	out, err := eng.Deliver(context.Background(), "hello", opts)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if out.Method != compat.MethodType {
		t.Errorf("Method = %v, want type", out.Method)
	}
	for _, op := range b.snapshot() {
		if op == "chord" || strings.HasPrefix(op, "write:") {
			t.Errorf("clipboard operation %q during forced type delivery", op)
		}
	}
}

func TestDeliverAutoNonASCIIUnknownTargetPastes(t *testing.T) {
	b := &fakeBackend{clip: "previous contents"}
	eng, log := newTestEngine(b, fakeProber{info: unknownWindow()})

	out, err := eng.Deliver(context.Background(), "héllo", testOptions())
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if out.Method != compat.MethodPaste {
		t.Errorf("Method = %v, want paste", out.Method)
	}

	ops := b.snapshot()
	want := []string{"read", "write:héllo", "chord", "write:previous contents"}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("ops[%d] = %q, want %q", i, ops[i], want[i])
		}
	}

	attempts := log.all()
	if len(attempts) != 1 || !attempts[0].Success {
		t.Errorf("attempts = %+v, want one success", attempts)
	}
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	b := &fakeBackend{keyFailures: 2}
	eng, log := newTestEngine(b, fakeProber{info: chromeWindow()})

	opts := testOptions()
	opts.Method = compat.MethodType // forced, so no clipboard fallback
	opts.Retries = 2
	out, err := eng.Deliver(context.Background(), "a", opts)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if out.Method != compat.MethodType {
		t.Errorf("Method = %v, want type", out.Method)
	}
	if got := b.calls(); got != 3 {
		t.Errorf("backend invoked %d times, want 3", got)
	}

	attempts := log.all()
	if len(attempts) != 1 {
		t.Fatalf("recorded %d attempts, want exactly 1", len(attempts))
	}
	if !attempts[0].Success {
		t.Errorf("recorded attempt success = false, want true")
	}
}

func TestDeliverRetryExhausted(t *testing.T) {
	b := &fakeBackend{keyErr: errors.New("input queue refused")}
	eng, log := newTestEngine(b, fakeProber{info: chromeWindow()})

	opts := testOptions()
	opts.Method = compat.MethodType
	opts.Retries = 1
	_, err := eng.Deliver(context.Background(), "a", opts)

	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Deliver() error = %v, want RetryExhaustedError", err)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", exhausted.Attempts)
	}

	attempts := log.all()
	if len(attempts) != 1 {
		t.Fatalf("recorded %d attempts, want 1", len(attempts))
	}
	if attempts[0].Reason != monitor.ReasonSynthesisRejected {
		t.Errorf("Reason = %v, want synthesis_rejected", attempts[0].Reason)
	}
}

func TestDeliverTimeout(t *testing.T) {
	b := &fakeBackend{}
	eng, log := newTestEngine(b, fakeProber{info: chromeWindow()})

	opts := testOptions()
	opts.Method = compat.MethodType
	opts.CharDelay = 20 * time.Millisecond
	opts.Timeout = 35 * time.Millisecond
	opts.Retries = 3 // must not matter: a blown deadline is terminal

	_, err := eng.Deliver(context.Background(), "abcdefghij", opts)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Deliver() error = %v, want ErrTimeout", err)
	}

	attempts := log.all()
	if len(attempts) != 1 {
		t.Fatalf("recorded %d attempts, want exactly 1", len(attempts))
	}
	if attempts[0].Reason != monitor.ReasonTimeout {
		t.Errorf("Reason = %v, want injection_timeout", attempts[0].Reason)
	}
	if attempts[0].Success {
		t.Error("timed-out attempt recorded as success")
	}
}

func TestDeliverNoForegroundTarget(t *testing.T) {
	b := &fakeBackend{}
	eng, log := newTestEngine(b, fakeProber{err: errors.New("desktop locked")})

	_, err := eng.Deliver(context.Background(), "hello", testOptions())
	if !errors.Is(err, ErrNoForegroundTarget) {
		t.Fatalf("Deliver() error = %v, want ErrNoForegroundTarget", err)
	}
	if len(b.snapshot()) != 0 {
		t.Errorf("backend touched despite missing target: %v", b.snapshot())
	}

	attempts := log.all()
	if len(attempts) != 1 || attempts[0].Reason != monitor.ReasonNoTarget {
		t.Errorf("attempts = %+v, want one no_foreground_target failure", attempts)
	}
}

func TestDeliverCancelled(t *testing.T) {
	b := &fakeBackend{}
	eng, log := newTestEngine(b, fakeProber{info: chromeWindow()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	opts := testOptions()
	opts.Method = compat.MethodType
	opts.CharDelay = 20 * time.Millisecond
	_, err := eng.Deliver(ctx, "abcdefghijklmnop", opts)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Deliver() error = %v, want ErrCancelled", err)
	}

	for _, a := range log.all() {
		if a.Success {
			t.Errorf("cancelled delivery recorded a success attempt: %+v", a)
		}
		if a.Reason != monitor.ReasonCancelled {
			t.Errorf("Reason = %v, want cancelled", a.Reason)
		}
	}
}

func TestDeliverUnsupportedCharacter(t *testing.T) {
	b := &fakeBackend{}
	eng, log := newTestEngine(b, fakeProber{info: chromeWindow()})

	opts := testOptions()
	opts.Method = compat.MethodType // forced: no clipboard substitute allowed
	_, err := eng.Deliver(context.Background(), "bell\x07", opts)
	if !errors.Is(err, ErrUnsupportedCharacter) {
		t.Fatalf("Deliver() error = %v, want ErrUnsupportedCharacter", err)
	}
	if len(b.snapshot()) != 0 {
		t.Errorf("backend touched: %v", b.snapshot())
	}

	attempts := log.all()
	if len(attempts) != 1 || attempts[0].Reason != monitor.ReasonUnsupportedChar {
		t.Errorf("attempts = %+v, want one unsupported_character failure", attempts)
	}
}

func TestDeliverFallsBackToPaste(t *testing.T) {
	b := &fakeBackend{keyErr: errors.New("hook rejected")}
	eng, log := newTestEngine(b, fakeProber{info: target.WindowInfo{ProcessName: "notepad.exe", PID: 5}})

	var events []EventKind
	eng.Notify = func(ev Event) { events = append(events, ev.Kind) }

	opts := testOptions() // auto method: notepad prefers type, fallback allowed
	out, err := eng.Deliver(context.Background(), "hello", opts)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if out.Method != compat.MethodPaste {
		t.Errorf("Method = %v, want paste after fallback", out.Method)
	}

	sawFallback := false
	for _, k := range events {
		if k == EventFallback {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Errorf("events = %v, want a fallback notification", events)
	}

	attempts := log.all()
	if len(attempts) != 1 || !attempts[0].Success || attempts[0].Method != compat.MethodPaste {
		t.Errorf("attempts = %+v, want one paste success", attempts)
	}
}

func TestDeliverClipboardBusy(t *testing.T) {
	b := &fakeBackend{writeErr: errors.New("clipboard held open")}
	eng, log := newTestEngine(b, fakeProber{info: unknownWindow()})

	opts := testOptions()
	opts.Method = compat.MethodPaste
	opts.Retries = 1
	_, err := eng.Deliver(context.Background(), "hello", opts)

	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Deliver() error = %v, want RetryExhaustedError", err)
	}
	if !errors.Is(err, ErrClipboardBusy) {
		t.Errorf("error chain missing ErrClipboardBusy: %v", err)
	}

	attempts := log.all()
	if len(attempts) != 1 || attempts[0].Reason != monitor.ReasonClipboardBusy {
		t.Errorf("attempts = %+v, want one clipboard_busy failure", attempts)
	}
}

func TestDeliverEmptyTextNoOp(t *testing.T) {
	b := &fakeBackend{}
	eng, log := newTestEngine(b, fakeProber{info: chromeWindow()})

	out, err := eng.Deliver(context.Background(), "", testOptions())
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if out != (Outcome{}) {
		t.Errorf("Outcome = %+v, want zero", out)
	}
	if len(b.snapshot()) != 0 || len(log.all()) != 0 {
		t.Error("empty text touched backend or recorded attempts")
	}
}

// waitForFirstKey polls until the backend has emitted at least one key,
// proving a delivery is in flight.
func waitForFirstKey(t *testing.T, b *fakeBackend) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, op := range b.snapshot() {
			if strings.HasPrefix(op, "key:") {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("delivery never started")
}

func TestDeliverSerialized(t *testing.T) {
	b := &fakeBackend{}
	eng, _ := newTestEngine(b, fakeProber{info: chromeWindow()})

	opts := testOptions()
	opts.Method = compat.MethodType
	opts.CharDelay = 3 * time.Millisecond

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := eng.Deliver(context.Background(), "aaaaaaaa", opts); err != nil {
			t.Errorf("first Deliver() error = %v", err)
		}
	}()
	waitForFirstKey(t, b)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := eng.Deliver(context.Background(), "bbbbbbbb", opts); err != nil {
			t.Errorf("second Deliver() error = %v", err)
		}
	}()
	wg.Wait()

	// Key events must be two contiguous runs, never interleaved.
	var keys []string
	for _, op := range b.snapshot() {
		if strings.HasPrefix(op, "key:") {
			keys = append(keys, strings.TrimPrefix(op, "key:"))
		}
	}
	joined := strings.Join(keys, "")
	if joined != "aaaaaaaabbbbbbbb" {
		t.Errorf("key order = %q, want a-run then b-run", joined)
	}
}

func TestDeliverQueueSupersedes(t *testing.T) {
	b := &fakeBackend{}
	eng, _ := newTestEngine(b, fakeProber{info: chromeWindow()})

	opts := testOptions()
	opts.Method = compat.MethodType
	opts.CharDelay = 10 * time.Millisecond

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = eng.Deliver(context.Background(), "aaaaaaaaaa", opts)
	}()
	waitForFirstKey(t, b)

	secondErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := eng.Deliver(context.Background(), "bbbb", opts)
		secondErr <- err
	}()
	time.Sleep(10 * time.Millisecond) // let the second call queue up

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := eng.Deliver(context.Background(), "cccc", opts); err != nil {
			t.Errorf("newest Deliver() error = %v", err)
		}
	}()
	wg.Wait()

	if err := <-secondErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("queued delivery error = %v, want ErrSuperseded", err)
	}
	for _, op := range b.snapshot() {
		if op == "key:b" {
			t.Error("superseded delivery still emitted keys")
		}
	}
}

func TestDeliverRejectPolicy(t *testing.T) {
	b := &fakeBackend{}
	eng, log := newTestEngine(b, fakeProber{info: chromeWindow()})
	eng.Policy = PolicyReject

	opts := testOptions()
	opts.Method = compat.MethodType
	opts.CharDelay = 10 * time.Millisecond

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = eng.Deliver(context.Background(), "aaaaaaaa", opts)
	}()
	waitForFirstKey(t, b)

	_, err := eng.Deliver(context.Background(), "b", opts)
	if !errors.Is(err, ErrEngineBusy) {
		t.Errorf("Deliver() error = %v, want ErrEngineBusy", err)
	}
	wg.Wait()

	sawBusy := false
	for _, a := range log.all() {
		if a.Reason == monitor.ReasonEngineBusy {
			sawBusy = true
		}
	}
	if !sawBusy {
		t.Error("busy rejection was not recorded")
	}
}

func TestResolveMethod(t *testing.T) {
	reg := compat.NewRegistry()
	cases := []struct {
		name   string
		forced compat.Method
		app    target.App
		text   string
		want   compat.Method
	}{
		{"auto ascii typed target", compat.MethodAuto, target.AppNotepad, "hello", compat.MethodType},
		{"auto unknown target pastes", compat.MethodAuto, target.AppUnknown, "hello", compat.MethodPaste},
		{"auto non-ascii terminal pastes", compat.MethodAuto, target.AppPowerShell, "héllo", compat.MethodPaste},
		{"forced type wins", compat.MethodType, target.AppPowerShell, "hello", compat.MethodType},
		{"forced paste wins", compat.MethodPaste, target.AppNotepad, "hello", compat.MethodPaste},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveMethod(tc.forced, reg.Lookup(tc.app), tc.text)
			if err != nil {
				t.Fatalf("resolveMethod() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("resolveMethod() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDebugModeDoesNotAlterDelivery(t *testing.T) {
	b := &fakeBackend{}
	eng, _ := newTestEngine(b, fakeProber{info: chromeWindow()})

	opts := testOptions()
	opts.Method = compat.MethodType
	if _, err := eng.Deliver(context.Background(), "ab", opts); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	before := b.snapshot()

	b2 := &fakeBackend{}
	eng2, _ := newTestEngine(b2, fakeProber{info: chromeWindow()})
	eng2.SetDebugMode(true)
	if !eng2.DebugMode() {
		t.Error("DebugMode() = false after SetDebugMode(true)")
	}
	if _, err := eng2.Deliver(context.Background(), "ab", opts); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	after := b2.snapshot()
	if strings.Join(before, ",") != strings.Join(after, ",") {
		t.Errorf("debug mode changed backend operations: %v vs %v", before, after)
	}
}
