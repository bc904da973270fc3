// Package monitor keeps a bounded rolling history of delivery attempts and
// derives live success-rate, latency and health figures from it. It holds
// no ambient state: each Monitor is constructed with its own capacity so
// tests can run isolated instances.
package monitor

import (
	"sync"
	"time"

	"github.com/voxtype/voxtype/internal/compat"
	"github.com/voxtype/voxtype/internal/target"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 1000

// Reason categorizes why a terminal attempt failed.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoTarget          Reason = "no_foreground_target"
	ReasonUnsupportedChar   Reason = "unsupported_character"
	ReasonClipboardBusy     Reason = "clipboard_busy"
	ReasonTimeout           Reason = "injection_timeout"
	ReasonEngineBusy        Reason = "engine_busy"
	ReasonCancelled         Reason = "cancelled"
	ReasonSynthesisRejected Reason = "synthesis_rejected"
)

// Attempt is one terminal delivery outcome. Records are immutable once
// handed to Record.
type Attempt struct {
	ID       string
	Time     time.Time
	Target   target.WindowInfo
	App      target.App
	Method   compat.Method
	Duration time.Duration
	Success  bool
	Reason   Reason
}

// Monitor is a fixed-capacity ring of attempts. Record is O(1) and never
// blocks delivery for long: the only contention is the ring mutex, which
// metric readers hold just long enough to copy the window out.
type Monitor struct {
	mu   sync.RWMutex
	buf  []Attempt
	next int
	size int
}

// New creates a Monitor. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Monitor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Monitor{buf: make([]Attempt, capacity)}
}

// Cap returns the configured ring capacity.
func (m *Monitor) Cap() int {
	return len(m.buf)
}

// Len returns the number of attempts currently held, never above Cap.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Record appends an attempt, evicting the oldest when the ring is full.
func (m *Monitor) Record(a Attempt) {
	m.mu.Lock()
	m.buf[m.next] = a
	m.next = (m.next + 1) % len(m.buf)
	if m.size < len(m.buf) {
		m.size++
	}
	m.mu.Unlock()
}

// window returns the attempts recorded at or after cutoff, oldest first.
func (m *Monitor) window(cutoff time.Time) []Attempt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Attempt, 0, m.size)
	start := m.next - m.size
	if start < 0 {
		start += len(m.buf)
	}
	for i := 0; i < m.size; i++ {
		a := m.buf[(start+i)%len(m.buf)]
		if !a.Time.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

// Metrics summarizes the trailing window.
type Metrics struct {
	SuccessRate    float64
	AvgLatency     time.Duration
	Total          int
	RecentFailures []Attempt
}

// Metrics computes success rate and average latency over attempts within
// windowDuration of now. An empty window yields zeros, never NaN. Latency
// averages successes only; failure durations measure retries, not typing.
func (m *Monitor) Metrics(windowDuration time.Duration) Metrics {
	attempts := m.window(time.Now().Add(-windowDuration))

	var met Metrics
	met.Total = len(attempts)
	if met.Total == 0 {
		return met
	}

	successes := 0
	var latencySum time.Duration
	for _, a := range attempts {
		if a.Success {
			successes++
			latencySum += a.Duration
		} else {
			met.RecentFailures = append(met.RecentFailures, a)
		}
	}

	met.SuccessRate = float64(successes) / float64(met.Total)
	if successes > 0 {
		met.AvgLatency = latencySum / time.Duration(successes)
	}
	return met
}
