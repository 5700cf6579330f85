// Package status provides the monotonic-clock / deadline / progress-
// callback source that every busy-wait poll in the core consults (spec.md
// component B, §5 "Suspension points"). It generalizes the teacher's fixed
// post-command sleeps (protocol.DelayEraseSector / DelayProgramSector) into
// a cadence-driven progress source, since this spec's mass erase can run
// for tens of seconds and needs periodic user-visible progress (spec.md §7,
// §8 scenario S4).
package status

import "time"

// Sink receives human-readable progress text during long operations.
// NopSink is the only implementation in this module; cmd/ prints through
// its own printInfo/printError helpers instead.
type Sink interface {
	Info(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopSink discards everything. Useful in tests and as a safe zero value.
type NopSink struct{}

func (NopSink) Info(string, ...any)   {}
func (NopSink) Errorf(string, ...any) {}

// Ticker drives a busy-wait poll: it tracks a deadline and fires Progress
// at most once per Interval while the poll is still pending.
type Ticker struct {
	Deadline time.Time
	Interval time.Duration
	Progress func(message string)

	lastTick time.Time
	now      func() time.Time
}

// NewTicker builds a Ticker with the given timeout and progress cadence,
// starting from "now". A nil progress func is treated as a no-op.
func NewTicker(timeout, interval time.Duration, progress func(string)) *Ticker {
	if progress == nil {
		progress = func(string) {}
	}
	now := time.Now
	return &Ticker{
		Deadline: now().Add(timeout),
		Interval: interval,
		Progress: progress,
		lastTick: now(),
		now:      now,
	}
}

// Expired reports whether the deadline has passed.
func (tk *Ticker) Expired() bool {
	return !tk.now().Before(tk.Deadline)
}

// Tick fires Progress if at least Interval has elapsed since the last
// tick. Call it once per loop iteration of a busy-wait poll.
func (tk *Ticker) Tick(message string) {
	now := tk.now()
	if tk.Interval <= 0 || now.Sub(tk.lastTick) < tk.Interval {
		return
	}
	tk.lastTick = now
	tk.Progress(message)
}
