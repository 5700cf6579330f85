package driver

import (
	"time"

	"github.com/blackprobe/probecore/pkg/status"
	"github.com/blackprobe/probecore/pkg/target"
)

// PollBusy repeatedly calls isBusy until it reports false, ticking
// progress through tk and failing with ErrTimeout if tk's deadline passes
// first. It is the shared shape behind every family driver's "strobe
// START, poll the busy flag until clear" step (spec.md §4.H).
func PollBusy(tk *status.Ticker, message string, isBusy func() (bool, error)) error {
	for {
		busy, err := isBusy()
		if err != nil {
			return err
		}
		if !busy {
			return nil
		}
		if tk.Expired() {
			return target.NewFault(target.ErrTimeout, nil)
		}
		tk.Tick(message)
		time.Sleep(time.Millisecond)
	}
}

// NewTimeoutTicker is a small convenience wrapper so family drivers don't
// each re-derive the same status.NewTicker call.
func NewTimeoutTicker(timeout time.Duration, progress target.ProgressFunc) *status.Ticker {
	return status.NewTicker(timeout, 500*time.Millisecond, func(msg string) {
		if progress != nil {
			progress(msg)
		}
	})
}
