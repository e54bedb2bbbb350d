// Package timewindow computes the maintenance window shared by every host in a run.
package timewindow

import "time"

// WireFormat is the timestamp layout used by silences and ticket comments.
const WireFormat = "2006-01-02T15:04:05Z"

// Lead is the naive distance between the start and the end of a window.
const Lead = 28 * 24 * time.Hour

// Window is an immutable start/end pair. It is safe to share between goroutines.
type Window struct {
	start time.Time
	end   time.Time
}

// New returns a window starting now.
func New() Window {
	return At(time.Now())
}

// At returns a window starting at the given instant, truncated to whole seconds in UTC.
func At(now time.Time) Window {
	start := now.UTC().Truncate(time.Second)
	return Window{start: start, end: endFor(start)}
}

// endFor moves start+Lead forward so the window never closes on a Friday, a weekend or a Monday.
func endFor(start time.Time) time.Time {
	end := start.Add(Lead)
	switch end.Weekday() {
	case time.Monday:
		end = end.AddDate(0, 0, 1)
	case time.Friday:
		end = end.AddDate(0, 0, 4)
	case time.Saturday:
		end = end.AddDate(0, 0, 3)
	case time.Sunday:
		end = end.AddDate(0, 0, 2)
	}
	return end
}

// Start returns the start instant.
func (w Window) Start() time.Time { return w.start }

// End returns the end instant.
func (w Window) End() time.Time { return w.end }

// StartString returns the start in WireFormat.
func (w Window) StartString() string { return w.start.Format(WireFormat) }

// EndString returns the end in WireFormat.
func (w Window) EndString() string { return w.end.Format(WireFormat) }

// StartUnix returns the start as epoch seconds.
func (w Window) StartUnix() int64 { return w.start.Unix() }

// EndUnix returns the end as epoch seconds.
func (w Window) EndUnix() int64 { return w.end.Unix() }

// String renders the window for log lines.
func (w Window) String() string {
	return w.StartString() + " - " + w.EndString()
}
