package summary

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned for empty or reversed date windows.
var ErrInvalidWindow = errors.New("invalid summary window")

// Window is an inclusive range of UTC calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow truncates start and end to UTC days.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: day(start), End: day(end)}
	if w.End.Before(w.Start) {
		return Window{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidWindow, w.End.Format(time.DateOnly), w.Start.Format(time.DateOnly))
	}
	return w, nil
}

// LastDays is the window of n days ending on the day of now.
func LastDays(now time.Time, n int) (Window, error) {
	if n <= 0 {
		return Window{}, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidWindow, n)
	}
	end := day(now)
	return Window{Start: end.AddDate(0, 0, -(n - 1)), End: end}, nil
}

// Days is the inclusive day count.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// From is the first instant in the window.
func (w Window) From() time.Time { return w.Start }

// To is the first instant after the window.
func (w Window) To() time.Time { return w.End.AddDate(0, 0, 1) }

func (w Window) String() string {
	return w.Start.Format(time.DateOnly) + " to " + w.End.Format(time.DateOnly)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
