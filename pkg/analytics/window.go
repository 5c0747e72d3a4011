package analytics

import (
	"fmt"
	"time"
)

// Named ranges use fixed durations ending at "now". Months, quarters and years
// are calendar-naive (30, 90 and 365 days).
var rangeDurations = map[TimeRange]time.Duration{
	RangeHour:    time.Hour,
	RangeDay:     24 * time.Hour,
	RangeWeek:    7 * 24 * time.Hour,
	RangeMonth:   30 * 24 * time.Hour,
	RangeQuarter: 90 * 24 * time.Hour,
	RangeYear:    365 * 24 * time.Hour,
}

var rangeGranularity = map[TimeRange]string{
	RangeHour:    "minute",
	RangeDay:     "hour",
	RangeWeek:    "day",
	RangeMonth:   "day",
	RangeQuarter: "week",
	RangeYear:    "month",
}

// RangeDuration returns the fixed duration of a named range.
func RangeDuration(tr TimeRange) (time.Duration, bool) {
	d, ok := rangeDurations[tr]
	return d, ok
}

// ResolveWindow turns a time range into a concrete window. Custom ranges
// require both bounds with start before end.
func ResolveWindow(tr TimeRange, start, end *time.Time, now time.Time) (Window, error) {
	if tr == RangeCustom {
		return explicitWindow(start, end)
	}

	d, ok := rangeDurations[tr]
	if !ok {
		return Window{}, fmt.Errorf("%w: unknown time range %q", ErrInvalidRequest, tr)
	}
	until := now.UTC()
	return Window{Start: until.Add(-d), End: until}, nil
}

// PreviousWindow returns the window of equal length immediately before w.
func PreviousWindow(w Window) Window {
	d := w.Duration()
	return Window{Start: w.Start.Add(-d), End: w.Start}
}

// ComparisonWindow resolves a caller-specified comparison period against the
// current window.
func ComparisonWindow(current Window, spec ComparisonSpec) (Window, error) {
	if spec.TimeRange == RangeCustom {
		w, err := explicitWindow(spec.StartDate, spec.EndDate)
		if err != nil {
			return Window{}, fmt.Errorf("comparison: %w", err)
		}
		return w, nil
	}

	d, ok := rangeDurations[spec.TimeRange]
	if !ok {
		return Window{}, fmt.Errorf("%w: unknown comparison range %q", ErrInvalidRequest, spec.TimeRange)
	}
	return Window{Start: current.Start.Add(-d), End: current.End.Add(-d)}, nil
}

// Granularity labels the natural bucket size for a window.
func Granularity(tr TimeRange, w Window) string {
	if label, ok := rangeGranularity[tr]; ok {
		return label
	}

	span := w.Duration()
	switch {
	case span <= 2*time.Hour:
		return "minute"
	case span <= 48*time.Hour:
		return "hour"
	case span <= 62*24*time.Hour:
		return "day"
	case span <= 180*24*time.Hour:
		return "week"
	default:
		return "month"
	}
}

// HistoryWindows returns n consecutive windows of length bucket ending at end,
// oldest first.
func HistoryWindows(end time.Time, bucket time.Duration, n int) []Window {
	windows := make([]Window, n)
	cursor := end.UTC()
	for i := n - 1; i >= 0; i-- {
		windows[i] = Window{Start: cursor.Add(-bucket), End: cursor}
		cursor = cursor.Add(-bucket)
	}
	return windows
}

func explicitWindow(start, end *time.Time) (Window, error) {
	if start == nil || end == nil {
		return Window{}, fmt.Errorf("%w: custom range requires startDate and endDate", ErrInvalidRequest)
	}
	if !start.Before(*end) {
		return Window{}, fmt.Errorf("%w: startDate must be before endDate", ErrInvalidRequest)
	}
	return Window{Start: start.UTC(), End: end.UTC()}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
