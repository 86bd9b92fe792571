package report

import (
	"fmt"
	"time"

	"pulseboard/internal/domain"
)

// Week is the length of a weekly window.
const Week = 7 * 24 * time.Hour

// Range is a closed reporting window.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ResolveRange turns a period into a concrete window ending at now. Weekly
// windows are 168 elapsed hours in every zone. Custom periods take the
// caller's bounds, which must both be set with end >= start.
func ResolveRange(period string, now time.Time, start, end *time.Time) (Range, error) {
	switch period {
	case domain.PeriodWeekly:
		return Range{Start: now.Add(-Week), End: now}, nil
	case domain.PeriodMonthly:
		return Range{Start: now.AddDate(0, -1, 0), End: now}, nil
	case domain.PeriodCustom:
		if start == nil || end == nil {
			return Range{}, domain.InvalidRangeError{Field: "date_range", Reason: "custom reports need both start and end dates"}
		}
		if end.Before(*start) {
			return Range{}, domain.InvalidRangeError{Field: "date_range", Reason: "end date is before start date"}
		}
		return Range{Start: *start, End: *end}, nil
	default:
		return Range{}, domain.InvalidRangeError{Field: "period", Reason: fmt.Sprintf("unknown period %q", period)}
	}
}

// Contains reports whether t falls inside the window, bounds included.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}
