// Package schedule holds the calendar arithmetic behind recurring report configs
// and the paused/active lifecycle of a config.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pulseboard/internal/domain"
)

// ParseSendTime parses a 24h "HH:mm" wall-clock time.
func ParseSendTime(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("send time %q: want HH:mm", s)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("send time %q: hour out of range", s)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("send time %q: minute out of range", s)
	}
	return hour, minute, nil
}

// ValidSendTime reports whether s is a well formed "HH:mm".
func ValidSendTime(s string) bool {
	_, _, err := ParseSendTime(s)
	return err == nil
}

// NextWeeklyOccurrence returns the first slot strictly after now that falls on
// dayOfWeek (0 = Sunday) at sendTime, in now's location.
func NextWeeklyOccurrence(now time.Time, dayOfWeek int, sendTime string) (time.Time, error) {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return time.Time{}, domain.InvalidRangeError{Field: "day_of_week", Reason: "must be between 0 and 6"}
	}
	h, m, err := ParseSendTime(sendTime)
	if err != nil {
		return time.Time{}, domain.InvalidRangeError{Field: "send_time", Reason: err.Error()}
	}
	delta := (dayOfWeek - int(now.Weekday()) + 7) % 7
	next := time.Date(now.Year(), now.Month(), now.Day()+delta, h, m, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+delta+7, h, m, 0, 0, now.Location())
	}
	return next, nil
}

// NextMonthlyOccurrence returns the first slot strictly after now on dayOfMonth at
// sendTime. Months shorter than dayOfMonth use their last day.
func NextMonthlyOccurrence(now time.Time, dayOfMonth int, sendTime string) (time.Time, error) {
	if dayOfMonth < 1 || dayOfMonth > 31 {
		return time.Time{}, domain.InvalidRangeError{Field: "day_of_month", Reason: "must be between 1 and 31"}
	}
	h, m, err := ParseSendTime(sendTime)
	if err != nil {
		return time.Time{}, domain.InvalidRangeError{Field: "send_time", Reason: err.Error()}
	}
	for offset := 0; ; offset++ {
		first := time.Date(now.Year(), now.Month()+time.Month(offset), 1, 0, 0, 0, 0, now.Location())
		day := min(dayOfMonth, DaysIn(first.Year(), first.Month()))
		next := time.Date(first.Year(), first.Month(), day, h, m, 0, 0, now.Location())
		if next.After(now) {
			return next, nil
		}
	}
}

// DaysIn returns the number of days in month m of year y.
func DaysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ComputeNextRun dispatches on the config period. A missing day field for the
// chosen period is an InvalidRangeError.
func ComputeNextRun(cfg domain.ReportConfig, now time.Time) (time.Time, error) {
	switch cfg.Period {
	case domain.PeriodWeekly:
		if cfg.DayOfWeek == nil {
			return time.Time{}, domain.InvalidRangeError{Field: "day_of_week", Reason: "required for weekly reports"}
		}
		return NextWeeklyOccurrence(now, *cfg.DayOfWeek, cfg.SendTime)
	case domain.PeriodMonthly:
		if cfg.DayOfMonth == nil {
			return time.Time{}, domain.InvalidRangeError{Field: "day_of_month", Reason: "required for monthly reports"}
		}
		return NextMonthlyOccurrence(now, *cfg.DayOfMonth, cfg.SendTime)
	default:
		return time.Time{}, domain.InvalidRangeError{Field: "period", Reason: fmt.Sprintf("%q cannot be scheduled", cfg.Period)}
	}
}

// IsDue reports whether an active config should run at now.
func IsDue(cfg domain.ReportConfig, now time.Time) bool {
	return cfg.Status == domain.ConfigActive && cfg.NextRunAt != nil && !cfg.NextRunAt.After(now)
}
