// Package risk classifies open projects by timeline and by qualitative severity.
package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"pulseboard/internal/domain"
)

// Timeline statuses.
const (
	OnTrack = "onTrack"
	AtRisk  = "atRisk"
	Delayed = "delayed"
)

// Risk levels, most severe first.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
)

const (
	onTrackSlack = 10
	atRiskSlack  = 25
)

// Reasons attached to assessments.
const (
	ReasonSevereShortfall = "severe progress shortfall"
	ReasonBehindSchedule  = "behind schedule"
	ReasonDeadlineClose   = "deadline within 7 days"
	ReasonNeedsReview     = "needs progress review"
)

// Assessment is the qualitative risk of one project.
type Assessment struct {
	ProjectID        string     `json:"project_id"`
	ProjectName      string     `json:"project_name"`
	Progress         int        `json:"progress"`
	RiskLevel        string     `json:"risk_level" enum:"critical,high,medium"`
	DaysRemaining    int        `json:"days_remaining"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	OverdueTaskCount int        `json:"overdue_task_count"`
	Timeline         string     `json:"timeline,omitempty"`
	Reasons          []string   `json:"reasons"`
}

// TimelineCounts tallies timeline statuses over a population.
type TimelineCounts struct {
	OnTrack int `json:"on_track"`
	AtRisk  int `json:"at_risk"`
	Delayed int `json:"delayed"`
}

// Expected returns the percentage of the schedule elapsed at now, clamped to [0,100].
// A zero-length schedule is fully elapsed once it has started.
func Expected(start, end, now time.Time) float64 {
	span := end.Sub(start)
	if span <= 0 {
		if now.Before(start) {
			return 0
		}
		return 100
	}
	pct := float64(now.Sub(start)) / float64(span) * 100
	return math.Min(100, math.Max(0, pct))
}

// Classify compares progress to expected. Boundaries fall on the better side.
func Classify(progress, expected float64) string {
	switch {
	case progress >= expected-onTrackSlack:
		return OnTrack
	case progress >= expected-atRiskSlack:
		return AtRisk
	default:
		return Delayed
	}
}

// Timeline returns the timeline status of p at now. ok is false when the project is
// closed or lacks a start or end date.
func Timeline(p domain.Project, now time.Time) (status string, ok bool) {
	if !p.IsOpen() || p.StartDate == nil || p.EndDate == nil {
		return "", false
	}
	return Classify(float64(p.Progress), Expected(*p.StartDate, *p.EndDate, now)), true
}

// CountTimelines classifies every eligible project.
func CountTimelines(projects []domain.Project, now time.Time) TimelineCounts {
	var c TimelineCounts
	for _, p := range projects {
		status, ok := Timeline(p, now)
		if !ok {
			continue
		}
		switch status {
		case OnTrack:
			c.OnTrack++
		case AtRisk:
			c.AtRisk++
		case Delayed:
			c.Delayed++
		}
	}
	return c
}

// DaysRemaining is floor((end-now)/24h) and may be negative.
func DaysRemaining(end, now time.Time) int {
	return int(math.Floor(end.Sub(now).Hours() / 24))
}

// Assess evaluates the qualitative risk rules for one project. Rules driven by
// days remaining are skipped when the project has no end date.
func Assess(p domain.Project, overdue int, now time.Time) Assessment {
	a := Assessment{
		ProjectID:        p.ID,
		ProjectName:      p.Name,
		Progress:         p.Progress,
		RiskLevel:        LevelMedium,
		EndDate:          p.EndDate,
		OverdueTaskCount: overdue,
	}
	a.Timeline, _ = Timeline(p, now)
	hasDeadline := p.EndDate != nil
	if hasDeadline {
		a.DaysRemaining = DaysRemaining(*p.EndDate, now)
	}

	if hasDeadline {
		switch {
		case p.Progress < 30 && a.DaysRemaining < 14:
			a.RiskLevel = LevelCritical
			a.Reasons = append(a.Reasons, fmt.Sprintf("%s: %d%% done with %d days left", ReasonSevereShortfall, p.Progress, a.DaysRemaining))
		case p.Progress < 50 && a.DaysRemaining < 30:
			a.RiskLevel = LevelHigh
			a.Reasons = append(a.Reasons, fmt.Sprintf("%s: %d%% done with %d days left", ReasonBehindSchedule, p.Progress, a.DaysRemaining))
		}
	}

	switch {
	case overdue > 5:
		a.RiskLevel = LevelCritical
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d overdue tasks", overdue))
	case overdue > 0:
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d overdue tasks", overdue))
	}

	if hasDeadline && a.DaysRemaining < 7 {
		a.Reasons = append(a.Reasons, ReasonDeadlineClose)
	}
	if len(a.Reasons) == 0 {
		a.Reasons = append(a.Reasons, ReasonNeedsReview)
	}
	return a
}

// Flagged reports whether an assessment belongs on the manager risk list: the
// level was raised, tasks are overdue, the deadline is close, or the timeline slipped.
func Flagged(a Assessment) bool {
	if a.RiskLevel != LevelMedium || a.OverdueTaskCount > 0 {
		return true
	}
	if a.EndDate != nil && a.DaysRemaining < 7 {
		return true
	}
	return a.Timeline == AtRisk || a.Timeline == Delayed
}

// AssessAll assesses every open project. tasksByProject maps project id to its tasks.
func AssessAll(projects []domain.Project, tasksByProject map[string][]domain.Task, now time.Time) []Assessment {
	var out []Assessment
	for _, p := range projects {
		if !p.IsOpen() {
			continue
		}
		overdue := 0
		for _, t := range tasksByProject[p.ID] {
			if t.IsOverdue(now) {
				overdue++
			}
		}
		out = append(out, Assess(p, overdue, now))
	}
	SortAssessments(out)
	return out
}

// AtRiskOnly keeps the flagged assessments, preserving order.
func AtRiskOnly(in []Assessment) []Assessment {
	out := make([]Assessment, 0, len(in))
	for _, a := range in {
		if Flagged(a) {
			out = append(out, a)
		}
	}
	return out
}

// SortAssessments orders by severity, then days remaining (projects without an
// end date last), then project id.
func SortAssessments(as []Assessment) {
	sort.SliceStable(as, func(i, j int) bool {
		ri, rj := severity(as[i].RiskLevel), severity(as[j].RiskLevel)
		if ri != rj {
			return ri < rj
		}
		hi, hj := as[i].EndDate != nil, as[j].EndDate != nil
		if hi != hj {
			return hi
		}
		if as[i].DaysRemaining != as[j].DaysRemaining {
			return as[i].DaysRemaining < as[j].DaysRemaining
		}
		return as[i].ProjectID < as[j].ProjectID
	})
}

func severity(level string) int {
	switch level {
	case LevelCritical:
		return 0
	case LevelHigh:
		return 1
	default:
		return 2
	}
}
