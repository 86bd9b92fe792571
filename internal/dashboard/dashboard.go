// Package dashboard assembles the live project-progress and manager views from
// the metrics, health and risk components.
package dashboard

import (
	"fmt"
	"sort"
	"time"

	"pulseboard/internal/domain"
	"pulseboard/internal/health"
	"pulseboard/internal/metrics"
	"pulseboard/internal/risk"
)

// Manager dashboard periods.
const (
	PeriodWeekly    = "weekly"
	PeriodMonthly   = "monthly"
	PeriodQuarterly = "quarterly"
)

// Options tunes the deadline windows.
type Options struct {
	DeadlineWindowDays     int
	TaskDeadlineWindowDays int
	UpcomingLimit          int
}

// DefaultOptions matches the shipped pulseboard.yml.
func DefaultOptions() Options {
	return Options{DeadlineWindowDays: 14, TaskDeadlineWindowDays: 7, UpcomingLimit: 10}
}

// ProjectProgress is the portfolio progress view.
type ProjectProgress struct {
	ByStatus         map[string]int    `json:"by_status"`
	AverageProgress  float64           `json:"average_progress"`
	OnTrack          int               `json:"on_track"`
	AtRisk           int               `json:"at_risk"`
	Delayed          int               `json:"delayed"`
	HealthScoreStats health.Statistics `json:"health_score_stats"`
}

// ProjectSummary heads the manager dashboard.
type ProjectSummary struct {
	Total     int                 `json:"total"`
	Active    int                 `json:"active"`
	Completed int                 `json:"completed"`
	OnHold    int                 `json:"on_hold"`
	ByStatus  map[string]int      `json:"by_status"`
	Timeline  risk.TimelineCounts `json:"timeline"`
}

// TaskSummary covers task throughput for the period.
type TaskSummary struct {
	Total             int            `json:"total"`
	Completed         int            `json:"completed"`
	Overdue           int            `json:"overdue"`
	CreatedInPeriod   int            `json:"created_in_period"`
	CompletedInPeriod int            `json:"completed_in_period"`
	CompletionRate    float64        `json:"completion_rate"`
	ByPriority        map[string]int `json:"by_priority"`
}

// BudgetOverview sums budgets over projects that declare one.
type BudgetOverview struct {
	TotalBudget        float64  `json:"total_budget"`
	TotalActualCost    float64  `json:"total_actual_cost"`
	Variance           float64  `json:"variance"`
	Utilization        float64  `json:"utilization"`
	OverBudgetCount    int      `json:"over_budget_count"`
	OverBudgetProjects []string `json:"over_budget_projects"`
}

// Deadline is one upcoming project end or task due date.
type Deadline struct {
	Kind      string    `json:"kind" enum:"project,task"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ProjectID string    `json:"project_id"`
	Due       time.Time `json:"due"`
	DaysLeft  int       `json:"days_left"`
}

// ManagerDashboard is the manager-facing summary for a period.
type ManagerDashboard struct {
	Period             string                 `json:"period"`
	From               time.Time              `json:"from"`
	To                 time.Time              `json:"to"`
	ProjectSummary     ProjectSummary         `json:"project_summary"`
	TaskSummary        TaskSummary            `json:"task_summary"`
	PartnerPerformance []metrics.PartnerTasks `json:"partner_performance"`
	ProjectsAtRisk     []risk.Assessment      `json:"projects_at_risk"`
	BudgetOverview     BudgetOverview         `json:"budget_overview"`
	UpcomingDeadlines  []Deadline             `json:"upcoming_deadlines"`
}

// PeriodStart returns the start of the trailing window for period.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case PeriodWeekly:
		return now.Add(-7 * 24 * time.Hour), nil
	case PeriodMonthly, "":
		return now.AddDate(0, -1, 0), nil
	case PeriodQuarterly:
		return now.AddDate(0, -3, 0), nil
	}
	return time.Time{}, domain.InvalidRangeError{Field: "period", Reason: fmt.Sprintf("unknown period %q", period)}
}

// BuildProjectProgress computes the progress view.
func BuildProjectProgress(projects []domain.Project, tasks []domain.Task, now time.Time) ProjectProgress {
	var sum int
	for _, p := range projects {
		sum += p.Progress
	}
	pp := ProjectProgress{
		ByStatus:         metrics.GroupCount(projects, func(p domain.Project) string { return p.Status }),
		HealthScoreStats: health.Summarize(health.ScoreAll(projects, metrics.IndexTasks(tasks))),
	}
	if len(projects) > 0 {
		pp.AverageProgress = metrics.Round1(float64(sum) / float64(len(projects)))
	}
	tc := risk.CountTimelines(projects, now)
	pp.OnTrack, pp.AtRisk, pp.Delayed = tc.OnTrack, tc.AtRisk, tc.Delayed
	return pp
}

// BuildManagerDashboard computes the manager view for period.
func BuildManagerDashboard(s metrics.Snapshot, period string, now time.Time, opts Options) (ManagerDashboard, error) {
	from, err := PeriodStart(period, now)
	if err != nil {
		return ManagerDashboard{}, err
	}
	if period == "" {
		period = PeriodMonthly
	}
	byProject := metrics.IndexTasks(s.Tasks)
	return ManagerDashboard{
		Period:             period,
		From:               from,
		To:                 now,
		ProjectSummary:     summarizeProjects(s.Projects, now),
		TaskSummary:        summarizeTasks(s.Tasks, from, now),
		PartnerPerformance: metrics.TasksByPartner(s.Partners, s.Tasks),
		ProjectsAtRisk:     risk.AtRiskOnly(risk.AssessAll(s.Projects, byProject, now)),
		BudgetOverview:     summarizeBudget(s.Projects),
		UpcomingDeadlines:  upcoming(s, now, opts),
	}, nil
}

func summarizeProjects(projects []domain.Project, now time.Time) ProjectSummary {
	ps := ProjectSummary{
		Total:    len(projects),
		ByStatus: metrics.GroupCount(projects, func(p domain.Project) string { return p.Status }),
		Timeline: risk.CountTimelines(projects, now),
	}
	for _, p := range projects {
		if metrics.IsActiveProject(p) {
			ps.Active++
		}
		switch p.Status {
		case domain.ProjectCompleted:
			ps.Completed++
		case domain.ProjectOnHold:
			ps.OnHold++
		}
	}
	return ps
}

func summarizeTasks(tasks []domain.Task, from, now time.Time) TaskSummary {
	ts := TaskSummary{
		Total:      len(tasks),
		ByPriority: metrics.GroupCount(tasks, func(t domain.Task) string { return t.Priority }),
	}
	in := func(t time.Time) bool { return !t.Before(from) && !t.After(now) }
	for _, t := range tasks {
		if t.Status == domain.TaskCompleted {
			ts.Completed++
			if t.CompletedAt != nil && in(*t.CompletedAt) {
				ts.CompletedInPeriod++
			}
		}
		if t.IsOverdue(now) {
			ts.Overdue++
		}
		if in(t.CreatedAt) {
			ts.CreatedInPeriod++
		}
	}
	ts.CompletionRate = metrics.Percent(ts.Completed, ts.Total)
	return ts
}

func summarizeBudget(projects []domain.Project) BudgetOverview {
	bo := BudgetOverview{OverBudgetProjects: []string{}}
	for _, p := range projects {
		if p.Budget == nil || *p.Budget <= 0 {
			continue
		}
		bo.TotalBudget += *p.Budget
		if p.ActualCost != nil {
			bo.TotalActualCost += *p.ActualCost
			if *p.ActualCost > *p.Budget {
				bo.OverBudgetCount++
				bo.OverBudgetProjects = append(bo.OverBudgetProjects, p.ID)
			}
		}
	}
	bo.Variance = metrics.Round1(bo.TotalBudget - bo.TotalActualCost)
	if bo.TotalBudget > 0 {
		bo.Utilization = metrics.Round1(bo.TotalActualCost / bo.TotalBudget * 100)
	}
	return bo
}

func upcoming(s metrics.Snapshot, now time.Time, opts Options) []Deadline {
	projectHorizon := now.AddDate(0, 0, opts.DeadlineWindowDays)
	taskHorizon := now.AddDate(0, 0, opts.TaskDeadlineWindowDays)
	out := []Deadline{}
	for _, p := range s.Projects {
		if !p.IsOpen() || p.EndDate == nil || p.EndDate.Before(now) || p.EndDate.After(projectHorizon) {
			continue
		}
		out = append(out, Deadline{Kind: "project", ID: p.ID, Title: p.Name, ProjectID: p.ID, Due: *p.EndDate, DaysLeft: risk.DaysRemaining(*p.EndDate, now)})
	}
	for _, t := range s.Tasks {
		if t.IsClosed() || t.DueDate == nil || t.DueDate.Before(now) || t.DueDate.After(taskHorizon) {
			continue
		}
		out = append(out, Deadline{Kind: "task", ID: t.ID, Title: t.Title, ProjectID: t.ProjectID, Due: *t.DueDate, DaysLeft: risk.DaysRemaining(*t.DueDate, now)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Due.Equal(out[j].Due) {
			return out[i].Due.Before(out[j].Due)
		}
		return out[i].ID < out[j].ID
	})
	if opts.UpcomingLimit > 0 && len(out) > opts.UpcomingLimit {
		out = out[:opts.UpcomingLimit]
	}
	return out
}
