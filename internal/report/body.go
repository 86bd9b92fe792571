// Package report assembles report bodies from the metrics, health and risk
// components and renders them as CSV, XLSX or JSON.
package report

import (
	"sort"
	"time"

	"pulseboard/internal/health"
	"pulseboard/internal/metrics"
	"pulseboard/internal/risk"
)

// Meta describes one report.
type Meta struct {
	Title       string    `json:"title"`
	Period      string    `json:"period"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Body is the format independent content of a report.
type Body struct {
	Meta            Meta               `json:"meta"`
	Overview        metrics.Overview   `json:"overview"`
	TasksByStatus   map[string]int     `json:"tasks_by_status"`
	TasksByPriority map[string]int     `json:"tasks_by_priority"`
	HealthScores    []health.Breakdown `json:"health_scores"`
	HealthStats     health.Statistics  `json:"health_statistics"`
	ProjectsAtRisk  []risk.Assessment  `json:"projects_at_risk"`
}

// Scope narrows a snapshot to the tasks touched inside r: created or completed
// within the window. Projects, partners and reminders are kept whole.
func Scope(s metrics.Snapshot, r Range) metrics.Snapshot {
	out := s
	out.Tasks = nil
	for _, t := range s.Tasks {
		if r.Contains(t.CreatedAt) || (t.CompletedAt != nil && r.Contains(*t.CompletedAt)) {
			out.Tasks = append(out.Tasks, t)
		}
	}
	return out
}

// Build assembles a report body. Counts use the scoped tasks with overdue
// evaluated at the end of the window; health and risk use every task so project
// scores do not swing with the window size.
func Build(s metrics.Snapshot, r Range, title, period string, now time.Time) Body {
	scoped := Scope(s, r)
	dist := metrics.ComputeDistributions(scoped)
	byProject := metrics.IndexTasks(s.Tasks)
	scores := health.ScoreAll(s.Projects, byProject)
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].TotalScore < scores[j].TotalScore })
	return Body{
		Meta: Meta{
			Title:       title,
			Period:      period,
			Start:       r.Start,
			End:         r.End,
			GeneratedAt: now,
		},
		Overview:        metrics.ComputeOverview(scoped, r.End),
		TasksByStatus:   dist.TasksByStatus,
		TasksByPriority: dist.TasksByPriority,
		HealthScores:    scores,
		HealthStats:     health.Summarize(scores),
		ProjectsAtRisk:  risk.AtRiskOnly(risk.AssessAll(s.Projects, byProject, r.End)),
	}
}
