package report

import (
	"sort"
	"strings"
	"time"

	"pulseboard/internal/health"
)

// Section is one titled table of a rendered report. Cells are string, int or float64.
type Section struct {
	Title  string
	Header []string
	Rows   [][]any
}

// Sections flattens a body into the ordered tables shared by the CSV and XLSX renderers.
func Sections(b Body) []Section {
	o := b.Overview
	out := []Section{
		{
			Title:  "Report",
			Header: []string{"Field", "Value"},
			Rows: [][]any{
				{"Title", b.Meta.Title},
				{"Period", b.Meta.Period},
				{"Start", b.Meta.Start.Format(time.RFC3339)},
				{"End", b.Meta.End.Format(time.RFC3339)},
				{"Generated At", b.Meta.GeneratedAt.Format(time.RFC3339)},
			},
		},
		{
			Title:  "Overview",
			Header: []string{"Metric", "Value"},
			Rows: [][]any{
				{"Total Projects", o.TotalProjects},
				{"Active Projects", o.ActiveProjects},
				{"Completed Projects", o.CompletedProjects},
				{"Total Tasks", o.TotalTasks},
				{"Completed Tasks", o.CompletedTasks},
				{"Pending Tasks", o.PendingTasks},
				{"Overdue Tasks", o.OverdueTasks},
				{"Completion Rate", o.CompletionRate},
				{"Total Partners", o.TotalPartners},
				{"Active Partners", o.ActivePartners},
			},
		},
		countSection("Tasks by Status", "Status", b.TasksByStatus),
		countSection("Tasks by Priority", "Priority", b.TasksByPriority),
	}

	scores := Section{
		Title:  "Project Health",
		Header: []string{"Project ID", "Project", "On-Time Rate", "Completion Rate", "Budget Health", "Total Score", "Bucket"},
	}
	for _, s := range b.HealthScores {
		scores.Rows = append(scores.Rows, []any{s.ProjectID, s.ProjectName, s.OnTimeRate, s.CompletionRate, s.BudgetHealth, s.TotalScore, health.BucketOf(s.TotalScore)})
	}
	st := b.HealthStats
	out = append(out, scores, Section{
		Title:  "Health Distribution",
		Header: []string{"Bucket", "Projects"},
		Rows: [][]any{
			{health.BucketExcellent, st.Distribution.Excellent},
			{health.BucketGood, st.Distribution.Good},
			{health.BucketFair, st.Distribution.Fair},
			{health.BucketPoor, st.Distribution.Poor},
			{"average score", st.AverageScore},
			{"projects at risk", st.ProjectsAtRisk},
		},
	})

	atRisk := Section{
		Title:  "Projects at Risk",
		Header: []string{"Project ID", "Project", "Risk Level", "Days Remaining", "Overdue Tasks", "Reasons"},
	}
	for _, a := range b.ProjectsAtRisk {
		atRisk.Rows = append(atRisk.Rows, []any{a.ProjectID, a.ProjectName, a.RiskLevel, a.DaysRemaining, a.OverdueTaskCount, strings.Join(a.Reasons, "; ")})
	}
	return append(out, atRisk)
}

func countSection(title, label string, counts map[string]int) Section {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := Section{Title: title, Header: []string{label, "Count"}}
	for _, k := range keys {
		s.Rows = append(s.Rows, []any{k, counts[k]})
	}
	return s
}
