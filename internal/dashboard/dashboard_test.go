package dashboard_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulseboard/internal/dashboard"
	"pulseboard/internal/domain"
	"pulseboard/internal/metrics"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

func fixture() metrics.Snapshot {
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return metrics.Snapshot{
		Projects: []domain.Project{
			{ID: "p1", Name: "On track", Status: domain.ProjectInProgress, Progress: 40, StartDate: &jan1, EndDate: ptr(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)), Budget: ptr(1000.0), ActualCost: ptr(1500.0)},
			{ID: "p2", Name: "Late", Status: domain.ProjectInProgress, Progress: 10, StartDate: &jan1, EndDate: ptr(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)), Budget: ptr(2000.0), ActualCost: ptr(500.0)},
			{ID: "p3", Name: "Shipped", Status: domain.ProjectCompleted, Progress: 100},
			{ID: "p4", Name: "Paused", Status: domain.ProjectOnHold, Progress: 50},
		},
		Tasks: []domain.Task{
			{ID: "t1", ProjectID: "p1", Title: "Spec", Status: domain.TaskTodo, Priority: "high", CreatedAt: now.AddDate(0, 0, -3), DueDate: ptr(now.AddDate(0, 0, 2))},
			{ID: "t2", ProjectID: "p2", Title: "Build", Status: domain.TaskInProgress, Priority: "low", CreatedAt: now.AddDate(0, -2, 0), DueDate: ptr(now.AddDate(0, 0, -1))},
			{ID: "t3", ProjectID: "p3", Title: "Ship", Status: domain.TaskCompleted, CreatedAt: now.AddDate(0, -2, 0), CompletedAt: ptr(now.AddDate(0, 0, -2))},
		},
		Partners: []domain.Partner{{ID: "acme", Name: "Acme", Status: domain.PartnerActive}},
	}
}

func TestBuildProjectProgress(t *testing.T) {
	s := fixture()
	pp := dashboard.BuildProjectProgress(s.Projects, s.Tasks, now)
	assert.Equal(t, map[string]int{"in_progress": 2, "completed": 1, "on_hold": 1}, pp.ByStatus)
	assert.Equal(t, 50.0, pp.AverageProgress)
	assert.Equal(t, 1, pp.OnTrack)
	assert.Equal(t, 0, pp.AtRisk)
	assert.Equal(t, 1, pp.Delayed)
	assert.Equal(t, 4, pp.HealthScoreStats.ProjectCount)
}

func TestBuildProjectProgressEmpty(t *testing.T) {
	pp := dashboard.BuildProjectProgress(nil, nil, now)
	assert.Equal(t, 0.0, pp.AverageProgress)
	assert.Equal(t, 0, pp.HealthScoreStats.ProjectCount)
}

func TestBuildManagerDashboard(t *testing.T) {
	md, err := dashboard.BuildManagerDashboard(fixture(), dashboard.PeriodWeekly, now, dashboard.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, now.AddDate(0, 0, -7), md.From)
	assert.Equal(t, 4, md.ProjectSummary.Total)
	assert.Equal(t, 3, md.ProjectSummary.Active)
	assert.Equal(t, 1, md.ProjectSummary.Completed)
	assert.Equal(t, 1, md.ProjectSummary.OnHold)

	assert.Equal(t, 3, md.TaskSummary.Total)
	assert.Equal(t, 1, md.TaskSummary.Overdue)
	assert.Equal(t, 1, md.TaskSummary.CreatedInPeriod)
	assert.Equal(t, 1, md.TaskSummary.CompletedInPeriod)
	assert.Equal(t, 33.3, md.TaskSummary.CompletionRate)

	require.NotEmpty(t, md.ProjectsAtRisk)
	assert.Equal(t, "p2", md.ProjectsAtRisk[0].ProjectID)

	assert.Equal(t, 3000.0, md.BudgetOverview.TotalBudget)
	assert.Equal(t, 2000.0, md.BudgetOverview.TotalActualCost)
	assert.Equal(t, 1000.0, md.BudgetOverview.Variance)
	assert.Equal(t, 66.7, md.BudgetOverview.Utilization)
	assert.Equal(t, []string{"p1"}, md.BudgetOverview.OverBudgetProjects)

	require.Len(t, md.UpcomingDeadlines, 2)
	assert.Equal(t, "t1", md.UpcomingDeadlines[0].ID)
	assert.Equal(t, "p2", md.UpcomingDeadlines[1].ID)
	assert.Equal(t, 4, md.UpcomingDeadlines[1].DaysLeft)
	require.Len(t, md.PartnerPerformance, 1)
}

func TestManagerDashboardPeriods(t *testing.T) {
	md, err := dashboard.BuildManagerDashboard(fixture(), dashboard.PeriodQuarterly, now, dashboard.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 10, 16, 0, 0, 0, 0, time.UTC), md.From)

	md, err = dashboard.BuildManagerDashboard(fixture(), "", now, dashboard.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, dashboard.PeriodMonthly, md.Period)

	_, err = dashboard.BuildManagerDashboard(fixture(), "daily", now, dashboard.DefaultOptions())
	assert.True(t, domain.IsInvalidRange(err))
}

func TestWeeklyPeriodStartAcrossDaylightSaving(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	at := time.Date(2024, 4, 2, 9, 0, 0, 0, berlin)
	from, err := dashboard.PeriodStart(dashboard.PeriodWeekly, at)
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, at.Sub(from))
	assert.Equal(t, 8, from.Hour())
}

func TestUpcomingLimit(t *testing.T) {
	opts := dashboard.DefaultOptions()
	opts.UpcomingLimit = 1
	md, err := dashboard.BuildManagerDashboard(fixture(), dashboard.PeriodMonthly, now, opts)
	require.NoError(t, err)
	assert.Len(t, md.UpcomingDeadlines, 1)
}
