package engine

import (
	"context"

	"pulseboard/internal/dashboard"
	"pulseboard/internal/health"
	"pulseboard/internal/metrics"
)

// GetOverview aggregates the snapshot. A non-empty userID restricts it to the
// projects the user owns or has tasks in, and to the user's tasks.
func (e Engine) GetOverview(ctx context.Context, userID string) (metrics.Result, error) {
	s, err := e.loadSnapshot(ctx)
	if err != nil {
		return metrics.Result{}, err
	}
	return metrics.Aggregate(metrics.FilterForUser(s, userID), e.now()), nil
}

func (e Engine) GetHealthScoreStatistics(ctx context.Context) (health.Statistics, error) {
	scores, err := e.GetAllProjectsHealthScores(ctx)
	if err != nil {
		return health.Statistics{}, err
	}
	return health.Summarize(scores), nil
}

// GetAllProjectsHealthScores scores every non-cancelled project.
func (e Engine) GetAllProjectsHealthScores(ctx context.Context) ([]health.Breakdown, error) {
	s, err := e.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return health.ScoreAll(s.Projects, metrics.IndexTasks(s.Tasks)), nil
}

func (e Engine) GetProjectProgress(ctx context.Context) (dashboard.ProjectProgress, error) {
	s, err := e.loadSnapshot(ctx)
	if err != nil {
		return dashboard.ProjectProgress{}, err
	}
	return dashboard.BuildProjectProgress(s.Projects, s.Tasks, e.now()), nil
}

// GetManagerDashboard rejects an unknown period before reading anything.
func (e Engine) GetManagerDashboard(ctx context.Context, period string) (dashboard.ManagerDashboard, error) {
	now := e.now()
	if _, err := dashboard.PeriodStart(period, now); err != nil {
		return dashboard.ManagerDashboard{}, err
	}
	s, err := e.loadSnapshot(ctx)
	if err != nil {
		return dashboard.ManagerDashboard{}, err
	}
	return dashboard.BuildManagerDashboard(s, period, now, e.dashboardOptions())
}
