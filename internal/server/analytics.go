package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"pulseboard/internal/dashboard"
	"pulseboard/internal/engine"
	"pulseboard/internal/health"
	"pulseboard/internal/metrics"
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAnalytics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "analytics-overview",
		Method:      http.MethodGet,
		Path:        "/analytics/overview",
		Summary:     "Overview metrics and distributions",
		Description: "With user_id the figures cover only projects and tasks involving that user.",
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
	}) (*struct {
		Body metrics.Result `json:"body"`
	}, error) {
		res, err := e.GetOverview(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body metrics.Result `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-health-scores",
		Method:      http.MethodGet,
		Path:        "/analytics/health-scores",
		Summary:     "Health score of every project",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []health.Breakdown `json:"body"`
	}, error) {
		scores, err := e.GetAllProjectsHealthScores(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if scores == nil {
			scores = []health.Breakdown{}
		}
		return &struct {
			Body []health.Breakdown `json:"body"`
		}{Body: scores}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-health-statistics",
		Method:      http.MethodGet,
		Path:        "/analytics/health-scores/statistics",
		Summary:     "Health score statistics",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body health.Statistics `json:"body"`
	}, error) {
		stats, err := e.GetHealthScoreStatistics(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body health.Statistics `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-project-progress",
		Method:      http.MethodGet,
		Path:        "/analytics/project-progress",
		Summary:     "Project progress and timeline status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body dashboard.ProjectProgress `json:"body"`
	}, error) {
		progress, err := e.GetProjectProgress(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dashboard.ProjectProgress `json:"body"`
		}{Body: progress}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-manager-dashboard",
		Method:      http.MethodGet,
		Path:        "/analytics/manager-dashboard",
		Summary:     "Manager dashboard for a trailing period",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Period string `query:"period" enum:"weekly,monthly,quarterly" default:"monthly"`
	}) (*struct {
		Body dashboard.ManagerDashboard `json:"body"`
	}, error) {
		dash, err := e.GetManagerDashboard(ctx, input.Period)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dashboard.ManagerDashboard `json:"body"`
		}{Body: dash}, nil
	})
}
