package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/events"
	"pulseboard/internal/repo"
)

type idPath struct {
	ID string `path:"id"`
}

type configResponse struct {
	Body domain.ReportConfig `json:"body"`
}

type reportResponse struct {
	Body domain.GeneratedReport `json:"body"`
}

// fileResponse streams rendered report bytes as an attachment.
type fileResponse struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func newFileResponse(name, mime string, content []byte) *fileResponse {
	return &fileResponse{
		ContentType:        mime,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", name),
		Body:               content,
	}
}

func registerReportConfigs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-report-config",
		Method:        http.MethodPost,
		Path:          "/report-configs",
		Summary:       "Create a report config",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateReportConfigRequest `json:"body"`
	}) (*configResponse, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		c, err := e.CreateReportConfig(ctx, input.Body.input(actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &configResponse{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-report-configs",
		Method:      http.MethodGet,
		Path:        "/report-configs",
		Summary:     "List report configs",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,paused"`
	}) (*struct {
		Body ReportConfigList `json:"body"`
	}, error) {
		items, err := e.ListReportConfigs(ctx, repo.ReportConfigFilter{Status: input.Status})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ReportConfig{}
		}
		return &struct {
			Body ReportConfigList `json:"body"`
		}{Body: ReportConfigList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report-config",
		Method:      http.MethodGet,
		Path:        "/report-configs/{id}",
		Summary:     "Get a report config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*configResponse, error) {
		c, err := e.GetReportConfig(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &configResponse{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-report-config",
		Method:      http.MethodPatch,
		Path:        "/report-configs/{id}",
		Summary:     "Update a report config",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                    `path:"id"`
		Body UpdateReportConfigRequest `json:"body"`
	}) (*configResponse, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		c, err := e.UpdateReportConfig(ctx, input.ID, input.Body.patch(actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &configResponse{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-report-config",
		Method:        http.MethodDelete,
		Path:          "/report-configs/{id}",
		Summary:       "Delete a report config",
		Description:   "Generated reports of the config are kept.",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		if err := e.DeleteReportConfig(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	lifecycle := []struct {
		action, summary string
		fn              func(context.Context, string, string) (domain.ReportConfig, error)
	}{
		{"activate", "Activate a report config", e.Activate},
		{"pause", "Pause a report config", e.Pause},
	}
	for _, lc := range lifecycle {
		fn := lc.fn
		huma.Register(api, huma.Operation{
			OperationID: lc.action + "-report-config",
			Method:      http.MethodPost,
			Path:        "/report-configs/{id}/" + lc.action,
			Summary:     lc.summary,
			Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
		}, func(ctx context.Context, input *idPath) (*configResponse, error) {
			actorID, aerr := actorIDFromContext(ctx)
			if aerr != nil {
				return nil, aerr
			}
			c, err := fn(ctx, input.ID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &configResponse{Body: c}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID:   "generate-report-config",
		Method:        http.MethodPost,
		Path:          "/report-configs/{id}/generate",
		Summary:       "Generate a config's report now",
		Description:   "Does not deliver the report and leaves the schedule untouched.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *idPath) (*reportResponse, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		rep, err := e.GenerateNow(ctx, &input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &reportResponse{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "trigger-report-configs",
		Method:      http.MethodPost,
		Path:        "/report-configs/trigger",
		Summary:     "Run every due report config",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.TriggerSummary `json:"body"`
	}, error) {
		if _, aerr := actorIDFromContext(ctx); aerr != nil {
			return nil, aerr
		}
		summary, err := e.TriggerScheduled(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if summary.Results == nil {
			summary.Results = []engine.TriggerResult{}
		}
		return &struct {
			Body engine.TriggerSummary `json:"body"`
		}{Body: summary}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-report",
		Method:      http.MethodPost,
		Path:        "/reports/generate",
		Summary:     "Generate an ad-hoc report and download it",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body GenerateReportRequest `json:"body"`
	}) (*fileResponse, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		file, err := e.GenerateReport(ctx, engine.ReportRequest{
			ReportType: input.Body.ReportType,
			Format:     input.Body.Format,
			StartDate:  input.Body.StartDate,
			EndDate:    input.Body.EndDate,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return newFileResponse(file.FileName, file.MIMEType, file.FileContent), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List generated reports, newest first",
	}, func(ctx context.Context, input *struct {
		ConfigID string `query:"report_config_id"`
		Status   string `query:"status" enum:"pending,completed,failed"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body GeneratedReportList `json:"body"`
	}, error) {
		items, err := e.ListGeneratedReports(ctx, repo.GeneratedReportFilter{
			ReportConfigID: input.ConfigID,
			Status:         input.Status,
			Limit:          normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.GeneratedReport{}
		}
		return &struct {
			Body GeneratedReportList `json:"body"`
		}{Body: GeneratedReportList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}",
		Summary:     "Get a generated report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*reportResponse, error) {
		rep, err := e.GetGeneratedReport(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &reportResponse{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "download-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}/download",
		Summary:     "Download a completed report",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *idPath) (*fileResponse, error) {
		rep, err := e.GetGeneratedReport(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if rep.Status != domain.ReportCompleted {
			return nil, newAPIError(http.StatusConflict, "report_not_ready", fmt.Sprintf("report %s is %s", rep.ID, rep.Status), map[string]any{"status": rep.Status})
		}
		return newFileResponse(rep.FileName, rep.MIMEType, rep.Content), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "redeliver-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/redeliver",
		Summary:     "Deliver a completed report again",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body *RedeliverRequest `json:"body,omitempty" required:"false"`
	}) (*reportResponse, error) {
		actorID, aerr := actorIDFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		var recipients []string
		if input.Body != nil {
			recipients = input.Body.Recipients
		}
		rep, err := e.RedeliverReport(ctx, input.ID, recipients, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &reportResponse{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
	}, func(ctx context.Context, input *struct {
		Type     string `query:"type"`
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.ListEvents(ctx, events.Filter{Type: input.Type, EntityID: input.EntityID, Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	if !authCfg.AllowDevLogin {
		return
	}
	const ttl = 12 * time.Hour
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		now := time.Now().UTC()
		token, err := SignToken(authCfg.JWTSecret, actor, input.Body.Roles, ttl, now)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token, ExpiresAt: now.Add(ttl)}}, nil
	})
}
