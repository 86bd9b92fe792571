package server

import (
	"time"

	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
)

// Request payloads

type CreateReportConfigRequest struct {
	Name        string   `json:"name" maxLength:"200"`
	Description *string  `json:"description,omitempty"`
	Period      string   `json:"period" enum:"weekly,monthly"`
	DayOfWeek   *int     `json:"day_of_week,omitempty" minimum:"0" maximum:"6"`
	DayOfMonth  *int     `json:"day_of_month,omitempty" minimum:"1" maximum:"31"`
	SendTime    string   `json:"send_time" example:"09:00"`
	Recipients  []string `json:"recipients" minItems:"1"`
	Format      string   `json:"format,omitempty" enum:"csv,xlsx,json"`
	Paused      bool     `json:"paused,omitempty"`
}

func (r CreateReportConfigRequest) input(actorID string) engine.ReportConfigInput {
	return engine.ReportConfigInput{
		Name:        r.Name,
		Description: r.Description,
		Period:      r.Period,
		DayOfWeek:   r.DayOfWeek,
		DayOfMonth:  r.DayOfMonth,
		SendTime:    r.SendTime,
		Recipients:  r.Recipients,
		Format:      r.Format,
		Paused:      r.Paused,
		ActorID:     actorID,
	}
}

type UpdateReportConfigRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Period      *string  `json:"period,omitempty" enum:"weekly,monthly"`
	DayOfWeek   *int     `json:"day_of_week,omitempty" minimum:"0" maximum:"6"`
	DayOfMonth  *int     `json:"day_of_month,omitempty" minimum:"1" maximum:"31"`
	SendTime    *string  `json:"send_time,omitempty"`
	Recipients  []string `json:"recipients,omitempty"`
	Format      *string  `json:"format,omitempty" enum:"csv,xlsx,json"`
	// ClearDays drops both day fields before the new ones apply.
	ClearDays bool `json:"clear_days,omitempty"`
}

func (r UpdateReportConfigRequest) patch(actorID string) engine.ReportConfigPatch {
	return engine.ReportConfigPatch{
		Name:        r.Name,
		Description: r.Description,
		Period:      r.Period,
		DayOfWeek:   r.DayOfWeek,
		DayOfMonth:  r.DayOfMonth,
		SendTime:    r.SendTime,
		Recipients:  r.Recipients,
		Format:      r.Format,
		ClearDays:   r.ClearDays,
		ActorID:     actorID,
	}
}

type GenerateReportRequest struct {
	ReportType string     `json:"report_type" enum:"weekly,monthly,custom"`
	Format     string     `json:"format,omitempty" enum:"csv,xlsx,json"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

type RedeliverRequest struct {
	Recipients []string `json:"recipients,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ReportConfigList struct {
	Items []domain.ReportConfig `json:"items"`
}

type GeneratedReportList struct {
	Items []domain.GeneratedReport `json:"items"`
}
