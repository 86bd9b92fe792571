package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pulseboard/internal/domain"
	"pulseboard/internal/events"
	"pulseboard/internal/repo"
	"pulseboard/internal/schedule"
)

// ReportConfigInput carries the user editable fields of a new config.
type ReportConfigInput struct {
	Name        string
	Description *string
	Period      string
	DayOfWeek   *int
	DayOfMonth  *int
	SendTime    string
	Recipients  []string
	Format      string
	// Paused creates the config without scheduling it.
	Paused  bool
	ActorID string
}

// ReportConfigPatch updates the fields that are set.
type ReportConfigPatch struct {
	Name        *string
	Description *string
	Period      *string
	DayOfWeek   *int
	DayOfMonth  *int
	SendTime    *string
	Recipients  []string
	Format      *string
	// ClearDays resets both day fields before applying DayOfWeek/DayOfMonth,
	// which is needed when switching period.
	ClearDays bool
	ActorID   string
}

// CreateReportConfig validates and stores a config. Unless in.Paused is set the
// config starts active with its first run computed from now.
func (e Engine) CreateReportConfig(ctx context.Context, in ReportConfigInput) (domain.ReportConfig, error) {
	now := e.now()
	c := domain.ReportConfig{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Period:      in.Period,
		DayOfWeek:   in.DayOfWeek,
		DayOfMonth:  in.DayOfMonth,
		SendTime:    in.SendTime,
		Recipients:  in.Recipients,
		Format:      in.Format,
		Status:      domain.ConfigPaused,
		CreatedBy:   in.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Format == "" {
		c.Format = e.config().Reports.DefaultFormat
	}
	if err := validateReportConfig(c); err != nil {
		return domain.ReportConfig{}, err
	}
	if !in.Paused {
		next, err := schedule.ComputeNextRun(c, now)
		if err != nil {
			return domain.ReportConfig{}, err
		}
		c.Status = domain.ConfigActive
		c.NextRunAt = &next
	}
	if err := e.Store.CreateReportConfig(ctx, c); err != nil {
		return domain.ReportConfig{}, err
	}
	if err := e.appendEvent(ctx, events.ReportConfigCreated, "report_config", c.ID, in.ActorID, events.EventPayload{
		"name": c.Name, "period": c.Period, "status": c.Status,
	}); err != nil {
		return domain.ReportConfig{}, err
	}
	return e.Store.GetReportConfig(ctx, c.ID)
}

// UpdateReportConfig applies p. Active configs have their next run recomputed
// so schedule edits take effect immediately.
func (e Engine) UpdateReportConfig(ctx context.Context, id string, p ReportConfigPatch) (domain.ReportConfig, error) {
	c, err := e.Store.GetReportConfig(ctx, id)
	if err != nil {
		return domain.ReportConfig{}, err
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = p.Description
	}
	if p.Period != nil {
		c.Period = *p.Period
	}
	if p.ClearDays {
		c.DayOfWeek, c.DayOfMonth = nil, nil
	}
	if p.DayOfWeek != nil {
		c.DayOfWeek = p.DayOfWeek
	}
	if p.DayOfMonth != nil {
		c.DayOfMonth = p.DayOfMonth
	}
	if p.SendTime != nil {
		c.SendTime = *p.SendTime
	}
	if p.Recipients != nil {
		c.Recipients = p.Recipients
	}
	if p.Format != nil {
		c.Format = *p.Format
	}
	if err := validateReportConfig(c); err != nil {
		return domain.ReportConfig{}, err
	}
	now := e.now()
	if c.Status == domain.ConfigActive {
		next, err := schedule.ComputeNextRun(c, now)
		if err != nil {
			return domain.ReportConfig{}, err
		}
		c.NextRunAt = &next
	}
	c.UpdatedAt = now
	if err := e.Store.UpdateReportConfig(ctx, c); err != nil {
		return domain.ReportConfig{}, err
	}
	if err := e.appendEvent(ctx, events.ReportConfigUpdated, "report_config", c.ID, p.ActorID, nil); err != nil {
		return domain.ReportConfig{}, err
	}
	return e.Store.GetReportConfig(ctx, c.ID)
}

func (e Engine) GetReportConfig(ctx context.Context, id string) (domain.ReportConfig, error) {
	return e.Store.GetReportConfig(ctx, id)
}

func (e Engine) ListReportConfigs(ctx context.Context, f repo.ReportConfigFilter) ([]domain.ReportConfig, error) {
	return e.Store.ListReportConfigs(ctx, f)
}

// DeleteReportConfig removes the config; reports generated from it are kept.
func (e Engine) DeleteReportConfig(ctx context.Context, id, actorID string) error {
	if err := e.Store.DeleteReportConfig(ctx, id); err != nil {
		return err
	}
	return e.appendEvent(ctx, events.ReportConfigDeleted, "report_config", id, actorID, nil)
}

// Activate schedules the config's next run relative to now. Activating an
// active config recomputes the same next run for an unchanged clock.
func (e Engine) Activate(ctx context.Context, id, actorID string) (domain.ReportConfig, error) {
	c, err := e.Store.GetReportConfig(ctx, id)
	if err != nil {
		return domain.ReportConfig{}, err
	}
	status, err := schedule.Transition(c.ID, c.Status, schedule.EventActivate)
	if err != nil {
		return domain.ReportConfig{}, err
	}
	now := e.now()
	next, err := schedule.ComputeNextRun(c, now)
	if err != nil {
		return domain.ReportConfig{}, err
	}
	if err := e.Store.UpdateSchedule(ctx, c.ID, repo.ScheduleUpdate{Status: status, NextRunAt: &next, UpdatedAt: now}); err != nil {
		return domain.ReportConfig{}, err
	}
	if err := e.appendEvent(ctx, events.ReportConfigActivated, "report_config", c.ID, actorID, events.EventPayload{
		"next_run_at": next.UTC().Format(time.RFC3339),
	}); err != nil {
		return domain.ReportConfig{}, err
	}
	return e.Store.GetReportConfig(ctx, c.ID)
}

// Pause stops scheduling and clears the next run.
func (e Engine) Pause(ctx context.Context, id, actorID string) (domain.ReportConfig, error) {
	c, err := e.Store.GetReportConfig(ctx, id)
	if err != nil {
		return domain.ReportConfig{}, err
	}
	status, err := schedule.Transition(c.ID, c.Status, schedule.EventPause)
	if err != nil {
		return domain.ReportConfig{}, err
	}
	if err := e.Store.UpdateSchedule(ctx, c.ID, repo.ScheduleUpdate{Status: status, UpdatedAt: e.now()}); err != nil {
		return domain.ReportConfig{}, err
	}
	if err := e.appendEvent(ctx, events.ReportConfigPaused, "report_config", c.ID, actorID, nil); err != nil {
		return domain.ReportConfig{}, err
	}
	return e.Store.GetReportConfig(ctx, c.ID)
}
