package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"pulseboard/internal/config"
	"pulseboard/internal/dashboard"
	"pulseboard/internal/delivery"
	"pulseboard/internal/domain"
	"pulseboard/internal/events"
	"pulseboard/internal/metrics"
	"pulseboard/internal/repo"
	"pulseboard/internal/telemetry"
)

// Source reads the entity snapshots the engine computes over. Errors are
// returned unchanged to the caller.
type Source interface {
	ListProjects(ctx context.Context, f repo.ProjectFilter) ([]domain.Project, error)
	ListTasks(ctx context.Context, f repo.TaskFilter) ([]domain.Task, error)
	ListPartners(ctx context.Context) ([]domain.Partner, error)
	ListReminders(ctx context.Context, f repo.ReminderFilter) ([]domain.Reminder, error)
	CountTasks(ctx context.Context, f repo.TaskFilter) (int, error)
	CountTasksBy(ctx context.Context, field string, f repo.TaskFilter) (map[string]int, error)
}

// Store persists report configs and generated reports.
type Store interface {
	CreateReportConfig(ctx context.Context, c domain.ReportConfig) error
	UpdateReportConfig(ctx context.Context, c domain.ReportConfig) error
	UpdateSchedule(ctx context.Context, id string, u repo.ScheduleUpdate) error
	GetReportConfig(ctx context.Context, id string) (domain.ReportConfig, error)
	ListReportConfigs(ctx context.Context, f repo.ReportConfigFilter) ([]domain.ReportConfig, error)
	ListDueReportConfigs(ctx context.Context, now time.Time) ([]domain.ReportConfig, error)
	DeleteReportConfig(ctx context.Context, id string) error

	CreateGeneratedReport(ctx context.Context, g domain.GeneratedReport) error
	CompleteGeneratedReport(ctx context.Context, id string, c repo.ReportCompletion) error
	FailGeneratedReport(ctx context.Context, id, msg string, at time.Time) error
	RecordDelivery(ctx context.Context, id string, sentTo []string, deliveryErr string) error
	GetGeneratedReport(ctx context.Context, id string) (domain.GeneratedReport, error)
	ListGeneratedReports(ctx context.Context, f repo.GeneratedReportFilter) ([]domain.GeneratedReport, error)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Source    Source
	Store     Store
	Events    events.Writer
	Config    *config.Config
	Transport delivery.Transport
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// New wires an engine over db with the repo as both source and store and the
// log transport for deliveries.
func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	logger := slog.Default()
	return Engine{
		DB:        db,
		Repo:      r,
		Source:    r,
		Store:     r,
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Transport: delivery.LogTransport{Logger: logger},
		Logger:    logger,
		Now:       time.Now,
	}
}

func (e Engine) config() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

// now returns the clock reading in the configured time zone, which is where
// send times are interpreted.
func (e Engine) now() time.Time {
	t := time.Now()
	if e.Now != nil {
		t = e.Now()
	}
	return t.In(e.config().Location())
}

func (e Engine) log() *slog.Logger {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", "engine"))
}

func (e Engine) appendEvent(ctx context.Context, evtType, kind, id, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	if err := w.Append(ctx, nil, evtType, kind, id, actorID, payload); err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

// ListEvents returns audit events, newest first.
func (e Engine) ListEvents(ctx context.Context, f events.Filter) ([]domain.Event, error) {
	return e.Events.List(ctx, f)
}

// loadSnapshot reads the full entity snapshot from the source.
func (e Engine) loadSnapshot(ctx context.Context) (metrics.Snapshot, error) {
	var (
		s   metrics.Snapshot
		err error
	)
	if s.Projects, err = e.Source.ListProjects(ctx, repo.ProjectFilter{}); err != nil {
		return s, err
	}
	if s.Tasks, err = e.Source.ListTasks(ctx, repo.TaskFilter{}); err != nil {
		return s, err
	}
	if s.Partners, err = e.Source.ListPartners(ctx); err != nil {
		return s, err
	}
	if s.Reminders, err = e.Source.ListReminders(ctx, repo.ReminderFilter{}); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) dashboardOptions() dashboard.Options {
	d := e.config().Dashboard
	return dashboard.Options{
		DeadlineWindowDays:     d.DeadlineWindowDays,
		TaskDeadlineWindowDays: d.TaskDeadlineWindowDays,
		UpcomingLimit:          d.UpcomingLimit,
	}
}
