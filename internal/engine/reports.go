package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"pulseboard/internal/delivery"
	"pulseboard/internal/domain"
	"pulseboard/internal/events"
	"pulseboard/internal/repo"
	"pulseboard/internal/report"
	"pulseboard/internal/schedule"
	"pulseboard/internal/telemetry"
)

const schedulerActor = "scheduler"

// ReportRequest asks for an ad-hoc report. StartDate and EndDate are only read
// for the custom report type.
type ReportRequest struct {
	ReportType string
	Format     string
	StartDate  *time.Time
	EndDate    *time.Time
	ActorID    string
}

// ReportFile is a rendered report together with its persisted row.
type ReportFile struct {
	FileContent []byte
	FileName    string
	MIMEType    string
	Report      domain.GeneratedReport
}

// TriggerResult is the outcome for one due config.
type TriggerResult struct {
	ConfigID      string     `json:"config_id"`
	ReportID      string     `json:"report_id,omitempty"`
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	DeliveryError string     `json:"delivery_error,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
}

// TriggerSummary reports what one TriggerScheduled run did.
type TriggerSummary struct {
	Due            int             `json:"due"`
	Completed      int             `json:"completed"`
	Failed         int             `json:"failed"`
	Delivered      int             `json:"delivered"`
	DeliveryFailed int             `json:"delivery_failed"`
	Results        []TriggerResult `json:"results"`
}

type generation struct {
	configID *string
	title    string
	period   string
	format   string
	rng      report.Range
	actorID  string
	// at is the single clock reading the range ends on and the row is created at.
	at time.Time
}

// generate persists a pending report, renders it and moves it to completed or
// failed. A failure after the pending row exists is returned as a
// GenerationError and recorded on the row.
func (e Engine) generate(ctx context.Context, g generation) (ReportFile, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.generate",
		attribute.String("report.period", g.period),
		attribute.String("report.format", g.format),
	)
	started := time.Now()
	now := g.at
	row := domain.GeneratedReport{
		ID:             uuid.NewString(),
		ReportConfigID: g.configID,
		Title:          g.title,
		Period:         g.period,
		Format:         g.format,
		DateRangeStart: g.rng.Start,
		DateRangeEnd:   g.rng.End,
		Status:         domain.ReportPending,
		SentTo:         []string{},
		CreatedAt:      now,
	}
	span.SetAttributes(attribute.String("report.id", row.ID))
	if err := e.Store.CreateGeneratedReport(ctx, row); err != nil {
		telemetry.EndSpan(span, err)
		return ReportFile{}, err
	}

	file, err := e.render(ctx, g, now)
	if err == nil {
		err = e.Store.CompleteGeneratedReport(ctx, row.ID, repo.ReportCompletion{
			FileName:    file.FileName,
			MIMEType:    file.MIMEType,
			Content:     file.Content,
			CompletedAt: e.now(),
		})
	}
	if err != nil {
		genErr := &domain.GenerationError{ReportID: row.ID, Err: err}
		e.recordFailure(ctx, row, genErr, g.actorID)
		e.Metrics.ObserveReport(g.period, domain.ReportFailed, time.Since(started))
		telemetry.EndSpan(span, genErr)
		return ReportFile{}, genErr
	}
	e.Metrics.ObserveReport(g.period, domain.ReportCompleted, time.Since(started))
	if err := e.appendEvent(ctx, events.ReportGenerated, "report", row.ID, g.actorID, events.EventPayload{
		"config_id": g.configID, "period": g.period, "format": g.format, "file": file.FileName,
	}); err != nil {
		e.log().WarnContext(ctx, "report event not recorded", slog.String("report_id", row.ID), slog.String("error", err.Error()))
	}
	telemetry.EndSpan(span, nil)

	saved, err := e.Store.GetGeneratedReport(ctx, row.ID)
	if err != nil {
		return ReportFile{}, err
	}
	return ReportFile{FileContent: file.Content, FileName: file.FileName, MIMEType: file.MIMEType, Report: saved}, nil
}

func (e Engine) render(ctx context.Context, g generation, now time.Time) (report.File, error) {
	s, err := e.loadSnapshot(ctx)
	if err != nil {
		return report.File{}, fmt.Errorf("load snapshot: %w", err)
	}
	body := report.Build(s, g.rng, g.title, g.period, now)
	file, err := report.Render(body, g.format)
	if err != nil {
		return report.File{}, fmt.Errorf("render %s: %w", g.format, err)
	}
	file.FileName = report.FileName(g.period, g.format, now)
	return file, nil
}

func (e Engine) recordFailure(ctx context.Context, row domain.GeneratedReport, genErr *domain.GenerationError, actorID string) {
	logger := e.log().With(slog.String("report_id", row.ID))
	logger.ErrorContext(ctx, "report generation failed", slog.String("error", genErr.Err.Error()))
	if err := e.Store.FailGeneratedReport(ctx, row.ID, genErr.Err.Error(), e.now()); err != nil {
		logger.ErrorContext(ctx, "report failure not recorded", slog.String("error", err.Error()))
	}
	if err := e.appendEvent(ctx, events.ReportFailed, "report", row.ID, actorID, events.EventPayload{
		"config_id": row.ReportConfigID, "error": genErr.Err.Error(),
	}); err != nil {
		logger.WarnContext(ctx, "report event not recorded", slog.String("error", err.Error()))
	}
}

func (e Engine) reportTitle(period string) string {
	prefix := strings.TrimSpace(e.config().Reports.TitlePrefix)
	title := period + " report"
	if prefix == "" {
		return strings.ToUpper(title[:1]) + title[1:]
	}
	return prefix + " " + title
}

// GenerateReport renders an ad-hoc report. Bad report types, formats and date
// ranges are rejected before anything is stored.
func (e Engine) GenerateReport(ctx context.Context, req ReportRequest) (ReportFile, error) {
	format := req.Format
	if format == "" {
		format = e.config().Reports.DefaultFormat
	}
	if err := validFormat(format); err != nil {
		return ReportFile{}, err
	}
	now := e.now()
	rng, err := report.ResolveRange(req.ReportType, now, req.StartDate, req.EndDate)
	if err != nil {
		return ReportFile{}, err
	}
	return e.generate(ctx, generation{
		title:   e.reportTitle(req.ReportType),
		period:  req.ReportType,
		format:  format,
		rng:     rng,
		actorID: req.ActorID,
		at:      now,
	})
}

// GenerateNow runs a config's report immediately, or a weekly ad-hoc report when
// configID is nil. It never delivers and never moves the schedule.
func (e Engine) GenerateNow(ctx context.Context, configID *string, actorID string) (domain.GeneratedReport, error) {
	g := generation{
		title:   e.reportTitle(domain.PeriodWeekly),
		period:  domain.PeriodWeekly,
		format:  e.config().Reports.DefaultFormat,
		actorID: actorID,
	}
	if configID != nil {
		c, err := e.Store.GetReportConfig(ctx, *configID)
		if err != nil {
			return domain.GeneratedReport{}, err
		}
		g.configID = &c.ID
		g.title = c.Name
		g.period = c.Period
		if c.Format != "" {
			g.format = c.Format
		}
	}
	g.at = e.now()
	rng, err := report.ResolveRange(g.period, g.at, nil, nil)
	if err != nil {
		return domain.GeneratedReport{}, err
	}
	g.rng = rng
	file, err := e.generate(ctx, g)
	if err != nil {
		return domain.GeneratedReport{}, err
	}
	return file.Report, nil
}

// TriggerScheduled generates and delivers every due config. Configs run
// concurrently up to scheduler.concurrency; a failing config never stops the
// others, and each config's next run is recomputed whatever happened.
func (e Engine) TriggerScheduled(ctx context.Context) (TriggerSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.TriggerScheduled")
	now := e.now()
	due, err := e.Store.ListDueReportConfigs(ctx, now)
	if err != nil {
		telemetry.EndSpan(span, err)
		return TriggerSummary{}, err
	}
	e.Metrics.SetDue(len(due))
	span.SetAttributes(attribute.Int("scheduler.due", len(due)))

	results := make([]TriggerResult, len(due))
	var g errgroup.Group
	g.SetLimit(max(1, e.config().Scheduler.Concurrency))
	for i, c := range due {
		g.Go(func() error {
			results[i] = e.runScheduled(ctx, c, now)
			return nil
		})
	}
	_ = g.Wait()

	summary := TriggerSummary{Due: len(due), Results: results}
	for _, r := range results {
		switch r.Status {
		case domain.ReportCompleted:
			summary.Completed++
			if r.DeliveryError != "" {
				summary.DeliveryFailed++
			} else {
				summary.Delivered++
			}
		default:
			summary.Failed++
		}
	}
	if summary.Due > 0 {
		e.log().InfoContext(ctx, "scheduled reports processed",
			slog.Int("due", summary.Due),
			slog.Int("completed", summary.Completed),
			slog.Int("failed", summary.Failed),
		)
	}
	telemetry.EndSpan(span, nil)
	return summary, nil
}

// runScheduled owns one config for the duration of a trigger run and writes
// only that config's row.
func (e Engine) runScheduled(ctx context.Context, c domain.ReportConfig, now time.Time) TriggerResult {
	res := TriggerResult{ConfigID: c.ID, Status: domain.ReportFailed}
	logger := e.log().With(slog.String("config_id", c.ID))

	// concurrent runs start at different times, so each window ends at its own
	at := e.now()
	rng, err := report.ResolveRange(c.Period, at, nil, nil)
	if err == nil {
		format := c.Format
		if format == "" {
			format = e.config().Reports.DefaultFormat
		}
		var file ReportFile
		file, err = e.generate(ctx, generation{
			configID: &c.ID,
			title:    c.Name,
			period:   c.Period,
			format:   format,
			rng:      rng,
			actorID:  schedulerActor,
			at:       at,
		})
		var genErr *domain.GenerationError
		if errors.As(err, &genErr) {
			res.ReportID = genErr.ReportID
		}
		if err == nil {
			res.ReportID = file.Report.ID
			res.Status = domain.ReportCompleted
			if derr := e.deliver(ctx, file, c.Recipients, schedulerActor); derr != nil {
				res.DeliveryError = derr.Error()
			}
		}
	}
	if err != nil {
		res.Error = err.Error()
	}

	update := repo.ScheduleUpdate{Status: c.Status, LastRunAt: &now, UpdatedAt: now}
	next, nerr := schedule.ComputeNextRun(c, now)
	if nerr != nil {
		// an unschedulable config would stay due forever
		logger.ErrorContext(ctx, "next run not computable, pausing config", slog.String("error", nerr.Error()))
		update.Status = domain.ConfigPaused
	} else {
		update.NextRunAt = &next
		res.NextRunAt = &next
	}
	if uerr := e.Store.UpdateSchedule(ctx, c.ID, update); uerr != nil {
		logger.ErrorContext(ctx, "schedule not updated", slog.String("error", uerr.Error()))
		res.Error = strings.TrimPrefix(res.Error+"; "+uerr.Error(), "; ")
	}
	return res
}

// deliver hands a completed report to the transport and records the outcome.
// Delivery failures leave the report completed.
func (e Engine) deliver(ctx context.Context, file ReportFile, recipients []string, actorID string) error {
	rep := file.Report
	if e.Transport == nil {
		e.Metrics.ObserveDelivery(telemetry.DeliverySkip)
		return nil
	}
	msg := delivery.Message{
		ReportID:   rep.ID,
		Title:      rep.Title,
		Period:     rep.Period,
		RangeStart: rep.DateRangeStart,
		RangeEnd:   rep.DateRangeEnd,
		FileName:   file.FileName,
		MIMEType:   file.MIMEType,
		Recipients: recipients,
		Content:    file.FileContent,
	}
	logger := e.log().With(slog.String("report_id", rep.ID))
	if err := e.Transport.Deliver(ctx, msg); err != nil {
		derr := &domain.DeliveryError{ReportID: rep.ID, Recipients: recipients, Err: err}
		logger.WarnContext(ctx, "report delivery failed", slog.String("error", err.Error()))
		e.Metrics.ObserveDelivery(telemetry.DeliveryFailed)
		if rerr := e.Store.RecordDelivery(ctx, rep.ID, nil, err.Error()); rerr != nil {
			logger.ErrorContext(ctx, "delivery failure not recorded", slog.String("error", rerr.Error()))
		}
		if aerr := e.appendEvent(ctx, events.ReportDeliveryFailed, "report", rep.ID, actorID, events.EventPayload{"error": err.Error()}); aerr != nil {
			logger.WarnContext(ctx, "delivery event not recorded", slog.String("error", aerr.Error()))
		}
		return derr
	}
	e.Metrics.ObserveDelivery(telemetry.DeliveryOK)
	if err := e.Store.RecordDelivery(ctx, rep.ID, recipients, ""); err != nil {
		return err
	}
	return e.appendEvent(ctx, events.ReportDelivered, "report", rep.ID, actorID, events.EventPayload{"recipients": recipients})
}

func (e Engine) ListGeneratedReports(ctx context.Context, f repo.GeneratedReportFilter) ([]domain.GeneratedReport, error) {
	return e.Store.ListGeneratedReports(ctx, f)
}

// GetGeneratedReport returns a report with its content.
func (e Engine) GetGeneratedReport(ctx context.Context, id string) (domain.GeneratedReport, error) {
	return e.Store.GetGeneratedReport(ctx, id)
}

// RedeliverReport sends a completed report again to its config's current
// recipients, or to recipients when given.
func (e Engine) RedeliverReport(ctx context.Context, id string, recipients []string, actorID string) (domain.GeneratedReport, error) {
	rep, err := e.Store.GetGeneratedReport(ctx, id)
	if err != nil {
		return domain.GeneratedReport{}, err
	}
	if rep.Status != domain.ReportCompleted {
		return domain.GeneratedReport{}, domain.InvalidRangeError{Field: "status", Reason: fmt.Sprintf("report %s is %s, only completed reports can be delivered", id, rep.Status)}
	}
	if len(recipients) == 0 && rep.ReportConfigID != nil {
		c, err := e.Store.GetReportConfig(ctx, *rep.ReportConfigID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.GeneratedReport{}, err
		}
		recipients = c.Recipients
	}
	if len(recipients) == 0 {
		return domain.GeneratedReport{}, domain.InvalidRangeError{Field: "recipients", Reason: "report has no recipients"}
	}
	file := ReportFile{FileContent: rep.Content, FileName: rep.FileName, MIMEType: rep.MIMEType, Report: rep}
	if err := e.deliver(ctx, file, recipients, actorID); err != nil {
		return domain.GeneratedReport{}, err
	}
	return e.Store.GetGeneratedReport(ctx, id)
}
