package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pulseboard/internal/domain"
)

const reportConfigColumns = `id,name,description,period,day_of_week,day_of_month,send_time,recipients_json,format,status,next_run_at,last_run_at,created_by,created_at,updated_at`

// ReportConfigFilter narrows ListReportConfigs.
type ReportConfigFilter struct {
	Status string
}

// ScheduleUpdate is the single write a trigger run or lifecycle change makes to a config.
type ScheduleUpdate struct {
	Status    string
	NextRunAt *time.Time
	LastRunAt *time.Time
	UpdatedAt time.Time
}

// GeneratedReportFilter narrows ListGeneratedReports.
type GeneratedReportFilter struct {
	ReportConfigID string
	Status         string
	Limit          int
}

// ReportCompletion carries the rendered output of a finished report.
type ReportCompletion struct {
	FileName    string
	MIMEType    string
	Content     []byte
	CompletedAt time.Time
}

func scanReportConfig(row rowScanner) (domain.ReportConfig, error) {
	var (
		c                    domain.ReportConfig
		desc                 sql.NullString
		dow, dom             sql.NullInt64
		recipients           string
		next, last           sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &desc, &c.Period, &dow, &dom, &c.SendTime, &recipients, &c.Format, &c.Status, &next, &last, &c.CreatedBy, &createdAt, &updatedAt); err != nil {
		return c, err
	}
	var err error
	c.Description = stringPtr(desc)
	c.DayOfWeek = intPtr(dow)
	c.DayOfMonth = intPtr(dom)
	if c.Recipients, err = unmarshalStrings(recipients); err != nil {
		return c, err
	}
	if c.NextRunAt, err = parseNullTime(next); err != nil {
		return c, err
	}
	if c.LastRunAt, err = parseNullTime(last); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return c, err
	}
	return c, nil
}

func (r Repo) CreateReportConfig(ctx context.Context, c domain.ReportConfig) error {
	recipients, err := marshalStrings(c.Recipients)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO report_configs(`+reportConfigColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Name, nullableStringPtr(c.Description), c.Period, nullableIntPtr(c.DayOfWeek), nullableIntPtr(c.DayOfMonth), c.SendTime,
		recipients, c.Format, c.Status, nullableTime(c.NextRunAt), nullableTime(c.LastRunAt), c.CreatedBy, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create report config %s: %w", c.ID, err)
	}
	return nil
}

// UpdateReportConfig rewrites the editable fields and the schedule of c.
func (r Repo) UpdateReportConfig(ctx context.Context, c domain.ReportConfig) error {
	recipients, err := marshalStrings(c.Recipients)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE report_configs SET name=?,description=?,period=?,day_of_week=?,day_of_month=?,send_time=?,recipients_json=?,format=?,status=?,next_run_at=?,updated_at=? WHERE id=?`,
		c.Name, nullableStringPtr(c.Description), c.Period, nullableIntPtr(c.DayOfWeek), nullableIntPtr(c.DayOfMonth), c.SendTime,
		recipients, c.Format, c.Status, nullableTime(c.NextRunAt), formatTime(c.UpdatedAt), c.ID)
	if err != nil {
		return fmt.Errorf("update report config %s: %w", c.ID, err)
	}
	return requireAffected(res, "report config", c.ID)
}

// UpdateSchedule writes status and run times in one statement.
func (r Repo) UpdateSchedule(ctx context.Context, id string, u ScheduleUpdate) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE report_configs SET status=?,next_run_at=?,last_run_at=COALESCE(?,last_run_at),updated_at=? WHERE id=?`,
		u.Status, nullableTime(u.NextRunAt), nullableTime(u.LastRunAt), formatTime(u.UpdatedAt), id)
	if err != nil {
		return fmt.Errorf("update schedule %s: %w", id, err)
	}
	return requireAffected(res, "report config", id)
}

func (r Repo) GetReportConfig(ctx context.Context, id string) (domain.ReportConfig, error) {
	c, err := scanReportConfig(r.DB.QueryRowContext(ctx, `SELECT `+reportConfigColumns+` FROM report_configs WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return c, domain.NotFound("report config", id)
	}
	return c, err
}

func (r Repo) ListReportConfigs(ctx context.Context, f ReportConfigFilter) ([]domain.ReportConfig, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	return r.queryReportConfigs(ctx, `SELECT `+reportConfigColumns+` FROM report_configs`+whereClause(clauses)+` ORDER BY created_at, id`, args...)
}

// ListDueReportConfigs returns active configs whose next run is at or before now.
func (r Repo) ListDueReportConfigs(ctx context.Context, now time.Time) ([]domain.ReportConfig, error) {
	return r.queryReportConfigs(ctx, `SELECT `+reportConfigColumns+` FROM report_configs WHERE status='active' AND next_run_at IS NOT NULL AND next_run_at <= ? ORDER BY next_run_at, id`, formatTime(now))
}

func (r Repo) queryReportConfigs(ctx context.Context, query string, args ...any) ([]domain.ReportConfig, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list report configs: %w", err)
	}
	defer rows.Close()
	var res []domain.ReportConfig
	for rows.Next() {
		c, err := scanReportConfig(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// DeleteReportConfig removes a config. Its generated reports are kept with the
// link cleared.
func (r Repo) DeleteReportConfig(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM report_configs WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete report config %s: %w", id, err)
	}
	return requireAffected(res, "report config", id)
}

const generatedReportColumns = `id,report_config_id,title,period,format,date_range_start,date_range_end,status,sent_to_json,file_name,mime_type,error,delivery_error,created_at,completed_at`

func scanGeneratedReport(row rowScanner, withContent bool) (domain.GeneratedReport, error) {
	var (
		g           domain.GeneratedReport
		configID    sql.NullString
		start, end  string
		sentTo      string
		createdAt   string
		completedAt sql.NullString
	)
	dest := []any{&g.ID, &configID, &g.Title, &g.Period, &g.Format, &start, &end, &g.Status, &sentTo, &g.FileName, &g.MIMEType, &g.Error, &g.DeliveryError, &createdAt, &completedAt}
	if withContent {
		dest = append(dest, &g.Content)
	}
	if err := row.Scan(dest...); err != nil {
		return g, err
	}
	var err error
	g.ReportConfigID = stringPtr(configID)
	if g.DateRangeStart, err = parseTime(start); err != nil {
		return g, err
	}
	if g.DateRangeEnd, err = parseTime(end); err != nil {
		return g, err
	}
	if g.SentTo, err = unmarshalStrings(sentTo); err != nil {
		return g, err
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return g, err
	}
	if g.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return g, err
	}
	return g, nil
}

// CreateGeneratedReport inserts g, normally in pending status.
func (r Repo) CreateGeneratedReport(ctx context.Context, g domain.GeneratedReport) error {
	sentTo, err := marshalStrings(g.SentTo)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO generated_reports(`+generatedReportColumns+`,content) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		g.ID, nullableStringPtr(g.ReportConfigID), g.Title, g.Period, g.Format, formatTime(g.DateRangeStart), formatTime(g.DateRangeEnd), g.Status,
		sentTo, g.FileName, g.MIMEType, g.Error, g.DeliveryError, formatTime(g.CreatedAt), nullableTime(g.CompletedAt), g.Content)
	if err != nil {
		return fmt.Errorf("create report %s: %w", g.ID, err)
	}
	return nil
}

// CompleteGeneratedReport moves a pending report to completed with its output.
func (r Repo) CompleteGeneratedReport(ctx context.Context, id string, c ReportCompletion) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE generated_reports SET status='completed',file_name=?,mime_type=?,content=?,completed_at=?,error='' WHERE id=? AND status='pending'`,
		c.FileName, c.MIMEType, c.Content, formatTime(c.CompletedAt), id)
	if err != nil {
		return fmt.Errorf("complete report %s: %w", id, err)
	}
	return requireAffected(res, "pending report", id)
}

// FailGeneratedReport marks a report failed, keeping msg. Completed reports stay completed.
func (r Repo) FailGeneratedReport(ctx context.Context, id, msg string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE generated_reports SET status='failed',error=?,completed_at=? WHERE id=? AND status='pending'`,
		msg, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("fail report %s: %w", id, err)
	}
	return requireAffected(res, "pending report", id)
}

// RecordDelivery stores the outcome of a delivery attempt. A successful attempt
// sets sent_to and clears delivery_error; a failed one only sets delivery_error.
func (r Repo) RecordDelivery(ctx context.Context, id string, sentTo []string, deliveryErr string) error {
	var (
		res sql.Result
		err error
	)
	if deliveryErr != "" {
		res, err = r.DB.ExecContext(ctx, `UPDATE generated_reports SET delivery_error=? WHERE id=?`, deliveryErr, id)
	} else {
		var data string
		if data, err = marshalStrings(sentTo); err != nil {
			return err
		}
		res, err = r.DB.ExecContext(ctx, `UPDATE generated_reports SET sent_to_json=?,delivery_error='' WHERE id=?`, data, id)
	}
	if err != nil {
		return fmt.Errorf("record delivery %s: %w", id, err)
	}
	return requireAffected(res, "report", id)
}

// GetGeneratedReport returns a report including its content.
func (r Repo) GetGeneratedReport(ctx context.Context, id string) (domain.GeneratedReport, error) {
	g, err := scanGeneratedReport(r.DB.QueryRowContext(ctx, `SELECT `+generatedReportColumns+`,content FROM generated_reports WHERE id=?`, id), true)
	if err == sql.ErrNoRows {
		return g, domain.NotFound("report", id)
	}
	return g, err
}

// ListGeneratedReports returns newest reports first, without content.
func (r Repo) ListGeneratedReports(ctx context.Context, f GeneratedReportFilter) ([]domain.GeneratedReport, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ReportConfigID != "" {
		clauses = append(clauses, "report_config_id=?")
		args = append(args, f.ReportConfigID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + generatedReportColumns + ` FROM generated_reports` + whereClause(clauses) + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	var res []domain.GeneratedReport
	for rows.Next() {
		g, err := scanGeneratedReport(rows, false)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func requireAffected(res sql.Result, kind, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.NotFound(kind, id)
	}
	return nil
}
