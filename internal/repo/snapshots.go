package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pulseboard/internal/domain"
	"pulseboard/internal/metrics"
)

// ProjectFilter narrows ListProjects. OrderBy accepts name, progress, end_date or
// id, prefixed with "-" for descending order.
type ProjectFilter struct {
	Statuses []string
	OwnerID  string
	OrderBy  string
	Limit    int
}

// TaskFilter narrows task queries.
type TaskFilter struct {
	ProjectID  string
	AssigneeID string
	Statuses   []string
	DueBefore  *time.Time
	OrderBy    string
	Limit      int
}

// ReminderFilter narrows ListReminders.
type ReminderFilter struct {
	Status string
	Limit  int
}

var projectOrder = map[string]string{"id": "id", "name": "name", "progress": "progress", "end_date": "end_date"}

var taskOrder = map[string]string{"id": "id", "due_date": "due_date", "created_at": "created_at", "priority": "priority"}

// taskGroupColumns lists the columns CountTasksBy may group on.
var taskGroupColumns = map[string]string{
	"status":      "status",
	"priority":    "priority",
	"type":        "type",
	"project_id":  "project_id",
	"assignee_id": "assignee_id",
	"partner_id":  "partner_id",
}

const projectColumns = `id,name,status,progress,start_date,end_date,budget,actual_cost,owner_id,partner_ids_json`

func scanProjectRow(row rowScanner) (domain.Project, error) {
	var (
		p          domain.Project
		start, end sql.NullString
		budget     sql.NullFloat64
		actual     sql.NullFloat64
		owner      sql.NullString
		partners   string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Status, &p.Progress, &start, &end, &budget, &actual, &owner, &partners); err != nil {
		return p, err
	}
	var err error
	if p.StartDate, err = parseNullTime(start); err != nil {
		return p, err
	}
	if p.EndDate, err = parseNullTime(end); err != nil {
		return p, err
	}
	p.Budget = floatPtr(budget)
	p.ActualCost = floatPtr(actual)
	p.OwnerID = stringPtr(owner)
	if p.PartnerIDs, err = unmarshalStrings(partners); err != nil {
		return p, err
	}
	if len(p.PartnerIDs) == 0 {
		p.PartnerIDs = nil
	}
	return p, nil
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilter) ([]domain.Project, error) {
	var (
		clauses []string
		args    []any
	)
	if len(f.Statuses) > 0 {
		var c string
		c, args = inClause("status", f.Statuses, args)
		clauses = append(clauses, c)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	query := `SELECT ` + projectColumns + ` FROM projects` + whereClause(clauses) + orderClause(f.OrderBy, projectOrder, "id")
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProjectRow(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return p, domain.NotFound("project", id)
	}
	return p, err
}

const taskColumns = `id,project_id,title,type,assignee_id,partner_id,status,priority,due_date,completed_at,created_at`

func scanTaskRow(row rowScanner) (domain.Task, error) {
	var (
		t                 domain.Task
		assignee, partner sql.NullString
		due, completed    sql.NullString
		createdAt         string
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Type, &assignee, &partner, &t.Status, &t.Priority, &due, &completed, &createdAt); err != nil {
		return t, err
	}
	var err error
	t.AssigneeID = stringPtr(assignee)
	t.PartnerID = stringPtr(partner)
	if t.DueDate, err = parseNullTime(due); err != nil {
		return t, err
	}
	if t.CompletedAt, err = parseNullTime(completed); err != nil {
		return t, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, err
	}
	return t, nil
}

func taskWhere(f TaskFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if len(f.Statuses) > 0 {
		var c string
		c, args = inClause("status", f.Statuses, args)
		clauses = append(clauses, c)
	}
	if f.DueBefore != nil {
		clauses = append(clauses, "due_date IS NOT NULL AND due_date < ?")
		args = append(args, formatTime(*f.DueBefore))
	}
	return whereClause(clauses), args
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	where, args := taskWhere(f)
	query := `SELECT ` + taskColumns + ` FROM tasks` + where + orderClause(f.OrderBy, taskOrder, "created_at, id")
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountTasks counts the tasks matching f. Order and limit are ignored.
func (r Repo) CountTasks(ctx context.Context, f TaskFilter) (int, error) {
	where, args := taskWhere(f)
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// CountTasksBy groups matching tasks on field. Rows with an empty or null key are
// left out, as the in-memory aggregation does.
func (r Repo) CountTasksBy(ctx context.Context, field string, f TaskFilter) (map[string]int, error) {
	col, ok := taskGroupColumns[field]
	if !ok {
		return nil, fmt.Errorf("count tasks: cannot group by %q", field)
	}
	where, args := taskWhere(f)
	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM tasks%s GROUP BY %s`, col, where, col), args...)
	if err != nil {
		return nil, fmt.Errorf("count tasks by %s: %w", field, err)
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var (
			key   sql.NullString
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		if key.Valid && key.String != "" {
			res[key.String] = count
		}
	}
	return res, rows.Err()
}

func (r Repo) ListPartners(ctx context.Context) ([]domain.Partner, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,type,status FROM partners ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()
	var res []domain.Partner
	for rows.Next() {
		var p domain.Partner
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.Status); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ListReminders(ctx context.Context, f ReminderFilter) ([]domain.Reminder, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT id,title,project_id,remind_at,status FROM reminders` + whereClause(clauses) + ` ORDER BY remind_at, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	var res []domain.Reminder
	for rows.Next() {
		var (
			rem     domain.Reminder
			project sql.NullString
			at      string
		)
		if err := rows.Scan(&rem.ID, &rem.Title, &project, &at, &rem.Status); err != nil {
			return nil, err
		}
		rem.ProjectID = stringPtr(project)
		if rem.RemindAt, err = parseTime(at); err != nil {
			return nil, err
		}
		res = append(res, rem)
	}
	return res, rows.Err()
}

// ImportSnapshot upserts every entity of s in one transaction. Tasks without a
// creation time are stamped with importedAt.
func (r Repo) ImportSnapshot(ctx context.Context, s metrics.Snapshot, importedAt time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range s.Projects {
		partners, err := marshalStrings(p.PartnerIDs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name,status=excluded.status,progress=excluded.progress,start_date=excluded.start_date,end_date=excluded.end_date,budget=excluded.budget,actual_cost=excluded.actual_cost,owner_id=excluded.owner_id,partner_ids_json=excluded.partner_ids_json`,
			p.ID, p.Name, p.Status, p.Progress, nullableTime(p.StartDate), nullableTime(p.EndDate), nullableFloatPtr(p.Budget), nullableFloatPtr(p.ActualCost), nullableStringPtr(p.OwnerID), partners); err != nil {
			return fmt.Errorf("import project %s: %w", p.ID, err)
		}
	}
	for _, p := range s.Partners {
		if _, err := tx.ExecContext(ctx, `INSERT INTO partners(id,name,type,status) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name,type=excluded.type,status=excluded.status`,
			p.ID, p.Name, p.Type, p.Status); err != nil {
			return fmt.Errorf("import partner %s: %w", p.ID, err)
		}
	}
	for _, t := range s.Tasks {
		created := t.CreatedAt
		if created.IsZero() {
			created = importedAt
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET project_id=excluded.project_id,title=excluded.title,type=excluded.type,assignee_id=excluded.assignee_id,partner_id=excluded.partner_id,status=excluded.status,priority=excluded.priority,due_date=excluded.due_date,completed_at=excluded.completed_at`,
			t.ID, t.ProjectID, t.Title, t.Type, nullableStringPtr(t.AssigneeID), nullableStringPtr(t.PartnerID), t.Status, t.Priority, nullableTime(t.DueDate), nullableTime(t.CompletedAt), formatTime(created)); err != nil {
			return fmt.Errorf("import task %s: %w", t.ID, err)
		}
	}
	for _, rem := range s.Reminders {
		if _, err := tx.ExecContext(ctx, `INSERT INTO reminders(id,title,project_id,remind_at,status) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET title=excluded.title,project_id=excluded.project_id,remind_at=excluded.remind_at,status=excluded.status`,
			rem.ID, rem.Title, nullableStringPtr(rem.ProjectID), formatTime(rem.RemindAt), rem.Status); err != nil {
			return fmt.Errorf("import reminder %s: %w", rem.ID, err)
		}
	}
	return tx.Commit()
}
