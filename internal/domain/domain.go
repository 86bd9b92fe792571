package domain

import "time"

// Project statuses.
const (
	ProjectDraft      = "draft"
	ProjectPlanning   = "planning"
	ProjectInProgress = "in_progress"
	ProjectReview     = "review"
	ProjectCompleted  = "completed"
	ProjectOnHold     = "on_hold"
	ProjectCancelled  = "cancelled"
)

// Task statuses.
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskReview     = "review"
	TaskWaiting    = "waiting"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

// Partner statuses.
const (
	PartnerActive   = "active"
	PartnerInactive = "inactive"
)

// Reminder statuses.
const (
	ReminderPending   = "pending"
	ReminderSent      = "sent"
	ReminderDismissed = "dismissed"
)

// Report periods. PeriodCustom is only valid for generated reports.
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodCustom  = "custom"
)

// Report config statuses.
const (
	ConfigActive = "active"
	ConfigPaused = "paused"
)

// Generated report statuses.
const (
	ReportPending   = "pending"
	ReportCompleted = "completed"
	ReportFailed    = "failed"
)

// Report output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// Project is a read-only snapshot of a tracked project.
type Project struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Status     string     `json:"status" yaml:"status" enum:"draft,planning,in_progress,review,completed,on_hold,cancelled"`
	Progress   int        `json:"progress" yaml:"progress" minimum:"0" maximum:"100"`
	StartDate  *time.Time `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Budget     *float64   `json:"budget,omitempty" yaml:"budget,omitempty"`
	ActualCost *float64   `json:"actual_cost,omitempty" yaml:"actual_cost,omitempty"`
	OwnerID    *string    `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	PartnerIDs []string   `json:"partner_ids,omitempty" yaml:"partner_ids,omitempty"`
}

// IsOpen reports whether the project still counts towards risk classification.
func (p Project) IsOpen() bool {
	return p.Status != ProjectCompleted && p.Status != ProjectCancelled
}

// Task is a read-only snapshot of a project task.
type Task struct {
	ID          string     `json:"id" yaml:"id"`
	ProjectID   string     `json:"project_id" yaml:"project_id"`
	Title       string     `json:"title,omitempty" yaml:"title,omitempty"`
	Type        string     `json:"type,omitempty" yaml:"type,omitempty"`
	AssigneeID  *string    `json:"assignee_id,omitempty" yaml:"assignee_id,omitempty"`
	PartnerID   *string    `json:"partner_id,omitempty" yaml:"partner_id,omitempty"`
	Status      string     `json:"status" yaml:"status" enum:"todo,in_progress,review,waiting,completed,cancelled"`
	Priority    string     `json:"priority,omitempty" yaml:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
}

// IsClosed reports whether the task is completed or cancelled.
func (t Task) IsClosed() bool {
	return t.Status == TaskCompleted || t.Status == TaskCancelled
}

// IsOverdue reports whether the task is past due and still open at now.
func (t Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && !t.IsClosed()
}

// Partner is a read-only snapshot of a collaborating partner organisation.
type Partner struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Type   string `json:"type,omitempty" yaml:"type,omitempty"`
	Status string `json:"status" yaml:"status" enum:"active,inactive"`
}

// Reminder is a read-only snapshot of a scheduled reminder.
type Reminder struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	ProjectID *string   `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	RemindAt  time.Time `json:"remind_at" yaml:"remind_at"`
	Status    string    `json:"status" yaml:"status" enum:"pending,sent,dismissed"`
}

// ReportConfig is a recurring report schedule owned by the engine.
type ReportConfig struct {
	ID          string     `json:"id"`
	Name        string     `json:"name" validate:"required,max=200"`
	Description *string    `json:"description,omitempty"`
	Period      string     `json:"period" enum:"weekly,monthly" validate:"required,oneof=weekly monthly"`
	DayOfWeek   *int       `json:"day_of_week,omitempty" validate:"omitempty,min=0,max=6"`
	DayOfMonth  *int       `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	SendTime    string     `json:"send_time" example:"09:00" validate:"required,sendtime"`
	Recipients  []string   `json:"recipients" validate:"required,min=1,dive,required,email"`
	Format      string     `json:"format" enum:"csv,xlsx,json" validate:"omitempty,oneof=csv xlsx json"`
	Status      string     `json:"status" enum:"active,paused" validate:"omitempty,oneof=active paused"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// GeneratedReport is one concrete report output.
type GeneratedReport struct {
	ID             string     `json:"id"`
	ReportConfigID *string    `json:"report_config_id,omitempty"`
	Title          string     `json:"title"`
	Period         string     `json:"period" enum:"weekly,monthly,custom"`
	Format         string     `json:"format" enum:"csv,xlsx,json"`
	DateRangeStart time.Time  `json:"date_range_start"`
	DateRangeEnd   time.Time  `json:"date_range_end"`
	Status         string     `json:"status" enum:"pending,completed,failed"`
	SentTo         []string   `json:"sent_to"`
	FileName       string     `json:"file_name,omitempty"`
	MIMEType       string     `json:"mime_type,omitempty"`
	Content        []byte     `json:"-"`
	Error          string     `json:"error,omitempty"`
	DeliveryError  string     `json:"delivery_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Event is an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
