// Package metrics reduces project, task, partner and reminder snapshots into
// overview counts, distributions and per-entity rollups.
package metrics

import (
	"sort"
	"time"

	"pulseboard/internal/domain"
)

// Snapshot is the read-only input of one aggregation.
type Snapshot struct {
	Projects  []domain.Project  `json:"projects" yaml:"projects"`
	Tasks     []domain.Task     `json:"tasks" yaml:"tasks"`
	Partners  []domain.Partner  `json:"partners" yaml:"partners"`
	Reminders []domain.Reminder `json:"reminders" yaml:"reminders"`
}

// Overview holds the headline counts shown on the dashboard.
type Overview struct {
	TotalProjects     int     `json:"total_projects"`
	ActiveProjects    int     `json:"active_projects"`
	CompletedProjects int     `json:"completed_projects"`
	TotalTasks        int     `json:"total_tasks"`
	CompletedTasks    int     `json:"completed_tasks"`
	PendingTasks      int     `json:"pending_tasks"`
	OverdueTasks      int     `json:"overdue_tasks"`
	TotalPartners     int     `json:"total_partners"`
	ActivePartners    int     `json:"active_partners"`
	PendingReminders  int     `json:"pending_reminders"`
	CompletionRate    float64 `json:"completion_rate"`
}

// Distributions groups counts by a single attribute. Groups with no members are absent.
type Distributions struct {
	TasksByStatus    map[string]int `json:"tasks_by_status"`
	TasksByPriority  map[string]int `json:"tasks_by_priority"`
	TasksByType      map[string]int `json:"tasks_by_type"`
	ProjectsByStatus map[string]int `json:"projects_by_status"`
}

// ProjectTasks is the per-project task rollup.
type ProjectTasks struct {
	ProjectID string `json:"project_id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Overdue   int    `json:"overdue"`
}

// PartnerTasks is the per-partner task rollup.
type PartnerTasks struct {
	PartnerID   string  `json:"partner_id"`
	PartnerName string  `json:"partner_name"`
	Active      int     `json:"active_tasks"`
	Completed   int     `json:"completed_tasks"`
	Rate        float64 `json:"completion_rate"`
}

// AssigneeLoad is the open workload of one assignee.
type AssigneeLoad struct {
	AssigneeID string `json:"assignee_id"`
	Open       int    `json:"open_tasks"`
	Overdue    int    `json:"overdue_tasks"`
}

// Result bundles everything one aggregation pass produces.
type Result struct {
	Overview      Overview                `json:"overview"`
	Distributions Distributions           `json:"distributions"`
	ByProject     map[string]ProjectTasks `json:"by_project"`
	ByPartner     []PartnerTasks          `json:"by_partner"`
	Workload      []AssigneeLoad          `json:"workload"`
}

// IsActiveProject reports whether a project is counted as active. Drafts are not
// yet running and completed/cancelled projects are finished.
func IsActiveProject(p domain.Project) bool {
	switch p.Status {
	case domain.ProjectPlanning, domain.ProjectInProgress, domain.ProjectReview, domain.ProjectOnHold:
		return true
	}
	return false
}

// Aggregate performs the full reduction at now.
func Aggregate(s Snapshot, now time.Time) Result {
	return Result{
		Overview:      ComputeOverview(s, now),
		Distributions: ComputeDistributions(s),
		ByProject:     TasksByProject(s.Tasks, now),
		ByPartner:     TasksByPartner(s.Partners, s.Tasks),
		Workload:      WorkloadByAssignee(s.Tasks, now),
	}
}

// ComputeOverview returns the headline counts.
func ComputeOverview(s Snapshot, now time.Time) Overview {
	var o Overview
	o.TotalProjects = len(s.Projects)
	for _, p := range s.Projects {
		if IsActiveProject(p) {
			o.ActiveProjects++
		}
		if p.Status == domain.ProjectCompleted {
			o.CompletedProjects++
		}
	}
	o.TotalTasks = len(s.Tasks)
	for _, t := range s.Tasks {
		switch t.Status {
		case domain.TaskCompleted:
			o.CompletedTasks++
		case domain.TaskTodo, domain.TaskInProgress:
			o.PendingTasks++
		}
		if t.IsOverdue(now) {
			o.OverdueTasks++
		}
	}
	o.TotalPartners = len(s.Partners)
	for _, p := range s.Partners {
		if p.Status == domain.PartnerActive {
			o.ActivePartners++
		}
	}
	for _, r := range s.Reminders {
		if r.Status == domain.ReminderPending {
			o.PendingReminders++
		}
	}
	o.CompletionRate = Percent(o.CompletedTasks, o.TotalTasks)
	return o
}

// ComputeDistributions groups tasks and projects by their categorical fields.
func ComputeDistributions(s Snapshot) Distributions {
	return Distributions{
		TasksByStatus:    GroupCount(s.Tasks, func(t domain.Task) string { return t.Status }),
		TasksByPriority:  GroupCount(s.Tasks, func(t domain.Task) string { return t.Priority }),
		TasksByType:      GroupCount(s.Tasks, func(t domain.Task) string { return t.Type }),
		ProjectsByStatus: GroupCount(s.Projects, func(p domain.Project) string { return p.Status }),
	}
}

// GroupCount counts items by key. Empty keys are skipped.
func GroupCount[T any](items []T, key func(T) string) map[string]int {
	out := map[string]int{}
	for _, it := range items {
		k := key(it)
		if k == "" {
			continue
		}
		out[k]++
	}
	return out
}

// TasksByProject rolls tasks up per project id.
func TasksByProject(tasks []domain.Task, now time.Time) map[string]ProjectTasks {
	out := map[string]ProjectTasks{}
	for _, t := range tasks {
		pt := out[t.ProjectID]
		pt.ProjectID = t.ProjectID
		pt.Total++
		if t.Status == domain.TaskCompleted {
			pt.Completed++
		}
		if t.IsOverdue(now) {
			pt.Overdue++
		}
		out[t.ProjectID] = pt
	}
	return out
}

// TasksByPartner returns one rollup per known partner, busiest first.
func TasksByPartner(partners []domain.Partner, tasks []domain.Task) []PartnerTasks {
	idx := make(map[string]int, len(partners))
	out := make([]PartnerTasks, 0, len(partners))
	for _, p := range partners {
		idx[p.ID] = len(out)
		out = append(out, PartnerTasks{PartnerID: p.ID, PartnerName: p.Name})
	}
	for _, t := range tasks {
		if t.PartnerID == nil {
			continue
		}
		i, ok := idx[*t.PartnerID]
		if !ok {
			continue
		}
		switch {
		case t.Status == domain.TaskCompleted:
			out[i].Completed++
		case !t.IsClosed():
			out[i].Active++
		}
	}
	for i := range out {
		out[i].Rate = Percent(out[i].Completed, out[i].Completed+out[i].Active)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return out[i].Completed > out[j].Completed
		}
		return out[i].PartnerID < out[j].PartnerID
	})
	return out
}

// WorkloadByAssignee counts open and overdue tasks for every assignee.
func WorkloadByAssignee(tasks []domain.Task, now time.Time) []AssigneeLoad {
	loads := map[string]*AssigneeLoad{}
	for _, t := range tasks {
		if t.AssigneeID == nil || t.IsClosed() {
			continue
		}
		l, ok := loads[*t.AssigneeID]
		if !ok {
			l = &AssigneeLoad{AssigneeID: *t.AssigneeID}
			loads[*t.AssigneeID] = l
		}
		l.Open++
		if t.IsOverdue(now) {
			l.Overdue++
		}
	}
	out := make([]AssigneeLoad, 0, len(loads))
	for _, l := range loads {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Open != out[j].Open {
			return out[i].Open > out[j].Open
		}
		return out[i].AssigneeID < out[j].AssigneeID
	})
	return out
}

// FilterForUser narrows a snapshot to what one user is involved in: projects they
// own or have tasks in, and tasks assigned to them. Partners and reminders are kept.
func FilterForUser(s Snapshot, userID string) Snapshot {
	if userID == "" {
		return s
	}
	var tasks []domain.Task
	involved := map[string]bool{}
	for _, t := range s.Tasks {
		if t.AssigneeID != nil && *t.AssigneeID == userID {
			tasks = append(tasks, t)
			involved[t.ProjectID] = true
		}
	}
	var projects []domain.Project
	for _, p := range s.Projects {
		if involved[p.ID] || (p.OwnerID != nil && *p.OwnerID == userID) {
			projects = append(projects, p)
		}
	}
	return Snapshot{Projects: projects, Tasks: tasks, Partners: s.Partners, Reminders: s.Reminders}
}

// IndexTasks groups tasks by project id in one pass.
func IndexTasks(tasks []domain.Task) map[string][]domain.Task {
	out := map[string][]domain.Task{}
	for _, t := range tasks {
		out[t.ProjectID] = append(out[t.ProjectID], t)
	}
	return out
}

// Percent returns part/total*100 rounded to one decimal, or 0 when total is 0.
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return Round1(float64(part) / float64(total) * 100)
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	if v < 0 {
		return -Round1(-v)
	}
	return float64(int64(v*10+0.5)) / 10
}
