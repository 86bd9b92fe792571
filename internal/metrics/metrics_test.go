package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulseboard/internal/domain"
	"pulseboard/internal/metrics"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func fixture() metrics.Snapshot {
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)
	return metrics.Snapshot{
		Projects: []domain.Project{
			{ID: "p1", Status: domain.ProjectInProgress, OwnerID: ptr("alice")},
			{ID: "p2", Status: domain.ProjectCompleted},
			{ID: "p3", Status: domain.ProjectDraft},
			{ID: "p4", Status: domain.ProjectOnHold},
		},
		Tasks: []domain.Task{
			{ID: "t1", ProjectID: "p1", Status: domain.TaskTodo, Priority: "high", Type: "feature", AssigneeID: ptr("bob"), DueDate: &past, PartnerID: ptr("acme")},
			{ID: "t2", ProjectID: "p1", Status: domain.TaskInProgress, Priority: "low", AssigneeID: ptr("bob"), DueDate: &future},
			{ID: "t3", ProjectID: "p1", Status: domain.TaskCompleted, Priority: "high", Type: "bug", DueDate: &past, PartnerID: ptr("acme")},
			{ID: "t4", ProjectID: "p2", Status: domain.TaskCompleted, Priority: "medium", AssigneeID: ptr("carol")},
			{ID: "t5", ProjectID: "p4", Status: domain.TaskCancelled, DueDate: &past, AssigneeID: ptr("carol")},
			{ID: "t6", ProjectID: "p4", Status: domain.TaskWaiting, DueDate: &past, PartnerID: ptr("globex")},
		},
		Partners: []domain.Partner{
			{ID: "acme", Name: "Acme", Status: domain.PartnerActive},
			{ID: "globex", Name: "Globex", Status: domain.PartnerInactive},
			{ID: "initech", Name: "Initech", Status: domain.PartnerActive},
		},
		Reminders: []domain.Reminder{
			{ID: "r1", Status: domain.ReminderPending},
			{ID: "r2", Status: domain.ReminderSent},
		},
	}
}

func TestComputeOverview(t *testing.T) {
	o := metrics.ComputeOverview(fixture(), now)
	assert.Equal(t, metrics.Overview{
		TotalProjects:     4,
		ActiveProjects:    2,
		CompletedProjects: 1,
		TotalTasks:        6,
		CompletedTasks:    2,
		PendingTasks:      2,
		OverdueTasks:      2,
		TotalPartners:     3,
		ActivePartners:    2,
		PendingReminders:  1,
		CompletionRate:    33.3,
	}, o)
}

func TestEmptySnapshotYieldsZeros(t *testing.T) {
	r := metrics.Aggregate(metrics.Snapshot{}, now)
	assert.Equal(t, metrics.Overview{}, r.Overview)
	assert.Empty(t, r.Distributions.TasksByStatus)
	assert.Empty(t, r.ByProject)
	assert.Empty(t, r.ByPartner)
	assert.Empty(t, r.Workload)
}

func TestDistributionsOmitAbsentGroups(t *testing.T) {
	d := metrics.ComputeDistributions(fixture())
	assert.Equal(t, map[string]int{"todo": 1, "in_progress": 1, "completed": 2, "cancelled": 1, "waiting": 1}, d.TasksByStatus)
	assert.Equal(t, map[string]int{"high": 2, "low": 1, "medium": 1}, d.TasksByPriority)
	assert.Equal(t, map[string]int{"feature": 1, "bug": 1}, d.TasksByType)
	_, ok := d.TasksByStatus["review"]
	assert.False(t, ok)
	assert.Equal(t, 1, d.ProjectsByStatus[domain.ProjectDraft])
}

func TestRollups(t *testing.T) {
	s := fixture()
	byProject := metrics.TasksByProject(s.Tasks, now)
	assert.Equal(t, metrics.ProjectTasks{ProjectID: "p1", Total: 3, Completed: 1, Overdue: 1}, byProject["p1"])
	assert.Equal(t, metrics.ProjectTasks{ProjectID: "p4", Total: 2, Overdue: 1}, byProject["p4"])

	partners := metrics.TasksByPartner(s.Partners, s.Tasks)
	require.Len(t, partners, 3)
	assert.Equal(t, metrics.PartnerTasks{PartnerID: "acme", PartnerName: "Acme", Active: 1, Completed: 1, Rate: 50}, partners[0])
	assert.Equal(t, "globex", partners[1].PartnerID)
	assert.Equal(t, 1, partners[1].Active)
	assert.Equal(t, "initech", partners[2].PartnerID)

	load := metrics.WorkloadByAssignee(s.Tasks, now)
	assert.Equal(t, []metrics.AssigneeLoad{{AssigneeID: "bob", Open: 2, Overdue: 1}}, load)
}

func TestFilterForUser(t *testing.T) {
	s := metrics.FilterForUser(fixture(), "bob")
	require.Len(t, s.Projects, 1)
	assert.Equal(t, "p1", s.Projects[0].ID)
	assert.Len(t, s.Tasks, 2)

	owned := metrics.FilterForUser(fixture(), "alice")
	require.Len(t, owned.Projects, 1)
	assert.Empty(t, owned.Tasks)

	all := metrics.FilterForUser(fixture(), "")
	assert.Len(t, all.Projects, 4)
}

func TestPercentAndRound(t *testing.T) {
	assert.Equal(t, 0.0, metrics.Percent(3, 0))
	assert.Equal(t, 66.7, metrics.Percent(2, 3))
	assert.Equal(t, -1.3, metrics.Round1(-1.26))
}
