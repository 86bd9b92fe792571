package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/delivery"
	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/events"
	"pulseboard/internal/metrics"
	"pulseboard/internal/migrate"
	"pulseboard/internal/repo"
)

func ptr[T any](v T) *T { return &v }

// 2024-01-17 is a Wednesday.
var t0 = time.Date(2024, 1, 17, 10, 0, 0, 0, time.UTC)

type recordingTransport struct {
	mu   sync.Mutex
	msgs []delivery.Message
	err  error
}

func (r *recordingTransport) Deliver(_ context.Context, msg delivery.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingTransport) delivered() []delivery.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery.Message(nil), r.msgs...)
}

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Transport *recordingTransport
	clock     *time.Time
}

func (env testEnv) setNow(t time.Time) { *env.clock = t }

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	clock := t0
	tr := &recordingTransport{}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return clock }
	eng.Transport = tr
	env := testEnv{Engine: eng, Ctx: context.Background(), Transport: tr, clock: &clock}

	_, err = eng.ImportSnapshot(env.Ctx, fixtureSnapshot(), "tester")
	require.NoError(t, err)
	return env
}

func fixtureSnapshot() metrics.Snapshot {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	done := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	return metrics.Snapshot{
		Projects: []domain.Project{
			{ID: "p1", Name: "Apollo", Status: domain.ProjectInProgress, Progress: 50, StartDate: &start, EndDate: &end, Budget: ptr(1000.0), ActualCost: ptr(1500.0), OwnerID: ptr("alice")},
			{ID: "p2", Name: "Borealis", Status: domain.ProjectPlanning, Progress: 10, StartDate: &start, EndDate: &late},
			{ID: "p3", Name: "Cassini", Status: domain.ProjectCancelled},
		},
		Tasks: []domain.Task{
			{ID: "t1", ProjectID: "p1", Status: domain.TaskCompleted, Priority: "high", DueDate: &due, CompletedAt: &done, CreatedAt: created},
			{ID: "t2", ProjectID: "p1", Status: domain.TaskTodo, Priority: "low", DueDate: &due, AssigneeID: ptr("bob"), CreatedAt: created},
			{ID: "t3", ProjectID: "p2", Status: domain.TaskInProgress, Priority: "high", CreatedAt: created},
		},
		Partners: []domain.Partner{{ID: "acme", Name: "Acme", Status: domain.PartnerActive}},
		Reminders: []domain.Reminder{
			{ID: "r1", Title: "Kickoff", RemindAt: t0.Add(time.Hour), Status: domain.ReminderPending},
		},
	}
}

func weeklyInput(name string) engine.ReportConfigInput {
	return engine.ReportConfigInput{
		Name:       name,
		Period:     domain.PeriodWeekly,
		DayOfWeek:  ptr(1),
		SendTime:   "09:00",
		Recipients: []string{"ops@example.com"},
		ActorID:    "tester",
	}
}

func TestCreateReportConfigValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]struct {
		mutate func(*engine.ReportConfigInput)
		field  string
	}{
		"missing name":       {func(in *engine.ReportConfigInput) { in.Name = "" }, "name"},
		"no recipients":      {func(in *engine.ReportConfigInput) { in.Recipients = []string{} }, "recipients"},
		"bad recipient":      {func(in *engine.ReportConfigInput) { in.Recipients = []string{"not-an-address"} }, "recipients[0]"},
		"bad send time":      {func(in *engine.ReportConfigInput) { in.SendTime = "25:00" }, "send_time"},
		"weekly without day": {func(in *engine.ReportConfigInput) { in.DayOfWeek = nil }, "day_of_week"},
		"day out of range":   {func(in *engine.ReportConfigInput) { in.DayOfWeek = ptr(7) }, "day_of_week"},
		"monthly with weekday": {func(in *engine.ReportConfigInput) {
			in.Period = domain.PeriodMonthly
			in.DayOfMonth = ptr(31)
		}, "day_of_week"},
		"bad period": {func(in *engine.ReportConfigInput) { in.Period = "daily" }, "period"},
		"bad format": {func(in *engine.ReportConfigInput) { in.Format = "pdf" }, "format"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := weeklyInput("Ops weekly")
			tc.mutate(&in)
			_, err := env.Engine.CreateReportConfig(env.Ctx, in)
			var ir domain.InvalidRangeError
			require.ErrorAs(t, err, &ir)
			assert.Equal(t, tc.field, ir.Field)
		})
	}
	all, err := env.Engine.ListReportConfigs(env.Ctx, repo.ReportConfigFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReportConfigLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateReportConfig(env.Ctx, weeklyInput("Ops weekly"))
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigActive, c.Status)
	assert.Equal(t, domain.FormatCSV, c.Format)
	require.NotNil(t, c.NextRunAt)
	monday := time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)
	assert.True(t, c.NextRunAt.Equal(monday), "next run %s", c.NextRunAt)

	c, err = env.Engine.Pause(env.Ctx, c.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigPaused, c.Status)
	assert.Nil(t, c.NextRunAt)

	first, err := env.Engine.Activate(env.Ctx, c.ID, "tester")
	require.NoError(t, err)
	second, err := env.Engine.Activate(env.Ctx, c.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigActive, second.Status)
	require.NotNil(t, second.NextRunAt)
	assert.True(t, first.NextRunAt.Equal(*second.NextRunAt))
	assert.True(t, second.NextRunAt.Equal(monday))

	evts, err := env.Engine.ListEvents(env.Ctx, events.Filter{EntityID: c.ID})
	require.NoError(t, err)
	require.Len(t, evts, 4)
	assert.Equal(t, events.ReportConfigActivated, evts[0].Type)
	assert.Equal(t, events.ReportConfigCreated, evts[3].Type)
}

func TestUpdateReportConfigSwitchesPeriod(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateReportConfig(env.Ctx, weeklyInput("Ops"))
	require.NoError(t, err)

	c, err = env.Engine.UpdateReportConfig(env.Ctx, c.ID, engine.ReportConfigPatch{
		Period:     ptr(domain.PeriodMonthly),
		ClearDays:  true,
		DayOfMonth: ptr(31),
		ActorID:    "tester",
	})
	require.NoError(t, err)
	assert.Nil(t, c.DayOfWeek)
	require.NotNil(t, c.NextRunAt)
	assert.True(t, c.NextRunAt.Equal(time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)))

	_, err = env.Engine.UpdateReportConfig(env.Ctx, "missing", engine.ReportConfigPatch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteReportConfigKeepsReports(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateReportConfig(env.Ctx, weeklyInput("Ops"))
	require.NoError(t, err)
	rep, err := env.Engine.GenerateNow(env.Ctx, &c.ID, "tester")
	require.NoError(t, err)

	require.NoError(t, env.Engine.DeleteReportConfig(env.Ctx, c.ID, "tester"))
	_, err = env.Engine.GetReportConfig(env.Ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, env.Engine.DeleteReportConfig(env.Ctx, c.ID, "tester"), domain.ErrNotFound)

	kept, err := env.Engine.GetGeneratedReport(env.Ctx, rep.ID)
	require.NoError(t, err)
	assert.Nil(t, kept.ReportConfigID)
}

// failingStore fails to complete reports of one config.
type failingStore struct {
	engine.Store
	failConfig string
}

func (s failingStore) CompleteGeneratedReport(ctx context.Context, id string, c repo.ReportCompletion) error {
	g, err := s.Store.GetGeneratedReport(ctx, id)
	if err != nil {
		return err
	}
	if g.ReportConfigID != nil && *g.ReportConfigID == s.failConfig {
		return errors.New("disk full")
	}
	return s.Store.CompleteGeneratedReport(ctx, id, c)
}

func TestTriggerScheduledIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	bad, err := env.Engine.CreateReportConfig(env.Ctx, weeklyInput("Bad"))
	require.NoError(t, err)
	good, err := env.Engine.CreateReportConfig(env.Ctx, weeklyInput("Good"))
	require.NoError(t, err)

	eng := env.Engine
	eng.Store = failingStore{Store: env.Engine.Store, failConfig: bad.ID}
	runAt := time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)
	env.setNow(runAt)

	summary, err := eng.TriggerScheduled(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Due)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Delivered)

	failed, err := eng.ListGeneratedReports(env.Ctx, repo.GeneratedReportFilter{ReportConfigID: bad.ID})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.ReportFailed, failed[0].Status)
	assert.Contains(t, failed[0].Error, "disk full")

	done, err := eng.ListGeneratedReports(env.Ctx, repo.GeneratedReportFilter{ReportConfigID: good.ID})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, domain.ReportCompleted, done[0].Status)
	assert.Equal(t, []string{"ops@example.com"}, done[0].SentTo)

	nextWeek := runAt.AddDate(0, 0, 7)
	for _, id := range []string{bad.ID, good.ID} {
		c, err := eng.GetReportConfig(env.Ctx, id)
		require.NoError(t, err)
		require.NotNil(t, c.NextRunAt)
		assert.True(t, c.NextRunAt.Equal(nextWeek), "config %s next run %s", id, c.NextRunAt)
		require.NotNil(t, c.LastRunAt)
		assert.True(t, c.LastRunAt.Equal(runAt))
	}

	msgs := env.Transport.delivered()
	require.Len(t, msgs, 1)
	assert.Equal(t, done[0].ID, msgs[0].ReportID)

	again, err := eng.TriggerScheduled(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Due)
}

func TestTriggerDeliveryFailureKeepsReportCompleted(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateReportConfig(env.Ctx, weeklyInput("Ops"))
	require.NoError(t, err)
	env.Transport.err = errors.New("smtp down")
	env.setNow(time.Date(2024, 1, 22, 9, 30, 0, 0, time.UTC))

	summary, err := env.Engine.TriggerScheduled(env.Ctx)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 1, summary.DeliveryFailed)
	assert.Equal(t, domain.ReportCompleted, summary.Results[0].Status)
	assert.Contains(t, summary.Results[0].DeliveryError, "smtp down")

	rep, err := env.Engine.GetGeneratedReport(env.Ctx, summary.Results[0].ReportID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportCompleted, rep.Status)
	assert.Equal(t, "smtp down", rep.DeliveryError)
	assert.Empty(t, rep.SentTo)

	env.Transport.err = nil
	rep, err = env.Engine.RedeliverReport(env.Ctx, rep.ID, nil, "tester")
	require.NoError(t, err)
	assert.Empty(t, rep.DeliveryError)
	assert.Equal(t, c.Recipients, rep.SentTo)
}

func TestGenerateReportWeeklyRange(t *testing.T) {
	env := newTestEnv(t)
	file, err := env.Engine.GenerateReport(env.Ctx, engine.ReportRequest{ReportType: domain.PeriodWeekly, Format: domain.FormatCSV})
	require.NoError(t, err)

	assert.Equal(t, "report-weekly-2024-01-17.csv", file.FileName)
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, file.FileContent[:3])
	rep := file.Report
	assert.Equal(t, domain.ReportCompleted, rep.Status)
	assert.Nil(t, rep.ReportConfigID)
	assert.True(t, rep.DateRangeEnd.Equal(t0))
	assert.Equal(t, 7*24*time.Hour, rep.DateRangeEnd.Sub(rep.DateRangeStart))
	assert.Equal(t, file.FileContent, rep.Content)
	assert.Empty(t, env.Transport.delivered())
}

// tickingClock advances a minute on every reading.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

func (c *tickingClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func TestWeeklyWindowEndsAtCreationAcrossDaylightSaving(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default()
	cfg.Timezone = "Europe/Berlin"
	// Saturday before the 2024-03-31 clock change.
	clock := &tickingClock{t: time.Date(2024, 3, 30, 12, 0, 0, 0, time.UTC)}
	eng := engine.New(conn, cfg)
	eng.Now = clock.now
	eng.Transport = &recordingTransport{}
	ctx := context.Background()

	_, err = eng.CreateReportConfig(ctx, weeklyInput("Ops"))
	require.NoError(t, err)
	clock.set(time.Date(2024, 4, 2, 7, 0, 0, 0, time.UTC))

	summary, err := eng.TriggerScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	require.Equal(t, domain.ReportCompleted, summary.Results[0].Status, summary.Results[0].Error)
	scheduled, err := eng.GetGeneratedReport(ctx, summary.Results[0].ReportID)
	require.NoError(t, err)

	file, err := eng.GenerateReport(ctx, engine.ReportRequest{ReportType: domain.PeriodWeekly, Format: domain.FormatJSON})
	require.NoError(t, err)

	for _, rep := range []domain.GeneratedReport{scheduled, file.Report} {
		assert.True(t, rep.DateRangeEnd.Equal(rep.CreatedAt), "range ends %s, created %s", rep.DateRangeEnd, rep.CreatedAt)
		assert.Equal(t, 7*24*time.Hour, rep.DateRangeEnd.Sub(rep.DateRangeStart))
	}
}

func TestGenerateReportRejectsBeforeStoring(t *testing.T) {
	env := newTestEnv(t)
	from := t0
	to := t0.Add(-time.Hour)
	_, err := env.Engine.GenerateReport(env.Ctx, engine.ReportRequest{ReportType: domain.PeriodCustom, StartDate: &from, EndDate: &to})
	assert.True(t, domain.IsInvalidRange(err))
	_, err = env.Engine.GenerateReport(env.Ctx, engine.ReportRequest{ReportType: domain.PeriodCustom, StartDate: &from})
	assert.True(t, domain.IsInvalidRange(err))
	_, err = env.Engine.GenerateReport(env.Ctx, engine.ReportRequest{ReportType: domain.PeriodWeekly, Format: "pdf"})
	assert.True(t, domain.IsInvalidRange(err))
	_, err = env.Engine.GenerateReport(env.Ctx, engine.ReportRequest{ReportType: "quarterly"})
	assert.True(t, domain.IsInvalidRange(err))

	reports, err := env.Engine.ListGeneratedReports(env.Ctx, repo.GeneratedReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestGenerateNowLeavesScheduleAlone(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateReportConfig(env.Ctx, weeklyInput("Ops"))
	require.NoError(t, err)
	env.setNow(t0.Add(2 * time.Hour))

	rep, err := env.Engine.GenerateNow(env.Ctx, &c.ID, "tester")
	require.NoError(t, err)
	require.NotNil(t, rep.ReportConfigID)
	assert.Equal(t, c.ID, *rep.ReportConfigID)
	assert.Equal(t, "Ops", rep.Title)

	after, err := env.Engine.GetReportConfig(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, after.NextRunAt.Equal(*c.NextRunAt))
	assert.Nil(t, after.LastRunAt)
	assert.Empty(t, env.Transport.delivered())

	adhoc, err := env.Engine.GenerateNow(env.Ctx, nil, "tester")
	require.NoError(t, err)
	assert.Nil(t, adhoc.ReportConfigID)
	assert.Equal(t, domain.PeriodWeekly, adhoc.Period)

	_, err = env.Engine.GenerateNow(env.Ctx, ptr("missing"), "tester")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedeliverRejectsFailedReport(t *testing.T) {
	env := newTestEnv(t)
	bad, err := env.Engine.CreateReportConfig(env.Ctx, weeklyInput("Bad"))
	require.NoError(t, err)
	eng := env.Engine
	eng.Store = failingStore{Store: env.Engine.Store, failConfig: bad.ID}

	_, err = eng.GenerateNow(env.Ctx, &bad.ID, "tester")
	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)

	_, err = eng.RedeliverReport(env.Ctx, genErr.ReportID, nil, "tester")
	assert.True(t, domain.IsInvalidRange(err))
	_, err = eng.RedeliverReport(env.Ctx, "missing", nil, "tester")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestViews(t *testing.T) {
	env := newTestEnv(t)

	overview, err := env.Engine.GetOverview(env.Ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, overview.Overview.TotalProjects)
	assert.Equal(t, 2, overview.Overview.ActiveProjects)
	assert.Equal(t, 3, overview.Overview.TotalTasks)
	assert.Equal(t, 1, overview.Overview.OverdueTasks)
	assert.Equal(t, 1, overview.Overview.PendingReminders)

	mine, err := env.Engine.GetOverview(env.Ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, mine.Overview.TotalTasks)

	scores, err := env.Engine.GetAllProjectsHealthScores(env.Ctx)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	for _, s := range scores {
		if s.ProjectID == "p1" {
			assert.Equal(t, 50.0, s.BudgetHealth)
		}
	}
	stats, err := env.Engine.GetHealthScoreStatistics(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ProjectCount)

	progress, err := env.Engine.GetProjectProgress(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.ByStatus[domain.ProjectCancelled])

	dash, err := env.Engine.GetManagerDashboard(env.Ctx, "monthly")
	require.NoError(t, err)
	assert.Equal(t, 3, dash.ProjectSummary.Total)

	_, err = env.Engine.GetManagerDashboard(env.Ctx, "fortnightly")
	assert.True(t, domain.IsInvalidRange(err))
}

func TestImportSnapshotSummary(t *testing.T) {
	env := newTestEnv(t)
	s := fixtureSnapshot()
	s.Tasks = append(s.Tasks, domain.Task{ID: "t4", ProjectID: "p2", Status: domain.TaskCompleted})

	sum, err := env.Engine.ImportSnapshot(env.Ctx, s, "tester")
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Tasks)
	assert.Equal(t, 2, sum.OpenTasks)
	assert.Equal(t, metrics.GroupCount(s.Tasks, func(t domain.Task) string { return t.Status }), sum.TasksByStatus)

	_, err = env.Engine.ImportSnapshot(env.Ctx, metrics.Snapshot{Tasks: []domain.Task{{ID: "x"}}}, "tester")
	assert.True(t, domain.IsInvalidRange(err))
}

func TestParseSnapshot(t *testing.T) {
	yamlDoc := []byte(`
projects:
  - id: p1
    name: Apollo
    status: in_progress
    progress: 40
    end_date: 2024-02-01T00:00:00Z
tasks:
  - id: t1
    project_id: p1
    status: todo
    created_at: 2024-01-05T00:00:00Z
`)
	s, err := engine.ParseSnapshot(yamlDoc)
	require.NoError(t, err)
	require.Len(t, s.Projects, 1)
	require.NotNil(t, s.Projects[0].EndDate)
	assert.Equal(t, 2024, s.Projects[0].EndDate.Year())
	require.Len(t, s.Tasks, 1)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), s.Tasks[0].CreatedAt)

	jsonDoc := []byte(`{"partners":[{"id":"acme","name":"Acme","status":"active"}]}`)
	s, err = engine.ParseSnapshot(jsonDoc)
	require.NoError(t, err)
	require.Len(t, s.Partners, 1)
	assert.Equal(t, "Acme", s.Partners[0].Name)

	_, err = engine.ParseSnapshot([]byte("{not json"))
	assert.Error(t, err)
}
