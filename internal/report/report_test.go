package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pulseboard/internal/domain"
	"pulseboard/internal/metrics"
	"pulseboard/internal/report"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)

func TestResolveRangeWeeklySpansSevenDays(t *testing.T) {
	for _, at := range []time.Time{now, time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)} {
		r, err := report.ResolveRange(domain.PeriodWeekly, at, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, at, r.End)
		assert.Equal(t, 7*24*time.Hour, r.End.Sub(r.Start))
	}
}

func TestResolveRangeWeeklyAcrossDaylightSaving(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	// clocks jump forward on 2024-03-31 and back on 2024-10-27
	for _, at := range []time.Time{
		time.Date(2024, 4, 2, 9, 0, 0, 0, berlin),
		time.Date(2024, 10, 30, 9, 0, 0, 0, berlin),
	} {
		r, err := report.ResolveRange(domain.PeriodWeekly, at, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, report.Week, r.End.Sub(r.Start), at.String())
	}
}

func TestResolveRangeMonthly(t *testing.T) {
	r, err := report.ResolveRange(domain.PeriodMonthly, now, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 12, 16, 9, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, now, r.End)
}

func TestResolveRangeCustom(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	r, err := report.ResolveRange(domain.PeriodCustom, now, &start, &end)
	require.NoError(t, err)
	assert.Equal(t, report.Range{Start: start, End: end}, r)

	_, err = report.ResolveRange(domain.PeriodCustom, now, &end, &start)
	assert.True(t, domain.IsInvalidRange(err))

	_, err = report.ResolveRange(domain.PeriodCustom, now, &start, nil)
	assert.True(t, domain.IsInvalidRange(err))

	_, err = report.ResolveRange("yearly", now, nil, nil)
	assert.True(t, domain.IsInvalidRange(err))
}

func snapshot() metrics.Snapshot {
	inside := now.AddDate(0, 0, -2)
	before := now.AddDate(0, 0, -30)
	return metrics.Snapshot{
		Projects: []domain.Project{
			{ID: "p1", Name: "Alpha, Inc rollout", Status: domain.ProjectInProgress, Progress: 10,
				StartDate: ptr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), EndDate: ptr(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))},
			{ID: "p2", Name: "Beta", Status: domain.ProjectCompleted, Progress: 100},
		},
		Tasks: []domain.Task{
			{ID: "t1", ProjectID: "p1", Status: domain.TaskTodo, Priority: "high", CreatedAt: inside, DueDate: ptr(now.AddDate(0, 0, -1))},
			{ID: "t2", ProjectID: "p1", Status: domain.TaskCompleted, Priority: "low", CreatedAt: before, CompletedAt: &inside},
			{ID: "t3", ProjectID: "p2", Status: domain.TaskCompleted, Priority: "low", CreatedAt: before, CompletedAt: &before},
		},
	}
}

func TestBuildScopesTasksToRange(t *testing.T) {
	r, err := report.ResolveRange(domain.PeriodWeekly, now, nil, nil)
	require.NoError(t, err)
	b := report.Build(snapshot(), r, "Weekly", domain.PeriodWeekly, now)

	assert.Equal(t, 2, b.Overview.TotalTasks)
	assert.Equal(t, 1, b.Overview.CompletedTasks)
	assert.Equal(t, 1, b.Overview.OverdueTasks)
	assert.Equal(t, map[string]int{"high": 1, "low": 1}, b.TasksByPriority)
	require.Len(t, b.HealthScores, 2)
	assert.Equal(t, 2, b.HealthStats.ProjectCount)
	require.Len(t, b.ProjectsAtRisk, 1)
	assert.Equal(t, "p1", b.ProjectsAtRisk[0].ProjectID)
	assert.Equal(t, now, b.Meta.GeneratedAt)
}

func TestRenderCSV(t *testing.T) {
	r, _ := report.ResolveRange(domain.PeriodWeekly, now, nil, nil)
	f, err := report.Render(report.Build(snapshot(), r, "Weekly", domain.PeriodWeekly, now), domain.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "report-weekly-2024-01-16.csv", f.FileName)
	assert.Equal(t, report.MIMECSV, f.MIMEType)
	require.True(t, bytes.HasPrefix(f.Content, []byte{0xEF, 0xBB, 0xBF}))

	body := string(f.Content[3:])
	assert.True(t, strings.HasPrefix(body, "Report\nField,Value\n"))
	assert.Contains(t, body, "\n\nOverview\nMetric,Value\nTotal Projects,2\n")
	// text with a delimiter is quoted, numbers are not
	assert.Contains(t, body, `p1,"Alpha, Inc rollout",`)
	assert.Contains(t, body, "Completion Rate,50\n")
}

func TestRenderCSVQuotesOnlyWhenNeeded(t *testing.T) {
	out, err := report.RenderCSV([]report.Section{{
		Title:  "S",
		Header: []string{"a", "b", "c"},
		Rows:   [][]any{{"plain", 12, 3.5}, {`say "hi"`, 0, 0.0}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "S\na,b,c\nplain,12,3.5\n\"say \"\"hi\"\"\",0,0\n", string(out[3:]))
}

func TestRenderXLSX(t *testing.T) {
	r, _ := report.ResolveRange(domain.PeriodMonthly, now, nil, nil)
	f, err := report.Render(report.Build(snapshot(), r, "Monthly", domain.PeriodMonthly, now), domain.FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "report-monthly-2024-01-16.xlsx", f.FileName)

	wb, err := excelize.OpenReader(bytes.NewReader(f.Content))
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"Report", "Overview", "Tasks by Status", "Tasks by Priority", "Project Health", "Health Distribution", "Projects at Risk"}, wb.GetSheetList())
	v, err := wb.GetCellValue("Overview", "B2")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestRenderJSONAndUnknownFormat(t *testing.T) {
	r, _ := report.ResolveRange(domain.PeriodWeekly, now, nil, nil)
	b := report.Build(snapshot(), r, "Weekly", domain.PeriodWeekly, now)
	f, err := report.Render(b, domain.FormatJSON)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(f.Content, &decoded))
	assert.Contains(t, decoded, "health_statistics")

	_, err = report.Render(b, "pdf")
	assert.True(t, domain.IsInvalidRange(err))
}
