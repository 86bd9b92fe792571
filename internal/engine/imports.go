package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"pulseboard/internal/domain"
	"pulseboard/internal/events"
	"pulseboard/internal/metrics"
	"pulseboard/internal/repo"
)

// ImportSummary describes the stored snapshot after an import.
type ImportSummary struct {
	Projects      int            `json:"projects"`
	Tasks         int            `json:"tasks"`
	Partners      int            `json:"partners"`
	Reminders     int            `json:"reminders"`
	TasksByStatus map[string]int `json:"tasks_by_status"`
	OpenTasks     int            `json:"open_tasks"`
}

// ParseSnapshot decodes a JSON or YAML snapshot document.
func ParseSnapshot(data []byte) (metrics.Snapshot, error) {
	var s metrics.Snapshot
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return s, fmt.Errorf("invalid snapshot json: %w", err)
		}
		return s, nil
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("invalid snapshot yaml: %w", err)
	}
	return s, nil
}

// ImportSnapshot upserts s into the store. Entities missing an id are rejected
// before anything is written.
func (e Engine) ImportSnapshot(ctx context.Context, s metrics.Snapshot, actorID string) (ImportSummary, error) {
	if err := checkSnapshot(s); err != nil {
		return ImportSummary{}, err
	}
	if err := e.Repo.ImportSnapshot(ctx, s, e.now()); err != nil {
		return ImportSummary{}, err
	}
	sum := ImportSummary{
		Projects:  len(s.Projects),
		Partners:  len(s.Partners),
		Reminders: len(s.Reminders),
	}
	var err error
	if sum.Tasks, err = e.Source.CountTasks(ctx, repo.TaskFilter{}); err != nil {
		return ImportSummary{}, err
	}
	if sum.TasksByStatus, err = e.Source.CountTasksBy(ctx, "status", repo.TaskFilter{}); err != nil {
		return ImportSummary{}, err
	}
	if sum.OpenTasks, err = e.Source.CountTasks(ctx, repo.TaskFilter{
		Statuses: []string{domain.TaskTodo, domain.TaskInProgress, domain.TaskReview, domain.TaskWaiting},
	}); err != nil {
		return ImportSummary{}, err
	}
	if err := e.appendEvent(ctx, events.SnapshotImported, "snapshot", "", actorID, events.EventPayload{
		"projects": sum.Projects, "tasks": len(s.Tasks), "partners": sum.Partners, "reminders": sum.Reminders,
	}); err != nil {
		return ImportSummary{}, err
	}
	return sum, nil
}

func checkSnapshot(s metrics.Snapshot) error {
	for i, p := range s.Projects {
		if p.ID == "" {
			return domain.InvalidRangeError{Field: fmt.Sprintf("projects[%d].id", i), Reason: "is required"}
		}
	}
	for i, t := range s.Tasks {
		if t.ID == "" || t.ProjectID == "" {
			return domain.InvalidRangeError{Field: fmt.Sprintf("tasks[%d]", i), Reason: "id and project_id are required"}
		}
	}
	for i, p := range s.Partners {
		if p.ID == "" {
			return domain.InvalidRangeError{Field: fmt.Sprintf("partners[%d].id", i), Reason: "is required"}
		}
	}
	for i, r := range s.Reminders {
		if r.ID == "" {
			return domain.InvalidRangeError{Field: fmt.Sprintf("reminders[%d].id", i), Reason: "is required"}
		}
	}
	return nil
}
