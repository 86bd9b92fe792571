package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pulseboard/internal/domain"
)

// Event types.
const (
	ReportConfigCreated   = "report_config.created"
	ReportConfigUpdated   = "report_config.updated"
	ReportConfigDeleted   = "report_config.deleted"
	ReportConfigActivated = "report_config.activated"
	ReportConfigPaused    = "report_config.paused"
	ReportGenerated       = "report.generated"
	ReportFailed          = "report.failed"
	ReportDelivered       = "report.delivered"
	ReportDeliveryFailed  = "report.delivery_failed"
	SnapshotImported      = "snapshot.imported"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event through ex, or through the writer's DB when ex is nil.
func (w Writer) Append(ctx context.Context, ex Execer, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if ex == nil {
		ex = w.DB
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

// Filter narrows List.
type Filter struct {
	Type     string
	EntityID string
	Limit    int
}

// List returns the most recent events first.
func (w Writer) List(ctx context.Context, f Filter) ([]domain.Event, error) {
	q := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE 1=1`
	var args []any
	if f.Type != "" {
		q += ` AND type=?`
		args = append(args, f.Type)
	}
	if f.EntityID != "" {
		q += ` AND entity_id=?`
		args = append(args, f.EntityID)
	}
	q += ` ORDER BY id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := w.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
