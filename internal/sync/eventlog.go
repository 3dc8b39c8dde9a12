package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const (
	EventAttemptStarted   = "AttemptStarted"
	EventAttemptCompleted = "AttemptCompleted"
)

type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// Execer is satisfied by *sql.DB and *sql.Tx, so events can be written in the
// same transaction as the change they describe.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type EventRepo struct {
	db     *sql.DB
	siteID string
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID}
}

// Append writes e through ex, or through the repo's own handle when ex is nil.
func (r *EventRepo) Append(ctx context.Context, ex Execer, e Event) error {
	if ex == nil {
		ex = r.db
	}
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Record marshals payload and appends it under typ/key.
func (r *EventRepo) Record(ctx context.Context, ex Execer, typ, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.Append(ctx, ex, Event{Type: typ, Key: key, DataJSON: string(b)})
}

// List returns events for key in append order.
func (r *EventRepo) List(ctx context.Context, key string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE key=$1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
