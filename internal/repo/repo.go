// Package repo is the reference server's persistence layer: a generic
// record store keyed by (collection, id) with a monotonically increasing
// change log feeding the realtime subscription primitive.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsline/internal/changelog"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

// Collections is the closed set of tables the server serves.
var Collections = []string{"sops", "job_tasks", "jobs", "work_entries", "activity_logs"}

func ValidCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) changes() changelog.Writer {
	return changelog.Writer{DB: r.DB, Now: r.Now}
}

// ListRecords returns payloads for a collection, oldest first. Filters
// match top-level JSON fields by equality.
func (r Repo) ListRecords(ctx context.Context, table string, filters map[string]string) ([]json.RawMessage, error) {
	clauses := []string{"table_name=?"}
	args := []any{table}
	for field, value := range filters {
		if !validFieldName(field) {
			return nil, fmt.Errorf("invalid filter field %q", field)
		}
		clauses = append(clauses, fmt.Sprintf("json_extract(payload_json,'$.%s')=?", field))
		args = append(args, value)
	}
	query := `SELECT payload_json FROM records WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []json.RawMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(payload))
	}
	return out, rows.Err()
}

func (r Repo) GetRecord(ctx context.Context, table, id string) (json.RawMessage, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload_json FROM records WHERE table_name=? AND id=?`, table, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

// InsertRecord stores a new record. The server assigns the id; any id in
// the submitted payload (a client-side optimistic id) is discarded.
func (r Repo) InsertRecord(ctx context.Context, table string, payload json.RawMessage, actorID string) (json.RawMessage, error) {
	fields, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC().Format(time.RFC3339)
	id := uuid.New().String()
	fields["id"] = id
	fields["created_at"] = now
	fields["updated_at"] = now
	if actorID != "" {
		fields["created_by"] = actorID
	}
	stored, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO records(table_name,id,payload_json,created_at,updated_at,created_by) VALUES (?,?,?,?,?,?)`,
		table, id, string(stored), now, now, nullable(actorID)); err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	if err := r.changes().Append(ctx, tx, table, changelog.OpInsert, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

// UpdateRecord merges partial top-level fields into the stored payload.
// The id is immutable; a partial carrying one is ignored.
func (r Repo) UpdateRecord(ctx context.Context, table, id string, partial json.RawMessage) (json.RawMessage, error) {
	existing, err := r.GetRecord(ctx, table, id)
	if err != nil {
		return nil, err
	}
	fields, err := decodeObject(existing)
	if err != nil {
		return nil, err
	}
	patch, err := decodeObject(partial)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		if k == "id" || k == "created_at" || k == "created_by" {
			continue
		}
		fields[k] = v
	}
	now := r.now().UTC().Format(time.RFC3339)
	fields["updated_at"] = now
	stored, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE records SET payload_json=?, updated_at=? WHERE table_name=? AND id=?`,
		string(stored), now, table, id)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	if err := r.changes().Append(ctx, tx, table, changelog.OpUpdate, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r Repo) DeleteRecord(ctx context.Context, table, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE table_name=? AND id=?`, table, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := r.changes().Append(ctx, tx, table, changelog.OpDelete, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Change is one change-feed row.
type Change struct {
	Seq      int64  `json:"seq"`
	Table    string `json:"table"`
	Op       string `json:"op"`
	RecordID string `json:"record_id"`
	TS       string `json:"ts"`
}

// ChangesAfter returns up to limit feed rows for a table with seq
// greater than after, in seq order.
func (r Repo) ChangesAfter(ctx context.Context, table string, after int64, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT seq,table_name,op,record_id,ts FROM changes WHERE table_name=? AND seq>? ORDER BY seq LIMIT ?`,
		table, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Seq, &c.Table, &c.Op, &c.RecordID, &c.TS); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("record payload must be a JSON object: %w", err)
	}
	return fields, nil
}

func validFieldName(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
