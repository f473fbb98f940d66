// Package changelog appends change-feed rows on the reference server.
// Every committed record mutation gets exactly one row, inside the same
// transaction, so subscribers never observe a change without its write.
package changelog

import (
	"context"
	"database/sql"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

func (w Writer) Append(ctx context.Context, tx *sql.Tx, table, op, recordID string) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO changes(table_name,op,record_id,ts) VALUES (?,?,?,?)`,
		table, op, recordID, ts)
	return err
}
