package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
  id INTEGER PRIMARY KEY,
  ts TEXT NOT NULL,
  request_id TEXT NOT NULL DEFAULT '',
  kind TEXT NOT NULL,
  params TEXT NOT NULL DEFAULT '{}',
  outcome TEXT NOT NULL CHECK(outcome IN ('success','error','blocked')),
  actor TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_records_kind ON audit_records(kind);
CREATE INDEX IF NOT EXISTS idx_audit_records_request ON audit_records(request_id);
`

// SQLiteSink stores one row per record.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens or creates the audit database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps inserts in issue order.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(rec Record) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_records (ts, request_id, kind, params, outcome, actor, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.RequestID, rec.Kind, string(params),
		string(rec.Outcome), rec.Actor, rec.Error,
	)
	return err
}

// Tail returns the last n records in insertion order.
func (s *SQLiteSink) Tail(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, request_id, kind, params, outcome, actor, error FROM
		   (SELECT * FROM audit_records ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			ts      string
			params  string
			outcome string
		)
		if err := rows.Scan(&ts, &rec.RequestID, &rec.Kind, &params, &outcome, &rec.Actor, &rec.Error); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		rec.Outcome = Outcome(outcome)
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
