package kaybee

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Changelog payload shapes, one per op kind (spec.md 4.8).
type writePayload struct {
	Type  string         `json:"type"`
	Body  string         `json:"body"`
	Attrs map[string]any `json:"attrs"`
}

type typeChangePayload struct {
	OldType string         `json:"old_type"`
	NewType string         `json:"new_type"`
	Body    string         `json:"body"`
	Attrs   map[string]any `json:"attrs"`
}

type rmPayload struct {
	Type string `json:"type"`
}

type mvPayload struct {
	OldName string         `json:"old_name"`
	Type    string         `json:"type"`
	Body    string         `json:"body"`
	Attrs   map[string]any `json:"attrs"`
}

type cpPayload struct {
	Source string         `json:"source"`
	Type   string         `json:"type"`
	Body   string         `json:"body"`
	Attrs  map[string]any `json:"attrs"`
}

// appendChangelog writes one row if the changelog is enabled. seq is
// SQLite's own AUTOINCREMENT counter: because this call always runs
// inside the caller's mutation transaction, a rollback on any later
// step also rolls back the seq allocation, so seq stays gap-free (I7).
func (s *Store) appendChangelog(ctx context.Context, tx *sql.Tx, op ChangelogOp, name string, payload any) error {
	if !s.cfg.ChangelogEnabled {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO _changelog (ts, op, name, payload) VALUES (?, ?, ?, ?)`,
		time.Now().Unix(), string(op), name, string(data))

	return err
}

// Changelog returns entries with seq > sinceSeq, ascending, bounded by
// limit. Returns an empty slice (not an error) when the changelog is
// disabled, per spec.md 4.8.
func (s *Store) Changelog(ctx context.Context, sinceSeq int64, limit int) ([]ChangelogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, wrap(ErrClosed, withOp("Changelog"))
	}

	if !s.cfg.ChangelogEnabled {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, ts, op, name, payload FROM _changelog WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
		sinceSeq, limit)
	if err != nil {
		return nil, wrap(err, withOp("Changelog"))
	}
	defer rows.Close()

	var out []ChangelogEntry

	for rows.Next() {
		var e ChangelogEntry

		var op string

		if err := rows.Scan(&e.Seq, &e.TS, &op, &e.Name, &e.Payload); err != nil {
			return nil, wrap(err, withOp("Changelog"))
		}

		e.Op = ChangelogOp(op)
		out = append(out, e)
	}

	return out, wrap(rows.Err(), withOp("Changelog"))
}

// Truncate discards changelog entries with seq < beforeSeq.
func (s *Store) Truncate(ctx context.Context, beforeSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return wrap(ErrClosed, withOp("Truncate"))
	}

	if !s.cfg.ChangelogEnabled {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM _changelog WHERE seq < ?`, beforeSeq)

	return wrap(err, withOp("Truncate"))
}

// newCorrelationID is attached to replicator push-batch log lines so a
// single push's progress can be traced across log entries.
func newCorrelationID() string {
	return uuid.NewString()
}
