package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

// schema for the durable entry store. The partial index on level keeps
// EntriesByLevel proportional to the entries at that level.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id TEXT PRIMARY KEY,
	raw BLOB NOT NULL,
	origin TEXT NOT NULL,
	level TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_validated_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_entries_level ON entries(level, last_validated_at);

CREATE TABLE IF NOT EXISTS validations (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	decision TEXT NOT NULL,
	matched_ids TEXT,
	duration_us INTEGER NOT NULL,
	structural_kind TEXT,
	FOREIGN KEY(entry_id) REFERENCES entries(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_validations_entry ON validations(entry_id, seq);
`

// SQLiteStore is the durable EntryStore. Writes are committed before the
// enclosing validation call returns, so a recorded trust decision survives
// a crash.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the entry database at path.
// WAL mode keeps foreground reads from blocking on background writes.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening entry store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing entry store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*trust.Entry, error) {
	var (
		e         trust.Entry
		createdAt int64
		lastAt    int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, raw, origin, level, created_at, last_validated_at FROM entries WHERE id = ?`, id)
	var origin, level string
	if err := row.Scan(&e.ID, &e.Raw, &origin, &level, &createdAt, &lastAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	e.Origin = trust.Origin(origin)
	e.Level = trust.Level(level)
	e.CreatedAt = time.UnixMicro(createdAt)
	if lastAt > 0 {
		e.LastValidatedAt = time.UnixMicro(lastAt)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, decision, matched_ids, duration_us, structural_kind
		 FROM validations WHERE entry_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ts      int64
			res     trust.Result
			matched sql.NullString
			kind    sql.NullString
			dec     string
		)
		if err := rows.Scan(&ts, &dec, &matched, &res.DurationMicros, &kind); err != nil {
			return nil, err
		}
		res.EntryID = id
		res.Timestamp = time.UnixMicro(ts)
		res.Decision = trust.Decision(dec)
		res.StructuralKind = kind.String
		if matched.Valid && matched.String != "" {
			if err := json.Unmarshal([]byte(matched.String), &res.MatchedIDs); err != nil {
				return nil, fmt.Errorf("decoding matched ids for %s: %w", id, err)
			}
		}
		e.History = append(e.History, res)
	}
	return &e, rows.Err()
}

func (s *SQLiteStore) PutEntry(ctx context.Context, e *trust.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (id, raw, origin, level, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET raw = excluded.raw, origin = excluded.origin, level = excluded.level`,
		e.ID, e.Raw, string(e.Origin), string(e.Level), e.CreatedAt.UnixMicro())
	return err
}

func (s *SQLiteStore) RecordValidation(ctx context.Context, id string, res trust.Result, level trust.Level) error {
	matched := ""
	if len(res.MatchedIDs) > 0 {
		b, err := json.Marshal(res.MatchedIDs)
		if err != nil {
			return err
		}
		matched = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := tx.ExecContext(ctx,
		`UPDATE entries SET level = ?, last_validated_at = ? WHERE id = ?`,
		string(level), res.Timestamp.UnixMicro(), id)
	if err != nil {
		return err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO validations (entry_id, timestamp, decision, matched_ids, duration_us, structural_kind)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, res.Timestamp.UnixMicro(), string(res.Decision), matched, res.DurationMicros, res.StructuralKind); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) EntriesByLevel(ctx context.Context, level trust.Level, limit int) ([]string, error) {
	q := `SELECT id FROM entries WHERE level = ? ORDER BY last_validated_at`
	args := []any{string(level)}
	if limit >= 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, id string) error {
	// CASCADE removes the history in the same statement.
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	return err
}

var _ EntryStore = (*SQLiteStore)(nil)
var _ EntryStore = (*MemStore)(nil)
