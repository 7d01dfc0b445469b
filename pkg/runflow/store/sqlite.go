package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/runflow/pkg/runflow"
	"github.com/randalmurphal/runflow/pkg/runflow/retry"
)

// SQLiteStore persists graphs, runs and run logs to SQLite.
// It is suitable for single-process production use.
//
// State values round-trip through JSON, so numbers read back as float64.
type SQLiteStore struct {
	db     *sql.DB
	retry  retry.Config
	mu     sync.RWMutex
	closed bool
}

// Primary result codes from sqlite3.h.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

const schema = `
CREATE TABLE IF NOT EXISTS graphs (
	id TEXT PRIMARY KEY,
	spec TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	graph_id TEXT NOT NULL,
	status TEXT NOT NULL,
	current_node TEXT NOT NULL DEFAULT '',
	current_state TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	steps INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_logs (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	node TEXT NOT NULL,
	message TEXT NOT NULL,
	snapshot TEXT NOT NULL,
	logged_at TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// NewSQLiteStore opens (creating if needed) a SQLite store.
// The path should be a file path (e.g., "./runs.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &SQLiteStore{
		db:    db,
		retry: retry.NewConfig(retry.WithRetryableFunc(isBusy)),
	}, nil
}

// SaveGraph implements runflow.GraphStore.
func (s *SQLiteStore) SaveGraph(spec *runflow.GraphSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode graph: %w", err)
	}
	id := newID()
	if _, err := s.exec(
		`INSERT INTO graphs (id, spec, created_at) VALUES (?, ?, ?)`,
		id, string(data), timestamp(time.Now()),
	); err != nil {
		return "", fmt.Errorf("save graph: %w", err)
	}
	return id, nil
}

// LookupGraph implements runflow.GraphStore.
func (s *SQLiteStore) LookupGraph(id string) (*runflow.GraphSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	var data string
	err := s.db.QueryRow(`SELECT spec FROM graphs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, graphNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	spec, err := runflow.ParseGraphJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decode graph %s: %w", id, err)
	}
	return spec, nil
}

// ListGraphs implements runflow.GraphStore.
func (s *SQLiteStore) ListGraphs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(`SELECT id FROM graphs ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan graph id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graphs: %w", err)
	}
	return ids, nil
}

// Create implements runflow.Ledger.
func (s *SQLiteStore) Create(graphID string, initial runflow.State) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}
	state, err := encodeState(initial)
	if err != nil {
		return "", err
	}
	id := newID()
	now := timestamp(time.Now())
	if _, err := s.exec(`
		INSERT INTO runs (id, graph_id, status, current_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, graphID, string(runflow.StatusPending), state, now, now); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// Get implements runflow.Ledger.
func (s *SQLiteStore) Get(runID string) (*runflow.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	r, err := getRun(s.db, runID)
	if err != nil {
		return nil, err
	}
	if err := loadLogs(s.db, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Update implements runflow.Ledger.
func (s *SQLiteStore) Update(runID string, u runflow.RunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	// A state that cannot be encoded keeps the stored state; the remaining
	// columns are still written and the encoding error is returned after
	// commit.
	var encErr error
	err := s.inTx(func(tx *sql.Tx) error {
		encErr = nil
		r, err := getRun(tx, runID)
		if errors.Is(err, runflow.ErrRunNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		u.Apply(r)
		now := timestamp(time.Now())
		state, err := encodeState(r.CurrentState)
		if err != nil {
			encErr = err
			_, err = tx.Exec(`
				UPDATE runs
				SET status = ?, current_node = ?, error = ?, steps = ?, updated_at = ?
				WHERE id = ?
			`, string(r.Status), r.CurrentNode, r.Error, r.Steps, now, runID)
		} else {
			_, err = tx.Exec(`
				UPDATE runs
				SET status = ?, current_node = ?, current_state = ?, error = ?, steps = ?, updated_at = ?
				WHERE id = ?
			`, string(r.Status), r.CurrentNode, state, r.Error, r.Steps, now, runID)
		}
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return encErr
}

// AppendLog implements runflow.Ledger.
func (s *SQLiteStore) AppendLog(runID, node, message string, snapshot runflow.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	snap, err := encodeState(snapshot)
	if err != nil {
		return err
	}
	now := timestamp(time.Now())
	return s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO run_logs (run_id, seq, node, message, snapshot, logged_at)
			SELECT ?, COALESCE((SELECT MAX(seq) FROM run_logs WHERE run_id = ?), 0) + 1, ?, ?, ?, ?
			WHERE EXISTS (SELECT 1 FROM runs WHERE id = ?)
		`, runID, runID, node, message, snap, now, runID)
		if err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.Exec(`UPDATE runs SET updated_at = ? WHERE id = ?`, now, runID); err != nil {
			return fmt.Errorf("touch run: %w", err)
		}
		return nil
	})
}

// Finish implements runflow.Ledger.
func (s *SQLiteStore) Finish(runID string, final runflow.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	state, err := encodeState(final)
	if err != nil {
		return err
	}
	if _, err := s.exec(`
		UPDATE runs
		SET current_state = ?,
			status = CASE WHEN status IN (?, ?, ?, ?) THEN status ELSE ? END,
			updated_at = ?
		WHERE id = ?
	`, state,
		string(runflow.StatusFailed), string(runflow.StatusFinished),
		string(runflow.StatusTruncated), string(runflow.StatusCancelled),
		string(runflow.StatusFinished),
		timestamp(time.Now()), runID,
	); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// List implements runflow.Ledger.
func (s *SQLiteStore) List() ([]*runflow.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(`SELECT id FROM runs ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	runs := make([]*runflow.Run, 0, len(ids))
	for _, id := range ids {
		r, err := getRun(s.db, id)
		if err != nil {
			return nil, err
		}
		if err := loadLogs(s.db, r); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// inTx runs fn in a transaction, retrying the whole transaction while the
// database is busy.
func (s *SQLiteStore) inTx(fn func(tx *sql.Tx) error) error {
	res := retry.Do(s.retry, func() (struct{}, error) {
		tx, err := s.db.BeginTx(context.Background(), nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return struct{}{}, err
		}
		if err := tx.Commit(); err != nil {
			return struct{}{}, fmt.Errorf("commit: %w", err)
		}
		return struct{}{}, nil
	})
	return unwrapRetry(res.Err)
}

// exec runs a single statement, retrying while the database is busy.
func (s *SQLiteStore) exec(query string, args ...any) (sql.Result, error) {
	res := retry.Do(s.retry, func() (sql.Result, error) {
		return s.db.Exec(query, args...)
	})
	return res.Value, unwrapRetry(res.Err)
}

// unwrapRetry strips the retry bookkeeping from a permanent failure so
// callers see the driver error they would have seen without retries.
func unwrapRetry(err error) error {
	var catErr *retry.CategorizedError
	if errors.As(err, &catErr) && catErr.Category == retry.CategoryPermanent {
		return catErr.Err
	}
	return err
}

// isBusy reports SQLITE_BUSY and SQLITE_LOCKED, including their extended
// result codes.
func isBusy(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

func getRun(q querier, runID string) (*runflow.Run, error) {
	var (
		r                runflow.Run
		status, state    string
		created, updated string
	)
	err := q.QueryRow(`
		SELECT id, graph_id, status, current_node, current_state, error, steps, created_at, updated_at
		FROM runs WHERE id = ?
	`, runID).Scan(&r.ID, &r.GraphID, &status, &r.CurrentNode, &state, &r.Error, &r.Steps, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runNotFound(runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	r.Status = runflow.Status(status)
	if r.CurrentState, err = decodeState(state); err != nil {
		return nil, fmt.Errorf("decode state of run %s: %w", runID, err)
	}
	r.CreatedAt = parseTimestamp(created)
	r.UpdatedAt = parseTimestamp(updated)
	r.Logs = []runflow.LogEntry{}
	return &r, nil
}

func loadLogs(q querier, r *runflow.Run) error {
	rows, err := q.Query(`
		SELECT node, message, snapshot, logged_at
		FROM run_logs WHERE run_id = ? ORDER BY seq
	`, r.ID)
	if err != nil {
		return fmt.Errorf("load logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry runflow.LogEntry
		var snap, at string
		if err := rows.Scan(&entry.Node, &entry.Message, &snap, &at); err != nil {
			return fmt.Errorf("scan log: %w", err)
		}
		if entry.StateSnapshot, err = decodeState(snap); err != nil {
			return fmt.Errorf("decode log snapshot: %w", err)
		}
		entry.Time = parseTimestamp(at)
		r.Logs = append(r.Logs, entry)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate logs: %w", err)
	}
	return nil
}

func encodeState(s runflow.State) (string, error) {
	if s == nil {
		s = runflow.State{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStateEncoding, err)
	}
	return string(data), nil
}

func decodeState(data string) (runflow.State, error) {
	s := runflow.State{}
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return s, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
