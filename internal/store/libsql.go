package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/wendlabs/wend/internal/events"
	"github.com/wendlabs/wend/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite
// fork). A single connection serializes writers; WAL keeps readers cheap.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a
// Store. The path should be a file URI, e.g. "file:/path/to/wend.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}

	// A single connection keeps SQLite's one-writer discipline out of the
	// callers' way.
	db.SetMaxOpenConns(1)

	// Session PRAGMAs. QueryRow because several of them report a value.
	for _, pragma := range []string{
		"journal_mode=WAL",
		"synchronous=NORMAL",
		"busy_timeout=5000",
		"cache_size=-20000",
		"foreign_keys=ON",
		"temp_store=MEMORY",
	} {
		var discard string
		_ = db.QueryRow("PRAGMA " + pragma).Scan(&discard)
	}

	return &LibSQLStore{db: db}, nil
}

// Close releases the database handle.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies pending schema revisions.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.db)
}

// Vacuum reclaims free pages.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Run lifecycle ---

func (s *LibSQLStore) RecordStart(ctx context.Context, res *schema.RunResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, workflow, status, started_at) VALUES (?, ?, ?, ?)`,
		res.RunID, res.Workflow, string(schema.RunStatusRunning), timeOrNow(res.StartedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *LibSQLStore) RecordStatus(ctx context.Context, runID string, status schema.RunStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ? WHERE run_id = ?`, string(status), runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return checkRowsAffected(result, "run", runID)
}

func (s *LibSQLStore) RecordFinish(ctx context.Context, res *schema.RunResult) error {
	errJSON, err := nullableJSON(res.Err)
	if err != nil {
		return fmt.Errorf("marshal run error: %w", err)
	}
	varsJSON, err := nullableJSON(res.Vars)
	if err != nil {
		return fmt.Errorf("marshal run vars: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, outcome = ?, reason = ?, error = ?, final_state = ?, vars = ?, finished_at = ?
		 WHERE run_id = ?`,
		string(res.Status()), string(res.Outcome), nullStr(res.Reason), errJSON,
		nullStr(res.FinalState), varsJSON, timeOrNow(res.FinishedAt), res.RunID)
	if err != nil {
		return fmt.Errorf("update run finish: %w", err)
	}
	return checkRowsAffected(result, "run", res.RunID)
}

// --- Run read-back ---

func (s *LibSQLStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, workflow, status, outcome, reason, error, final_state, vars, started_at, finished_at
		 FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", runID)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var where []string
	var args []any

	if filter.Workflow != "" {
		where = append(where, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT run_id, workflow, status, outcome, reason, error, final_state, vars, started_at, finished_at FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, run_id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Event log ---

// AppendEvent appends an event with the next per-run sequence number. The
// single-connection pool serializes the MAX read and the insert, so two
// appends for the same run cannot claim the same sequence.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event events.Event) error {
	payload, err := nullableJSON(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next event sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_events (run_id, workflow, type, state_id, payload, sequence, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.RunID, event.Workflow, event.Type, nullStr(event.StateID),
		payload, seq, timeOrNow(event.At)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

func (s *LibSQLStore) ListEvents(ctx context.Context, runID string, since int64) ([]*RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, workflow, type, state_id, payload, sequence, at
		 FROM run_events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`,
		runID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *LibSQLStore) ListEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*RunEvent, error) {
	where := []string{"type = ?"}
	args := []any{eventType}

	if filter.Workflow != "" {
		where = append(where, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Since != nil {
		where = append(where, "at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, run_id, workflow, type, state_id, payload, sequence, at FROM run_events WHERE ` +
		strings.Join(where, " AND ") + " ORDER BY at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// --- Scan helpers ---

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	run := &Run{}
	var (
		status, outcome, reason, errJSON, finalState, varsJSON sql.NullString
		finishedAt                                             sql.NullTime
	)
	if err := sc.Scan(&run.RunID, &run.Workflow, &status, &outcome, &reason,
		&errJSON, &finalState, &varsJSON, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status.String)
	run.Outcome = schema.RunOutcome(outcome.String)
	run.Reason = reason.String
	run.FinalState = finalState.String
	if errJSON.Valid && errJSON.String != "" {
		var werr schema.WendError
		if err := json.Unmarshal([]byte(errJSON.String), &werr); err != nil {
			return nil, fmt.Errorf("unmarshal run error: %w", err)
		}
		run.Err = &werr
	}
	if varsJSON.Valid && varsJSON.String != "" {
		if err := json.Unmarshal([]byte(varsJSON.String), &run.Vars); err != nil {
			return nil, fmt.Errorf("unmarshal run vars: %w", err)
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return run, nil
}

func collectEvents(rows *sql.Rows) ([]*RunEvent, error) {
	var out []*RunEvent
	for rows.Next() {
		ev := &RunEvent{}
		var stateID, payload sql.NullString
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Workflow, &ev.Type,
			&stateID, &payload, &ev.Sequence, &ev.At); err != nil {
			return nil, err
		}
		ev.StateID = stateID.String
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal event payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// --- Value helpers ---

func storeNotFound(resource, id string) *schema.WendError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableJSON marshals v to a driver value, mapping nil maps and nil
// pointers to SQL NULL.
func nullableJSON(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	case *schema.WendError:
		if val == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
