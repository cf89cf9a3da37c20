// Package history archives session reports in a local SQLite database so
// past runs can be listed and inspected after the fact.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
)

var ErrNotFound = errors.New("session not found")

// Store provides SQLite-backed persistence for session reports.
type Store struct {
	db *sql.DB
}

// Summary is one row of the session list.
type Summary struct {
	ID            string
	StartedAt     time.Time
	StartSource   engine.StartSource
	Outcome       engine.Outcome
	Reason        engine.CancelReason
	Total         time.Duration
	Expected      time.Duration
	Drift         time.Duration
	DriftExceeded bool
	Phases        int
	LogPath       string
}

// New returns a Store bound to an existing database handle.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Store{db: db}, nil
}

// Open opens (creating if needed) and migrates the archive at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// A single connection keeps writes serialized.
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveReport archives a report and its phases. Saving the same session
// again replaces the earlier copy.
func (s *Store) SaveReport(rep *engine.Report, logPath string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("save report: store is nil")
	}
	if rep == nil || rep.ID == "" {
		return fmt.Errorf("save report: report has no id")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save report: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.Exec(`DELETE FROM phases WHERE session_id = ?`, rep.ID); err != nil {
		return fmt.Errorf("save report: clear phases: %w", err)
	}

	var logPathValue any
	if logPath != "" {
		logPathValue = logPath
	}
	_, err = tx.Exec(`INSERT OR REPLACE INTO sessions
		(id, started_at, start_source, outcome, reason, total_ns, expected_ns, drift_ns, drift_exceeded, log_path, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, formatTime(rep.StartedAt), int(rep.StartSource), int(rep.Outcome), int(rep.Reason),
		int64(rep.Total), int64(rep.Expected), int64(rep.Drift), rep.DriftExceeded,
		logPathValue, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save report: insert session: %w", err)
	}

	for i, p := range rep.Phases {
		_, err = tx.Exec(`INSERT INTO phases
			(session_id, seq, kind, cycle, expected_ns, actual_ns, started_at, offset_ns, outcome, flips, expected_flips)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.ID, i, int(p.Kind), p.Cycle, int64(p.Expected), int64(p.Actual),
			formatTime(p.StartedAt), int64(p.Offset), int(p.Outcome), p.Flips, p.ExpectedFlips)
		if err != nil {
			return fmt.Errorf("save report: insert phase %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save report: commit transaction: %w", err)
	}
	return nil
}

// List returns the most recent sessions first. limit <= 0 means all.
func (s *Store) List(limit int) ([]Summary, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("list sessions: store is nil")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`SELECT s.id, s.started_at, s.start_source, s.outcome, s.reason,
			s.total_ns, s.expected_ns, s.drift_ns, s.drift_exceeded, s.log_path,
			(SELECT COUNT(*) FROM phases p WHERE p.session_id = s.id)
		FROM sessions s ORDER BY s.started_at DESC, s.id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: query: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: iterate: %w", err)
	}
	return summaries, nil
}

// Get returns an archived session with its phases in recorded order.
func (s *Store) Get(id string) (Summary, *engine.Report, error) {
	if s == nil || s.db == nil {
		return Summary{}, nil, fmt.Errorf("get session: store is nil")
	}

	row := s.db.QueryRow(`SELECT s.id, s.started_at, s.start_source, s.outcome, s.reason,
			s.total_ns, s.expected_ns, s.drift_ns, s.drift_exceeded, s.log_path,
			(SELECT COUNT(*) FROM phases p WHERE p.session_id = s.id)
		FROM sessions s WHERE s.id = ?`, id)
	sum, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, nil, fmt.Errorf("get session %s: %w", id, ErrNotFound)
		}
		return Summary{}, nil, fmt.Errorf("get session %s: %w", id, err)
	}

	rep := &engine.Report{
		ID:            sum.ID,
		StartSource:   sum.StartSource,
		StartedAt:     sum.StartedAt,
		Outcome:       sum.Outcome,
		Reason:        sum.Reason,
		Total:         sum.Total,
		Expected:      sum.Expected,
		Drift:         sum.Drift,
		DriftExceeded: sum.DriftExceeded,
	}

	rows, err := s.db.Query(`SELECT kind, cycle, expected_ns, actual_ns, started_at, offset_ns, outcome, flips, expected_flips
		FROM phases WHERE session_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return Summary{}, nil, fmt.Errorf("get session %s: query phases: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p engine.PhaseRecord
		var kind, outcome int
		var expected, actual, offset int64
		var startedAt string
		err = rows.Scan(&kind, &p.Cycle, &expected, &actual, &startedAt, &offset, &outcome, &p.Flips, &p.ExpectedFlips)
		if err != nil {
			return Summary{}, nil, fmt.Errorf("get session %s: scan phase: %w", id, err)
		}
		if p.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return Summary{}, nil, fmt.Errorf("get session %s: parse phase started_at: %w", id, err)
		}
		p.Kind = engine.PhaseKind(kind)
		p.Outcome = engine.Outcome(outcome)
		p.Expected = time.Duration(expected)
		p.Actual = time.Duration(actual)
		p.Offset = time.Duration(offset)
		rep.Phases = append(rep.Phases, p)
	}
	if err = rows.Err(); err != nil {
		return Summary{}, nil, fmt.Errorf("get session %s: iterate phases: %w", id, err)
	}
	return sum, rep, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (Summary, error) {
	var sum Summary
	var startedAt string
	var source, outcome, reason int
	var total, expected, drift int64
	var logPath sql.NullString

	err := row.Scan(&sum.ID, &startedAt, &source, &outcome, &reason,
		&total, &expected, &drift, &sum.DriftExceeded, &logPath, &sum.Phases)
	if err != nil {
		return Summary{}, err
	}
	if sum.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Summary{}, fmt.Errorf("parse started_at: %w", err)
	}
	sum.StartSource = engine.StartSource(source)
	sum.Outcome = engine.Outcome(outcome)
	sum.Reason = engine.CancelReason(reason)
	sum.Total = time.Duration(total)
	sum.Expected = time.Duration(expected)
	sum.Drift = time.Duration(drift)
	if logPath.Valid {
		sum.LogPath = logPath.String
	}
	return sum, nil
}

// timeLayout is fixed width so stored timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
