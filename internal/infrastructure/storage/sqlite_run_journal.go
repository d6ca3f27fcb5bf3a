package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS stage_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stage_runs_run_id ON stage_runs(run_id);
`

// JournalEntry запись журнала: результат этапа конкретного запуска
type JournalEntry struct {
	RunID  string
	Result entity.StageResult
}

// SQLiteRunJournal журнал запусков пайплайна в SQLite
type SQLiteRunJournal struct {
	db *sql.DB
}

// OpenRunJournal открывает (создаёт) журнал по пути path
func OpenRunJournal(path string) (*SQLiteRunJournal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &SQLiteRunJournal{db: db}, nil
}

// Record сохраняет результат этапа
func (j *SQLiteRunJournal) Record(ctx context.Context, runID string, result entity.StageResult) error {
	var msg string
	if result.Err != nil {
		msg = result.Err.Error()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO stage_runs (run_id, stage, status, error, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, result.Stage, string(result.Status), msg,
		result.StartedAt.UnixMilli(), result.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record stage %s: %w", result.Stage, err)
	}
	return nil
}

// Recent возвращает до limit последних записей, новые первыми
func (j *SQLiteRunJournal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, stage, status, error, started_at, finished_at FROM stage_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e                   JournalEntry
			status, msg         string
			startedAt, finished int64
		)
		if err := rows.Scan(&e.RunID, &e.Result.Stage, &status, &msg, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Result.Status = entity.StageStatus(status)
		if msg != "" {
			e.Result.Err = errors.New(msg)
		}
		e.Result.StartedAt = time.UnixMilli(startedAt)
		e.Result.FinishedAt = time.UnixMilli(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *SQLiteRunJournal) Close() error {
	return j.db.Close()
}

var _ port.RunJournal = (*SQLiteRunJournal)(nil)
