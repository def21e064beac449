package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	topics "shorts-pipeline/01_topics"
	"shorts-pipeline/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Ledger is the SQLite record of every topic run
type Ledger struct {
	conn   *sql.DB
	logger *zap.Logger
}

// Open creates or opens the ledger at dbPath and applies pending migrations
func Open(dbPath string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	l := &Ledger{conn: conn, logger: logger.Named("history")}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := l.markInterrupted(); err != nil {
		l.logger.Warn("failed to mark interrupted runs", zap.Error(err))
	}
	return l, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.conn.Close()
}

func (l *Ledger) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, m := range entries {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if l.applied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := l.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := l.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		l.logger.Debug("applied migration", zap.String("name", name))
	}
	return nil
}

func (l *Ledger) applied(name string) bool {
	var exists int
	if err := l.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists); err != nil {
		return false
	}
	var applied int
	err := l.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

func (l *Ledger) markInterrupted() error {
	_, err := l.conn.Exec(`UPDATE runs SET status = 'failed', error = 'interrupted', updated_at = datetime('now') WHERE status = 'running'`)
	return err
}

// Start records that a run for topic has begun
func (l *Ledger) Start(ctx context.Context, runID, topic string) error {
	_, err := l.conn.ExecContext(ctx,
		`INSERT INTO runs (id, topic, topic_key, status) VALUES (?, ?, ?, ?)`,
		runID, topic, topics.Key(topic), StatusRunning)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// Finish stores the final state of rec, inserting it if Start was never called
func (l *Ledger) Finish(ctx context.Context, rec *types.RunRecord) error {
	status := StatusFailed
	if rec.Succeeded() {
		status = StatusSucceeded
	}
	_, err := l.conn.ExecContext(ctx, `
		INSERT INTO runs (id, topic, topic_key, status, video_path, subtitle_path, thumbnail_path,
			youtube_id, archive_key, duration_sec, stretch_factor, slide_count, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			video_path = excluded.video_path,
			subtitle_path = excluded.subtitle_path,
			thumbnail_path = excluded.thumbnail_path,
			youtube_id = excluded.youtube_id,
			archive_key = excluded.archive_key,
			duration_sec = excluded.duration_sec,
			stretch_factor = excluded.stretch_factor,
			slide_count = excluded.slide_count,
			error = excluded.error,
			updated_at = datetime('now')`,
		rec.RunID, rec.Topic, topics.Key(rec.Topic), status,
		rec.VideoFile, rec.SubtitleFile, rec.ThumbnailFile,
		rec.YouTubeID, rec.ArchiveKey, rec.DurationSec, rec.StretchFactor, rec.SlideCount, rec.Error)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	l.logger.Debug("run recorded", zap.String("run_id", rec.RunID), zap.String("status", status))
	return nil
}

// UsedTopics lists topics that already produced a video
func (l *Ledger) UsedTopics(ctx context.Context) ([]string, error) {
	rows, err := l.conn.QueryContext(ctx,
		`SELECT DISTINCT topic FROM runs WHERE status = ? ORDER BY created_at`, StatusSucceeded)
	if err != nil {
		return nil, fmt.Errorf("query used topics: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Entry is one row of the ledger
type Entry struct {
	ID        string
	Topic     string
	Status    string
	VideoPath string
	Error     string
	CreatedAt time.Time
}

// Recent returns the latest runs, newest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.conn.QueryContext(ctx,
		`SELECT id, topic, status, video_path, error, created_at FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.Topic, &e.Status, &e.VideoPath, &e.Error, &created); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.DateTime, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
