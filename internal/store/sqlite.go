// Package store provides storage backends for the reminder engine.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/adminsuite/reminderd/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateReminder(r models.ScheduledReminder) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	_, err := s.db.Exec(
		`INSERT INTO reminders (`+reminderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		r.ID, r.SubjectID, r.Kind, r.Channel, r.OffsetKey, nilIfEmpty(r.Recipient),
		r.ScheduledAt, r.Status, r.Attempts, nilIfEmpty(r.LastError), nilIfEmpty(r.Message),
		r.CreatedAt, now,
	)
	if err != nil {
		slog.Error("SQLiteStore.CreateReminder failed", "error", err, "id", r.ID)
		return fmt.Errorf("create reminder failed: %w", err)
	}
	slog.Debug("SQLiteStore.CreateReminder", "id", r.ID, "subjectID", r.SubjectID, "channel", r.Channel, "scheduledAt", r.ScheduledAt)
	return nil
}

func (s *SQLiteStore) GetReminder(id string) (*models.ScheduledReminder, error) {
	row := s.db.QueryRow(`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminderRow(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder failed: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) UpdateReminder(r models.ScheduledReminder, expectedVersion int) error {
	res, err := s.db.Exec(
		`UPDATE reminders
		 SET channel = ?, offset_key = ?, recipient = ?, scheduled_at = ?, status = ?,
		     attempts = ?, last_error = ?, message = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		r.Channel, r.OffsetKey, nilIfEmpty(r.Recipient), r.ScheduledAt, r.Status,
		r.Attempts, nilIfEmpty(r.LastError), nilIfEmpty(r.Message), time.Now(),
		r.ID, expectedVersion,
	)
	if err != nil {
		slog.Error("SQLiteStore.UpdateReminder failed", "error", err, "id", r.ID)
		return fmt.Errorf("update reminder failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists int
		if err := s.db.QueryRow(`SELECT 1 FROM reminders WHERE id = ?`, r.ID).Scan(&exists); err == sql.ErrNoRows {
			return models.ErrNotFound
		}
		slog.Debug("SQLiteStore.UpdateReminder version conflict", "id", r.ID, "expected", expectedVersion)
		return models.ErrConcurrentModification
	}
	slog.Debug("SQLiteStore.UpdateReminder", "id", r.ID, "status", r.Status, "version", expectedVersion+1)
	return nil
}

func (s *SQLiteStore) ListActiveBySubject(subjectID string) ([]models.ScheduledReminder, error) {
	rows, err := s.db.Query(
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE subject_id = ? AND status IN ('pending', 'sending')
		 ORDER BY scheduled_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active reminders failed: %w", err)
	}
	return collectReminders(rows)
}

func (s *SQLiteStore) ListDue(now time.Time, limit int) ([]models.ScheduledReminder, error) {
	rows, err := s.db.Query(
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = 'pending' AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders failed: %w", err)
	}
	return collectReminders(rows)
}

func (s *SQLiteStore) ListReminders(f models.ReminderFilter) ([]models.ScheduledReminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE 1=1`
	var args []interface{}
	if f.SubjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, f.SubjectID)
	}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, f.Channel)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders failed: %w", err)
	}
	return collectReminders(rows)
}

func (s *SQLiteStore) RequeueStaleSending(before time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE reminders SET status = 'pending', version = version + 1, updated_at = ?
		 WHERE status = 'sending' AND updated_at < ?`,
		time.Now(), before,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale sending failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleSending", "requeued", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) AppendLog(e models.ReminderLogEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO reminder_log (`+logColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nilIfEmpty(e.ReminderID), e.SubjectID, e.Kind, e.Channel, nilIfEmpty(e.Recipient),
		e.AttemptedAt, e.Outcome, nilIfEmpty(e.Message), nilIfEmpty(e.Error),
	)
	if err != nil {
		slog.Error("SQLiteStore.AppendLog failed", "error", err, "id", e.ID)
		return fmt.Errorf("append log entry failed: %w", err)
	}
	slog.Debug("SQLiteStore.AppendLog", "id", e.ID, "subjectID", e.SubjectID, "outcome", e.Outcome)
	return nil
}

func (s *SQLiteStore) ListLog(f models.LogFilter) ([]models.ReminderLogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM reminder_log WHERE 1=1`
	var args []interface{}
	if f.SubjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, f.SubjectID)
	}
	if f.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, f.Channel)
	}
	if f.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, f.Outcome)
	}
	query += ` ORDER BY attempted_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list log entries failed: %w", err)
	}
	defer rows.Close()

	var entries []models.ReminderLogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries failed: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) SaveEntity(e models.TrackedEntity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity failed: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO tracked_entities (id, kind, data, updated_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Kind, string(data), time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveEntity failed", "error", err, "id", e.ID)
		return fmt.Errorf("save entity failed: %w", err)
	}
	slog.Debug("SQLiteStore.SaveEntity", "id", e.ID, "kind", e.Kind)
	return nil
}

func (s *SQLiteStore) GetEntity(id string) (*models.TrackedEntity, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM tracked_entities WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity failed: %w", err)
	}
	var e models.TrackedEntity
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("decode entity failed: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) GetPolicy(kind models.ReminderKind) (*models.ReminderPolicy, error) {
	var configJSON string
	err := s.db.QueryRow(`SELECT config FROM reminder_policies WHERE kind = ?`, kind).Scan(&configJSON)
	if err == sql.ErrNoRows {
		return nil, models.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get policy failed: %w", err)
	}
	var p models.ReminderPolicy
	if err := json.Unmarshal([]byte(configJSON), &p); err != nil {
		slog.Error("SQLiteStore.GetPolicy unmarshal failed", "error", err, "kind", kind)
		return nil, fmt.Errorf("decode policy failed: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) SavePolicy(p models.ReminderPolicy) error {
	configJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy failed: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO reminder_policies (kind, config, updated_at) VALUES (?, ?, ?)`,
		p.Kind, string(configJSON), time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore.SavePolicy failed", "error", err, "kind", p.Kind)
		return fmt.Errorf("save policy failed: %w", err)
	}
	slog.Debug("SQLiteStore.SavePolicy", "kind", p.Kind, "enabled", p.Enabled)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

func collectReminders(rows *sql.Rows) ([]models.ScheduledReminder, error) {
	defer rows.Close()
	var out []models.ScheduledReminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminder rows failed: %w", err)
	}
	return out, nil
}
