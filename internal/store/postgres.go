// Package store provides storage backends for the reminder engine.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/adminsuite/reminderd/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateReminder(r models.ScheduledReminder) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	_, err := s.db.Exec(
		`INSERT INTO reminders (`+reminderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)`,
		r.ID, r.SubjectID, r.Kind, r.Channel, r.OffsetKey, nilIfEmpty(r.Recipient),
		r.ScheduledAt, r.Status, r.Attempts, nilIfEmpty(r.LastError), nilIfEmpty(r.Message),
		r.CreatedAt, now,
	)
	if err != nil {
		slog.Error("PostgresStore.CreateReminder failed", "error", err, "id", r.ID)
		return fmt.Errorf("create reminder failed: %w", err)
	}
	slog.Debug("PostgresStore.CreateReminder", "id", r.ID, "subjectID", r.SubjectID, "channel", r.Channel, "scheduledAt", r.ScheduledAt)
	return nil
}

func (s *PostgresStore) GetReminder(id string) (*models.ScheduledReminder, error) {
	row := s.db.QueryRow(`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	r, err := scanReminderRow(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder failed: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) UpdateReminder(r models.ScheduledReminder, expectedVersion int) error {
	res, err := s.db.Exec(
		`UPDATE reminders
		 SET channel = $1, offset_key = $2, recipient = $3, scheduled_at = $4, status = $5,
		     attempts = $6, last_error = $7, message = $8, version = version + 1, updated_at = $9
		 WHERE id = $10 AND version = $11`,
		r.Channel, r.OffsetKey, nilIfEmpty(r.Recipient), r.ScheduledAt, r.Status,
		r.Attempts, nilIfEmpty(r.LastError), nilIfEmpty(r.Message), time.Now(),
		r.ID, expectedVersion,
	)
	if err != nil {
		slog.Error("PostgresStore.UpdateReminder failed", "error", err, "id", r.ID)
		return fmt.Errorf("update reminder failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists int
		if err := s.db.QueryRow(`SELECT 1 FROM reminders WHERE id = $1`, r.ID).Scan(&exists); err == sql.ErrNoRows {
			return models.ErrNotFound
		}
		slog.Debug("PostgresStore.UpdateReminder version conflict", "id", r.ID, "expected", expectedVersion)
		return models.ErrConcurrentModification
	}
	slog.Debug("PostgresStore.UpdateReminder", "id", r.ID, "status", r.Status, "version", expectedVersion+1)
	return nil
}

func (s *PostgresStore) ListActiveBySubject(subjectID string) ([]models.ScheduledReminder, error) {
	rows, err := s.db.Query(
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE subject_id = $1 AND status IN ('pending', 'sending')
		 ORDER BY scheduled_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active reminders failed: %w", err)
	}
	return collectReminders(rows)
}

func (s *PostgresStore) ListDue(now time.Time, limit int) ([]models.ScheduledReminder, error) {
	rows, err := s.db.Query(
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = 'pending' AND scheduled_at <= $1
		 ORDER BY scheduled_at ASC LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders failed: %w", err)
	}
	return collectReminders(rows)
}

func (s *PostgresStore) ListReminders(f models.ReminderFilter) ([]models.ScheduledReminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.SubjectID != "" {
		query += fmt.Sprintf(` AND subject_id = $%d`, idx)
		args = append(args, f.SubjectID)
		idx++
	}
	if f.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, idx)
		args = append(args, f.Kind)
		idx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Channel != "" {
		query += fmt.Sprintf(` AND channel = $%d`, idx)
		args = append(args, f.Channel)
		idx++
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders failed: %w", err)
	}
	return collectReminders(rows)
}

func (s *PostgresStore) RequeueStaleSending(before time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE reminders SET status = 'pending', version = version + 1, updated_at = $1
		 WHERE status = 'sending' AND updated_at < $2`,
		time.Now(), before,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale sending failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleSending", "requeued", n)
	}
	return int(n), nil
}

func (s *PostgresStore) AppendLog(e models.ReminderLogEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO reminder_log (`+logColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, nilIfEmpty(e.ReminderID), e.SubjectID, e.Kind, e.Channel, nilIfEmpty(e.Recipient),
		e.AttemptedAt, e.Outcome, nilIfEmpty(e.Message), nilIfEmpty(e.Error),
	)
	if err != nil {
		slog.Error("PostgresStore.AppendLog failed", "error", err, "id", e.ID)
		return fmt.Errorf("append log entry failed: %w", err)
	}
	slog.Debug("PostgresStore.AppendLog", "id", e.ID, "subjectID", e.SubjectID, "outcome", e.Outcome)
	return nil
}

func (s *PostgresStore) ListLog(f models.LogFilter) ([]models.ReminderLogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM reminder_log WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.SubjectID != "" {
		query += fmt.Sprintf(` AND subject_id = $%d`, idx)
		args = append(args, f.SubjectID)
		idx++
	}
	if f.Channel != "" {
		query += fmt.Sprintf(` AND channel = $%d`, idx)
		args = append(args, f.Channel)
		idx++
	}
	if f.Outcome != "" {
		query += fmt.Sprintf(` AND outcome = $%d`, idx)
		args = append(args, f.Outcome)
		idx++
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

func (s *PostgresStore) SaveEntity(e models.TrackedEntity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity failed: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO tracked_entities (id, kind, data, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		e.ID, e.Kind, string(data), time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore.SaveEntity failed", "error", err, "id", e.ID)
		return fmt.Errorf("save entity failed: %w", err)
	}
	slog.Debug("PostgresStore.SaveEntity", "id", e.ID, "kind", e.Kind)
	return nil
}

func (s *PostgresStore) GetEntity(id string) (*models.TrackedEntity, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM tracked_entities WHERE id = $1`, id).Scan(&data)
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

func (s *PostgresStore) GetPolicy(kind models.ReminderKind) (*models.ReminderPolicy, error) {
	var configJSON string
	err := s.db.QueryRow(`SELECT config FROM reminder_policies WHERE kind = $1`, kind).Scan(&configJSON)
	if err == sql.ErrNoRows {
		return nil, models.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get policy failed: %w", err)
	}
	var p models.ReminderPolicy
	if err := json.Unmarshal([]byte(configJSON), &p); err != nil {
		slog.Error("PostgresStore.GetPolicy unmarshal failed", "error", err, "kind", kind)
		return nil, fmt.Errorf("decode policy failed: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) SavePolicy(p models.ReminderPolicy) error {
	configJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy failed: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO reminder_policies (kind, config, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (kind) DO UPDATE SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`,
		p.Kind, string(configJSON), time.Now(),
	)
	if err != nil {
		slog.Error("PostgresStore.SavePolicy failed", "error", err, "kind", p.Kind)
		return fmt.Errorf("save policy failed: %w", err)
	}
	slog.Debug("PostgresStore.SavePolicy", "kind", p.Kind, "enabled", p.Enabled)
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
