// Package store provides storage backends for the reminder engine.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backed stores selected by DSN shape. The reminder queue is the
// single shared mutable resource: every row mutation goes through a
// version-checked compare-and-swap, and the dispatch log is append-only.
package store

import (
	"strings"
	"time"

	"github.com/adminsuite/reminderd/internal/models"
)

// Store is the authoritative persistence contract for the reminder queue,
// dispatch log, and per-kind policies.
type Store interface {
	// CreateReminder inserts a new reminder row. The row's Version is set to 1.
	CreateReminder(r models.ScheduledReminder) error

	// GetReminder retrieves a reminder by id, or models.ErrNotFound.
	GetReminder(id string) (*models.ScheduledReminder, error)

	// UpdateReminder persists the row if and only if the stored version still
	// equals expectedVersion, bumping the version by one. It returns
	// models.ErrConcurrentModification if another writer won the race and
	// models.ErrNotFound if the id is unknown.
	UpdateReminder(r models.ScheduledReminder, expectedVersion int) error

	// ListActiveBySubject returns all pending/sending rows for a subject.
	ListActiveBySubject(subjectID string) ([]models.ScheduledReminder, error)

	// ListDue returns up to limit pending rows with scheduled_at <= now,
	// oldest first.
	ListDue(now time.Time, limit int) ([]models.ScheduledReminder, error)

	// ListReminders returns rows matching the filter, newest first.
	ListReminders(f models.ReminderFilter) ([]models.ScheduledReminder, error)

	// RequeueStaleSending reverts rows stuck in sending since before the given
	// time back to pending (crash recovery) and returns how many were reverted.
	RequeueStaleSending(before time.Time) (int, error)

	// AppendLog appends a dispatch log entry. Entries are never updated.
	AppendLog(e models.ReminderLogEntry) error

	// ListLog returns log entries matching the filter, newest first.
	ListLog(f models.LogFilter) ([]models.ReminderLogEntry, error)

	// SaveEntity inserts or replaces the engine's snapshot of a tracked
	// entity. The snapshot is what dispatch-time template rendering reads.
	SaveEntity(e models.TrackedEntity) error

	// GetEntity retrieves an entity snapshot, or models.ErrNotFound.
	GetEntity(id string) (*models.TrackedEntity, error)

	// GetPolicy retrieves the policy for a kind, or models.ErrPolicyNotFound.
	GetPolicy(kind models.ReminderKind) (*models.ReminderPolicy, error)

	// SavePolicy inserts or replaces the policy for its kind.
	SavePolicy(p models.ReminderPolicy) error

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3" based on its
// shape. File paths are assumed to be SQLite databases.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}
