package store

import (
	"database/sql"
	"fmt"

	"github.com/adminsuite/reminderd/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanReminder scans a ScheduledReminder from sql.Rows.
func scanReminder(rows *sql.Rows) (models.ScheduledReminder, error) {
	var r models.ScheduledReminder
	var recipient, lastError, message sql.NullString
	err := rows.Scan(
		&r.ID, &r.SubjectID, &r.Kind, &r.Channel, &r.OffsetKey, &recipient,
		&r.ScheduledAt, &r.Status, &r.Attempts, &lastError, &message,
		&r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return r, fmt.Errorf("scan reminder failed: %w", err)
	}
	r.Recipient = recipient.String
	r.LastError = lastError.String
	r.Message = message.String
	return r, nil
}

// scanReminderRow scans a ScheduledReminder from a single sql.Row.
func scanReminderRow(row *sql.Row) (models.ScheduledReminder, error) {
	var r models.ScheduledReminder
	var recipient, lastError, message sql.NullString
	err := row.Scan(
		&r.ID, &r.SubjectID, &r.Kind, &r.Channel, &r.OffsetKey, &recipient,
		&r.ScheduledAt, &r.Status, &r.Attempts, &lastError, &message,
		&r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}
	r.Recipient = recipient.String
	r.LastError = lastError.String
	r.Message = message.String
	return r, nil
}

// scanLogEntry scans a ReminderLogEntry from sql.Rows.
func scanLogEntry(rows *sql.Rows) (models.ReminderLogEntry, error) {
	var e models.ReminderLogEntry
	var reminderID, recipient, message, errMsg sql.NullString
	err := rows.Scan(
		&e.ID, &reminderID, &e.SubjectID, &e.Kind, &e.Channel, &recipient,
		&e.AttemptedAt, &e.Outcome, &message, &errMsg,
	)
	if err != nil {
		return e, fmt.Errorf("scan log entry failed: %w", err)
	}
	e.ReminderID = reminderID.String
	e.Recipient = recipient.String
	e.Message = message.String
	e.Error = errMsg.String
	return e, nil
}

const reminderColumns = `id, subject_id, kind, channel, offset_key, recipient, scheduled_at, status, attempts, last_error, message, version, created_at, updated_at`

const logColumns = `id, reminder_id, subject_id, kind, channel, recipient, attempted_at, outcome, message, error`
