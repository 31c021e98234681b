// Package models defines the core data structures for the reminder engine.
//
// It includes reminder policies, scheduled reminder instances, dispatch log
// entries, and the closed enumerations shared across modules.
package models

import (
	"fmt"
	"time"
)

// Channel identifies a notification transport.
type Channel string

const (
	// ChannelEmail delivers reminders over email.
	ChannelEmail Channel = "email"
	// ChannelWhatsApp delivers reminders over WhatsApp.
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelSMS delivers reminders over SMS.
	ChannelSMS Channel = "sms"
	// ChannelPush delivers reminders as mobile push notifications.
	ChannelPush Channel = "push"
	// ChannelPhone delivers reminders as automated voice calls.
	ChannelPhone Channel = "phone"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(c Channel) bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelSMS, ChannelPush, ChannelPhone:
		return true
	default:
		return false
	}
}

// ReminderKind identifies what kind of entity a reminder tracks.
type ReminderKind string

const (
	// KindSubscription tracks subscription renewals (trigger is the expiry date).
	KindSubscription ReminderKind = "subscription"
	// KindMeeting tracks meetings (trigger is the meeting start).
	KindMeeting ReminderKind = "meeting"
	// KindCall tracks scheduled calls (trigger is the call time).
	KindCall ReminderKind = "call"
)

// IsValidKind checks if the given reminder kind is supported.
func IsValidKind(k ReminderKind) bool {
	switch k {
	case KindSubscription, KindMeeting, KindCall:
		return true
	default:
		return false
	}
}

// ReminderStatus represents the lifecycle state of a scheduled reminder.
type ReminderStatus string

const (
	// StatusPending indicates the reminder is waiting to become due.
	StatusPending ReminderStatus = "pending"
	// StatusSending indicates the dispatcher has claimed the reminder.
	StatusSending ReminderStatus = "sending"
	// StatusSent indicates the reminder was delivered to the adapter. Terminal.
	StatusSent ReminderStatus = "sent"
	// StatusFailed indicates delivery failed after exhausting retries. Terminal.
	StatusFailed ReminderStatus = "failed"
	// StatusCancelled indicates the reminder was cancelled. Terminal.
	StatusCancelled ReminderStatus = "cancelled"
)

// IsValidStatus checks if the given reminder status is supported.
func IsValidStatus(s ReminderStatus) bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status permits no further transitions.
func (s ReminderStatus) IsTerminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the status counts toward the one-active-row
// invariant for a (subject, offset, channel) combination.
func (s ReminderStatus) IsActive() bool {
	return s == StatusPending || s == StatusSending
}

// Offset is a policy-defined lead time before an entity's trigger date.
// Exactly one of Days or Minutes is meaningful; Days == 0 with Minutes == 0
// means "on the trigger day".
type Offset struct {
	Days    int `json:"days"`
	Minutes int `json:"minutes,omitempty"`
}

// Key returns the stable identity of the offset used for idempotent
// regeneration, e.g. "7d" or "30m".
func (o Offset) Key() string {
	if o.Minutes > 0 {
		return fmt.Sprintf("%dm", o.Minutes)
	}
	return fmt.Sprintf("%dd", o.Days)
}

// Duration returns the lead time as a duration before the trigger.
func (o Offset) Duration() time.Duration {
	if o.Minutes > 0 {
		return time.Duration(o.Minutes) * time.Minute
	}
	return time.Duration(o.Days) * 24 * time.Hour
}

// Validate checks the offset for malformed values.
func (o Offset) Validate() error {
	if o.Days < 0 || o.Minutes < 0 {
		return ErrNegativeOffset
	}
	if o.Days > 0 && o.Minutes > 0 {
		return ErrAmbiguousOffset
	}
	return nil
}

// DefaultMaxRetries is the retry limit applied when a policy does not set one.
const DefaultMaxRetries = 3

// ReminderPolicy is the per-kind declarative reminder configuration.
type ReminderPolicy struct {
	Kind       ReminderKind       `json:"kind"`
	Enabled    bool               `json:"enabled"`
	Channels   []Channel          `json:"channels"`
	Offsets    []Offset           `json:"offsets"`
	Templates  map[Channel]string `json:"templates"`
	MaxRetries int                `json:"max_retries"`
}

// Validate performs comprehensive validation on a ReminderPolicy.
func (p *ReminderPolicy) Validate() error {
	if !IsValidKind(p.Kind) {
		return ErrInvalidKind
	}
	for _, c := range p.Channels {
		if !IsValidChannel(c) {
			return fmt.Errorf("%w: %q", ErrInvalidChannel, c)
		}
	}
	for _, o := range p.Offsets {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	for c := range p.Templates {
		if !IsValidChannel(c) {
			return fmt.Errorf("%w: template for %q", ErrInvalidChannel, c)
		}
	}
	if p.MaxRetries < 0 {
		return ErrNegativeRetries
	}
	return nil
}

// RetryLimit returns the effective retry limit for the policy.
func (p *ReminderPolicy) RetryLimit() int {
	if p.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return p.MaxRetries
}

// Template returns the message template for a channel, or the empty string.
func (p *ReminderPolicy) Template(c Channel) string {
	if p.Templates == nil {
		return ""
	}
	return p.Templates[c]
}

// TrackedEntity is the engine's read-only view of the thing being reminded
// about. Entities are owned by the CRUD modules.
type TrackedEntity struct {
	ID               string            `json:"id"`
	Kind             ReminderKind      `json:"kind"`
	TriggerAt        time.Time         `json:"trigger_at"`
	SubjectName      string            `json:"subject_name"`
	CounterpartyName string            `json:"counterparty_name"`
	Recipient        string            `json:"recipient"`
	TemplateVars     map[string]string `json:"template_vars,omitempty"`
}

// Validate checks the entity for the fields the engine requires.
func (e *TrackedEntity) Validate() error {
	if e.ID == "" {
		return ErrMissingEntityID
	}
	if !IsValidKind(e.Kind) {
		return ErrInvalidKind
	}
	if e.TriggerAt.IsZero() {
		return ErrMissingTrigger
	}
	return nil
}

// ScheduledReminder is one concrete reminder instance derived from a policy.
type ScheduledReminder struct {
	ID          string         `json:"id"`
	SubjectID   string         `json:"subject_id"`
	Kind        ReminderKind   `json:"kind"`
	Channel     Channel        `json:"channel"`
	OffsetKey   string         `json:"offset_key"`
	Recipient   string         `json:"recipient"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	Status      ReminderStatus `json:"status"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	// Message, when set, overrides the rendered policy template.
	Message   string    `json:"message,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActiveKey returns the uniqueness key for the at-most-one-active invariant.
func (r *ScheduledReminder) ActiveKey() string {
	return r.SubjectID + "|" + r.OffsetKey + "|" + string(r.Channel)
}

// CanTransitionTo reports whether the reminder state machine permits moving
// from the current status to next.
func (r *ScheduledReminder) CanTransitionTo(next ReminderStatus) bool {
	switch r.Status {
	case StatusPending:
		return next == StatusSending || next == StatusCancelled || next == StatusPending
	case StatusSending:
		return next == StatusSent || next == StatusFailed || next == StatusPending
	default:
		return false
	}
}

// LogOutcome records whether a dispatch attempt succeeded.
type LogOutcome string

const (
	// OutcomeSuccess indicates the adapter accepted the message.
	OutcomeSuccess LogOutcome = "success"
	// OutcomeFailed indicates the adapter rejected the message or timed out.
	OutcomeFailed LogOutcome = "failed"
)

// ReminderLogEntry is one append-only record of a dispatch attempt.
// Entries are never mutated or deleted.
type ReminderLogEntry struct {
	ID          string       `json:"id"`
	ReminderID  string       `json:"reminder_id,omitempty"`
	SubjectID   string       `json:"subject_id"`
	Kind        ReminderKind `json:"kind"`
	Channel     Channel      `json:"channel"`
	Recipient   string       `json:"recipient"`
	AttemptedAt time.Time    `json:"attempted_at"`
	Outcome     LogOutcome   `json:"outcome"`
	Message     string       `json:"message"`
	Error       string       `json:"error,omitempty"`
}

// ReminderFilter narrows list queries over the queue.
type ReminderFilter struct {
	SubjectID string
	Kind      ReminderKind
	Status    ReminderStatus
	Channel   Channel
}

// LogFilter narrows list queries over the dispatch log.
type LogFilter struct {
	SubjectID string
	Channel   Channel
	Outcome   LogOutcome
}
