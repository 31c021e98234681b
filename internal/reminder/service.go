// Package reminder exposes the engine's command/query API.
//
// The Service is the single entry point the UI surfaces (subscriptions,
// meetings, calls) share: scheduling via policy reconciliation, manual
// reschedule/cancel/send-now, test sends, and the read views behind the
// Scheduled and History tabs. Every mutation returns a typed result or a
// typed error; presentation decisions stay with the caller.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adminsuite/reminderd/internal/dispatch"
	"github.com/adminsuite/reminderd/internal/models"
	"github.com/adminsuite/reminderd/internal/schedule"
	"github.com/adminsuite/reminderd/internal/store"
)

// maxCASRetries bounds how often a lost version race is retried internally
// before ErrConcurrentModification surfaces to the caller.
const maxCASRetries = 3

// Service wires the generator, queue store, and dispatcher behind one API.
type Service struct {
	store      store.Store
	generator  *schedule.Generator
	dispatcher *dispatch.Dispatcher
	now        func() time.Time
}

// NewService creates a Service over the given store and dispatcher.
func NewService(s store.Store, d *dispatch.Dispatcher) *Service {
	return &Service{
		store:      s,
		generator:  schedule.NewGenerator(s),
		dispatcher: d,
		now:        time.Now,
	}
}

// Schedule reconciles the reminder queue for an entity against its kind's
// policy. It is invoked on entity create and update notifications.
func (s *Service) Schedule(ctx context.Context, entity models.TrackedEntity) (*schedule.Result, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	policy, err := s.store.GetPolicy(entity.Kind)
	if err != nil {
		return nil, err
	}
	// Snapshot the entity so dispatch-time rendering has its variables even
	// when the owning CRUD module is unreachable.
	if err := s.store.SaveEntity(entity); err != nil {
		return nil, err
	}
	// A dispatch sweep claiming a row mid-reconcile loses us the version race;
	// re-running the diff converges, so absorb a bounded number of conflicts.
	var result *schedule.Result
	for attempt := 0; ; attempt++ {
		result, err = s.generator.Reconcile(entity, *policy, s.now())
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, models.ErrConcurrentModification) || attempt+1 >= maxCASRetries {
			return nil, err
		}
		slog.Debug("Service.Schedule lost version race during reconcile, retrying", "subjectID", entity.ID, "attempt", attempt+1)
	}
}

// Unschedule cancels all pending reminders for a deleted entity.
func (s *Service) Unschedule(ctx context.Context, subjectID string) (*schedule.Result, error) {
	return s.generator.Remove(subjectID)
}

// Reschedule moves a pending reminder to a new fire time. Rescheduling into
// the past is permitted: the row becomes immediately due on the next sweep.
func (s *Service) Reschedule(ctx context.Context, id string, newAt time.Time) (*models.ScheduledReminder, error) {
	if newAt.Before(s.now()) {
		slog.Warn("Service.Reschedule: new time is in the past, reminder becomes immediately due", "id", id, "newAt", newAt)
	}
	return s.mutatePending(id, "reschedule", func(r *models.ScheduledReminder) {
		r.ScheduledAt = newAt
	})
}

// Cancel transitions a pending reminder to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (*models.ScheduledReminder, error) {
	return s.mutatePending(id, "cancel", func(r *models.ScheduledReminder) {
		r.Status = models.StatusCancelled
	})
}

// SendNow dispatches a pending reminder immediately, outside the sweep. A
// claim lost to a concurrent writer is retried; each retry re-reads the row,
// so a sweep that won the claim surfaces as ErrInvalidStateTransition.
func (s *Service) SendNow(ctx context.Context, id string) error {
	var err error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		err = s.dispatcher.SendNow(ctx, id, s.now())
		if err == nil || !errors.Is(err, models.ErrConcurrentModification) {
			return err
		}
		slog.Debug("Service.SendNow lost claim race, retrying", "id", id, "attempt", attempt+1)
	}
	return err
}

// TestSend renders a template and sends it directly, bypassing the queue.
// Only a history entry is recorded.
func (s *Service) TestSend(ctx context.Context, kind models.ReminderKind, channel models.Channel, recipient, templateOverride string) error {
	if !models.IsValidKind(kind) {
		return models.ErrInvalidKind
	}
	if !models.IsValidChannel(channel) {
		return fmt.Errorf("%w: %q", models.ErrInvalidChannel, channel)
	}
	return s.dispatcher.TestSend(ctx, kind, channel, recipient, templateOverride)
}

// ListReminders returns queue rows for the Scheduled tab.
func (s *Service) ListReminders(f models.ReminderFilter) ([]models.ScheduledReminder, error) {
	return s.store.ListReminders(f)
}

// ListLog returns dispatch history for the History tab.
func (s *Service) ListLog(f models.LogFilter) ([]models.ReminderLogEntry, error) {
	return s.store.ListLog(f)
}

// GetPolicy returns the stored policy for a kind.
func (s *Service) GetPolicy(kind models.ReminderKind) (*models.ReminderPolicy, error) {
	if !models.IsValidKind(kind) {
		return nil, models.ErrInvalidKind
	}
	return s.store.GetPolicy(kind)
}

// UpdatePolicy validates and stores a policy. Existing reminders are not
// regenerated here; reconciliation runs on the next entity notification.
func (s *Service) UpdatePolicy(p models.ReminderPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.store.SavePolicy(p)
}

// mutatePending applies a mutation to a pending row under the CAS discipline,
// retrying a bounded number of times when another writer wins the version
// race.
func (s *Service) mutatePending(id, op string, mutate func(*models.ScheduledReminder)) (*models.ScheduledReminder, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		r, err := s.store.GetReminder(id)
		if err != nil {
			return nil, err
		}
		if r.Status != models.StatusPending {
			return nil, fmt.Errorf("%w: %s requires pending, reminder %s is %s", models.ErrInvalidStateTransition, op, id, r.Status)
		}
		mutate(r)
		err = s.store.UpdateReminder(*r, r.Version)
		if err == nil {
			r.Version++
			slog.Info("Service.mutatePending succeeded", "op", op, "id", id, "version", r.Version)
			return r, nil
		}
		if !errors.Is(err, models.ErrConcurrentModification) {
			return nil, err
		}
		slog.Debug("Service.mutatePending lost version race, retrying", "op", op, "id", id, "attempt", attempt+1)
	}
	return nil, models.ErrConcurrentModification
}

// SeedDefaultPolicies stores a default policy for any kind that has none yet.
func (s *Service) SeedDefaultPolicies() error {
	for _, p := range DefaultPolicies() {
		if _, err := s.store.GetPolicy(p.Kind); err == nil {
			continue
		} else if !errors.Is(err, models.ErrPolicyNotFound) {
			return err
		}
		if err := s.store.SavePolicy(p); err != nil {
			return fmt.Errorf("seed policy for %s failed: %w", p.Kind, err)
		}
		slog.Info("Service.SeedDefaultPolicies: seeded default policy", "kind", p.Kind)
	}
	return nil
}

// DefaultPolicies returns the out-of-the-box per-kind policies.
func DefaultPolicies() []models.ReminderPolicy {
	subscriptionTemplates := map[models.Channel]string{
		models.ChannelEmail:    "Dear {client_name}, your {service_name} subscription expires on {expiry_date}. Renewal amount: {amount}.",
		models.ChannelWhatsApp: "Hi {client_name}! Your {service_name} subscription expires on {expiry_date}.",
		models.ChannelSMS:      "{client_name}: {service_name} expires {expiry_date}.",
		models.ChannelPush:     "{service_name} expires {expiry_date}",
		models.ChannelPhone:    "Hello {client_name}. This is a reminder that your {service_name} subscription expires on {expiry_date}.",
	}
	meetingTemplates := map[models.Channel]string{
		models.ChannelEmail:    "Dear {client_name}, a reminder for your meeting \"{title}\" on {scheduled_date}.",
		models.ChannelWhatsApp: "Hi {client_name}! Reminder: \"{title}\" on {scheduled_date}.",
		models.ChannelPush:     "Upcoming meeting: {title}",
	}
	callTemplates := map[models.Channel]string{
		models.ChannelEmail: "Dear {client_name}, a reminder for your scheduled call \"{title}\" on {scheduled_date}.",
		models.ChannelSMS:   "Reminder: call \"{title}\" on {scheduled_date}.",
		models.ChannelPush:  "Upcoming call: {title}",
	}
	return []models.ReminderPolicy{
		{
			Kind:     models.KindSubscription,
			Enabled:  true,
			Channels: []models.Channel{models.ChannelEmail},
			Offsets: []models.Offset{
				{Days: 30}, {Days: 15}, {Days: 7}, {Days: 3}, {Days: 1}, {Days: 0},
			},
			Templates:  subscriptionTemplates,
			MaxRetries: models.DefaultMaxRetries,
		},
		{
			Kind:     models.KindMeeting,
			Enabled:  true,
			Channels: []models.Channel{models.ChannelEmail, models.ChannelPush},
			Offsets: []models.Offset{
				{Days: 1}, {Minutes: 30},
			},
			Templates:  meetingTemplates,
			MaxRetries: models.DefaultMaxRetries,
		},
		{
			Kind:     models.KindCall,
			Enabled:  true,
			Channels: []models.Channel{models.ChannelEmail},
			Offsets: []models.Offset{
				{Days: 1}, {Minutes: 15},
			},
			Templates:  callTemplates,
			MaxRetries: models.DefaultMaxRetries,
		},
	}
}

// WithNowFunc overrides the service clock. Intended for tests.
func (s *Service) WithNowFunc(now func() time.Time) *Service {
	s.now = now
	return s
}

// storeEntities adapts the store's entity snapshots to the dispatcher's
// entity source contract.
type storeEntities struct {
	s store.Store
}

func (se storeEntities) Get(ctx context.Context, id string) (*models.TrackedEntity, error) {
	return se.s.GetEntity(id)
}

// EntitySource returns a dispatch entity source backed by the store's
// entity snapshots.
func EntitySource(s store.Store) dispatch.EntitySource {
	return storeEntities{s: s}
}
