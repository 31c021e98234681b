// Package schedule derives concrete reminder instances from declarative
// policies and reconciles them against the queue.
package schedule

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/adminsuite/reminderd/internal/models"
	"github.com/adminsuite/reminderd/internal/store"
)

// Result summarizes one reconciliation pass.
type Result struct {
	Created   []models.ScheduledReminder `json:"created"`
	Updated   []models.ScheduledReminder `json:"updated"`
	Cancelled []models.ScheduledReminder `json:"cancelled"`
}

// Generator reconciles the desired reminder set for an entity against the
// active rows in the queue.
type Generator struct {
	store store.Store
}

// NewGenerator creates a Generator backed by the given store.
func NewGenerator(s store.Store) *Generator {
	return &Generator{store: s}
}

// Reconcile computes the desired reminder set (policy.Offsets x
// policy.Channels when the policy is enabled) and diffs it against the
// entity's active rows keyed by (subject, offset, channel):
//
//   - missing combinations are created as pending rows
//   - combinations no longer desired are cancelled
//   - active rows whose scheduled time moved (trigger date edited) are
//     updated in place, staying pending
//
// A computed time already in the past is still created as pending: it becomes
// immediately due on the next dispatch sweep (catch-up). Terminal rows are
// never touched.
func (g *Generator) Reconcile(entity models.TrackedEntity, policy models.ReminderPolicy, now time.Time) (*Result, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	desired := make(map[string]models.ScheduledReminder)
	if policy.Enabled {
		for _, offset := range policy.Offsets {
			for _, channel := range policy.Channels {
				r := models.ScheduledReminder{
					SubjectID:   entity.ID,
					Kind:        entity.Kind,
					Channel:     channel,
					OffsetKey:   offset.Key(),
					Recipient:   entity.Recipient,
					ScheduledAt: entity.TriggerAt.Add(-offset.Duration()),
					Status:      models.StatusPending,
				}
				desired[r.ActiveKey()] = r
			}
		}
	}

	active, err := g.store.ListActiveBySubject(entity.ID)
	if err != nil {
		return nil, fmt.Errorf("list active reminders for %s failed: %w", entity.ID, err)
	}

	result := &Result{}
	seen := make(map[string]bool)

	for _, existing := range active {
		key := existing.ActiveKey()
		want, ok := desired[key]
		if !ok {
			// Combination disabled or entity gone. Rows already claimed into
			// sending finish their in-flight attempt first; cancellation is
			// cooperative and only applies to pending rows.
			if existing.Status != models.StatusPending {
				seen[key] = true
				continue
			}
			existing.Status = models.StatusCancelled
			if err := g.store.UpdateReminder(existing, existing.Version); err != nil {
				return nil, fmt.Errorf("cancel reminder %s failed: %w", existing.ID, err)
			}
			result.Cancelled = append(result.Cancelled, existing)
			seen[key] = true
			continue
		}
		seen[key] = true
		if !existing.ScheduledAt.Equal(want.ScheduledAt) && existing.Status == models.StatusPending {
			existing.ScheduledAt = want.ScheduledAt
			if err := g.store.UpdateReminder(existing, existing.Version); err != nil {
				return nil, fmt.Errorf("update reminder %s failed: %w", existing.ID, err)
			}
			result.Updated = append(result.Updated, existing)
		}
	}

	for key, want := range desired {
		if seen[key] {
			continue
		}
		want.ID = ulid.Make().String()
		want.CreatedAt = now
		if err := g.store.CreateReminder(want); err != nil {
			return nil, fmt.Errorf("create reminder for %s failed: %w", entity.ID, err)
		}
		want.Version = 1
		result.Created = append(result.Created, want)
		if want.ScheduledAt.Before(now) {
			slog.Debug("Generator.Reconcile created past-due reminder, eligible for catch-up",
				"subjectID", entity.ID, "offset", want.OffsetKey, "channel", want.Channel, "scheduledAt", want.ScheduledAt)
		}
	}

	slog.Info("Generator.Reconcile completed", "subjectID", entity.ID, "kind", entity.Kind,
		"created", len(result.Created), "updated", len(result.Updated), "cancelled", len(result.Cancelled))
	return result, nil
}

// Remove cancels every pending reminder for a deleted entity. It is the
// reconcile path for entity deletion, where no policy evaluation is needed.
func (g *Generator) Remove(subjectID string) (*Result, error) {
	active, err := g.store.ListActiveBySubject(subjectID)
	if err != nil {
		return nil, fmt.Errorf("list active reminders for %s failed: %w", subjectID, err)
	}
	result := &Result{}
	for _, r := range active {
		if r.Status != models.StatusPending {
			continue
		}
		r.Status = models.StatusCancelled
		if err := g.store.UpdateReminder(r, r.Version); err != nil {
			return nil, fmt.Errorf("cancel reminder %s failed: %w", r.ID, err)
		}
		result.Cancelled = append(result.Cancelled, r)
	}
	slog.Info("Generator.Remove completed", "subjectID", subjectID, "cancelled", len(result.Cancelled))
	return result, nil
}
