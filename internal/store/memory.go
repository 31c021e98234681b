package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adminsuite/reminderd/internal/models"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a mutex-guarded map-backed store. It honors the same
// compare-and-swap discipline as the SQL backends and is the default when no
// database DSN is configured.
type InMemoryStore struct {
	mu        sync.RWMutex
	reminders map[string]models.ScheduledReminder
	log       []models.ReminderLogEntry
	policies  map[models.ReminderKind]models.ReminderPolicy
	entities  map[string]models.TrackedEntity
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		reminders: make(map[string]models.ScheduledReminder),
		policies:  make(map[models.ReminderKind]models.ReminderPolicy),
		entities:  make(map[string]models.TrackedEntity),
	}
}

func (s *InMemoryStore) CreateReminder(r models.ScheduledReminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Version = 1
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.reminders[r.ID] = r
	slog.Debug("InMemoryStore.CreateReminder", "id", r.ID, "subjectID", r.SubjectID, "channel", r.Channel, "offset", r.OffsetKey)
	return nil
}

func (s *InMemoryStore) GetReminder(id string) (*models.ScheduledReminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &r, nil
}

func (s *InMemoryStore) UpdateReminder(r models.ScheduledReminder, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.reminders[r.ID]
	if !ok {
		return models.ErrNotFound
	}
	if current.Version != expectedVersion {
		slog.Debug("InMemoryStore.UpdateReminder version conflict", "id", r.ID, "expected", expectedVersion, "actual", current.Version)
		return models.ErrConcurrentModification
	}
	r.Version = expectedVersion + 1
	r.CreatedAt = current.CreatedAt
	r.UpdatedAt = time.Now()
	s.reminders[r.ID] = r
	slog.Debug("InMemoryStore.UpdateReminder", "id", r.ID, "status", r.Status, "version", r.Version)
	return nil
}

func (s *InMemoryStore) ListActiveBySubject(subjectID string) ([]models.ScheduledReminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ScheduledReminder
	for _, r := range s.reminders {
		if r.SubjectID == subjectID && r.Status.IsActive() {
			out = append(out, r)
		}
	}
	sortByScheduledAt(out)
	return out, nil
}

func (s *InMemoryStore) ListDue(now time.Time, limit int) ([]models.ScheduledReminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ScheduledReminder
	for _, r := range s.reminders {
		if r.Status == models.StatusPending && !r.ScheduledAt.After(now) {
			out = append(out, r)
		}
	}
	sortByScheduledAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListReminders(f models.ReminderFilter) ([]models.ScheduledReminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ScheduledReminder
	for _, r := range s.reminders {
		if f.SubjectID != "" && r.SubjectID != f.SubjectID {
			continue
		}
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Channel != "" && r.Channel != f.Channel {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) RequeueStaleSending(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, r := range s.reminders {
		if r.Status == models.StatusSending && r.UpdatedAt.Before(before) {
			r.Status = models.StatusPending
			r.Version++
			r.UpdatedAt = time.Now()
			s.reminders[id] = r
			count++
		}
	}
	if count > 0 {
		slog.Info("InMemoryStore.RequeueStaleSending", "requeued", count)
	}
	return count, nil
}

func (s *InMemoryStore) AppendLog(e models.ReminderLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, e)
	slog.Debug("InMemoryStore.AppendLog", "id", e.ID, "subjectID", e.SubjectID, "channel", e.Channel, "outcome", e.Outcome)
	return nil
}

func (s *InMemoryStore) ListLog(f models.LogFilter) ([]models.ReminderLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ReminderLogEntry
	for _, e := range s.log {
		if f.SubjectID != "" && e.SubjectID != f.SubjectID {
			continue
		}
		if f.Channel != "" && e.Channel != f.Channel {
			continue
		}
		if f.Outcome != "" && e.Outcome != f.Outcome {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptedAt.After(out[j].AttemptedAt) })
	return out, nil
}

func (s *InMemoryStore) SaveEntity(e models.TrackedEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
	slog.Debug("InMemoryStore.SaveEntity", "id", e.ID, "kind", e.Kind)
	return nil
}

func (s *InMemoryStore) GetEntity(id string) (*models.TrackedEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &e, nil
}

func (s *InMemoryStore) GetPolicy(kind models.ReminderKind) (*models.ReminderPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[kind]
	if !ok {
		return nil, models.ErrPolicyNotFound
	}
	return &p, nil
}

func (s *InMemoryStore) SavePolicy(p models.ReminderPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.Kind] = p
	slog.Debug("InMemoryStore.SavePolicy", "kind", p.Kind, "enabled", p.Enabled, "channels", len(p.Channels), "offsets", len(p.Offsets))
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func sortByScheduledAt(rs []models.ScheduledReminder) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ScheduledAt.Before(rs[j].ScheduledAt) })
}
