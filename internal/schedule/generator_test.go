package schedule

import (
	"testing"
	"time"

	"github.com/adminsuite/reminderd/internal/models"
	"github.com/adminsuite/reminderd/internal/store"
)

var trigger = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func testEntity() models.TrackedEntity {
	return models.TrackedEntity{
		ID:               "sub-001",
		Kind:             models.KindSubscription,
		TriggerAt:        trigger,
		SubjectName:      "Premium Hosting",
		CounterpartyName: "Acme Corp",
		Recipient:        "client@example.com",
	}
}

func testPolicy() models.ReminderPolicy {
	return models.ReminderPolicy{
		Kind:     models.KindSubscription,
		Enabled:  true,
		Channels: []models.Channel{models.ChannelEmail},
		Offsets: []models.Offset{
			{Days: 30}, {Days: 15}, {Days: 7}, {Days: 3}, {Days: 1}, {Days: 0},
		},
	}
}

func TestReconcileCreatesFullSet(t *testing.T) {
	s := store.NewInMemoryStore()
	g := NewGenerator(s)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	result, err := g.Reconcile(testEntity(), testPolicy(), now)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(result.Created) != 6 {
		t.Fatalf("created = %d, want 6", len(result.Created))
	}

	wantTimes := map[string]time.Time{
		"30d": trigger.AddDate(0, 0, -30),
		"15d": trigger.AddDate(0, 0, -15),
		"7d":  trigger.AddDate(0, 0, -7),
		"3d":  trigger.AddDate(0, 0, -3),
		"1d":  trigger.AddDate(0, 0, -1),
		"0d":  trigger,
	}
	for _, r := range result.Created {
		want, ok := wantTimes[r.OffsetKey]
		if !ok {
			t.Errorf("unexpected offset %q", r.OffsetKey)
			continue
		}
		if !r.ScheduledAt.Equal(want) {
			t.Errorf("offset %s scheduled at %v, want %v", r.OffsetKey, r.ScheduledAt, want)
		}
		if r.Status != models.StatusPending {
			t.Errorf("offset %s status = %s, want pending", r.OffsetKey, r.Status)
		}
		if r.Recipient != "client@example.com" {
			t.Errorf("offset %s recipient = %q", r.OffsetKey, r.Recipient)
		}
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	s := store.NewInMemoryStore()
	g := NewGenerator(s)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if _, err := g.Reconcile(testEntity(), testPolicy(), now); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	result, err := g.Reconcile(testEntity(), testPolicy(), now)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(result.Created) != 0 || len(result.Updated) != 0 || len(result.Cancelled) != 0 {
		t.Errorf("second reconcile should be a no-op, got %+v", result)
	}

	active, err := s.ListActiveBySubject("sub-001")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 6 {
		t.Errorf("active rows = %d, want 6", len(active))
	}
}

func TestReconcileTriggerMovedUpdatesInPlace(t *testing.T) {
	s := store.NewInMemoryStore()
	g := NewGenerator(s)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if _, err := g.Reconcile(testEntity(), testPolicy(), now); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	moved := testEntity()
	moved.TriggerAt = trigger.AddDate(0, 0, 10)
	result, err := g.Reconcile(moved, testPolicy(), now)
	if err != nil {
		t.Fatalf("reconcile after move: %v", err)
	}
	if len(result.Updated) != 6 {
		t.Errorf("updated = %d, want 6", len(result.Updated))
	}
	if len(result.Created) != 0 || len(result.Cancelled) != 0 {
		t.Errorf("trigger move should only update, got %+v", result)
	}

	active, _ := s.ListActiveBySubject("sub-001")
	for _, r := range active {
		if r.ScheduledAt.After(moved.TriggerAt) {
			t.Errorf("offset %s scheduled after the new trigger: %v", r.OffsetKey, r.ScheduledAt)
		}
	}
}

func TestReconcileChannelRemovedCancels(t *testing.T) {
	s := store.NewInMemoryStore()
	g := NewGenerator(s)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	policy := testPolicy()
	policy.Channels = []models.Channel{models.ChannelEmail, models.ChannelSMS}
	if _, err := g.Reconcile(testEntity(), policy, now); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	policy.Channels = []models.Channel{models.ChannelEmail}
	result, err := g.Reconcile(testEntity(), policy, now)
	if err != nil {
		t.Fatalf("reconcile after channel removal: %v", err)
	}
	if len(result.Cancelled) != 6 {
		t.Errorf("cancelled = %d, want 6 sms rows", len(result.Cancelled))
	}
	for _, r := range result.Cancelled {
		if r.Channel != models.ChannelSMS {
			t.Errorf("cancelled row on channel %s, want sms", r.Channel)
		}
	}
}

func TestReconcileDisabledPolicyCancelsAll(t *testing.T) {
	s := store.NewInMemoryStore()
	g := NewGenerator(s)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if _, err := g.Reconcile(testEntity(), testPolicy(), now); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	disabled := testPolicy()
	disabled.Enabled = false
	result, err := g.Reconcile(testEntity(), disabled, now)
	if err != nil {
		t.Fatalf("reconcile disabled: %v", err)
	}
	if len(result.Cancelled) != 6 || len(result.Created) != 0 {
		t.Errorf("disable should cancel all pending, got %+v", result)
	}

	active, _ := s.ListActiveBySubject("sub-001")
	if len(active) != 0 {
		t.Errorf("active rows after disable = %d, want 0", len(active))
	}
}

func TestReconcileTerminalRowsUntouched(t *testing.T) {
	s := store.NewInMemoryStore()
	g := NewGenerator(s)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	policy := testPolicy()
	policy.Offsets = []models.Offset{{Days: 7}}
	if _, err := g.Reconcile(testEntity(), policy, now); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	// Mark the single row sent, as the dispatcher would.
	active, _ := s.ListActiveBySubject("sub-001")
	sentRow := active[0]
	sentRow.Status = models.StatusSending
	if err := s.UpdateReminder(sentRow, sentRow.Version); err != nil {
		t.Fatalf("claim: %v", err)
	}
	sentRow.Status = models.StatusSent
	if err := s.UpdateReminder(sentRow, sentRow.Version+1); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	// A sent row is no longer active, so reconciliation regenerates the
	// combination as a fresh pending row.
	result, err := g.Reconcile(testEntity(), policy, now)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(result.Created) != 1 {
		t.Errorf("created = %d, want 1 fresh row for the sent combination", len(result.Created))
	}

	got, err := s.GetReminder(sentRow.ID)
	if err != nil {
		t.Fatalf("get sent row: %v", err)
	}
	if got.Status != models.StatusSent {
		t.Errorf("sent row status = %s, should stay sent", got.Status)
	}
}

func TestReconcilePastDueCreatedPending(t *testing.T) {
	s := store.NewInMemoryStore()
	g := NewGenerator(s)
	// Reconcile after some offsets have already passed.
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	result, err := g.Reconcile(testEntity(), testPolicy(), now)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(result.Created) != 6 {
		t.Fatalf("created = %d, want 6 including past-due offsets", len(result.Created))
	}

	due, err := s.ListDue(now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	// 30d, 15d and 7d offsets are already past on 2026-03-10.
	if len(due) != 3 {
		t.Errorf("immediately due rows = %d, want 3", len(due))
	}
}

func TestRemoveCancelsPending(t *testing.T) {
	s := store.NewInMemoryStore()
	g := NewGenerator(s)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if _, err := g.Reconcile(testEntity(), testPolicy(), now); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	result, err := g.Remove("sub-001")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(result.Cancelled) != 6 {
		t.Errorf("cancelled = %d, want 6", len(result.Cancelled))
	}

	active, _ := s.ListActiveBySubject("sub-001")
	if len(active) != 0 {
		t.Errorf("active rows after remove = %d, want 0", len(active))
	}
}

func TestReconcileRejectsInvalidInput(t *testing.T) {
	g := NewGenerator(store.NewInMemoryStore())
	now := time.Now()

	bad := testEntity()
	bad.ID = ""
	if _, err := g.Reconcile(bad, testPolicy(), now); err == nil {
		t.Error("entity without id should be rejected")
	}

	badPolicy := testPolicy()
	badPolicy.Offsets = []models.Offset{{Days: -1}}
	if _, err := g.Reconcile(testEntity(), badPolicy, now); err == nil {
		t.Error("policy with negative offset should be rejected")
	}
}
