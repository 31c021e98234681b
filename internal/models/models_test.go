package models

import (
	"errors"
	"testing"
	"time"
)

func TestOffsetKey(t *testing.T) {
	tests := []struct {
		offset Offset
		want   string
	}{
		{Offset{Days: 7}, "7d"},
		{Offset{Days: 30}, "30d"},
		{Offset{Days: 0}, "0d"},
		{Offset{Minutes: 30}, "30m"},
		{Offset{Minutes: 15}, "15m"},
	}
	for _, tt := range tests {
		if got := tt.offset.Key(); got != tt.want {
			t.Errorf("Offset%+v.Key() = %q, want %q", tt.offset, got, tt.want)
		}
	}
}

func TestOffsetDuration(t *testing.T) {
	if got := (Offset{Days: 7}).Duration(); got != 7*24*time.Hour {
		t.Errorf("7d duration = %v, want %v", got, 7*24*time.Hour)
	}
	if got := (Offset{Minutes: 30}).Duration(); got != 30*time.Minute {
		t.Errorf("30m duration = %v, want %v", got, 30*time.Minute)
	}
	if got := (Offset{}).Duration(); got != 0 {
		t.Errorf("zero offset duration = %v, want 0", got)
	}
}

func TestOffsetValidate(t *testing.T) {
	if err := (Offset{Days: -1}).Validate(); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("negative days: got %v, want ErrNegativeOffset", err)
	}
	if err := (Offset{Days: 1, Minutes: 30}).Validate(); !errors.Is(err, ErrAmbiguousOffset) {
		t.Errorf("days and minutes both set: got %v, want ErrAmbiguousOffset", err)
	}
	if err := (Offset{Days: 7}).Validate(); err != nil {
		t.Errorf("valid offset: got %v, want nil", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from ReminderStatus
		to   ReminderStatus
		want bool
	}{
		{StatusPending, StatusSending, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusPending, true},
		{StatusPending, StatusSent, false},
		{StatusSending, StatusSent, true},
		{StatusSending, StatusFailed, true},
		{StatusSending, StatusPending, true},
		{StatusSending, StatusCancelled, false},
		{StatusSent, StatusPending, false},
		{StatusFailed, StatusPending, false},
		{StatusCancelled, StatusSending, false},
	}
	for _, tt := range tests {
		r := ScheduledReminder{Status: tt.from}
		if got := r.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []ReminderStatus{StatusSent, StatusFailed, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.IsActive() {
			t.Errorf("%s should not be active", s)
		}
	}
	for _, s := range []ReminderStatus{StatusPending, StatusSending} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if !s.IsActive() {
			t.Errorf("%s should be active", s)
		}
	}
}

func TestActiveKey(t *testing.T) {
	r := ScheduledReminder{SubjectID: "sub-001", OffsetKey: "7d", Channel: ChannelEmail}
	if got, want := r.ActiveKey(), "sub-001|7d|email"; got != want {
		t.Errorf("ActiveKey() = %q, want %q", got, want)
	}
}

func TestPolicyValidate(t *testing.T) {
	valid := ReminderPolicy{
		Kind:     KindSubscription,
		Enabled:  true,
		Channels: []Channel{ChannelEmail},
		Offsets:  []Offset{{Days: 7}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid policy: got %v", err)
	}

	bad := valid
	bad.Kind = "invoice"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("unknown kind: got %v, want ErrInvalidKind", err)
	}

	bad = valid
	bad.Channels = []Channel{"carrier-pigeon"}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("unknown channel: got %v, want ErrInvalidChannel", err)
	}

	bad = valid
	bad.MaxRetries = -1
	if err := bad.Validate(); !errors.Is(err, ErrNegativeRetries) {
		t.Errorf("negative retries: got %v, want ErrNegativeRetries", err)
	}
}

func TestPolicyRetryLimit(t *testing.T) {
	p := ReminderPolicy{Kind: KindMeeting}
	if got := p.RetryLimit(); got != DefaultMaxRetries {
		t.Errorf("unset retries: got %d, want %d", got, DefaultMaxRetries)
	}
	p.MaxRetries = 5
	if got := p.RetryLimit(); got != 5 {
		t.Errorf("explicit retries: got %d, want 5", got)
	}
}

func TestEntityValidate(t *testing.T) {
	valid := TrackedEntity{ID: "sub-001", Kind: KindSubscription, TriggerAt: time.Now()}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid entity: got %v", err)
	}

	bad := valid
	bad.ID = ""
	if err := bad.Validate(); !errors.Is(err, ErrMissingEntityID) {
		t.Errorf("missing id: got %v, want ErrMissingEntityID", err)
	}

	bad = valid
	bad.TriggerAt = time.Time{}
	if err := bad.Validate(); !errors.Is(err, ErrMissingTrigger) {
		t.Errorf("zero trigger: got %v, want ErrMissingTrigger", err)
	}
}

func TestDispatchErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &DispatchError{Channel: ChannelSMS, Recipient: "+15551234567", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("DispatchError should unwrap to the inner error")
	}
}
