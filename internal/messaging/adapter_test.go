package messaging

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/adminsuite/reminderd/internal/models"
)

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "+15551234567", false},
		{"5551234567", "5551234567", false},
		{"+15551234567", "+15551234567", false},
		{"", "", true},
		{"+1-23", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizePhone(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("CanonicalizePhone(%q) should fail", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("CanonicalizePhone(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CanonicalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Adapter(models.ChannelEmail); err == nil {
		t.Error("empty registry should report a missing adapter")
	}

	mock := NewMockAdapter()
	r.Register(models.ChannelEmail, mock)
	a, err := r.Adapter(models.ChannelEmail)
	if err != nil {
		t.Fatalf("adapter lookup: %v", err)
	}
	if a != ChannelAdapter(mock) {
		t.Error("lookup returned a different adapter")
	}
	if got := r.Channels(); len(got) != 1 || got[0] != models.ChannelEmail {
		t.Errorf("channels = %v", got)
	}
}

func TestSMTPEmailAdapterSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	a := NewSMTPEmailAdapter(SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "reminders@example.com",
	})
	a.sendMail = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := a.Send(context.Background(), "client@example.com", "Your subscription expires soon")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotFrom != "reminders@example.com" || len(gotTo) != 1 || gotTo[0] != "client@example.com" {
		t.Errorf("from = %q, to = %v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "Subject: Reminder\r\n") {
		t.Errorf("default subject missing: %q", body)
	}
	if !strings.Contains(body, "Your subscription expires soon") {
		t.Errorf("message body missing: %q", body)
	}
}

func TestSMTPEmailAdapterRejectsBadRecipient(t *testing.T) {
	a := NewSMTPEmailAdapter(SMTPConfig{Host: "smtp.example.com", Port: 587})
	a.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("sendMail must not be called for an invalid recipient")
		return nil
	}

	if err := a.Send(context.Background(), "", "hi"); !errors.Is(err, models.ErrEmptyRecipient) {
		t.Errorf("empty recipient: got %v, want ErrEmptyRecipient", err)
	}
	if err := a.Send(context.Background(), "not-an-email", "hi"); err == nil {
		t.Error("recipient without @ should be rejected")
	}
}

func TestSMTPEmailAdapterWrapsRelayError(t *testing.T) {
	relayErr := errors.New("relay refused")
	a := NewSMTPEmailAdapter(SMTPConfig{Host: "smtp.example.com", Port: 587})
	a.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return relayErr
	}

	err := a.Send(context.Background(), "client@example.com", "hi")
	if !errors.Is(err, relayErr) {
		t.Errorf("got %v, want wrapped relay error", err)
	}
}

func TestMockAdapterRecordsAndFails(t *testing.T) {
	m := NewMockAdapter()
	if err := m.Send(context.Background(), "a@b.c", "one"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent := m.Sent(); len(sent) != 1 || sent[0].Message != "one" {
		t.Errorf("sent = %+v", sent)
	}

	m.Err = errors.New("forced failure")
	if err := m.Send(context.Background(), "a@b.c", "two"); err == nil {
		t.Error("send should fail when Err is set")
	}
	if sent := m.Sent(); len(sent) != 1 {
		t.Errorf("failed send must not be recorded, sent = %+v", sent)
	}
}
