// Package messaging provides channel adapters for the reminder engine.
//
// This file implements the Twilio-backed adapters: SMS, WhatsApp, and
// automated voice calls for the phone channel.
package messaging

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig holds the shared Twilio credentials and sender identities.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

func newTwilioClient(cfg TwilioConfig) *twilio.RestClient {
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
}

// TwilioSMSAdapter sends reminders as SMS messages.
type TwilioSMSAdapter struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSMSAdapter creates an SMS adapter from the shared Twilio config.
func NewTwilioSMSAdapter(cfg TwilioConfig) *TwilioSMSAdapter {
	return &TwilioSMSAdapter{client: newTwilioClient(cfg), from: cfg.FromNumber}
}

func (a *TwilioSMSAdapter) Send(ctx context.Context, recipient, message string) error {
	to, err := CanonicalizePhone(recipient)
	if err != nil {
		return err
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(a.from)
	params.SetBody(message)

	resp, err := a.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioSMSAdapter.Send failed", "error", err, "to", to)
		return fmt.Errorf("twilio sms send failed: %w", err)
	}
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("TwilioSMSAdapter.Send succeeded", "to", to, "sid", sid)
	return nil
}

// TwilioWhatsAppAdapter sends reminders as WhatsApp messages through Twilio's
// WhatsApp Business API.
type TwilioWhatsAppAdapter struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioWhatsAppAdapter creates a WhatsApp adapter from the shared Twilio config.
func NewTwilioWhatsAppAdapter(cfg TwilioConfig) *TwilioWhatsAppAdapter {
	return &TwilioWhatsAppAdapter{client: newTwilioClient(cfg), from: cfg.FromNumber}
}

func (a *TwilioWhatsAppAdapter) Send(ctx context.Context, recipient, message string) error {
	to, err := CanonicalizePhone(recipient)
	if err != nil {
		return err
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom("whatsapp:" + a.from)
	params.SetBody(message)

	resp, err := a.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioWhatsAppAdapter.Send failed", "error", err, "to", to)
		return fmt.Errorf("twilio whatsapp send failed: %w", err)
	}
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("TwilioWhatsAppAdapter.Send succeeded", "to", to, "sid", sid)
	return nil
}

// TwilioVoiceAdapter places an automated call that reads the reminder aloud.
// It backs the phone channel.
type TwilioVoiceAdapter struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioVoiceAdapter creates a voice adapter from the shared Twilio config.
func NewTwilioVoiceAdapter(cfg TwilioConfig) *TwilioVoiceAdapter {
	return &TwilioVoiceAdapter{client: newTwilioClient(cfg), from: cfg.FromNumber}
}

func (a *TwilioVoiceAdapter) Send(ctx context.Context, recipient, message string) error {
	to, err := CanonicalizePhone(recipient)
	if err != nil {
		return err
	}
	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(a.from)
	params.SetTwiml(sayTwiml(message))

	resp, err := a.client.Api.CreateCall(params)
	if err != nil {
		slog.Error("TwilioVoiceAdapter.Send failed", "error", err, "to", to)
		return fmt.Errorf("twilio voice call failed: %w", err)
	}
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("TwilioVoiceAdapter.Send succeeded", "to", to, "sid", sid)
	return nil
}

// sayTwiml wraps the message in a minimal TwiML Say verb, escaping the body.
func sayTwiml(message string) string {
	b := &xmlBuffer{buf: make([]byte, 0, len(message))}
	_ = xml.EscapeText(b, []byte(message))
	return "<Response><Say>" + string(b.buf) + "</Say></Response>"
}

type xmlBuffer struct{ buf []byte }

func (b *xmlBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}
