// Package messaging provides channel adapters for the reminder engine.
//
// This file implements the SMTP email adapter.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/adminsuite/reminderd/internal/models"
)

// SMTPConfig holds the SMTP relay settings for the email adapter.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// SMTPEmailAdapter sends reminders as plain-text emails through an SMTP relay.
type SMTPEmailAdapter struct {
	cfg SMTPConfig
	// sendMail is swappable for tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPEmailAdapter creates an email adapter for the given relay.
func NewSMTPEmailAdapter(cfg SMTPConfig) *SMTPEmailAdapter {
	if cfg.Subject == "" {
		cfg.Subject = "Reminder"
	}
	return &SMTPEmailAdapter{cfg: cfg, sendMail: smtp.SendMail}
}

func (a *SMTPEmailAdapter) Send(ctx context.Context, recipient, message string) error {
	if recipient == "" {
		return models.ErrEmptyRecipient
	}
	if !strings.Contains(recipient, "@") {
		return fmt.Errorf("invalid email recipient %q", recipient)
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}

	var msg strings.Builder
	msg.WriteString("From: " + a.cfg.From + "\r\n")
	msg.WriteString("To: " + recipient + "\r\n")
	msg.WriteString("Subject: " + a.cfg.Subject + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(message)
	msg.WriteString("\r\n")

	if err := a.sendMail(addr, auth, a.cfg.From, []string{recipient}, []byte(msg.String())); err != nil {
		slog.Error("SMTPEmailAdapter.Send failed", "error", err, "to", recipient)
		return fmt.Errorf("smtp send to %s failed: %w", recipient, err)
	}
	slog.Debug("SMTPEmailAdapter.Send succeeded", "to", recipient)
	return nil
}
