// Package messaging provides the channel adapter contract and the transport
// implementations used by the dispatcher.
//
// One adapter exists per channel. Adapters are thin: they validate the
// recipient, hand the rendered message to the provider, and report the
// outcome. Retry policy, logging, and state transitions belong to the
// dispatcher.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/adminsuite/reminderd/internal/models"
)

// phoneNumberRegex matches everything that is not a digit or leading plus.
var phoneNumberRegex = regexp.MustCompile(`[^\d+]`)

// ChannelAdapter delivers a rendered reminder message over one transport.
type ChannelAdapter interface {
	// Send delivers the message to the recipient. The context carries the
	// dispatcher's per-send timeout.
	Send(ctx context.Context, recipient, message string) error
}

// Registry maps channels to their adapters.
type Registry struct {
	adapters map[models.Channel]ChannelAdapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Channel]ChannelAdapter)}
}

// Register binds an adapter to a channel, replacing any previous binding.
func (r *Registry) Register(c models.Channel, a ChannelAdapter) {
	r.adapters[c] = a
	slog.Debug("Registry.Register", "channel", c, "adapter", fmt.Sprintf("%T", a))
}

// Adapter returns the adapter for a channel, or an error when none is bound.
func (r *Registry) Adapter(c models.Channel) (ChannelAdapter, error) {
	a, ok := r.adapters[c]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for channel %q", c)
	}
	return a, nil
}

// Channels returns the channels that currently have an adapter bound.
func (r *Registry) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.adapters))
	for c := range r.adapters {
		out = append(out, c)
	}
	return out
}

// CanonicalizePhone validates and canonicalizes a phone-based recipient.
// It strips formatting characters and requires at least 6 digits.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	digits := canonical
	if len(digits) > 0 && digits[0] == '+' {
		digits = digits[1:]
	}
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", recipient)
	}
	if canonical != recipient {
		slog.Debug("CanonicalizePhone modified recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
