// Package dispatch implements the timer-driven sweep that fires due
// reminders.
//
// The dispatcher is the only writer that advances rows through the sending
// state. Each due row is claimed with a version-checked compare-and-swap, so
// a reschedule or cancel racing the same sweep deterministically resolves to
// exactly one winner. Adapter calls run under a bounded timeout behind a
// circuit breaker and a rate limiter so one slow transport cannot stall the
// sweep.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/adminsuite/reminderd/internal/messaging"
	"github.com/adminsuite/reminderd/internal/models"
	"github.com/adminsuite/reminderd/internal/store"
	"github.com/adminsuite/reminderd/internal/template"
)

// Default tuning constants for the dispatch sweep.
const (
	// DefaultClaimLimit bounds how many rows one sweep claims.
	DefaultClaimLimit = 50
	// DefaultSendTimeout bounds a single adapter call.
	DefaultSendTimeout = 30 * time.Second
	// DefaultStaleThreshold is how long a row may sit in sending before crash
	// recovery reverts it to pending.
	DefaultStaleThreshold = 5 * time.Minute
	// retryBackoffBase is the delay before a failed row becomes due again;
	// doubled per attempt.
	retryBackoffBase = 10 * time.Second
)

// EntitySource is the engine's read-only view into the CRUD modules that own
// the tracked entities.
type EntitySource interface {
	Get(ctx context.Context, id string) (*models.TrackedEntity, error)
}

// Dispatcher claims due reminders, renders their messages, and hands them to
// the channel adapters.
type Dispatcher struct {
	store    store.Store
	registry *messaging.Registry
	entities EntitySource

	sendTimeout    time.Duration
	staleThreshold time.Duration
	claimLimit     int
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker
}

// Opt configures a Dispatcher.
type Opt func(*Dispatcher)

// WithSendTimeout overrides the per-send timeout.
func WithSendTimeout(d time.Duration) Opt {
	return func(dp *Dispatcher) { dp.sendTimeout = d }
}

// WithStaleThreshold overrides the stuck-claim recovery threshold.
func WithStaleThreshold(d time.Duration) Opt {
	return func(dp *Dispatcher) { dp.staleThreshold = d }
}

// WithClaimLimit overrides how many rows one sweep claims.
func WithClaimLimit(n int) Opt {
	return func(dp *Dispatcher) { dp.claimLimit = n }
}

// WithRateLimit bounds outbound adapter calls per second.
func WithRateLimit(rps float64, burst int) Opt {
	return func(dp *Dispatcher) { dp.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewDispatcher creates a Dispatcher over the given store, adapters, and
// entity source.
func NewDispatcher(s store.Store, registry *messaging.Registry, entities EntitySource, opts ...Opt) *Dispatcher {
	d := &Dispatcher{
		store:          s,
		registry:       registry,
		entities:       entities,
		sendTimeout:    DefaultSendTimeout,
		staleThreshold: DefaultStaleThreshold,
		claimLimit:     DefaultClaimLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "channel-adapter",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return d
}

// Tick runs one dispatch sweep: it claims every pending row whose scheduled
// time has passed and attempts delivery for each. Rows lost to a concurrent
// writer are skipped without error.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() { SweepDuration.Observe(time.Since(start).Seconds()) }()

	due, err := d.store.ListDue(now, d.claimLimit)
	if err != nil {
		slog.Error("Dispatcher.Tick: list due failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	slog.Debug("Dispatcher.Tick: claiming due reminders", "count", len(due))

	for _, r := range due {
		claimed, err := d.claim(r)
		if err != nil {
			if errors.Is(err, models.ErrConcurrentModification) {
				// A reschedule or cancel won the race for this version.
				ClaimConflicts.Inc()
				slog.Debug("Dispatcher.Tick: claim lost", "id", r.ID)
				continue
			}
			slog.Error("Dispatcher.Tick: claim failed", "error", err, "id", r.ID)
			continue
		}
		d.deliver(ctx, claimed, now)
	}
}

// SendNow pushes a single pending reminder through the claim, render, send
// pipeline out-of-band, ignoring its scheduled time.
func (d *Dispatcher) SendNow(ctx context.Context, id string, now time.Time) error {
	r, err := d.store.GetReminder(id)
	if err != nil {
		return err
	}
	if r.Status != models.StatusPending {
		return fmt.Errorf("%w: send-now requires pending, reminder %s is %s", models.ErrInvalidStateTransition, id, r.Status)
	}
	claimed, err := d.claim(*r)
	if err != nil {
		return err
	}
	d.deliver(ctx, claimed, now)
	return nil
}

// TestSend renders a template and calls the channel adapter directly,
// bypassing the queue and its state machine. Only a log entry is written.
func (d *Dispatcher) TestSend(ctx context.Context, kind models.ReminderKind, channel models.Channel, recipient, templateOverride string) error {
	if recipient == "" {
		return models.ErrEmptyRecipient
	}
	tmpl := templateOverride
	if tmpl == "" {
		policy, err := d.store.GetPolicy(kind)
		if err != nil {
			return err
		}
		tmpl = policy.Template(channel)
	}
	message := template.Render(tmpl, sampleVars())

	sendErr := d.send(ctx, channel, recipient, message)

	entry := models.ReminderLogEntry{
		ID:          ulid.Make().String(),
		SubjectID:   "test",
		Kind:        kind,
		Channel:     channel,
		Recipient:   recipient,
		AttemptedAt: time.Now(),
		Message:     message,
		Outcome:     models.OutcomeSuccess,
	}
	if sendErr != nil {
		entry.Outcome = models.OutcomeFailed
		entry.Error = sendErr.Error()
	}
	if err := d.store.AppendLog(entry); err != nil {
		slog.Error("Dispatcher.TestSend: append log failed", "error", err)
	}
	return sendErr
}

// RecoverStale reverts rows stuck in sending for longer than the stale
// threshold back to pending. It guards against a crash between claim and
// outcome. Should run periodically and once at startup.
func (d *Dispatcher) RecoverStale(now time.Time) error {
	n, err := d.store.RequeueStaleSending(now.Add(-d.staleThreshold))
	if err != nil {
		return fmt.Errorf("recover stale sending rows failed: %w", err)
	}
	if n > 0 {
		StaleRequeued.Add(float64(n))
		slog.Info("Dispatcher.RecoverStale: requeued stuck reminders", "count", n)
	}
	return nil
}

// claim transitions a pending row to sending via compare-and-swap and returns
// the updated row.
func (d *Dispatcher) claim(r models.ScheduledReminder) (models.ScheduledReminder, error) {
	expected := r.Version
	r.Status = models.StatusSending
	if err := d.store.UpdateReminder(r, expected); err != nil {
		return r, err
	}
	r.Version = expected + 1
	return r, nil
}

// deliver renders and sends one claimed row, then records the outcome on both
// the log and the row.
func (d *Dispatcher) deliver(ctx context.Context, r models.ScheduledReminder, now time.Time) {
	message, err := d.renderMessage(ctx, r)
	if err == nil {
		err = d.send(ctx, r.Channel, r.Recipient, message)
	}

	entry := models.ReminderLogEntry{
		ID:          ulid.Make().String(),
		ReminderID:  r.ID,
		SubjectID:   r.SubjectID,
		Kind:        r.Kind,
		Channel:     r.Channel,
		Recipient:   r.Recipient,
		AttemptedAt: now,
		Message:     message,
		Outcome:     models.OutcomeSuccess,
	}

	if err == nil {
		Sends.WithLabelValues(string(r.Channel), "success").Inc()
		if logErr := d.store.AppendLog(entry); logErr != nil {
			slog.Error("Dispatcher.deliver: append log failed", "error", logErr, "id", r.ID)
		}
		r.Status = models.StatusSent
		r.LastError = ""
		if casErr := d.store.UpdateReminder(r, r.Version); casErr != nil {
			slog.Error("Dispatcher.deliver: mark sent failed", "error", casErr, "id", r.ID)
		}
		slog.Info("Dispatcher.deliver: reminder sent", "id", r.ID, "subjectID", r.SubjectID, "channel", r.Channel)
		return
	}

	dispatchErr := &models.DispatchError{Channel: r.Channel, Recipient: r.Recipient, Err: err}
	Sends.WithLabelValues(string(r.Channel), "failed").Inc()
	entry.Outcome = models.OutcomeFailed
	entry.Error = dispatchErr.Error()
	if logErr := d.store.AppendLog(entry); logErr != nil {
		slog.Error("Dispatcher.deliver: append log failed", "error", logErr, "id", r.ID)
	}

	r.Attempts++
	r.LastError = dispatchErr.Error()
	if r.Attempts >= d.retryLimit(r.Kind) {
		r.Status = models.StatusFailed
		slog.Warn("Dispatcher.deliver: retries exhausted", "id", r.ID, "subjectID", r.SubjectID, "channel", r.Channel, "attempts", r.Attempts)
	} else {
		// Back off before the row is treated as due again: 10s, 20s, 40s, ...
		r.Status = models.StatusPending
		r.ScheduledAt = now.Add(retryBackoffBase << (r.Attempts - 1))
		slog.Debug("Dispatcher.deliver: send failed, retrying later", "id", r.ID, "attempts", r.Attempts, "nextAt", r.ScheduledAt)
	}
	if casErr := d.store.UpdateReminder(r, r.Version); casErr != nil {
		slog.Error("Dispatcher.deliver: record failure failed", "error", casErr, "id", r.ID)
	}
}

// renderMessage resolves the final message body for a row: the manual
// override when set, otherwise the policy template rendered with the entity's
// variables.
func (d *Dispatcher) renderMessage(ctx context.Context, r models.ScheduledReminder) (string, error) {
	if r.Message != "" {
		return r.Message, nil
	}
	policy, err := d.store.GetPolicy(r.Kind)
	if err != nil {
		return "", fmt.Errorf("resolve policy for %s failed: %w", r.Kind, err)
	}
	tmpl := policy.Template(r.Channel)
	if tmpl == "" {
		return "", fmt.Errorf("no template configured for kind %s channel %s", r.Kind, r.Channel)
	}
	entity, err := d.entities.Get(ctx, r.SubjectID)
	if err != nil {
		return "", fmt.Errorf("resolve entity %s failed: %w", r.SubjectID, err)
	}
	return template.Render(tmpl, template.EntityVars(*entity)), nil
}

// send performs the adapter call under the rate limiter, circuit breaker, and
// per-send timeout.
func (d *Dispatcher) send(ctx context.Context, channel models.Channel, recipient, message string) error {
	adapter, err := d.registry.Adapter(channel)
	if err != nil {
		return err
	}

	if d.limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := d.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	_, err = d.breaker.Execute(func() (interface{}, error) {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
		return nil, adapter.Send(sendCtx, recipient, message)
	})
	return err
}

// retryLimit resolves the retry budget for a kind, falling back to the
// default when no policy is stored.
func (d *Dispatcher) retryLimit(kind models.ReminderKind) int {
	policy, err := d.store.GetPolicy(kind)
	if err != nil {
		return models.DefaultMaxRetries
	}
	return policy.RetryLimit()
}

// sampleVars provides placeholder values for test-send previews.
func sampleVars() map[string]string {
	return map[string]string{
		"client_name":    "Test Client",
		"service_name":   "Test Service",
		"title":          "Test Service",
		"expiry_date":    time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
		"scheduled_date": time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
		"amount":         "100.00",
	}
}
