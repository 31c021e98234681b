// Package messaging provides channel adapters for the reminder engine.
//
// This file implements the push channel adapter. Rendered push payloads are
// published to an SQS queue consumed by the mobile-push gateway; the engine
// treats a successful enqueue as a successful hand-off.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/adminsuite/reminderd/internal/models"
)

// SQSAPI is the subset of the SQS client used by the push adapter.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// pushPayload is the message shape the push gateway consumes.
type pushPayload struct {
	DeviceToken string `json:"device_token"`
	Body        string `json:"body"`
	QueuedAt    string `json:"queued_at"`
}

// SQSPushAdapter publishes push notifications to an SQS queue.
type SQSPushAdapter struct {
	client   SQSAPI
	queueURL string
}

// NewSQSPushAdapter creates a push adapter for the given region and queue.
func NewSQSPushAdapter(ctx context.Context, region, queueURL string) (*SQSPushAdapter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config failed: %w", err)
	}
	return &SQSPushAdapter{client: sqs.NewFromConfig(cfg), queueURL: queueURL}, nil
}

// NewSQSPushAdapterWithClient creates a push adapter with an injected client.
func NewSQSPushAdapterWithClient(client SQSAPI, queueURL string) *SQSPushAdapter {
	return &SQSPushAdapter{client: client, queueURL: queueURL}
}

func (a *SQSPushAdapter) Send(ctx context.Context, recipient, message string) error {
	if recipient == "" {
		return models.ErrEmptyRecipient
	}
	body, err := json.Marshal(pushPayload{
		DeviceToken: recipient,
		Body:        message,
		QueuedAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode push payload failed: %w", err)
	}

	_, err = a.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(a.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		slog.Error("SQSPushAdapter.Send failed", "error", err, "queueURL", a.queueURL)
		return fmt.Errorf("sqs enqueue failed: %w", err)
	}
	slog.Debug("SQSPushAdapter.Send succeeded", "deviceToken", recipient)
	return nil
}
