package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/adminsuite/reminderd/internal/models"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSPushAdapterSend(t *testing.T) {
	client := &fakeSQS{}
	a := NewSQSPushAdapterWithClient(client, "https://sqs.us-east-1.amazonaws.com/123/push")

	if err := a.Send(context.Background(), "device-token-abc", "Upcoming meeting: Kickoff"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("enqueued = %d messages, want 1", len(client.inputs))
	}
	in := client.inputs[0]
	if *in.QueueUrl != "https://sqs.us-east-1.amazonaws.com/123/push" {
		t.Errorf("queue url = %q", *in.QueueUrl)
	}

	var payload pushPayload
	if err := json.Unmarshal([]byte(*in.MessageBody), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.DeviceToken != "device-token-abc" || payload.Body != "Upcoming meeting: Kickoff" {
		t.Errorf("payload = %+v", payload)
	}
	if payload.QueuedAt == "" {
		t.Error("queued_at missing")
	}
}

func TestSQSPushAdapterErrors(t *testing.T) {
	a := NewSQSPushAdapterWithClient(&fakeSQS{}, "q")
	if err := a.Send(context.Background(), "", "hi"); !errors.Is(err, models.ErrEmptyRecipient) {
		t.Errorf("empty recipient: got %v, want ErrEmptyRecipient", err)
	}

	queueErr := errors.New("queue gone")
	a = NewSQSPushAdapterWithClient(&fakeSQS{err: queueErr}, "q")
	if err := a.Send(context.Background(), "token", "hi"); !errors.Is(err, queueErr) {
		t.Errorf("got %v, want wrapped queue error", err)
	}
}
