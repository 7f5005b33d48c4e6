// Package queue relays bus events to SQS so systems outside the process can
// follow console changes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"subadmin/internal/config"
	"subadmin/internal/events"
	"subadmin/internal/types"
)

// SQSSender abstracts SendMessage for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Message is the SQS body for one relayed event.
type Message struct {
	MessageID string      `json:"message_id"`
	RequestID string      `json:"request_id,omitempty"`
	Event     types.Event `json:"event"`
}

type envelope struct {
	msg Message
}

// EventForwarder subscribes to the bus and sends every event to one queue.
// Publishing never blocks on SQS: events are buffered and a full buffer
// drops them.
type EventForwarder struct {
	client   SQSSender
	queueURL string
	buffer   chan envelope
	logger   *slog.Logger

	sent    atomic.Int64
	dropped atomic.Int64
}

func NewEventForwarder(client SQSSender, awsCfg config.AWSConfig, bufferSize int, logger *slog.Logger) *EventForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventForwarder{
		client:   client,
		queueURL: awsCfg.EventsQueueURL,
		buffer:   make(chan envelope, bufferSize),
		logger:   logger,
	}
}

// Attach subscribes to every topic. The returned func unsubscribes.
func (f *EventForwarder) Attach(bus *events.Bus) func() {
	return bus.SubscribeAll(f.enqueue)
}

func (f *EventForwarder) enqueue(ctx context.Context, e types.Event) {
	env := envelope{msg: Message{
		MessageID: uuid.NewString(),
		RequestID: types.GetRequestID(ctx),
		Event:     e,
	}}
	select {
	case f.buffer <- env:
	default:
		f.dropped.Add(1)
		f.logger.WarnContext(ctx, "event relay buffer full; dropping", "topic", e.Topic, "entity_id", e.EntityID)
	}
}

// Run sends buffered events until ctx is cancelled. Send failures are logged
// and the event is dropped.
func (f *EventForwarder) Run(ctx context.Context) error {
	f.logger.InfoContext(ctx, "event relay started", "queue_url", f.queueURL)
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-f.buffer:
			if err := f.Send(ctx, env.msg); err != nil {
				f.logger.ErrorContext(ctx, "event relay failed", "error", err, "topic", env.msg.Event.Topic)
			}
		}
	}
}

// Send delivers one message.
func (f *EventForwarder) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(f.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"topic": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Event.Topic)),
			},
		},
	}
	if msg.Event.Action != "" {
		input.MessageAttributes["action"] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(msg.Event.Action),
		}
	}

	if _, err := f.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send event to %s: %w", f.queueURL, err)
	}
	f.sent.Add(1)
	f.logger.DebugContext(ctx, "event relayed",
		"queue_url", f.queueURL,
		"message_id", msg.MessageID,
		"topic", string(msg.Event.Topic),
		"entity_id", msg.Event.EntityID,
	)
	return nil
}

// Sent and Dropped report relay counters.
func (f *EventForwarder) Sent() int64    { return f.sent.Load() }
func (f *EventForwarder) Dropped() int64 { return f.dropped.Load() }
