package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/dogukan1212/moiport-sub000/domain"
)

func queueOptions() *azqueue.ClientOptions {
	return &azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
}

// QueueNotifier hands notification commands to the dispatcher's queue.
// The board treats it as fire and forget; the queue consumer owns
// delivery.
type QueueNotifier struct {
	queue *azqueue.QueueClient
}

func NewQueueNotifier(connStr, queueName string) (*QueueNotifier, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, queueOptions())
	if err != nil {
		return nil, err
	}
	return &QueueNotifier{queue: q}, nil
}

type notificationMessage struct {
	TenantID string `json:"tenantId"`
	domain.Notification
}

// Create enqueues one notification command.
func (n *QueueNotifier) Create(ctx context.Context, tenantID string, note domain.Notification) error {
	data, err := json.Marshal(notificationMessage{TenantID: tenantID, Notification: note})
	if err != nil {
		return err
	}
	_, err = n.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// QueueSMS forwards SMS events to the provider integration's queue.
type QueueSMS struct {
	queue *azqueue.QueueClient
}

func NewQueueSMS(connStr, queueName string) (*QueueSMS, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, queueOptions())
	if err != nil {
		return nil, err
	}
	return &QueueSMS{queue: q}, nil
}

type smsMessage struct {
	TenantID string            `json:"tenantId"`
	Event    string            `json:"event"`
	Payload  map[string]string `json:"payload,omitempty"`
}

// TrySendEvent enqueues one SMS event.
func (s *QueueSMS) TrySendEvent(ctx context.Context, tenantID, event string, payload map[string]string) error {
	data, err := json.Marshal(smsMessage{TenantID: tenantID, Event: event, Payload: payload})
	if err != nil {
		return err
	}
	_, err = s.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
