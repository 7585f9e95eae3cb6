package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/dprod-run/dprod/internal/domain"
)

// SQSQueue backs Queue with Amazon SQS, matching the at-least-once,
// receipt-handle, visibility-timeout semantics §4.5 assumes.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSQueue loads the default AWS config for region and builds a client
// bound to queueURL.
func NewSQSQueue(ctx context.Context, region, queueURL string) (*SQSQueue, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &SQSQueue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

func (q *SQSQueue) Enqueue(ctx context.Context, job domain.JobMessage) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job message: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Receive long-polls for up to maxMessages, waiting up to waitTime
// (clamped to SQS's 20s maximum per §4.5).
func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, waitTime time.Duration) ([]Message, error) {
	waitSeconds := int32(waitTime.Seconds())
	if waitSeconds > 20 {
		waitSeconds = 20
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages:  int32(maxMessages),
		WaitTimeSeconds:      waitSeconds,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("receiving messages: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		raw := []byte(aws.ToString(m.Body))
		var job domain.JobMessage
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&job); err != nil {
			// Invalid message (§4.5): caller acks and drops, so it's still
			// returned with an empty Job and the raw body for logging.
			messages = append(messages, Message{Raw: raw, ReceiptHandle: aws.ToString(m.ReceiptHandle)})
			continue
		}
		messages = append(messages, Message{Job: job, ReceiptHandle: aws.ToString(m.ReceiptHandle), Raw: raw})
	}
	return messages, nil
}

func (q *SQSQueue) Ack(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	return nil
}

func (q *SQSQueue) ExtendVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: int32(timeout.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("extending visibility: %w", err)
	}
	return nil
}
