// Package queue implements the Job Queue Adapter (C7): an at-least-once
// message queue abstraction with receipt handles and visibility timeouts,
// backed either by AWS SQS or an in-process channel for local mode.
package queue

import (
	"context"
	"time"

	"github.com/dprod-run/dprod/internal/domain"
)

// Message wraps a decoded JobMessage with the receipt handle the queue
// backend needs to ack or extend visibility.
type Message struct {
	Job           domain.JobMessage
	ReceiptHandle string
	Raw           []byte // undecoded body, retained so invalid messages can still be logged
}

// Queue is the capability set the worker (C8) depends on: receive, ack
// (delete), and extend the visibility timeout of an in-flight message.
// Enqueue exists for local-mode and tests; production enqueue is the
// control plane's responsibility (§1 Non-goals).
type Queue interface {
	Enqueue(ctx context.Context, job domain.JobMessage) error
	Receive(ctx context.Context, maxMessages int, waitTime time.Duration) ([]Message, error)
	Ack(ctx context.Context, receiptHandle string) error
	ExtendVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error
}
