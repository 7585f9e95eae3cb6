package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dprod-run/dprod/internal/domain"
	"github.com/google/uuid"
)

// MemQueue is an in-process channel-backed Queue for single-node "local"
// mode and tests. It approximates SQS visibility semantics: a received
// message is hidden until its visibility timeout elapses, at which point
// it is redelivered unless acked first.
type MemQueue struct {
	ch chan domain.JobMessage

	mu      sync.Mutex
	inFlight map[string]*inFlightMessage
}

type inFlightMessage struct {
	job     domain.JobMessage
	timer   *time.Timer
	visible time.Duration
}

// NewMemQueue creates a buffered in-process queue.
func NewMemQueue(buffer int) *MemQueue {
	return &MemQueue{
		ch:       make(chan domain.JobMessage, buffer),
		inFlight: make(map[string]*inFlightMessage),
	}
}

func (q *MemQueue) Enqueue(ctx context.Context, job domain.JobMessage) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemQueue) Receive(ctx context.Context, maxMessages int, waitTime time.Duration) ([]Message, error) {
	var out []Message
	deadline := time.NewTimer(waitTime)
	defer deadline.Stop()

	for len(out) < maxMessages {
		select {
		case job := <-q.ch:
			handle := uuid.NewString()
			q.mu.Lock()
			q.inFlight[handle] = &inFlightMessage{job: job, visible: 15 * time.Minute}
			q.requeueAfterVisibility(handle, 15*time.Minute)
			q.mu.Unlock()
			out = append(out, Message{Job: job, ReceiptHandle: handle})
		case <-deadline.C:
			return out, nil
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	return out, nil
}

// requeueAfterVisibility schedules redelivery if the message is never
// acked, mirroring SQS's at-least-once visibility-timeout behavior.
// Caller must hold q.mu.
func (q *MemQueue) requeueAfterVisibility(handle string, timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		entry, ok := q.inFlight[handle]
		if ok {
			delete(q.inFlight, handle)
		}
		q.mu.Unlock()
		if ok {
			q.ch <- entry.job
		}
	})
	if entry, ok := q.inFlight[handle]; ok {
		entry.timer = timer
	}
}

func (q *MemQueue) Ack(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.inFlight[receiptHandle]
	if !ok {
		return fmt.Errorf("ack: unknown receipt handle %s", receiptHandle)
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(q.inFlight, receiptHandle)
	return nil
}

func (q *MemQueue) ExtendVisibility(ctx context.Context, receiptHandle string, timeout time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.inFlight[receiptHandle]
	if !ok {
		return fmt.Errorf("extend visibility: unknown receipt handle %s", receiptHandle)
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	q.requeueAfterVisibility(receiptHandle, timeout)
	return nil
}
