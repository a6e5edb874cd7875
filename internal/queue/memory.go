package queue

import (
	"context"
	"fmt"
	"sync"
)

// subjectBacklog bounds how many messages can sit undelivered on one subject.
// A full subject fails the publish: the enqueuer rolls its dedup reservation
// back on publish failure, so backpressure surfaces as a failed enqueue
// rather than silent loss.
const subjectBacklog = 4096

// MemoryQueue delivers messages through per-subject channels inside one
// process. It is the default backend: the dedup registry is process-local, so
// a node normally drains the jobs it issued itself.
type MemoryQueue struct {
	mu       sync.Mutex
	subjects map[string]chan []byte
	readers  map[string]context.CancelFunc
}

func newMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		subjects: make(map[string]chan []byte),
		readers:  make(map[string]context.CancelFunc),
	}
}

func (q *MemoryQueue) backlog(subject string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.subjects[subject]
	if !ok {
		ch = make(chan []byte, subjectBacklog)
		q.subjects[subject] = ch
	}
	return ch
}

// Publish appends one message to the subject's backlog. Messages published
// before any subscriber attaches are retained and delivered once one does.
func (q *MemoryQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Callers may reuse their buffer after Publish returns
	msg := append([]byte(nil), data...)

	select {
	case q.backlog(subject) <- msg:
		return nil
	default:
		return fmt.Errorf("subject %s backlog is full (%d undelivered)", subject, subjectBacklog)
	}
}

// Subscribe starts a reader goroutine feeding the handler one message at a
// time, in publish order. A subject supports a single subscriber.
func (q *MemoryQueue) Subscribe(subject string, handler MessageHandler) error {
	ch := q.backlog(subject)

	q.mu.Lock()
	if _, ok := q.readers[subject]; ok {
		q.mu.Unlock()
		return fmt.Errorf("subject %s already has a subscriber", subject)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.readers[subject] = cancel
	q.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-ch:
				// No in-process redelivery: a consumer that cannot finish a
				// message re-submits the work through its own path.
				_ = handler(msg)
			}
		}
	}()

	return nil
}

// Unsubscribe stops the subject's reader. Undelivered messages stay in the
// backlog for a later subscriber.
func (q *MemoryQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, ok := q.readers[subject]
	if !ok {
		return fmt.Errorf("subject %s has no subscriber", subject)
	}
	cancel()
	delete(q.readers, subject)
	return nil
}

// Close stops every reader and drops all backlogs
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, cancel := range q.readers {
		cancel()
		delete(q.readers, subject)
	}
	for subject := range q.subjects {
		delete(q.subjects, subject)
	}
	return nil
}

// Pending reports how many messages sit undelivered on a subject. Tests use
// it to observe enqueue effects without draining the subject.
func (q *MemoryQueue) Pending(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ch, ok := q.subjects[subject]; ok {
		return len(ch)
	}
	return 0
}
