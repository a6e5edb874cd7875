// Package queue is the transport between the components that issue sync jobs
// (scheduler, manual endpoint, executor re-submission) and the worker pools
// that drain them. Jobs travel as opaque encoded payloads on named subjects,
// one subject per sync type. The in-memory backend serves the common
// single-process node; the NATS backend carries the same subjects across
// processes when submission and execution are deployed separately.
package queue

import "context"

// MessageHandler consumes one delivered message. Returning a non-nil error
// asks the backend to redeliver where the backend supports redelivery; the
// in-memory backend does not, and relies on the consumer re-submitting
// incomplete work itself.
type MessageHandler func(data []byte) error

// Publisher submits messages to a subject
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Subscriber attaches at most one handler per subject
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) error
	Unsubscribe(subject string) error
	Close() error
}

// Queue is a backend serving both sides of the transport
type Queue interface {
	Publisher
	Subscriber
}
