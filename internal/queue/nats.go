package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// natsQueue carries subjects through NATS JetStream for deployments that
// split job submission and execution across processes. Each subject maps to
// one file-backed stream drained by a durable consumer, so undelivered jobs
// survive restarts on either side.
type natsQueue struct {
	conn *nats.Conn
	js   nats.JetStreamContext

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

func newNATSQueue(url string) (*natsQueue, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	q, err := newNATSQueueConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// newNATSQueueConn wraps an existing connection. Tests inject a connection
// to an embedded server through this path.
func newNATSQueueConn(conn *nats.Conn) (*natsQueue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	return &natsQueue{
		conn: conn,
		js:   js,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// ensureStream creates the subject's stream on first use
func (q *natsQueue) ensureStream(subject string) error {
	name := streamName(subject)
	if _, err := q.js.StreamInfo(name); err == nil {
		return nil
	}

	_, err := q.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream for subject %s: %w", subject, err)
	}
	return nil
}

// Publish stores one message in the subject's stream. The publish is
// synchronous: the enqueuer needs a definite verdict to keep its dedup
// reservation honest, so an unacknowledged publish must fail here rather
// than later.
func (q *natsQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := q.ensureStream(subject); err != nil {
		return err
	}

	if _, err := q.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// Subscribe attaches a durable consumer to the subject's stream. Delivery is
// at-least-once: handler errors NAK the message for redelivery, up to a
// bounded number of attempts.
func (q *natsQueue) Subscribe(subject string, handler MessageHandler) error {
	if err := q.ensureStream(subject); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.subs[subject]; ok {
		return fmt.Errorf("subject %s already has a subscriber", subject)
	}

	sub, err := q.js.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(msg.Data); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(consumerName(subject)),
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(3),
		// The worker pools bound their own concurrency; this only caps how
		// far the broker runs ahead of them.
		nats.MaxAckPending(64),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	q.subs[subject] = sub
	return nil
}

// Unsubscribe detaches the subject's consumer. Undelivered messages stay in
// the stream for the next subscriber.
func (q *natsQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	sub, ok := q.subs[subject]
	if !ok {
		return fmt.Errorf("subject %s has no subscriber", subject)
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from subject %s: %w", subject, err)
	}
	delete(q.subs, subject)
	return nil
}

// Close detaches all consumers and closes the connection
func (q *natsQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, sub := range q.subs {
		_ = sub.Unsubscribe()
		delete(q.subs, subject)
	}
	q.conn.Close()
	return nil
}

// streamName derives the stream from the subject: "harmonet.sync.manual"
// becomes "HARMONET_SYNC_MANUAL". Stream and consumer names may only contain
// alphanumerics, dash and underscore.
func streamName(subject string) string {
	return strings.ToUpper(sanitizeName(subject))
}

func consumerName(subject string) string {
	return "workers-" + sanitizeName(subject)
}

func sanitizeName(subject string) string {
	out := make([]byte, len(subject))
	for i := 0; i < len(subject); i++ {
		c := subject[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
