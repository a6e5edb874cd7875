package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startJetStream runs an embedded NATS server with JetStream on a random
// port and returns a queue connected to it.
func startJetStream(t *testing.T) *natsQueue {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	q, err := newNATSQueueConn(conn)
	if err != nil {
		t.Fatalf("Failed to create NATS queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestNATSQueue_BadURL(t *testing.T) {
	if _, err := newNATSQueue("nats://127.0.0.1:1"); err == nil {
		t.Fatal("Expected connection error for unreachable server")
	}
}

func TestNATSQueue_DeliversSyncJobs(t *testing.T) {
	q := startJetStream(t)
	ctx := context.Background()

	received := make(chan syncPayload, 4)
	if err := q.Subscribe("harmonet.sync.recurring", func(data []byte) error {
		var p syncPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		received <- p
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := q.Publish(ctx, "harmonet.sync.recurring", encodeJob(t, fmt.Sprintf("job-%d", i))); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	seen := make(map[string]bool, 3)
	for _, j := range collectJobs(t, received, 3) {
		seen[j.JobID] = true
	}
	for i := 0; i < 3; i++ {
		if !seen[fmt.Sprintf("job-%d", i)] {
			t.Errorf("Job job-%d was not delivered", i)
		}
	}
}

func TestNATSQueue_RetainsJobsUntilSubscribed(t *testing.T) {
	q := startJetStream(t)
	ctx := context.Background()

	// Publish with no consumer attached; the stream must hold the job
	if err := q.Publish(ctx, "harmonet.sync.manual", encodeJob(t, "early")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	received := make(chan syncPayload, 1)
	if err := q.Subscribe("harmonet.sync.manual", func(data []byte) error {
		var p syncPayload
		_ = json.Unmarshal(data, &p)
		received <- p
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if jobs := collectJobs(t, received, 1); jobs[0].JobID != "early" {
		t.Errorf("Expected retained job, got %s", jobs[0].JobID)
	}
}

func TestNATSQueue_RedeliversOnHandlerError(t *testing.T) {
	q := startJetStream(t)
	ctx := context.Background()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})
	if err := q.Subscribe("harmonet.sync.recurring", func(data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := q.Publish(ctx, "harmonet.sync.recurring", encodeJob(t, "retry-me")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Job was not redelivered after handler failure")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts < 2 {
		t.Errorf("Expected at least 2 delivery attempts, got %d", attempts)
	}
}

func TestNATSQueue_SingleSubscriberPerSubject(t *testing.T) {
	q := startJetStream(t)

	noop := func(data []byte) error { return nil }
	if err := q.Subscribe("harmonet.sync.recurring", noop); err != nil {
		t.Fatalf("First subscribe failed: %v", err)
	}
	if err := q.Subscribe("harmonet.sync.recurring", noop); err == nil {
		t.Fatal("Second subscribe on the same subject must fail")
	}
}

func TestNATSQueue_UnsubscribeStopsDelivery(t *testing.T) {
	q := startJetStream(t)
	ctx := context.Background()

	var mu sync.Mutex
	delivered := 0
	if err := q.Subscribe("harmonet.sync.recurring", func(data []byte) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := q.Unsubscribe("harmonet.sync.recurring"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := q.Unsubscribe("harmonet.sync.recurring"); err == nil {
		t.Fatal("Second unsubscribe must fail")
	}

	if err := q.Publish(ctx, "harmonet.sync.recurring", encodeJob(t, "late")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if delivered != 0 {
		t.Errorf("Unsubscribed subject delivered %d jobs", delivered)
	}
}

func TestStreamAndConsumerNames(t *testing.T) {
	if got := streamName("harmonet.sync.manual"); got != "HARMONET_SYNC_MANUAL" {
		t.Errorf("Unexpected stream name: %s", got)
	}
	if got := consumerName("harmonet.sync.recurring"); got != "workers-harmonet_sync_recurring" {
		t.Errorf("Unexpected consumer name: %s", got)
	}
}
