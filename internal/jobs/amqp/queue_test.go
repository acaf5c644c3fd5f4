package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/jobs/inmemory"
)

// fakeChannel records publishings and serves deliveries from a channel.
type fakeChannel struct {
	mu         sync.Mutex
	published  []amqp091.Publishing
	keys       []string
	deliveries chan amqp091.Delivery
	publishErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp091.Delivery, 10)}
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	f.keys = append(f.keys, exchange+"/"+key)
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

// fakeAck records how each delivery was settled.
type fakeAck struct {
	mu      sync.Mutex
	settled map[uint64]string
	done    chan uint64
}

func newFakeAck() *fakeAck {
	return &fakeAck{settled: map[uint64]string{}, done: make(chan uint64, 10)}
}

func (a *fakeAck) record(tag uint64, how string) error {
	a.mu.Lock()
	a.settled[tag] = how
	a.mu.Unlock()
	a.done <- tag
	return nil
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error { return a.record(tag, "ack") }

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	if requeue {
		return a.record(tag, "requeue")
	}
	return a.record(tag, "drop")
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func (a *fakeAck) wait(t *testing.T, tag uint64) string {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-a.done:
			if got == tag {
				a.mu.Lock()
				defer a.mu.Unlock()
				return a.settled[tag]
			}
		case <-timeout:
			t.Fatalf("delivery %d was never settled", tag)
			return ""
		}
	}
}

func delivery(ack *fakeAck, tag uint64, body []byte) amqp091.Delivery {
	return amqp091.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
}

func messageFor(t *testing.T, jobID string) []byte {
	t.Helper()
	body, err := json.Marshal(scanMessage{JobID: jobID, Timestamp: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestPublishScanReceipts(t *testing.T) {
	ch := newFakeChannel()
	store := inmemory.NewStore()
	q := NewQueueWithChannel(ch, "receipts", "scan_jobs", store)

	job := &jobs.ScanReceiptsJob{URIs: []string{"gs://b/a.jpg"}, MaxRetries: 1}
	if err := q.PublishScanReceipts(context.Background(), job); err != nil {
		t.Fatalf("PublishScanReceipts: %v", err)
	}

	saved, err := store.GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("job was not saved: %v", err)
	}
	if saved.Status != jobs.JobStatusPending {
		t.Errorf("status = %q, want pending", saved.Status)
	}

	if ch.publishCount() != 1 {
		t.Fatalf("published %d messages, want 1", ch.publishCount())
	}
	msg := ch.published[0]
	if ch.keys[0] != "receipts/scan_jobs" {
		t.Errorf("routed to %q", ch.keys[0])
	}
	if msg.DeliveryMode != amqp091.Persistent || msg.ContentType != "application/json" {
		t.Errorf("publishing = %+v", msg)
	}
	var body scanMessage
	if err := json.Unmarshal(msg.Body, &body); err != nil || body.JobID != job.JobID {
		t.Errorf("body = %s (%v)", msg.Body, err)
	}
}

func TestPublishScanReceipts_Errors(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = errors.New("channel closed")
	q := NewQueueWithChannel(ch, "receipts", "scan_jobs", inmemory.NewStore())

	if err := q.PublishScanReceipts(context.Background(), &jobs.ScanReceiptsJob{}); err == nil {
		t.Error("expected publish error")
	}

	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ch.closed {
		t.Error("channel not closed")
	}
	if err := q.PublishScanReceipts(context.Background(), &jobs.ScanReceiptsJob{}); err == nil {
		t.Error("closed queue accepted a job")
	}
}

func TestConsume_SettlesDeliveries(t *testing.T) {
	ch := newFakeChannel()
	store := inmemory.NewStore()
	q := NewQueueWithChannel(ch, "receipts", "scan_jobs", store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := &jobs.ScanReceiptsJob{JobID: "job-1", Status: jobs.JobStatusPending, URIs: []string{"a.jpg"}}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	var handled []string
	if err := q.Start(ctx, func(ctx context.Context, j jobs.Job) error {
		handled = append(handled, j.GetID())
		return nil
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ack := newFakeAck()
	tests := []struct {
		name string
		body []byte
		want string
	}{
		{name: "known job", body: messageFor(t, "job-1"), want: "ack"},
		{name: "malformed body", body: []byte("{"), want: "drop"},
		{name: "missing id", body: []byte(`{}`), want: "drop"},
		{name: "unknown job", body: messageFor(t, "job-404"), want: "drop"},
	}
	for i, tt := range tests {
		tag := uint64(i + 1)
		ch.deliveries <- delivery(ack, tag, tt.body)
		if got := ack.wait(t, tag); got != tt.want {
			t.Errorf("%s: settled with %q, want %q", tt.name, got, tt.want)
		}
	}

	done, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != jobs.JobStatusCompleted || done.CompletedAt == nil {
		t.Errorf("job = %+v, want completed", done)
	}
	if len(handled) != 1 || handled[0] != "job-1" {
		t.Errorf("handled = %v", handled)
	}

	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestConsume_RetriesFailedJob(t *testing.T) {
	ch := newFakeChannel()
	store := inmemory.NewStore()
	q := NewQueueWithChannel(ch, "receipts", "scan_jobs", store)
	q.backoff = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := &jobs.ScanReceiptsJob{JobID: "job-1", Status: jobs.JobStatusPending, MaxRetries: 1}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := q.Start(ctx, func(context.Context, jobs.Job) error {
		return errors.New("model unavailable")
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ack := newFakeAck()
	ch.deliveries <- delivery(ack, 1, messageFor(t, "job-1"))
	if got := ack.wait(t, 1); got != "ack" {
		t.Fatalf("failed job settled with %q, want ack", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ch.publishCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ch.publishCount() != 1 {
		t.Fatalf("retry published %d times, want 1", ch.publishCount())
	}

	retry, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if retry.RetryCount != 1 || retry.Status != jobs.JobStatusPending {
		t.Errorf("retry = %+v", retry)
	}

	ch.deliveries <- delivery(ack, 2, messageFor(t, "job-1"))
	ack.wait(t, 2)

	failed, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != jobs.JobStatusFailed || failed.Error != "model unavailable" {
		t.Errorf("final job = %+v, want failed", failed)
	}
	if ch.publishCount() != 1 {
		t.Errorf("exhausted job was published again")
	}

	_ = q.Stop(context.Background())
}
