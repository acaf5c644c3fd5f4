// Package amqp runs scan jobs through a RabbitMQ queue so the API and the
// scan workers can live in separate processes. Messages carry only the job
// id; the job itself is read from the shared JobStore.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/logger"
)

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp091.Channel the queue uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

// scanMessage is the body of a queued scan job.
type scanMessage struct {
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Queue publishes and consumes scan jobs over AMQP.
type Queue struct {
	ch       Channel
	conn     io.Closer
	exchange string
	queue    string
	store    jobs.JobStore
	backoff  time.Duration

	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
	wg        sync.WaitGroup
}

// Dial connects to the broker and declares a durable direct exchange with
// one durable queue bound under its own name.
func Dial(url, exchange, queue string, store jobs.JobStore) (*Queue, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("Dial: dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("Dial: open channel: %w", err)
	}

	if err := declare(ch, exchange, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("Dial: %w", err)
	}

	q := NewQueueWithChannel(ch, exchange, queue, store)
	q.conn = conn
	return q, nil
}

func declare(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// NewQueueWithChannel builds a queue on an already declared channel.
func NewQueueWithChannel(ch Channel, exchange, queue string, store jobs.JobStore) *Queue {
	return &Queue{
		ch:        ch,
		exchange:  exchange,
		queue:     queue,
		store:     store,
		backoff:   time.Second,
		closeChan: make(chan struct{}),
	}
}

// PublishScanReceipts implements jobs.Publisher. The job is saved before the
// message is sent so a worker always finds it.
func (q *Queue) PublishScanReceipts(ctx context.Context, job *jobs.ScanReceiptsJob) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return fmt.Errorf("queue is closed")
	}

	jobs.Prepare(job, time.Now())
	if err := q.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	body, err := json.Marshal(scanMessage{JobID: job.JobID, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = q.ch.PublishWithContext(pubCtx, q.exchange, q.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		MessageId:    job.JobID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("job_id", job.JobID).Str("queue", q.queue).Msg("Published scan job")
	return nil
}

// Start implements jobs.Consumer. Deliveries are acknowledged manually after
// the job state has been recorded.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("queue", q.queue).Msg("Started consuming scan jobs")

	q.wg.Add(1)
	go q.consume(ctx, deliveries, handler)
	return nil
}

func (q *Queue) consume(ctx context.Context, deliveries <-chan amqp091.Delivery, handler jobs.JobHandler) {
	defer q.wg.Done()
	log := logger.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn().Msg("Delivery channel closed")
				return
			}
			q.handleDelivery(ctx, d, handler)
		}
	}
}

func (q *Queue) handleDelivery(ctx context.Context, d amqp091.Delivery, handler jobs.JobHandler) {
	log := logger.FromContext(ctx)

	var msg scanMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.JobID == "" {
		log.Error().Err(err).Msg("Dropping malformed scan message")
		d.Nack(false, false)
		return
	}

	job, err := q.store.GetJob(ctx, msg.JobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		log.Error().Str("job_id", msg.JobID).Msg("Dropping message for unknown job")
		d.Nack(false, false)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", msg.JobID).Msg("Failed to load job")
		d.Nack(false, true)
		return
	}

	retry := jobs.Process(ctx, q.store, job, handler)
	d.Ack(false)

	if retry == nil {
		return
	}
	time.AfterFunc(jobs.Backoff(q.backoff, retry.RetryCount), func() {
		if err := q.PublishScanReceipts(ctx, retry); err != nil {
			log.Error().Err(err).Str("job_id", retry.JobID).Msg("Failed to re-enqueue job")
		}
	})
}

// Stop implements jobs.Consumer. It stops taking deliveries and waits for
// the job in progress, if any.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher and closes the channel and connection.
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.closeChan)
	}
	q.mu.Unlock()

	err := q.ch.Close()
	if q.conn != nil {
		err = errors.Join(err, q.conn.Close())
	}
	return err
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
