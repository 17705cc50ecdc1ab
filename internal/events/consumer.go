package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/interfaces"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
)

const (
	defaultMaxEmailAttempts = 5
	maxRetryDelay           = 30 * time.Second
)

// retryDelay grows linearly with the attempt number up to maxRetryDelay.
func retryDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * time.Second
	if d <= 0 {
		return time.Second
	}
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MailConsumer drains the email topic through the configured provider.
// Failed sends are re-enqueued until maxAttempts, then dropped as dead.
type MailConsumer struct {
	reader      messageReader
	queue       *KafkaMailQueue
	mailer      interfaces.EmailDispatcher
	maxAttempts int
	sendTimeout time.Duration
	backoff     func(attempt int) time.Duration
	logger      *logging.LoggerV2
}

// NewMailConsumer creates a consumer in cfg.ConsumerGroup reading cfg.EmailTopic.
func NewMailConsumer(cfg config.KafkaConfig, queue *KafkaMailQueue, mailer interfaces.EmailDispatcher, sendTimeout time.Duration, logger *logging.LoggerV2) *MailConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.EmailTopic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})

	return newMailConsumer(reader, queue, mailer, cfg.MaxEmailAttempts, sendTimeout, logger)
}

func newMailConsumer(reader messageReader, queue *KafkaMailQueue, mailer interfaces.EmailDispatcher, maxAttempts int, sendTimeout time.Duration, logger *logging.LoggerV2) *MailConsumer {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxEmailAttempts
	}
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &MailConsumer{
		reader:      reader,
		queue:       queue,
		mailer:      mailer,
		maxAttempts: maxAttempts,
		sendTimeout: sendTimeout,
		backoff:     retryDelay,
		logger:      logger,
	}
}

// Start consumes until ctx is cancelled. It returns ctx.Err() on shutdown.
func (c *MailConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting mail consumer", logging.Fields{"max_attempts": c.maxAttempts})

	fetchFailures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fetchFailures++
			c.logger.Error("Failed to fetch message", logging.Fields{
				"error":    err.Error(),
				"failures": fetchFailures,
			})
			if err := sleepCtx(ctx, c.backoff(fetchFailures)); err != nil {
				return err
			}
			continue
		}
		fetchFailures = 0

		c.handleMessage(ctx, msg)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("Failed to commit message", logging.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
				"error":     err.Error(),
			})
		}
	}
}

// Close stops the underlying reader.
func (c *MailConsumer) Close() error {
	return c.reader.Close()
}

func (c *MailConsumer) handleMessage(ctx context.Context, msg kafka.Message) {
	job, err := decodeEmailJob(msg.Value)
	if err != nil {
		c.logger.Error("Dropping malformed email job", logging.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"error":     err.Error(),
		})
		metrics.SideEffects.WithLabelValues("email_job", "dropped").Inc()
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	err = c.mailer.Send(sendCtx, job.To, job.Subject, job.HTMLBody)
	cancel()

	if err == nil {
		c.logger.Info("Queued email delivered", logging.Fields{
			"job_id":  job.ID,
			"attempt": job.Attempt,
		})
		metrics.SideEffects.WithLabelValues("email_job", "sent").Inc()
		return
	}

	c.retry(ctx, job, err)
}

func (c *MailConsumer) retry(ctx context.Context, job *EmailJob, sendErr error) {
	fields := logging.Fields{
		"job_id":  job.ID,
		"attempt": job.Attempt,
		"error":   sendErr.Error(),
	}

	if job.Attempt >= c.maxAttempts {
		c.logger.Error("Email job exhausted retries", fields)
		metrics.SideEffects.WithLabelValues("email_job", "dead").Inc()
		return
	}

	if err := sleepCtx(ctx, c.backoff(job.Attempt)); err != nil {
		// Start skips the commit on shutdown, so the job is redelivered.
		c.logger.Warn("Shutdown before email job retry", fields)
		return
	}

	next := *job
	next.Attempt++
	next.EnqueuedAt = time.Now().UTC()

	if err := c.queue.enqueue(ctx, &next); err != nil {
		c.logger.Error("Failed to re-enqueue email job", fields)
		metrics.SideEffects.WithLabelValues("email_job", "dead").Inc()
		return
	}

	c.logger.Warn("Email send failed, re-enqueued", fields)
	metrics.SideEffects.WithLabelValues("email_job", "retried").Inc()
}
