package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/interfaces"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
)

var _ interfaces.EmailDispatcher = (*KafkaMailQueue)(nil)

// EmailJob is one queued transactional email.
type EmailJob struct {
	ID         string    `json:"id"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	HTMLBody   string    `json:"html_body"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func decodeEmailJob(data []byte) (*EmailJob, error) {
	var job EmailJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	if job.To == "" {
		return nil, errors.NewValidationError("to", "email job has no recipient")
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	return &job, nil
}

// KafkaMailQueue hands emails to the mail consumer through a Kafka topic
// instead of calling the provider inline.
type KafkaMailQueue struct {
	writer messageWriter
	topic  string
	logger *logging.LoggerV2
}

// NewKafkaMailQueue creates a queue writing to cfg.EmailTopic.
func NewKafkaMailQueue(cfg config.KafkaConfig, logger *logging.LoggerV2) *KafkaMailQueue {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EmailTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaMailQueue(writer, cfg.EmailTopic, logger)
}

func newKafkaMailQueue(writer messageWriter, topic string, logger *logging.LoggerV2) *KafkaMailQueue {
	return &KafkaMailQueue{writer: writer, topic: topic, logger: logger}
}

// Send enqueues a first delivery attempt.
func (q *KafkaMailQueue) Send(ctx context.Context, to, subject, htmlBody string) error {
	job := &EmailJob{
		ID:         uuid.NewString(),
		To:         to,
		Subject:    subject,
		HTMLBody:   htmlBody,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.enqueue(ctx, job); err != nil {
		return errors.NewDeliveryError("email", to, err)
	}
	return nil
}

func (q *KafkaMailQueue) enqueue(ctx context.Context, job *EmailJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	err = q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.To),
		Value: data,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(job.ID)},
		},
	})
	if err != nil {
		q.logger.Error("Failed to enqueue email", logging.Fields{
			"job_id":  job.ID,
			"attempt": job.Attempt,
			"error":   err.Error(),
		})
		return err
	}

	q.logger.Debug("Email enqueued", logging.Fields{
		"job_id":  job.ID,
		"attempt": job.Attempt,
		"topic":   q.topic,
	})
	return nil
}

// Close closes the Kafka writer.
func (q *KafkaMailQueue) Close() error {
	q.logger.Info("Closing mail queue")
	return q.writer.Close()
}
