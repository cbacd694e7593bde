// Package kafka provides the producer and consumer used to dispatch dataset
// processing jobs.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"neuroscreen-go/internal/config"
	"neuroscreen-go/pkg/database"
	"neuroscreen-go/pkg/log"
	"neuroscreen-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor is implemented by any service able to process a dataset task.
// It decouples the consumer loop from the concrete pipeline implementation.
type TaskProcessor interface {
	ProcessTask(ctx context.Context, task tasks.DatasetProcessingTask) error
}

var producer *kafka.Writer

// InitProducer initializes the Kafka producer.
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka producer initialized successfully")
}

// ProduceDatasetTask publishes a dataset processing task.
func ProduceDatasetTask(task tasks.DatasetProcessingTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(task.UploadID),
			Value: taskBytes,
		},
	)
}

// StartConsumer runs a consumer-group loop that feeds dataset tasks to the
// processor. A task that fails three times has its offset committed so it
// stops blocking the partition.
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "neuroscreen-go-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka consumer started, listening on topic '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("failed to read message from Kafka", err)
			break
		}

		log.Infof("received Kafka message: offset %d", m.Offset)

		var task tasks.DatasetProcessingTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("failed to decode Kafka message: %v, value: %s", err, string(m.Value))
			// Malformed payload, commit so it does not block the queue.
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("failed to commit malformed message: %v", err)
			}
			continue
		}

		log.Infof("processing dataset task: uploadID=%s, type=%s", task.UploadID, task.DatasetType)
		if err := processor.ProcessTask(context.Background(), task); err != nil {
			log.Errorf("dataset task failed: uploadID=%s, error: %v", task.UploadID, err)
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.UploadID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis unavailable: leave the offset uncommitted and let
				// Kafka redeliver.
				continue
			}
			if attempts >= 3 {
				log.Errorf("dataset task failed %d times, committing offset: uploadID=%s", attempts, task.UploadID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("failed to commit Kafka offset: %v", err)
				}
			}
		} else {
			log.Infof("dataset task processed successfully: uploadID=%s", task.UploadID)
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:attempts:%s", task.UploadID)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("failed to commit Kafka offset: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("failed to close Kafka consumer: %v", err)
	}
}
