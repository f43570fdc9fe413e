// Package publish sends finished predictions to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lox/balloonpredict/internal/metrics"
	"github.com/lox/balloonpredict/internal/models"
)

// Publisher delivers a prediction result.
type Publisher interface {
	Publish(ctx context.Context, res *models.PredictionResult) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes results as JSON keyed by result ID, so every message for
// one prediction lands on the same partition.
type Kafka struct {
	writer messageWriter
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, res *models.PredictionResult) error {
	value, err := json.Marshal(res)
	if err != nil {
		metrics.PublishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal result: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(res.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "quality", Value: []byte(res.Quality.WeatherDataQuality)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		metrics.PublishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write message: %w", err)
	}
	metrics.PublishTotal.WithLabelValues("ok").Inc()
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
