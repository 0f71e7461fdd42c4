// Package kafka 提供了流水线事件的发布功能。
// run 的调度由进程内有界队列完成，Kafka 只承担对外的生命周期事件通知。
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"piperag-go/internal/config"
	"piperag-go/internal/model"
	"piperag-go/pkg/log"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// RunEvent 是发布到 Kafka 的流水线 run 生命周期事件。
type RunEvent struct {
	RunID              uuid.UUID               `json:"runId"`
	ProjectID          uuid.UUID               `json:"projectId"`
	Status             model.PipelineRunStatus `json:"status"`
	DocumentsProcessed int                     `json:"documentsProcessed"`
	ChunksCreated      int                     `json:"chunksCreated"`
	ErrorMessage       string                  `json:"errorMessage,omitempty"`
	Timestamp          time.Time               `json:"timestamp"`
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// PublishRunEvent 发布一条 run 生命周期事件。
// 事件只是通知性质，发布失败只记日志，不影响流水线本身。
func PublishRunEvent(ctx context.Context, event RunEvent) {
	if producer == nil {
		return
	}
	event.Timestamp = time.Now()
	eventBytes, err := json.Marshal(event)
	if err != nil {
		log.Errorf("序列化 run 事件失败: %v", err)
		return
	}

	err = producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID.String()),
		Value: eventBytes,
	})
	if err != nil {
		log.Errorf("发布 run 事件到 Kafka 失败, runId: %s, err: %v", event.RunID, err)
	}
}
