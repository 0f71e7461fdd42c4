package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"piperag-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const runStatusTTL = time.Hour

// RunSnapshot 是运行状态的缓存快照，供轮询接口读取，
// 避免每次轮询都打到数据库。
type RunSnapshot struct {
	RunID              uuid.UUID               `json:"runId"`
	Status             model.PipelineRunStatus `json:"status"`
	DocumentsProcessed int                     `json:"documentsProcessed"`
	ChunksCreated      int                     `json:"chunksCreated"`
	ErrorMessage       string                  `json:"errorMessage,omitempty"`
}

// StatusCache 镜像运行状态到缓存。
type StatusCache interface {
	SetRunStatus(ctx context.Context, run *model.PipelineRun) error
	GetRunStatus(ctx context.Context, runID uuid.UUID) (*RunSnapshot, bool)
}

type redisStatusCache struct {
	rdb *redis.Client
}

// NewRedisStatusCache 创建基于 Redis 的运行状态缓存。
func NewRedisStatusCache(rdb *redis.Client) StatusCache {
	return &redisStatusCache{rdb: rdb}
}

func runStatusKey(runID uuid.UUID) string {
	return fmt.Sprintf("pipeline:run:%s:status", runID)
}

func (c *redisStatusCache) SetRunStatus(ctx context.Context, run *model.PipelineRun) error {
	snapshot := RunSnapshot{
		RunID:              run.ID,
		Status:             run.Status,
		DocumentsProcessed: run.DocumentsProcessed,
		ChunksCreated:      run.ChunksCreated,
		ErrorMessage:       run.ErrorMessage,
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal run snapshot: %w", err)
	}
	return c.rdb.Set(ctx, runStatusKey(run.ID), data, runStatusTTL).Err()
}

func (c *redisStatusCache) GetRunStatus(ctx context.Context, runID uuid.UUID) (*RunSnapshot, bool) {
	data, err := c.rdb.Get(ctx, runStatusKey(runID)).Bytes()
	if err != nil {
		return nil, false
	}
	var snapshot RunSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false
	}
	return &snapshot, true
}
