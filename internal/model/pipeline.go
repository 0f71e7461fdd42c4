package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PipelineRunStatus 表示一次流水线执行的状态。
// 合法迁移：Queued → Running → {Completed | Failed}；在开始前或批次间
// 观察到取消时迁移到 Cancelled。
type PipelineRunStatus string

const (
	PipelineRunStatusQueued    PipelineRunStatus = "queued"
	PipelineRunStatusRunning   PipelineRunStatus = "running"
	PipelineRunStatusCompleted PipelineRunStatus = "completed"
	PipelineRunStatusFailed    PipelineRunStatus = "failed"
	PipelineRunStatusCancelled PipelineRunStatus = "cancelled"
)

// IsTerminal 判断该状态是否为终态。
func (s PipelineRunStatus) IsTerminal() bool {
	switch s {
	case PipelineRunStatusCompleted, PipelineRunStatusFailed, PipelineRunStatusCancelled:
		return true
	case PipelineRunStatusQueued, PipelineRunStatusRunning:
		return false
	}
	return false
}

// PipelineConfig 是流水线的可调参数，序列化后存放在 pipelines.config_json 中。
type PipelineConfig struct {
	ChunkSize         int     `json:"chunkSize"`
	ChunkOverlap      int     `json:"chunkOverlap"`
	EmbeddingModel    string  `json:"embeddingModel,omitempty"`
	RetrievalStrategy string  `json:"retrievalStrategy"`
	TopK              int     `json:"topK"`
	ScoreThreshold    float64 `json:"scoreThreshold"`
}

// DefaultPipelineConfig 返回默认流水线的参数。
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ChunkSize:         512,
		ChunkOverlap:      50,
		RetrievalStrategy: "similarity",
		TopK:              5,
		ScoreThreshold:    0.7,
	}
}

// Pipeline 对应于数据库中的 pipelines 表。
type Pipeline struct {
	ID          uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	ProjectID   uuid.UUID `gorm:"type:char(36);not null;index" json:"projectId"`
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	ConfigJSON  string    `gorm:"type:text;column:config_json" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Pipeline) TableName() string {
	return "pipelines"
}

// BeforeCreate 在插入前补全主键。
func (p *Pipeline) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PipelineRun 对应于数据库中的 pipeline_runs 表。
// 一次 run 处理项目内当前所有未向量化的分块，而不是单个文档；
// DocumentsProcessed / ChunksCreated 必须等于实际处理数量。
type PipelineRun struct {
	ID                 uuid.UUID         `gorm:"type:char(36);primaryKey" json:"id"`
	PipelineID         uuid.UUID         `gorm:"type:char(36);not null;index" json:"pipelineId"`
	ProjectID          uuid.UUID         `gorm:"type:char(36);not null;index" json:"projectId"`
	Status             PipelineRunStatus `gorm:"type:varchar(20);not null;default:'queued'" json:"status"`
	DocumentsProcessed int               `gorm:"not null;default:0" json:"documentsProcessed"`
	ChunksCreated      int               `gorm:"not null;default:0" json:"chunksCreated"`
	ErrorMessage       string            `gorm:"type:text" json:"errorMessage,omitempty"`
	QueuedAt           time.Time         `gorm:"autoCreateTime" json:"queuedAt"`
	StartedAt          *time.Time        `gorm:"default:null" json:"startedAt"`
	CompletedAt        *time.Time        `gorm:"default:null" json:"completedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// BeforeCreate 在插入前补全主键。
func (r *PipelineRun) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
