// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentStatus 表示文档在处理流水线中的状态。
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusChunked    DocumentStatus = "chunked"
	DocumentStatusEmbedded   DocumentStatus = "embedded"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// IsValid 校验状态枚举值是否合法。
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusProcessing,
		DocumentStatusChunked, DocumentStatusEmbedded, DocumentStatusFailed:
		return true
	}
	return false
}

// Document 对应于数据库中的 documents 表。
// 记录上传文档的元数据与处理状态；状态一旦 Failed 只能通过重新上传恢复。
type Document struct {
	ID            uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	ProjectID     uuid.UUID      `gorm:"type:char(36);not null;index" json:"projectId"`
	FileName      string         `gorm:"type:varchar(255);not null" json:"fileName"`
	ContentType   string         `gorm:"type:varchar(100);not null" json:"contentType"`
	FileSizeBytes int64          `gorm:"not null" json:"fileSizeBytes"`
	StoragePath   string         `gorm:"type:varchar(512)" json:"storagePath"`
	Status        DocumentStatus `gorm:"type:varchar(20);not null;default:'uploaded'" json:"status"`
	TokenCount    int            `gorm:"not null;default:0" json:"tokenCount"`
	ChunkCount    int            `gorm:"not null;default:0" json:"chunkCount"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	ProcessedAt   *time.Time     `gorm:"default:null" json:"processedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate 在插入前补全主键。
func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// DocumentChunk 对应于数据库中的 document_chunks 表。
// ChunkIndex 在同一文档内从 0 连续递增；除 Embedding 赋值外记录不可变。
type DocumentChunk struct {
	ID         uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:char(36);not null;index" json:"documentId"`
	ChunkIndex int       `gorm:"not null" json:"chunkIndex"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	TokenCount int       `gorm:"not null" json:"tokenCount"`
	Embedding  []float32 `gorm:"type:json;serializer:json" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// BeforeCreate 在插入前补全主键。
func (c *DocumentChunk) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
