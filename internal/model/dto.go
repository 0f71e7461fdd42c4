package model

import (
	"time"

	"github.com/google/uuid"
)

// SourceReference 是检索结果的临时引用，不做持久化。
// Score ∈ [0,1]，即 1 - cosineDistance，越大越相关。
type SourceReference struct {
	DocumentID   uuid.UUID `json:"documentId"`
	DocumentName string    `json:"documentName"`
	ChunkContent string    `json:"chunkContent"`
	Score        float64   `json:"score"`
}

// ChatRequest 定义了发起一轮对话的请求体。
type ChatRequest struct {
	Message           string     `json:"message" binding:"required"`
	SessionID         *uuid.UUID `json:"sessionId,omitempty"`
	RetrievalStrategy string     `json:"retrievalStrategy"`
	TopK              int        `json:"topK"`
}

// ChatResponse 定义了非流式问答的响应结构。
type ChatResponse struct {
	Message    string            `json:"message"`
	SessionID  uuid.UUID         `json:"sessionId"`
	Sources    []SourceReference `json:"sources"`
	TokensUsed int               `json:"tokensUsed"`
}

// ChatStreamChunk 是 SSE 流式响应中的单帧。
// 每个生成增量一帧（Done=false），流结束后追加一帧 Done=true，
// 携带最终的 Sources 与 TokensUsed。
type ChatStreamChunk struct {
	Content    string            `json:"content"`
	Done       bool              `json:"done"`
	SessionID  uuid.UUID         `json:"sessionId"`
	Sources    []SourceReference `json:"sources,omitempty"`
	TokensUsed *int              `json:"tokensUsed,omitempty"`
}

// ChatSessionDTO 是会话列表项。
type ChatSessionDTO struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	MessageCount  int        `json:"messageCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
}

// DocumentUploadSummary 汇总一次批量上传的结果，单个文件失败不影响其他文件。
type DocumentUploadSummary struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
}

// ChunkPreviewDTO 是分块预览中的单条记录。
type ChunkPreviewDTO struct {
	ID         uuid.UUID `json:"id"`
	ChunkIndex int       `json:"chunkIndex"`
	Content    string    `json:"content"`
	TokenCount int       `json:"tokenCount"`
}

// ChunkPreviewPage 是分块预览的分页响应。
type ChunkPreviewPage struct {
	Chunks     []ChunkPreviewDTO `json:"chunks"`
	TotalCount int64             `json:"totalCount"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
}

// ModelSelection 描述某个用户等级可用的模型组合。
type ModelSelection struct {
	EmbeddingModel         string `json:"embeddingModel"`
	EmbeddingDimensions    int    `json:"embeddingDimensions"`
	ChatModel              string `json:"chatModel"`
	MaxTokensPerRequest    int    `json:"maxTokensPerRequest"`
	MaxDocumentsPerProject int    `json:"maxDocumentsPerProject"`
}

// UserTier 表示用户的订阅等级，由 JWT claims 携带。
type UserTier string

const (
	TierFree       UserTier = "free"
	TierPro        UserTier = "pro"
	TierEnterprise UserTier = "enterprise"
)
