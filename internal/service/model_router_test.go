package service

import (
	"testing"

	"piperag-go/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestModelRouterTiers(t *testing.T) {
	router := NewModelRouter()

	free := router.Resolve(model.TierFree)
	assert.Equal(t, "text-embedding-3-small", free.EmbeddingModel)
	assert.Equal(t, 1536, free.EmbeddingDimensions)
	assert.Equal(t, "gpt-4.1-mini", free.ChatModel)
	assert.Equal(t, 4096, free.MaxTokensPerRequest)
	assert.Equal(t, 50, free.MaxDocumentsPerProject)

	pro := router.Resolve(model.TierPro)
	assert.Equal(t, "text-embedding-3-large", pro.EmbeddingModel)
	assert.Equal(t, 3072, pro.EmbeddingDimensions)
	assert.Equal(t, "gpt-4.1", pro.ChatModel)
	assert.Equal(t, 8192, pro.MaxTokensPerRequest)
	assert.Equal(t, 500, pro.MaxDocumentsPerProject)

	enterprise := router.Resolve(model.TierEnterprise)
	assert.Equal(t, 16384, enterprise.MaxTokensPerRequest)
	assert.Equal(t, 5000, enterprise.MaxDocumentsPerProject)

	// 未知等级回落到 Free
	unknown := router.Resolve(model.UserTier("gold"))
	assert.Equal(t, free, unknown)
}
