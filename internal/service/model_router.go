// Package service 实现了业务逻辑层。
package service

import "piperag-go/internal/model"

// ModelRouter 根据用户等级路由到对应的模型组合。
type ModelRouter interface {
	Resolve(tier model.UserTier) model.ModelSelection
}

type modelRouter struct{}

// NewModelRouter 创建模型路由器。
func NewModelRouter() ModelRouter {
	return &modelRouter{}
}

func (m *modelRouter) Resolve(tier model.UserTier) model.ModelSelection {
	switch tier {
	case model.TierPro:
		return model.ModelSelection{
			EmbeddingModel:         "text-embedding-3-large",
			EmbeddingDimensions:    3072,
			ChatModel:              "gpt-4.1",
			MaxTokensPerRequest:    8192,
			MaxDocumentsPerProject: 500,
		}
	case model.TierEnterprise:
		return model.ModelSelection{
			EmbeddingModel:         "text-embedding-3-large",
			EmbeddingDimensions:    3072,
			ChatModel:              "gpt-4.1",
			MaxTokensPerRequest:    16384,
			MaxDocumentsPerProject: 5000,
		}
	default:
		// 未知等级按 Free 处理
		return model.ModelSelection{
			EmbeddingModel:         "text-embedding-3-small",
			EmbeddingDimensions:    1536,
			ChatModel:              "gpt-4.1-mini",
			MaxTokensPerRequest:    4096,
			MaxDocumentsPerProject: 50,
		}
	}
}
