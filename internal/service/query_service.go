package service

import (
	"context"
	"fmt"
	"strings"

	"piperag-go/internal/model"
	"piperag-go/pkg/llm"
	"piperag-go/pkg/log"

	"github.com/google/uuid"
)

// 检索参数默认值，与默认流水线配置一致。
const (
	DefaultTopK           = 5
	DefaultScoreThreshold = 0.7
)

const systemInstruction = "You are a helpful AI assistant answering questions based on the user's documents. " +
	"Use the provided context to answer accurately. If the context doesn't contain relevant information, say so."

// QueryService 编排一轮问答：写入用户消息、检索来源、取会话窗口、
// 构造提示词、生成回答、写入助手消息。
type QueryService interface {
	// Query 非流式变体，返回一次性组装好的完整响应。
	Query(ctx context.Context, projectID, sessionID uuid.UUID, userMessage string, tier model.UserTier, strategy string, topK int, scoreThreshold float64) (*model.ChatResponse, error)
	// QueryStream 流式变体，每个生成增量立刻通过 emit 推送一帧，
	// 流结束后推送携带 sources 与 tokensUsed 的终帧。
	QueryStream(ctx context.Context, projectID, sessionID uuid.UUID, userMessage string, tier model.UserTier, strategy string, topK int, scoreThreshold float64, emit func(model.ChatStreamChunk) error) error
}

type queryService struct {
	router    ModelRouter
	memory    MemoryService
	retrieval RetrievalService
	chat      llm.Provider
}

// NewQueryService 创建问答编排服务。
func NewQueryService(router ModelRouter, memory MemoryService, retrieval RetrievalService, chat llm.Provider) QueryService {
	return &queryService{
		router:    router,
		memory:    memory,
		retrieval: retrieval,
		chat:      chat,
	}
}

// prepareTurn 执行一轮问答的公共前半段：写入用户消息、检索、取窗口、构造提示词。
func (s *queryService) prepareTurn(ctx context.Context, projectID, sessionID uuid.UUID, userMessage string, tier model.UserTier, strategy string, topK int, scoreThreshold float64) (model.ModelSelection, []model.SourceReference, []llm.Message, error) {
	models := s.router.Resolve(tier)

	if strategy == "" {
		strategy = StrategySimilarity
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if scoreThreshold <= 0 {
		scoreThreshold = DefaultScoreThreshold
	}

	if _, err := s.memory.AppendMessage(sessionID, model.ChatRoleUser, userMessage, nil); err != nil {
		return models, nil, nil, fmt.Errorf("failed to store user message: %w", err)
	}

	sources := s.retrieval.Retrieve(ctx, projectID, userMessage, models.EmbeddingModel, strategy, topK, scoreThreshold)

	window, err := s.memory.GetWindow(sessionID, DefaultWindowSize)
	if err != nil {
		return models, nil, nil, fmt.Errorf("failed to load conversation window: %w", err)
	}

	return models, sources, buildPrompt(window, sources), nil
}

func (s *queryService) Query(ctx context.Context, projectID, sessionID uuid.UUID, userMessage string, tier model.UserTier, strategy string, topK int, scoreThreshold float64) (*model.ChatResponse, error) {
	models, sources, prompt, err := s.prepareTurn(ctx, projectID, sessionID, userMessage, tier, strategy, topK, scoreThreshold)
	if err != nil {
		return nil, err
	}

	text, err := s.chat.Generate(ctx, models.ChatModel, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	tokensUsed := len(text) / 4
	if _, err := s.memory.AppendMessage(sessionID, model.ChatRoleAssistant, text, &tokensUsed); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	return &model.ChatResponse{
		Message:    text,
		SessionID:  sessionID,
		Sources:    sources,
		TokensUsed: tokensUsed,
	}, nil
}

func (s *queryService) QueryStream(ctx context.Context, projectID, sessionID uuid.UUID, userMessage string, tier model.UserTier, strategy string, topK int, scoreThreshold float64, emit func(model.ChatStreamChunk) error) error {
	models, sources, prompt, err := s.prepareTurn(ctx, projectID, sessionID, userMessage, tier, strategy, topK, scoreThreshold)
	if err != nil {
		return err
	}

	var full strings.Builder
	streamErr := s.chat.GenerateStream(ctx, models.ChatModel, prompt, func(delta string) error {
		full.WriteString(delta)
		return emit(model.ChatStreamChunk{
			Content:   delta,
			Done:      false,
			SessionID: sessionID,
		})
	})

	// 取消或生成失败时已累计的部分回答同样落库，不静默丢弃
	text := full.String()
	if text != "" || streamErr == nil {
		tokensUsed := len(text) / 4
		if _, err := s.memory.AppendMessage(sessionID, model.ChatRoleAssistant, text, &tokensUsed); err != nil {
			log.Error("[Query] 写入助手消息失败", err)
			if streamErr == nil {
				return fmt.Errorf("failed to store assistant message: %w", err)
			}
		}
		if streamErr == nil {
			return emit(model.ChatStreamChunk{
				Content:    "",
				Done:       true,
				SessionID:  sessionID,
				Sources:    sources,
				TokensUsed: &tokensUsed,
			})
		}
	}

	return streamErr
}

// buildPrompt 构造生成提示词：系统指令（来源非空时附上下文块），
// 然后按角色映射会话窗口中的消息。
func buildPrompt(window []model.ChatMessage, sources []model.SourceReference) []llm.Message {
	var system strings.Builder
	system.WriteString(systemInstruction)
	if len(sources) > 0 {
		system.WriteString("\n\nRelevant context from documents:\n")
		for i, src := range sources {
			if i > 0 {
				system.WriteString("\n---\n")
			}
			system.WriteString(fmt.Sprintf("[%s]: %s", src.DocumentName, src.ChunkContent))
		}
	}

	messages := make([]llm.Message, 0, len(window)+1)
	messages = append(messages, llm.Message{Role: "system", Content: system.String()})
	for _, m := range window {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return messages
}
