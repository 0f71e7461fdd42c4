// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"piperag-go/internal/config"
	"piperag-go/pkg/log"
)

// Provider defines the interface for an embedding provider.
type Provider interface {
	Embed(ctx context.Context, text string, model string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error)
}

type openAICompatibleProvider struct {
	cfg config.EmbeddingConfig

	// 按模型 ID 缓存的 client，只构建一次，可并发读取。
	mu      sync.Mutex
	clients map[string]*modelClient
}

// NewProvider creates a new embedding provider based on the config.
func NewProvider(cfg config.EmbeddingConfig) Provider {
	return &openAICompatibleProvider{
		cfg:     cfg,
		clients: make(map[string]*modelClient),
	}
}

type modelClient struct {
	model string
	http  *http.Client
}

func (p *openAICompatibleProvider) forModel(model string) *modelClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[model]; ok {
		return c
	}
	c := &modelClient{model: model, http: &http.Client{}}
	p.clients[model] = c
	return c
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed calls the OpenAI-compatible API to get the vector for a given text.
func (p *openAICompatibleProvider) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text}, model)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch calls the OpenAI-compatible API with multiple inputs at once.
func (p *openAICompatibleProvider) EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	client := p.forModel(model)
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, inputs: %d", model, len(texts))

	reqBody := embeddingRequest{
		Model: client.model,
		Input: texts,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := client.http.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("embedding api returned non-200 status: %s", resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embeddingResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(embeddingResp.Data), len(texts))
	}

	// 按 index 归位，响应顺序不一定与请求一致
	vectors := make([][]float32, len(texts))
	for _, d := range embeddingResp.Data {
		if d.Index < 0 || d.Index >= len(texts) || len(d.Embedding) == 0 {
			return nil, fmt.Errorf("received invalid embedding at index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	log.Infof("[EmbeddingClient] 成功获取 %d 个向量, 维度: %d", len(vectors), len(vectors[0]))
	return vectors, nil
}
