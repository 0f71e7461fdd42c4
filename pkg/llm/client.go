// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"piperag-go/internal/config"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider defines the interface for a chat completion provider.
type Provider interface {
	// Generate 同步生成完整回答。
	Generate(ctx context.Context, model string, messages []Message) (string, error)
	// GenerateStream 流式生成，每产生一个增量调用一次 onDelta；
	// onDelta 返回错误或 ctx 取消都会中断流。
	GenerateStream(ctx context.Context, model string, messages []Message, onDelta func(delta string) error) error
}

type openAICompatibleProvider struct {
	cfg config.LLMConfig

	// 按模型 ID 缓存的 client，只构建一次，可并发读取。
	mu      sync.Mutex
	clients map[string]*modelClient
}

// NewProvider creates a new LLM provider based on the config.
func NewProvider(cfg config.LLMConfig) Provider {
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

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openAICompatibleProvider) newRequest(ctx context.Context, body chatRequest) (*http.Request, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	return req, nil
}

// Generate 调用聊天接口并一次性返回完整回答。
func (p *openAICompatibleProvider) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	client := p.forModel(model)
	req, err := p.newRequest(ctx, chatRequest{Model: client.model, Messages: messages, Stream: false})
	if err != nil {
		return "", err
	}

	resp, err := client.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("chat api returned no choices")
	}
	return chat.Choices[0].Message.Content, nil
}

// GenerateStream 调用聊天接口并逐增量回调。
func (p *openAICompatibleProvider) GenerateStream(ctx context.Context, model string, messages []Message, onDelta func(delta string) error) error {
	client := p.forModel(model)
	req, err := p.newRequest(ctx, chatRequest{Model: client.model, Messages: messages, Stream: true})
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		// 每个增量前都检查取消
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(data) == "[DONE]" {
			break
		}

		var chunk chatStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := onDelta(chunk.Choices[0].Delta.Content); err != nil {
				return err
			}
		}
	}
	return nil
}
