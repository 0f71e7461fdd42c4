// Package tika 提供了一个与 Apache Tika 服务器交互的文本提取客户端。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"piperag-go/internal/config"
)

// supportedTypes 是允许提取的内容类型白名单，其余类型一律拒绝。
var supportedTypes = map[string]struct{}{
	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"text/plain":    {},
	"text/markdown": {},
	"text/csv":      {},
}

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
	http      *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{serverURL: cfg.ServerURL, http: &http.Client{}}
}

// IsSupported 判断内容类型是否允许提取。
func IsSupported(contentType string) bool {
	_, ok := supportedTypes[contentType]
	return ok
}

// ExtractText 调用 Tika 提取文本。不在白名单内的内容类型直接拒绝。
func (c *Client) ExtractText(ctx context.Context, fileReader io.Reader, contentType string) (string, error) {
	if !IsSupported(contentType) {
		return "", fmt.Errorf("不支持的内容类型: %s", contentType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}

	return buf.String(), nil
}
