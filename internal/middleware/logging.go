package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"piperag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer。
// SSE 流式响应不进 buffer，避免长连接把增量全部攒在内存里。
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录详细的请求和响应日志。
// 文件上传与 SSE 流式响应的 body 不做捕获，避免内存翻倍。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// 只缓存 JSON 请求体，multipart 上传体可能很大
		var requestBody []byte
		contentType := c.GetHeader("Content-Type")
		if c.Request.Body != nil && strings.HasPrefix(contentType, "application/json") {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path

		responseBody := blw.body.String()
		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			responseBody = "(sse stream)"
		}

		log.Infow("HTTP Request Log",
			"statusCode", statusCode,
			"latency", latency.String(),
			"clientIP", clientIP,
			"method", method,
			"path", path,
			"requestBody", string(requestBody),
			"responseBody", responseBody,
		)
	}
}
