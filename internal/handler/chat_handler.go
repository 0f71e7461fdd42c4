package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"piperag-go/internal/middleware"
	"piperag-go/internal/model"
	"piperag-go/internal/service"
	"piperag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChatHandler 负责问答接口与会话管理。
type ChatHandler struct {
	queryService  service.QueryService
	memoryService service.MemoryService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(queryService service.QueryService, memoryService service.MemoryService) *ChatHandler {
	return &ChatHandler{
		queryService:  queryService,
		memoryService: memoryService,
	}
}

// Chat 处理一轮非流式问答。
func (h *ChatHandler) Chat(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目 ID"})
		return
	}

	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}

	userID := middleware.UserID(c)
	session, err := h.memoryService.GetOrCreateSession(req.SessionID, projectID, userID, req.Message)
	if err != nil {
		log.Error("[ChatHandler] 创建会话失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建会话失败"})
		return
	}

	resp, err := h.queryService.Query(c.Request.Context(), projectID, session.ID, req.Message,
		middleware.Tier(c), req.RetrievalStrategy, req.TopK, 0)
	if err != nil {
		log.Error("[ChatHandler] 问答失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "问答处理失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": resp})
}

// ChatStream 处理一轮流式问答，按 SSE 帧逐增量推送：
// data: {"content","done","sessionId",...}\n\n，终帧携带 sources 与 tokensUsed。
func (h *ChatHandler) ChatStream(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目 ID"})
		return
	}

	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}

	userID := middleware.UserID(c)
	session, err := h.memoryService.GetOrCreateSession(req.SessionID, projectID, userID, req.Message)
	if err != nil {
		log.Error("[ChatHandler] 创建会话失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建会话失败"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "当前连接不支持流式响应"})
		return
	}

	emit := func(chunk model.ChatStreamChunk) error {
		data, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("failed to marshal stream chunk: %w", err)
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err = h.queryService.QueryStream(c.Request.Context(), projectID, session.ID, req.Message,
		middleware.Tier(c), req.RetrievalStrategy, req.TopK, 0, emit)
	if err != nil {
		// 终帧之前的错误以流中断的形式暴露给调用方
		log.Error("[ChatHandler] 流式问答中断", err)
	}
}

// GetSessions 返回当前用户在项目内的会话列表。
func (h *ChatHandler) GetSessions(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目 ID"})
		return
	}

	sessions, err := h.memoryService.GetSessions(projectID, middleware.UserID(c))
	if err != nil {
		log.Error("[ChatHandler] 查询会话列表失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询会话列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": sessions})
}

// GetMessages 返回某个会话的全部消息，按时间正序。
func (h *ChatHandler) GetMessages(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的会话 ID"})
		return
	}

	messages, err := h.memoryService.GetAllMessages(sessionID)
	if err != nil {
		log.Error("[ChatHandler] 查询会话消息失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询会话消息失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": messages})
}

// DeleteSession 删除当前用户的某个会话及其消息。
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的会话 ID"})
		return
	}

	if err := h.memoryService.DeleteSession(sessionID, middleware.UserID(c)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.Status(http.StatusNoContent)
}
