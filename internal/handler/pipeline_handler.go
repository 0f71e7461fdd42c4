package handler

import (
	"net/http"

	"piperag-go/internal/pipeline"
	"piperag-go/internal/repository"
	"piperag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PipelineHandler 负责流水线运行的触发与状态轮询。
type PipelineHandler struct {
	orchestrator *pipeline.Orchestrator
	statusCache  pipeline.StatusCache
	pipelineRepo repository.PipelineRepository
}

// NewPipelineHandler 创建一个新的 PipelineHandler。
func NewPipelineHandler(orchestrator *pipeline.Orchestrator, statusCache pipeline.StatusCache, pipelineRepo repository.PipelineRepository) *PipelineHandler {
	return &PipelineHandler{
		orchestrator: orchestrator,
		statusCache:  statusCache,
		pipelineRepo: pipelineRepo,
	}
}

// TriggerRun 为项目排队一次嵌入流水线运行，返回运行 ID 与初始状态。
func (h *PipelineHandler) TriggerRun(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目 ID"})
		return
	}

	run, err := h.orchestrator.Enqueue(c.Request.Context(), projectID)
	if err != nil {
		log.Error("[PipelineHandler] 运行入队失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "流水线运行入队失败"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "success", "data": gin.H{
		"runId":  run.ID,
		"status": run.Status,
	}})
}

// GetRunStatus 按运行 ID 轮询状态，优先读缓存镜像，未命中时回源数据库。
func (h *PipelineHandler) GetRunStatus(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的运行 ID"})
		return
	}

	if snapshot, ok := h.statusCache.GetRunStatus(c.Request.Context(), runID); ok {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": snapshot})
		return
	}

	run, err := h.pipelineRepo.FindRunByID(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "运行不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": run})
}

// ListRuns 返回项目的全部流水线运行，按入队时间倒序。
func (h *PipelineHandler) ListRuns(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目 ID"})
		return
	}

	runs, err := h.pipelineRepo.FindRunsByProject(projectID)
	if err != nil {
		log.Error("[PipelineHandler] 查询运行列表失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询运行列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": runs})
}
