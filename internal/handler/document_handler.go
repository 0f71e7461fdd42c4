// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"piperag-go/internal/middleware"
	"piperag-go/internal/service"
	"piperag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler 负责文档的上传、查询、预览与删除。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload 处理一次批量文档上传，表单字段名为 files。
func (h *DocumentHandler) Upload(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目 ID"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 multipart 表单"})
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未提供任何文件"})
		return
	}

	files := make([]service.UploadFile, 0, len(fileHeaders))
	var closers []func() error
	defer func() {
		for _, close := range closers {
			_ = close()
		}
	}()
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			log.Error("[DocumentHandler] 打开上传文件失败", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "读取上传文件失败"})
			return
		}
		closers = append(closers, f.Close)
		files = append(files, service.UploadFile{
			FileName: fh.Filename,
			Size:     fh.Size,
			Reader:   f,
		})
	}

	summary, err := h.documentService.Upload(c.Request.Context(), projectID, middleware.Tier(c), files)
	if err != nil {
		log.Error("[DocumentHandler] 批量上传失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "上传处理失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": summary})
}

// List 返回项目内的全部文档。
func (h *DocumentHandler) List(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目 ID"})
		return
	}

	docs, err := h.documentService.List(projectID)
	if err != nil {
		log.Error("[DocumentHandler] 查询文档列表失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询文档列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": docs})
}

// Get 返回单个文档的详情。
func (h *DocumentHandler) Get(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目 ID"})
		return
	}
	documentID, err := uuid.Parse(c.Param("documentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的文档 ID"})
		return
	}

	doc, err := h.documentService.Get(projectID, documentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": doc})
}

// Delete 删除文档及其分块、索引与原始文件。
func (h *DocumentHandler) Delete(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目 ID"})
		return
	}
	documentID, err := uuid.Parse(c.Param("documentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的文档 ID"})
		return
	}

	if err := h.documentService.Delete(c.Request.Context(), projectID, documentID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在或删除失败"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetChunks 返回文档分块的分页预览。
func (h *DocumentHandler) GetChunks(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的项目 ID"})
		return
	}
	documentID, err := uuid.Parse(c.Param("documentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的文档 ID"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	preview, err := h.documentService.PreviewChunks(projectID, documentID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": preview})
}
