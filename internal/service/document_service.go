package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"piperag-go/internal/chunker"
	"piperag-go/internal/model"
	"piperag-go/internal/repository"
	"piperag-go/pkg/log"
	"piperag-go/pkg/storage"

	"github.com/google/uuid"
)

// extensionContentTypes 是允许上传的扩展名到内容类型的映射。
var extensionContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
}

// maxFileSizeByTier 是各用户等级的单文件大小上限。
var maxFileSizeByTier = map[model.UserTier]int64{
	model.TierFree:       50 * 1024 * 1024,
	model.TierPro:        200 * 1024 * 1024,
	model.TierEnterprise: 500 * 1024 * 1024,
}

// UploadFile 是一次上传中的单个文件。
type UploadFile struct {
	FileName string
	Size     int64
	Reader   io.Reader
}

// FileStore 是原始文件存储的窄接口。
type FileStore interface {
	Save(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, storagePath string) (io.ReadCloser, error)
	Delete(ctx context.Context, storagePath string) error
}

// TextExtractor 从文件流中抽取纯文本。
type TextExtractor interface {
	ExtractText(ctx context.Context, fileReader io.Reader, contentType string) (string, error)
}

// ChunkIndexRemover 从相似度索引中清除某文档的全部分块。
type ChunkIndexRemover interface {
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
}

// RunEnqueuer 触发一次嵌入流水线运行。
type RunEnqueuer interface {
	Enqueue(ctx context.Context, projectID uuid.UUID) (*model.PipelineRun, error)
}

// DocumentService 管理文档的上传、处理、预览与删除。
type DocumentService interface {
	// Upload 批量上传文档：保存原始文件、抽取文本、切分并落库。
	// 单个文件失败只计入汇总，不影响批次中的其他文件。
	Upload(ctx context.Context, projectID uuid.UUID, tier model.UserTier, files []UploadFile) (*model.DocumentUploadSummary, error)
	List(projectID uuid.UUID) ([]model.Document, error)
	Get(projectID, documentID uuid.UUID) (*model.Document, error)
	Delete(ctx context.Context, projectID, documentID uuid.UUID) error
	PreviewChunks(projectID, documentID uuid.UUID, page, pageSize int) (*model.ChunkPreviewPage, error)
}

type documentService struct {
	docRepo      repository.DocumentRepository
	chunkRepo    repository.ChunkRepository
	pipelineRepo repository.PipelineRepository
	store        FileStore
	extractor    TextExtractor
	indexRemover ChunkIndexRemover
	enqueuer     RunEnqueuer
}

// NewDocumentService 创建文档服务。
func NewDocumentService(
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	pipelineRepo repository.PipelineRepository,
	store FileStore,
	extractor TextExtractor,
	indexRemover ChunkIndexRemover,
	enqueuer RunEnqueuer,
) DocumentService {
	return &documentService{
		docRepo:      docRepo,
		chunkRepo:    chunkRepo,
		pipelineRepo: pipelineRepo,
		store:        store,
		extractor:    extractor,
		indexRemover: indexRemover,
		enqueuer:     enqueuer,
	}
}

func (s *documentService) Upload(ctx context.Context, projectID uuid.UUID, tier model.UserTier, files []UploadFile) (*model.DocumentUploadSummary, error) {
	maxSize, ok := maxFileSizeByTier[tier]
	if !ok {
		maxSize = maxFileSizeByTier[model.TierFree]
	}
	chunkCfg := s.resolveChunkConfig(projectID)

	summary := &model.DocumentUploadSummary{Total: len(files)}
	anyChunked := false

	for _, file := range files {
		log.Infof("[Document] 步骤1: 处理上传文件, fileName: %s, size: %d", file.FileName, file.Size)

		contentType, ok := extensionContentTypes[strings.ToLower(filepath.Ext(file.FileName))]
		if !ok {
			log.Warnf("[Document] 不支持的文件类型: %s", file.FileName)
			summary.Failed++
			continue
		}
		if file.Size > maxSize {
			log.Warnf("[Document] 文件超出等级限制: %s, size: %d, max: %d", file.FileName, file.Size, maxSize)
			summary.Failed++
			continue
		}

		doc := &model.Document{
			ID:            uuid.New(),
			ProjectID:     projectID,
			FileName:      file.FileName,
			ContentType:   contentType,
			FileSizeBytes: file.Size,
			Status:        model.DocumentStatusProcessing,
		}

		storagePath, err := s.store.Save(ctx, storage.ObjectName(projectID, doc.ID, file.FileName), file.Reader, file.Size, contentType)
		if err != nil {
			log.Error("[Document] 保存原始文件失败", err)
			summary.Failed++
			continue
		}
		doc.StoragePath = storagePath

		if err := s.docRepo.Create(doc); err != nil {
			log.Error("[Document] 创建文档记录失败", err)
			summary.Failed++
			continue
		}

		// 抽取与切分失败只标记该文档为 Failed，上传本身已成功
		if err := s.processDocument(ctx, doc, contentType, chunkCfg); err != nil {
			log.Error("[Document] 文档处理失败", err)
			doc.Status = model.DocumentStatusFailed
			if saveErr := s.docRepo.Save(doc); saveErr != nil {
				log.Error("[Document] 更新文档状态失败", saveErr)
			}
		} else {
			anyChunked = true
		}

		summary.Documents = append(summary.Documents, *doc)
		summary.Succeeded++
	}

	// 批次内有新分块时自动排队一次流水线运行
	if anyChunked && s.enqueuer != nil {
		if _, err := s.enqueuer.Enqueue(ctx, projectID); err != nil {
			log.Error("[Document] 自动排队流水线运行失败", err)
		}
	}

	return summary, nil
}

// processDocument 抽取文本、切分并持久化分块，推进文档状态到 Chunked。
func (s *documentService) processDocument(ctx context.Context, doc *model.Document, contentType string, cfg model.PipelineConfig) error {
	reader, err := s.store.Get(ctx, doc.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to read stored file: %w", err)
	}
	defer reader.Close()

	text, err := s.extractor.ExtractText(ctx, reader, contentType)
	if err != nil {
		return fmt.Errorf("failed to extract text: %w", err)
	}

	textChunks := chunker.ChunkText(text, cfg.ChunkSize, cfg.ChunkOverlap)
	log.Infof("[Document] 步骤2: 切分完成, documentID: %s, 分块数: %d", doc.ID, len(textChunks))

	rows := make([]*model.DocumentChunk, len(textChunks))
	for i, tc := range textChunks {
		rows[i] = &model.DocumentChunk{
			DocumentID: doc.ID,
			ChunkIndex: tc.Index,
			Content:    tc.Content,
			TokenCount: tc.TokenCount,
		}
	}
	if err := s.chunkRepo.BatchCreate(rows); err != nil {
		return fmt.Errorf("failed to persist chunks: %w", err)
	}

	now := time.Now()
	doc.TokenCount = chunker.EstimateTokenCount(text)
	doc.ChunkCount = len(textChunks)
	doc.Status = model.DocumentStatusChunked
	doc.ProcessedAt = &now
	if err := s.docRepo.Save(doc); err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

// resolveChunkConfig 读取项目默认流水线的切分参数，解析失败时用默认值。
func (s *documentService) resolveChunkConfig(projectID uuid.UUID) model.PipelineConfig {
	cfg := model.DefaultPipelineConfig()
	pl, err := s.pipelineRepo.GetOrCreateDefault(projectID)
	if err != nil {
		log.Warnf("[Document] 读取默认流水线失败，使用默认切分参数: %v", err)
		return cfg
	}
	if pl.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(pl.ConfigJSON), &cfg); err != nil {
			log.Warnf("[Document] 解析流水线配置失败，使用默认切分参数: %v", err)
			return model.DefaultPipelineConfig()
		}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = model.DefaultPipelineConfig().ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = model.DefaultPipelineConfig().ChunkOverlap
	}
	return cfg
}

func (s *documentService) List(projectID uuid.UUID) ([]model.Document, error) {
	return s.docRepo.FindByProject(projectID)
}

func (s *documentService) Get(projectID, documentID uuid.UUID) (*model.Document, error) {
	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		return nil, err
	}
	if doc.ProjectID != projectID {
		return nil, fmt.Errorf("document %s not found in project %s", documentID, projectID)
	}
	return doc, nil
}

func (s *documentService) Delete(ctx context.Context, projectID, documentID uuid.UUID) error {
	doc, err := s.Get(projectID, documentID)
	if err != nil {
		return err
	}

	// 原始文件与索引的清理失败只告警，不阻塞删除
	if err := s.store.Delete(ctx, doc.StoragePath); err != nil {
		log.Warnf("[Document] 删除原始文件失败, documentID: %s: %v", documentID, err)
	}
	if s.indexRemover != nil {
		if err := s.indexRemover.DeleteByDocument(ctx, documentID); err != nil {
			log.Warnf("[Document] 清理索引失败, documentID: %s: %v", documentID, err)
		}
	}

	if err := s.chunkRepo.DeleteByDocument(documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return s.docRepo.Delete(documentID)
}

func (s *documentService) PreviewChunks(projectID, documentID uuid.UUID, page, pageSize int) (*model.ChunkPreviewPage, error) {
	if _, err := s.Get(projectID, documentID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	total, err := s.chunkRepo.CountByDocument(documentID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunkRepo.FindPageByDocument(documentID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}

	dtos := make([]model.ChunkPreviewDTO, len(chunks))
	for i, c := range chunks {
		dtos[i] = model.ChunkPreviewDTO{
			ID:         c.ID,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
			TokenCount: c.TokenCount,
		}
	}
	return &model.ChunkPreviewPage{
		Chunks:     dtos,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// minioFileStore 是 FileStore 的 MinIO 实现。
type minioFileStore struct {
	bucket string
}

// NewMinioFileStore 创建基于 MinIO 的文件存储。
func NewMinioFileStore(bucket string) FileStore {
	return &minioFileStore{bucket: bucket}
}

func (m *minioFileStore) Save(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	return storage.SaveFile(ctx, m.bucket, objectName, reader, size, contentType)
}

func (m *minioFileStore) Get(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	return storage.GetFile(ctx, m.bucket, storagePath)
}

func (m *minioFileStore) Delete(ctx context.Context, storagePath string) error {
	return storage.DeleteFile(ctx, m.bucket, storagePath)
}
