package repository

import (
	"piperag-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// KeywordHit 是关键词兜底检索的单条命中，携带所属文档的文件名。
type KeywordHit struct {
	DocumentID uuid.UUID
	FileName   string
	Content    string
}

// ChunkRepository 定义了对 document_chunks 表的数据操作接口。
type ChunkRepository interface {
	BatchCreate(chunks []*model.DocumentChunk) error
	// FindByDocuments 返回指定文档的全部分块，按 (document_id, chunk_index) 排序。
	FindByDocuments(documentIDs []uuid.UUID) ([]*model.DocumentChunk, error)
	// UpdateEmbedding 为单个分块写入向量；分块的其他字段不可变。
	UpdateEmbedding(chunkID uuid.UUID, vector []float32) error
	CountByDocument(documentID uuid.UUID) (int64, error)
	FindPageByDocument(documentID uuid.UUID, offset, limit int) ([]model.DocumentChunk, error)
	// SearchByKeyword 在项目的分块内容上执行子串匹配，用于混合检索兜底。
	SearchByKeyword(projectID uuid.UUID, keyword string, limit int) ([]KeywordHit, error)
	DeleteByDocument(documentID uuid.UUID) error
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

func (r *chunkRepository) BatchCreate(chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error
}

func (r *chunkRepository) FindByDocuments(documentIDs []uuid.UUID) ([]*model.DocumentChunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var chunks []*model.DocumentChunk
	err := r.db.Where("document_id IN ?", documentIDs).
		Order("document_id ASC, chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

func (r *chunkRepository) UpdateEmbedding(chunkID uuid.UUID, vector []float32) error {
	return r.db.Model(&model.DocumentChunk{}).
		Where("id = ?", chunkID).
		Update("embedding", vector).Error
}

func (r *chunkRepository) CountByDocument(documentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&model.DocumentChunk{}).
		Where("document_id = ?", documentID).
		Count(&count).Error
	return count, err
}

func (r *chunkRepository) FindPageByDocument(documentID uuid.UUID, offset, limit int) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	err := r.db.Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Offset(offset).Limit(limit).
		Find(&chunks).Error
	return chunks, err
}

func (r *chunkRepository) SearchByKeyword(projectID uuid.UUID, keyword string, limit int) ([]KeywordHit, error) {
	var hits []KeywordHit
	err := r.db.Model(&model.DocumentChunk{}).
		Select("document_chunks.document_id AS document_id, documents.file_name AS file_name, document_chunks.content AS content").
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.project_id = ? AND document_chunks.content LIKE ?", projectID, "%"+keyword+"%").
		Limit(limit).
		Scan(&hits).Error
	return hits, err
}

func (r *chunkRepository) DeleteByDocument(documentID uuid.UUID) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error
}
