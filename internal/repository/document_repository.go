// Package repository 提供了数据访问层的实现。
package repository

import (
	"time"

	"piperag-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentRepository 定义了对 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(doc *model.Document) error
	Save(doc *model.Document) error
	FindByID(id uuid.UUID) (*model.Document, error)
	FindByProject(projectID uuid.UUID) ([]model.Document, error)
	// FindPendingByProject 返回项目内状态尚未到达 Embedded 的文档。
	FindPendingByProject(projectID uuid.UUID) ([]model.Document, error)
	// MarkEmbedded 将一批文档的状态置为 Embedded。
	MarkEmbedded(ids []uuid.UUID) error
	Delete(id uuid.UUID) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) Save(doc *model.Document) error {
	return r.db.Save(doc).Error
}

func (r *documentRepository) FindByID(id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByProject(projectID uuid.UUID) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&docs).Error
	return docs, err
}

func (r *documentRepository) FindPendingByProject(projectID uuid.UUID) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("project_id = ? AND status <> ?", projectID, model.DocumentStatusEmbedded).
		Order("created_at ASC").
		Find(&docs).Error
	return docs, err
}

func (r *documentRepository) MarkEmbedded(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&model.Document{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":       model.DocumentStatusEmbedded,
			"processed_at": time.Now(),
		}).Error
}

func (r *documentRepository) Delete(id uuid.UUID) error {
	return r.db.Delete(&model.Document{}, "id = ?", id).Error
}
