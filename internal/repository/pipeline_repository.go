package repository

import (
	"encoding/json"
	"errors"

	"piperag-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PipelineRepository 定义了对 pipelines / pipeline_runs 表的数据操作接口。
type PipelineRepository interface {
	// GetOrCreateDefault 返回项目的默认流水线，不存在时自动创建。
	GetOrCreateDefault(projectID uuid.UUID) (*model.Pipeline, error)
	CreateRun(run *model.PipelineRun) error
	FindRunByID(id uuid.UUID) (*model.PipelineRun, error)
	SaveRun(run *model.PipelineRun) error
	FindRunsByProject(projectID uuid.UUID) ([]model.PipelineRun, error)
}

type pipelineRepository struct {
	db *gorm.DB
}

// NewPipelineRepository 创建一个新的 PipelineRepository 实例。
func NewPipelineRepository(db *gorm.DB) PipelineRepository {
	return &pipelineRepository{db: db}
}

func (r *pipelineRepository) GetOrCreateDefault(projectID uuid.UUID) (*model.Pipeline, error) {
	var pipeline model.Pipeline
	err := r.db.Where("project_id = ?", projectID).
		Order("created_at ASC").
		First(&pipeline).Error
	if err == nil {
		return &pipeline, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	configBytes, err := json.Marshal(model.DefaultPipelineConfig())
	if err != nil {
		return nil, err
	}
	pipeline = model.Pipeline{
		ProjectID:   projectID,
		Name:        "Default Pipeline",
		Description: "Auto-created default pipeline",
		ConfigJSON:  string(configBytes),
	}
	if err := r.db.Create(&pipeline).Error; err != nil {
		return nil, err
	}
	return &pipeline, nil
}

func (r *pipelineRepository) CreateRun(run *model.PipelineRun) error {
	return r.db.Create(run).Error
}

func (r *pipelineRepository) FindRunByID(id uuid.UUID) (*model.PipelineRun, error) {
	var run model.PipelineRun
	if err := r.db.First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *pipelineRepository) SaveRun(run *model.PipelineRun) error {
	return r.db.Save(run).Error
}

func (r *pipelineRepository) FindRunsByProject(projectID uuid.UUID) ([]model.PipelineRun, error) {
	var runs []model.PipelineRun
	err := r.db.Where("project_id = ?", projectID).
		Order("queued_at DESC").
		Find(&runs).Error
	return runs, err
}
