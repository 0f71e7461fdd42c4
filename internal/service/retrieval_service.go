package service

import (
	"context"

	"piperag-go/internal/model"
	"piperag-go/internal/repository"
	"piperag-go/pkg/embedding"
	"piperag-go/pkg/log"

	"github.com/google/uuid"
)

// 检索策略
const (
	StrategySimilarity = "similarity"
	StrategyHybrid     = "hybrid"
)

// keywordMatchScore 是关键词兜底命中的固定分数。
const keywordMatchScore = 0.5

// SimilaritySearcher 是相似度索引的检索入口。
type SimilaritySearcher interface {
	SearchSimilar(ctx context.Context, projectID uuid.UUID, vector []float32, topK int, scoreThreshold float64) ([]model.SourceReference, error)
}

// RetrievalService 定义了检索引擎的业务接口。
// 检索失败永远不会中断对话轮次，索引不可用时降级为空结果。
type RetrievalService interface {
	Retrieve(ctx context.Context, projectID uuid.UUID, queryText, embeddingModel, strategy string, topK int, scoreThreshold float64) []model.SourceReference
}

type retrievalService struct {
	embedder  embedding.Provider
	searcher  SimilaritySearcher
	chunkRepo repository.ChunkRepository
}

// NewRetrievalService 创建检索服务。
func NewRetrievalService(embedder embedding.Provider, searcher SimilaritySearcher, chunkRepo repository.ChunkRepository) RetrievalService {
	return &retrievalService{
		embedder:  embedder,
		searcher:  searcher,
		chunkRepo: chunkRepo,
	}
}

// Retrieve 先做向量相似度检索（score = 1 - cosineDistance，按阈值过滤、
// 降序截断到 topK）；hybrid 策略下结果不足 topK 时用关键词匹配补足。
func (s *retrievalService) Retrieve(ctx context.Context, projectID uuid.UUID, queryText, embeddingModel, strategy string, topK int, scoreThreshold float64) []model.SourceReference {
	var sources []model.SourceReference

	vector, err := s.embedder.Embed(ctx, queryText, embeddingModel)
	if err != nil {
		log.Warnf("[Retrieval] 查询向量化失败，降级为空结果: %v", err)
	} else {
		sources, err = s.searcher.SearchSimilar(ctx, projectID, vector, topK, scoreThreshold)
		if err != nil {
			log.Warnf("[Retrieval] 相似度检索失败，降级为空结果: %v", err)
			sources = nil
		}
	}

	if strategy == StrategyHybrid && len(sources) < topK {
		sources = s.supplementWithKeyword(projectID, queryText, topK, sources)
	}

	log.Infof("[Retrieval] 检索完成, projectID: %s, 命中: %d", projectID, len(sources))
	return sources
}

// supplementWithKeyword 用子串匹配补足结果，按 (documentID, content) 去重，
// 固定分数 0.5，直到凑满 topK 或候选耗尽。
func (s *retrievalService) supplementWithKeyword(projectID uuid.UUID, queryText string, topK int, sources []model.SourceReference) []model.SourceReference {
	hits, err := s.chunkRepo.SearchByKeyword(projectID, queryText, topK-len(sources))
	if err != nil {
		log.Warnf("[Retrieval] 关键词检索失败: %v", err)
		return sources
	}

	for _, hit := range hits {
		if len(sources) >= topK {
			break
		}
		duplicate := false
		for _, existing := range sources {
			if existing.DocumentID == hit.DocumentID && existing.ChunkContent == hit.Content {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		sources = append(sources, model.SourceReference{
			DocumentID:   hit.DocumentID,
			DocumentName: hit.FileName,
			ChunkContent: hit.Content,
			Score:        keywordMatchScore,
		})
	}
	return sources
}
