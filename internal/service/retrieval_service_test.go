package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"piperag-go/internal/model"
	"piperag-go/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2}, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := e.Embed(ctx, texts[i], model)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// stubSearcher 持有带分数的候选，按阈值过滤后返回，模拟索引行为。
type stubSearcher struct {
	candidates []model.SourceReference
	err        error
}

func (s *stubSearcher) SearchSimilar(ctx context.Context, projectID uuid.UUID, vector []float32, topK int, scoreThreshold float64) ([]model.SourceReference, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.SourceReference
	for _, c := range s.candidates {
		if c.Score >= scoreThreshold && len(out) < topK {
			out = append(out, c)
		}
	}
	return out, nil
}

// stubKeywordRepo 只实现关键词检索，其余方法不会被调用。
type stubKeywordRepo struct {
	repository.ChunkRepository
	hits []repository.KeywordHit
}

func (r *stubKeywordRepo) SearchByKeyword(projectID uuid.UUID, keyword string, limit int) ([]repository.KeywordHit, error) {
	if limit > len(r.hits) {
		limit = len(r.hits)
	}
	return r.hits[:limit], nil
}

func TestRetrieveScoreThresholdFiltering(t *testing.T) {
	docID := uuid.New()
	searcher := &stubSearcher{candidates: []model.SourceReference{
		{DocumentID: docID, DocumentName: "a.pdf", ChunkContent: "relevant text", Score: 0.6},
	}}
	svc := NewRetrievalService(&stubEmbedder{}, searcher, &stubKeywordRepo{})

	// 阈值高于最佳相似度时结果为空
	sources := svc.Retrieve(context.Background(), uuid.New(), "query", "text-embedding-3-small", StrategySimilarity, 5, 0.9)
	assert.Empty(t, sources)

	// 降低阈值后命中
	sources = svc.Retrieve(context.Background(), uuid.New(), "query", "text-embedding-3-small", StrategySimilarity, 5, 0.5)
	require.Len(t, sources, 1)
	assert.InDelta(t, 0.6, sources[0].Score, 1e-9)
}

func TestRetrieveDegradesOnIndexFailure(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("index unavailable")}
	svc := NewRetrievalService(&stubEmbedder{}, searcher, &stubKeywordRepo{})

	sources := svc.Retrieve(context.Background(), uuid.New(), "query", "text-embedding-3-small", StrategySimilarity, 5, 0.7)
	assert.Empty(t, sources)
}

func TestRetrieveDegradesOnEmbeddingFailure(t *testing.T) {
	svc := NewRetrievalService(&stubEmbedder{err: errors.New("provider down")}, &stubSearcher{}, &stubKeywordRepo{})

	sources := svc.Retrieve(context.Background(), uuid.New(), "query", "text-embedding-3-small", StrategySimilarity, 5, 0.7)
	assert.Empty(t, sources)
}

func TestRetrieveHybridSupplementsWithKeywordMatches(t *testing.T) {
	docID := uuid.New()
	vectorHit := model.SourceReference{DocumentID: docID, DocumentName: "a.pdf", ChunkContent: "vector match", Score: 0.8}
	searcher := &stubSearcher{candidates: []model.SourceReference{vectorHit}}

	keywordRepo := &stubKeywordRepo{hits: []repository.KeywordHit{
		// 与向量命中重复，应被去重
		{DocumentID: docID, FileName: "a.pdf", Content: "vector match"},
		{DocumentID: docID, FileName: "a.pdf", Content: "keyword only match"},
	}}
	svc := NewRetrievalService(&stubEmbedder{}, searcher, keywordRepo)

	sources := svc.Retrieve(context.Background(), uuid.New(), "match", "text-embedding-3-small", StrategyHybrid, 3, 0.7)
	require.Len(t, sources, 2)
	assert.Equal(t, "vector match", sources[0].ChunkContent)
	assert.InDelta(t, 0.8, sources[0].Score, 1e-9)
	assert.Equal(t, "keyword only match", sources[1].ChunkContent)
	assert.InDelta(t, 0.5, sources[1].Score, 1e-9)
}

func TestRetrieveSimilarityStrategySkipsKeywordFallback(t *testing.T) {
	keywordRepo := &stubKeywordRepo{hits: []repository.KeywordHit{
		{DocumentID: uuid.New(), FileName: "a.pdf", Content: strings.Repeat("x", 10)},
	}}
	svc := NewRetrievalService(&stubEmbedder{}, &stubSearcher{}, keywordRepo)

	sources := svc.Retrieve(context.Background(), uuid.New(), "query", "text-embedding-3-small", StrategySimilarity, 5, 0.7)
	assert.Empty(t, sources)
}
