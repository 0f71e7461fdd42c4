// Package es 提供了与 Elasticsearch 向量索引交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"piperag-go/internal/config"
	"piperag-go/internal/model"
	"piperag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
)

var ESClient *elasticsearch.Client

// ChunkDocument 是存储在 Elasticsearch 中的分块文档结构。
type ChunkDocument struct {
	ChunkID      uuid.UUID `json:"chunk_id"`
	DocumentID   uuid.UUID `json:"document_id"`
	DocumentName string    `json:"document_name"`
	ProjectID    uuid.UUID `json:"project_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 向量维度与 text-embedding-3-small 对齐（1536），相似度为 cosine
	mapping := `{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"document_name": { "type": "keyword" },
				"project_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": 1536,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// Store 按索引名封装分块的写入、检索和删除操作。
type Store struct {
	indexName string
}

// NewStore 创建一个新的 Store 实例。
func NewStore(indexName string) *Store {
	return &Store{indexName: indexName}
}

// IndexChunk 将单个分块文档索引到 Elasticsearch。
func (s *Store) IndexChunk(ctx context.Context, doc ChunkDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      s.indexName,
		DocumentID: doc.ChunkID.String(),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引分块到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index chunk")
	}

	return nil
}

// SearchSimilar 在项目范围内执行余弦相似度检索。
// script_score 不允许负分，因此查询使用 cosineSimilarity + 1.0，
// 返回前再减去 1.0，保证对外的分数等于 1 - cosineDistance。
func (s *Store) SearchSimilar(ctx context.Context, projectID uuid.UUID, vector []float32, topK int, scoreThreshold float64) ([]model.SourceReference, error) {
	esQuery := map[string]interface{}{
		"size":      topK,
		"min_score": scoreThreshold + 1.0,
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query": map[string]interface{}{
					"term": map[string]interface{}{
						"project_id": projectID.String(),
					},
				},
				"script": map[string]interface{}{
					"source": "cosineSimilarity(params.query_vector, 'vector') + 1.0",
					"params": map[string]interface{}{
						"query_vector": vector,
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(s.indexName),
		ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source ChunkDocument `json:"_source"`
				Score  float64       `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.SourceReference, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.SourceReference{
			DocumentID:   hit.Source.DocumentID,
			DocumentName: hit.Source.DocumentName,
			ChunkContent: hit.Source.Content,
			Score:        hit.Score - 1.0,
		})
	}
	return results, nil
}

// DeleteByDocument 删除某文档的所有分块索引。
func (s *Store) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	query := fmt.Sprintf(`{"query":{"term":{"document_id":"%s"}}}`, documentID)
	res, err := ESClient.DeleteByQuery(
		[]string{s.indexName},
		strings.NewReader(query),
		ESClient.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("delete by query failed: %s", res.String())
	}
	return nil
}
