package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ESIndex Elasticsearch 向量索引
type ESIndex struct {
	client     *elasticsearch.Client
	dimensions int
}

var _ Index = (*ESIndex)(nil)

// NewESIndex 创建 Elasticsearch 向量索引
func NewESIndex(client *elasticsearch.Client, dimensions int) *ESIndex {
	return &ESIndex{client: client, dimensions: dimensions}
}

// EnsureCollection 确保租户索引存在
func (e *ESIndex) EnsureCollection(ctx context.Context, key TenantKey) error {
	indexName := key.CollectionName()

	res, err := e.client.Indices.Exists([]string{indexName},
		e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"content": map[string]interface{}{
					"type": "text",
				},
				"content_vector": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       e.dimensions,
					"index":      true,
					"similarity": "cosine",
				},
				"user_id": map[string]interface{}{
					"type": "keyword",
				},
				"chatbot_id": map[string]interface{}{
					"type": "keyword",
				},
			},
		},
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
	}

	mappingData, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	req := esapi.IndicesCreateRequest{
		Index: indexName,
		Body:  bytes.NewReader(mappingData),
	}

	res, err = req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index %s: %s", indexName, res.String())
	}
	return nil
}

// Upsert 批量写入条目
// 通过 Bulk API 按 ID 覆盖写入，任一条目失败则整体报错
func (e *ESIndex) Upsert(ctx context.Context, key TenantKey, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	body, err := buildBulkBody(key, entries)
	if err != nil {
		return err
	}

	res, err := e.client.Bulk(bytes.NewReader(body),
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithIndex(key.CollectionName()),
		e.client.Bulk.WithRefresh("true"))
	if err != nil {
		return fmt.Errorf("failed to execute bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk request failed: %s", res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Error *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, op := range item {
				if op.Error != nil {
					return fmt.Errorf("bulk item failed: %s", op.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk request reported item errors")
	}
	return nil
}

// Query 余弦相似度检索
func (e *ESIndex) Query(ctx context.Context, key TenantKey, vector []float64, topK int) ([]Result, error) {
	queryJSON, err := buildKNNQuery(key, vector, topK)
	if err != nil {
		return nil, err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(key.CollectionName()),
		e.client.Search.WithBody(bytes.NewReader(queryJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrCollectionNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	return parseSearchResults(res.Body)
}

// DropCollection 删除租户索引
func (e *ESIndex) DropCollection(ctx context.Context, key TenantKey) error {
	res, err := e.client.Indices.Delete([]string{key.CollectionName()},
		e.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	defer res.Body.Close()

	// 索引不存在时删除视为成功
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("failed to delete index %s: %s", key.CollectionName(), res.String())
	}
	return nil
}

// buildBulkBody 构造 Bulk NDJSON 请求体
func buildBulkBody(key TenantKey, entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	for _, entry := range entries {
		meta := map[string]interface{}{
			"index": map[string]interface{}{
				"_id": entry.ID,
			},
		}
		metaLine, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal bulk action: %w", err)
		}

		doc := map[string]interface{}{
			"content":        entry.Text,
			"content_vector": entry.Vector,
			"user_id":        key.UserID,
			"chatbot_id":     key.ChatbotID,
		}
		for k, v := range entry.Metadata {
			doc[k] = v
		}
		docLine, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal bulk document: %w", err)
		}

		buf.Write(metaLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// buildKNNQuery 构造 script_score 余弦检索查询
func buildKNNQuery(key TenantKey, vector []float64, topK int) ([]byte, error) {
	query := map[string]interface{}{
		"size": topK,
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query": map[string]interface{}{
					"bool": map[string]interface{}{
						"filter": []interface{}{
							map[string]interface{}{
								"term": map[string]interface{}{
									"chatbot_id": key.ChatbotID,
								},
							},
						},
					},
				},
				"script": map[string]interface{}{
					"source": "cosineSimilarity(params.query_vector, 'content_vector') + 1.0",
					"params": map[string]interface{}{
						"query_vector": vector,
					},
				},
			},
		},
	}

	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}
	return data, nil
}

// parseSearchResults 解析 ES 搜索响应
func parseSearchResults(body io.Reader) ([]Result, error) {
	var response struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					Content string `json:"content"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]Result, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		results = append(results, Result{
			ID:    hit.ID,
			Text:  hit.Source.Content,
			Score: hit.Score,
		})
	}
	return results, nil
}
