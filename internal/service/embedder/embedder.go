// Package embedder 封装 Eino Embedder，提供带并发上限的批量向量化
package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"
)

// ErrEmbeddingService 向量化服务不可用
var ErrEmbeddingService = errors.New("embedding service unavailable")

// batchSize 单次请求向量化的文本数上限
const batchSize = 16

// Service 向量化服务
type Service struct {
	embedder    embedding.Embedder
	dimensions  int
	concurrency int
}

// NewService 创建向量化服务
// dimensions 为模型输出维度，用于校验上游返回
func NewService(embedder embedding.Embedder, dimensions, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		embedder:    embedder,
		dimensions:  dimensions,
		concurrency: concurrency,
	}
}

// Dimensions 返回向量维度
func (s *Service) Dimensions() int {
	return s.dimensions
}

// Embed 向量化单条文本
func (s *Service) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrEmbeddingService, len(vectors))
	}
	if err := s.checkDimensions(vectors[0]); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedAll 批量向量化，结果顺序与输入一致
// 按 batchSize 切批并发请求，并发数受 concurrency 限制
// 任一批次失败则整体失败
func (s *Service) EmbedAll(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	vectors := make([][]float64, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			batch, err := s.embedder.EmbedStrings(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("%w: %v", ErrEmbeddingService, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingService, end-start, len(batch))
			}
			for i, vec := range batch {
				if err := s.checkDimensions(vec); err != nil {
					return err
				}
				vectors[start+i] = vec
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *Service) checkDimensions(vec []float64) error {
	if s.dimensions > 0 && len(vec) != s.dimensions {
		return fmt.Errorf("%w: vector dimensions %d, want %d", ErrEmbeddingService, len(vec), s.dimensions)
	}
	return nil
}
