// Package chunker 提供固定窗口文本分块
// 滑动窗口按 rune 切分，步长 = size - overlap，保证可检索内容无缝覆盖全文
package chunker

import "fmt"

// Chunk 文本分块
type Chunk struct {
	Index  int    `json:"index"`  // 分块序号，从 0 开始
	Text   string `json:"text"`   // 分块内容
	Offset int    `json:"offset"` // 在原文中的 rune 偏移
}

// Chunker 固定窗口分块器
type Chunker struct {
	size    int
	overlap int
}

// New 创建分块器
// size 必须为正数，overlap 必须满足 0 <= overlap < size
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got %d", overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split 将文本切分为分块
// 空文本返回空切片；最后一个分块可能短于 size
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return []Chunk{}
	}

	step := c.size - c.overlap
	chunks := make([]Chunk, 0, (len(runes)+step-1)/step)
	for offset, index := 0, 0; offset < len(runes); offset, index = offset+step, index+1 {
		end := offset + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Index:  index,
			Text:   string(runes[offset:end]),
			Offset: offset,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Count 计算文本的分块数，不实际切分
func (c *Chunker) Count(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	if n <= c.size {
		return 1
	}
	step := c.size - c.overlap
	return 1 + (n-c.size+step-1)/step
}
