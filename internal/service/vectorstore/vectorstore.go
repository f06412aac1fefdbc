// Package vectorstore 提供按租户隔离的向量索引
// 每个聊天机器人独占一个 Elasticsearch 索引，写入和检索都以 TenantKey 定位
package vectorstore

import (
	"context"
	"errors"
)

// ErrCollectionNotFound 目标集合不存在
var ErrCollectionNotFound = errors.New("collection not found")

// TenantKey 租户定位键
// 集合命名只由 ChatbotID 派生，UserID 随写入存入元数据用于审计
type TenantKey struct {
	UserID    string
	ChatbotID string
}

// CollectionName 返回租户的集合名
func (k TenantKey) CollectionName() string {
	return "chatbot_" + k.ChatbotID
}

// Entry 待写入的向量条目
type Entry struct {
	ID       string
	Text     string
	Vector   []float64
	Metadata map[string]interface{}
}

// Result 检索命中
type Result struct {
	ID    string
	Text  string
	Score float64
}

// Index 向量索引接口
type Index interface {
	// EnsureCollection 确保租户集合存在，不存在则创建
	EnsureCollection(ctx context.Context, key TenantKey) error
	// Upsert 批量写入条目，按 ID 幂等覆盖
	Upsert(ctx context.Context, key TenantKey, entries []Entry) error
	// Query 在租户集合内做 KNN 检索，返回按相似度降序的前 topK 条
	// 集合不存在时返回 ErrCollectionNotFound
	Query(ctx context.Context, key TenantKey, vector []float64, topK int) ([]Result, error)
	// DropCollection 删除租户集合，不存在视为成功
	DropCollection(ctx context.Context, key TenantKey) error
}
