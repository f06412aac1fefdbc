// Package rag 实现检索增强的问答编排
// 管线：租户校验 -> 会话解析 -> 历史读取 -> 向量检索 -> 提示词组装 -> 生成 -> 落库
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"gorm.io/gorm"

	"github.com/ashwinyue/botdesk/internal/model"
	"github.com/ashwinyue/botdesk/internal/service/chunker"
	"github.com/ashwinyue/botdesk/internal/service/types"
	"github.com/ashwinyue/botdesk/internal/service/vectorstore"
)

// ErrCompletionService 生成服务不可用
var ErrCompletionService = errors.New("completion service unavailable")

// ChatModel 生成模型接口
// eino 的 ChatModel 实现满足该接口，测试时可直接 mock
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error)
}

// Embedder 向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedAll(ctx context.Context, texts []string) ([][]float64, error)
}

// ChatbotRepository 聊天机器人查询接口
type ChatbotRepository interface {
	GetChatbotByID(id string) (*model.Chatbot, error)
	GetChatbotByIDAndUser(id, userID string) (*model.Chatbot, error)
}

// ConversationStore 会话存储接口
type ConversationStore interface {
	ResolveOrCreateSession(ctx context.Context, userID, chatbotID, sessionID string) (*model.ChatSession, error)
	AppendMessage(ctx context.Context, sessionID, role, content, metadata string) (*model.ChatMessage, error)
	RecentHistory(ctx context.Context, sessionID string, limit int) ([]*model.ChatMessage, error)
}

// Extractor 文档正文提取接口
type Extractor interface {
	Text(ctx context.Context, data []byte) (string, error)
}

// Options 编排参数
type Options struct {
	TopK         int
	PublicTopK   int
	HistoryLimit int
	Persona      string
}

// Orchestrator RAG 编排器
type Orchestrator struct {
	bots      ChatbotRepository
	convo     ConversationStore
	embedder  Embedder
	index     vectorstore.Index
	chatModel ChatModel
	extractor Extractor
	chunker   *chunker.Chunker
	opts      Options
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	bots ChatbotRepository,
	convo ConversationStore,
	embedder Embedder,
	index vectorstore.Index,
	chatModel ChatModel,
	extractor Extractor,
	ck *chunker.Chunker,
	opts Options,
) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.PublicTopK <= 0 {
		opts.PublicTopK = 5
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	if opts.Persona == "" {
		opts.Persona = "You are a helpful customer support chatbot."
	}
	return &Orchestrator{
		bots:      bots,
		convo:     convo,
		embedder:  embedder,
		index:     index,
		chatModel: chatModel,
		extractor: extractor,
		chunker:   ck,
		opts:      opts,
	}
}

// QueryRequest 私有问答请求
type QueryRequest struct {
	UserID    string
	ChatbotID string
	SessionID string // 为空时创建新会话
	Message   string
}

// QueryResult 问答结果
type QueryResult struct {
	Response  string                 `json:"response"`
	Context   []types.RetrievedChunk `json:"context"`
	SessionID string                 `json:"session_id"`
}

// Query 私有问答
// 历史在记录本轮用户消息之前读取，保证提示词中不出现重复的当前提问
func (o *Orchestrator) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	bot, err := o.bots.GetChatbotByIDAndUser(req.ChatbotID, req.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrChatbotNotFound
		}
		return nil, fmt.Errorf("failed to load chatbot: %w", err)
	}

	session, err := o.convo.ResolveOrCreateSession(ctx, req.UserID, bot.ID, req.SessionID)
	if err != nil {
		return nil, err
	}

	history, err := o.convo.RecentHistory(ctx, session.ID, o.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}

	if _, err := o.convo.AppendMessage(ctx, session.ID, "user", req.Message, ""); err != nil {
		return nil, err
	}

	retrieved, err := o.retrieve(ctx, bot, req.Message, o.opts.TopK)
	if err != nil {
		return nil, err
	}

	messages := o.buildPrompt(history, req.Message, retrieved)
	resp, err := o.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletionService, err)
	}

	metadata := assistantMetadata(retrieved)
	if _, err := o.convo.AppendMessage(ctx, session.ID, "assistant", resp.Content, metadata); err != nil {
		return nil, err
	}

	return &QueryResult{
		Response:  resp.Content,
		Context:   retrieved,
		SessionID: session.ID,
	}, nil
}

// PublicQueryRequest 公开 widget 问答请求
type PublicQueryRequest struct {
	ChatbotID string
	APIKey    string
	Message   string
}

// PublicQueryResult 公开问答结果
type PublicQueryResult struct {
	Response string                 `json:"response"`
	Context  []types.RetrievedChunk `json:"context"`
}

// PublicQuery 公开 widget 问答，无会话无持久化
// 校验顺序：机器人存在性 -> widget 开关 -> API key 匹配
func (o *Orchestrator) PublicQuery(ctx context.Context, req *PublicQueryRequest) (*PublicQueryResult, error) {
	bot, err := o.bots.GetChatbotByID(req.ChatbotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrChatbotNotFound
		}
		return nil, fmt.Errorf("failed to load chatbot: %w", err)
	}

	if !bot.WidgetEnabled || bot.APIKey == "" {
		return nil, types.ErrWidgetNotEnabled
	}
	if req.APIKey == "" || req.APIKey != bot.APIKey {
		return nil, types.ErrInvalidAPIKey
	}

	retrieved, err := o.retrieve(ctx, bot, req.Message, o.opts.PublicTopK)
	if err != nil {
		return nil, err
	}

	messages := o.buildPrompt(nil, req.Message, retrieved)
	resp, err := o.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletionService, err)
	}

	return &PublicQueryResult{
		Response: resp.Content,
		Context:  retrieved,
	}, nil
}

// IngestRequest 文档入库请求
type IngestRequest struct {
	UserID    string
	ChatbotID string
	Filename  string
	Data      []byte
	Replace   bool // 替换模式：清空集合后重建
}

// IngestResult 入库结果
type IngestResult struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Replaced bool   `json:"replaced"`
}

// Ingest 解析文档并写入租户向量集合
// 替换模式下先完成全部向量化再清空旧集合，向量化失败不破坏现有数据
func (o *Orchestrator) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	bot, err := o.bots.GetChatbotByIDAndUser(req.ChatbotID, req.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrChatbotNotFound
		}
		return nil, fmt.Errorf("failed to load chatbot: %w", err)
	}

	text, err := o.extractor.Text(ctx, req.Data)
	if err != nil {
		return nil, err
	}

	chunks := o.chunker.Split(text)
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := o.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	key := vectorstore.TenantKey{UserID: req.UserID, ChatbotID: bot.ID}

	if req.Replace {
		if err := o.index.DropCollection(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	if err := o.index.EnsureCollection(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	entries := make([]vectorstore.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = vectorstore.Entry{
			ID:     fmt.Sprintf("%s-%d", req.Filename, chunk.Index),
			Text:   chunk.Text,
			Vector: vectors[i],
			Metadata: map[string]interface{}{
				"filename":    req.Filename,
				"chunk_index": chunk.Index,
			},
		}
	}
	if err := o.index.Upsert(ctx, key, entries); err != nil {
		return nil, fmt.Errorf("failed to upsert chunks: %w", err)
	}

	return &IngestResult{
		Filename: req.Filename,
		Chunks:   len(chunks),
		Replaced: req.Replace,
	}, nil
}

// retrieve 在租户集合内检索上下文
// 集合不存在视为空知识库，返回空上下文而非错误
func (o *Orchestrator) retrieve(ctx context.Context, bot *model.Chatbot, query string, topK int) ([]types.RetrievedChunk, error) {
	vec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	key := vectorstore.TenantKey{UserID: bot.UserID, ChatbotID: bot.ID}
	results, err := o.index.Query(ctx, key, vec, topK)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return []types.RetrievedChunk{}, nil
		}
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	chunks := make([]types.RetrievedChunk, len(results))
	for i, r := range results {
		chunks[i] = types.RetrievedChunk{
			ID:      r.ID,
			Content: r.Text,
			Score:   r.Score,
		}
	}
	return chunks, nil
}

// buildPrompt 组装提示词
// 顺序：人设 -> 历史对话 -> 当前提问 -> 检索上下文
func (o *Orchestrator) buildPrompt(history []*model.ChatMessage, query string, retrieved []types.RetrievedChunk) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+3)
	messages = append(messages, schema.SystemMessage(o.opts.Persona))

	for _, msg := range history {
		switch msg.Role {
		case "assistant":
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		default:
			messages = append(messages, schema.UserMessage(msg.Content))
		}
	}

	messages = append(messages, schema.UserMessage(query))

	if len(retrieved) > 0 {
		var contextText string
		for i, chunk := range retrieved {
			if i > 0 {
				contextText += "\n\n"
			}
			contextText += chunk.Content
		}
		messages = append(messages, schema.SystemMessage("Context: "+contextText))
	}
	return messages
}

// assistantMetadata 序列化助手消息的检索上下文
func assistantMetadata(retrieved []types.RetrievedChunk) string {
	if len(retrieved) == 0 {
		return ""
	}
	data, err := json.Marshal(map[string]interface{}{"context": retrieved})
	if err != nil {
		return ""
	}
	return string(data)
}
