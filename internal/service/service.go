package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/embedding/dashscope"
	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/botdesk/internal/config"
	"github.com/ashwinyue/botdesk/internal/repository"
	"github.com/ashwinyue/botdesk/internal/service/auth"
	"github.com/ashwinyue/botdesk/internal/service/chatbot"
	"github.com/ashwinyue/botdesk/internal/service/chunker"
	"github.com/ashwinyue/botdesk/internal/service/conversation"
	"github.com/ashwinyue/botdesk/internal/service/embedder"
	"github.com/ashwinyue/botdesk/internal/service/extract"
	"github.com/ashwinyue/botdesk/internal/service/rag"
	"github.com/ashwinyue/botdesk/internal/service/vectorstore"
)

// Services 服务集合
type Services struct {
	Auth         *auth.Service
	Chatbot      *chatbot.Service
	Conversation *conversation.Store
	RAG          *rag.Orchestrator

	Config *config.Config
}

// NewServices 创建所有服务
// 依赖显式注入，外部组件初始化失败直接报错而不是降级运行
func NewServices(repos *repository.Repositories, cfg *config.Config, redisClient *redis.Client) (*Services, error) {
	ctx := context.Background()

	chatModel, err := newChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	einoEmbedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	embedSvc := embedder.NewService(einoEmbedder, cfg.AI.Embedding.Dimensions, cfg.RAG.EmbedConcurrency)

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Elastic.Host},
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create es client: %w", err)
	}
	index := vectorstore.NewESIndex(esClient, cfg.AI.Embedding.Dimensions)

	extractor, err := extract.NewPDFExtractor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf extractor: %w", err)
	}

	ck, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	convo := conversation.NewStore(repos.Chat, redisClient)

	orchestrator := rag.NewOrchestrator(
		repos.Chatbot,
		convo,
		embedSvc,
		index,
		chatModel,
		extractor,
		ck,
		rag.Options{
			TopK:         cfg.RAG.TopK,
			PublicTopK:   cfg.RAG.PublicTopK,
			HistoryLimit: cfg.RAG.HistoryLimit,
			Persona:      cfg.RAG.Persona,
		},
	)

	return &Services{
		Auth:         auth.NewService(repos.User, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour),
		Chatbot:      chatbot.NewService(repos.Chatbot, index),
		Conversation: convo,
		RAG:          orchestrator,
		Config:       cfg,
	}, nil
}

// newChatModel 创建 ChatModel
func newChatModel(ctx context.Context, cfg *config.Config) (einomodel.BaseChatModel, error) {
	aiCfg := cfg.AI

	var apiKey, baseURL, modelName string

	switch aiCfg.Provider {
	case "openai":
		apiKey = aiCfg.OpenAI.APIKey
		baseURL = aiCfg.OpenAI.BaseURL
		modelName = aiCfg.OpenAI.Model
	case "deepseek":
		apiKey = aiCfg.DeepSeek.APIKey
		baseURL = aiCfg.DeepSeek.BaseURL
		modelName = aiCfg.DeepSeek.Model
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", aiCfg.Provider)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: %s", aiCfg.Provider)
	}
	if modelName == "" {
		modelName = "gpt-4o"
	}

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   modelName,
	})
}

// newEmbedder 创建 Embedding 器
func newEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	embCfg := cfg.AI.Embedding

	if embCfg.APIKey == "" {
		return nil, fmt.Errorf("embedding api_key is required")
	}

	switch embCfg.Provider {
	case "openai", "":
		model := embCfg.Model
		if model == "" {
			model = "text-embedding-ada-002"
		}
		conf := &openaiembed.EmbeddingConfig{
			APIKey:  embCfg.APIKey,
			BaseURL: embCfg.BaseURL,
			Model:   model,
		}
		if embCfg.Timeout > 0 {
			conf.Timeout = time.Duration(embCfg.Timeout) * time.Second
		}
		return openaiembed.NewEmbedder(ctx, conf)
	case "alibaba", "qwen", "dashscope":
		model := embCfg.Model
		if model == "" {
			model = "text-embedding-v3"
		}
		conf := &dashscope.EmbeddingConfig{
			APIKey: embCfg.APIKey,
			Model:  model,
		}
		if embCfg.Timeout > 0 {
			conf.Timeout = time.Duration(embCfg.Timeout) * time.Second
		}
		if embCfg.Dimensions > 0 {
			conf.Dimensions = &embCfg.Dimensions
		}
		return dashscope.NewEmbedder(ctx, conf)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", embCfg.Provider)
	}
}
