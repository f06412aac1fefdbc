package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Elastic  ElasticConfig
	AI       AIConfig
	RAG      RAGConfig
	Upload   UploadConfig
	Auth     AuthConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string
	Environment string
	Version     string
	Debug       bool
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ElasticConfig Elasticsearch配置
type ElasticConfig struct {
	Host     string
	Username string
	Password string
}

// AIConfig AI配置
type AIConfig struct {
	Provider  string
	OpenAI    OpenAIConfig
	DeepSeek  DeepSeekConfig
	Embedding EmbeddingConfig
}

// OpenAIConfig OpenAI配置
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// DeepSeekConfig DeepSeek配置
type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// EmbeddingConfig Embedding配置
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    int
	Dimensions int
}

// RAGConfig 检索增强管线配置
type RAGConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	PublicTopK       int
	HistoryLimit     int
	EmbedConcurrency int
	Persona          string
}

// UploadConfig 文档上传配置
type UploadConfig struct {
	MaxSizeBytes int64
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret     string
	TokenTTLHours int
}

// Load 加载配置
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	setDefaults(v)

	// 环境变量
	v.SetEnvPrefix("BOTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验启动期必须成立的配置约束
// Embedding 维度同时决定向量索引 mapping，必须在启动时确定
func (c *Config) Validate() error {
	if c.AI.Embedding.Dimensions <= 0 {
		return fmt.Errorf("ai.embedding.dimensions must be positive, got %d", c.AI.Embedding.Dimensions)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunkSize must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunkOverlap must satisfy 0 <= overlap < chunkSize, got %d", c.RAG.ChunkOverlap)
	}
	return nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "botdesk")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", true)

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "botdesk")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Elastic
	v.SetDefault("elastic.host", "http://localhost:9200")

	// AI
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4o")
	v.SetDefault("ai.embedding.provider", "openai")
	v.SetDefault("ai.embedding.model", "text-embedding-ada-002")
	v.SetDefault("ai.embedding.dimensions", 1536)

	// RAG
	v.SetDefault("rag.chunkSize", 500)
	v.SetDefault("rag.chunkOverlap", 100)
	v.SetDefault("rag.topK", 3)
	v.SetDefault("rag.publicTopK", 5)
	v.SetDefault("rag.historyLimit", 10)
	v.SetDefault("rag.embedConcurrency", 4)
	v.SetDefault("rag.persona", "You are a helpful customer support chatbot.")

	// Upload
	v.SetDefault("upload.maxSizeBytes", 5*1024*1024)

	// Auth
	v.SetDefault("auth.tokenTTLHours", 24)
}
