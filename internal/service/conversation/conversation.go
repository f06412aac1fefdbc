// Package conversation 管理会话与消息持久化
// 数据库是权威存储，Redis 只作为最近历史的只读加速层
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ashwinyue/botdesk/internal/model"
)

const (
	// 历史缓存在 Redis 中的过期时间
	historyTTL = 24 * time.Hour
	// Redis key 前缀
	historyKeyPrefix = "history:"
	// 新会话的默认标题
	defaultSessionTitle = "New Chat"
)

// ErrSessionNotFound 会话不存在或不属于调用方
var ErrSessionNotFound = errors.New("session not found")

// ChatRepository 会话数据访问接口
// 接口定义使 Store 可以轻松 mock 进行单元测试
type ChatRepository interface {
	CreateSession(session *model.ChatSession) error
	GetSessionByID(id string) (*model.ChatSession, error)
	ListSessionsByChatbot(chatbotID string, offset, limit int) ([]*model.ChatSession, error)
	TouchSession(id string) error
	DeleteSession(id string) error
	CreateMessage(msg *model.ChatMessage) error
	GetMessagesBySessionID(sessionID string) ([]*model.ChatMessage, error)
	GetRecentMessagesBySession(sessionID string, limit int) ([]*model.ChatMessage, error)
}

// Store 会话存储
type Store struct {
	repo  ChatRepository
	redis *redis.Client
}

// NewStore 创建会话存储
// redisClient 可以为 nil，此时历史读取直接走数据库
func NewStore(repo ChatRepository, redisClient *redis.Client) *Store {
	return &Store{repo: repo, redis: redisClient}
}

// ResolveOrCreateSession 解析或创建会话
// sessionID 为空、不存在或不属于 (userID, chatbotID) 时都创建新会话，
// 保证问答路径永远有可写的会话可用
func (s *Store) ResolveOrCreateSession(ctx context.Context, userID, chatbotID, sessionID string) (*model.ChatSession, error) {
	if sessionID != "" {
		session, err := s.repo.GetSessionByID(sessionID)
		if err == nil && session.UserID == userID && session.ChatbotID == chatbotID {
			return session, nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
	}

	session := &model.ChatSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		ChatbotID: chatbotID,
		Title:     defaultSessionTitle,
	}
	if err := s.repo.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetOwnedSession 严格查找会话，供浏览和删除路径使用
// 不存在或不属于 (userID, chatbotID) 都返回 ErrSessionNotFound
func (s *Store) GetOwnedSession(ctx context.Context, userID, chatbotID, sessionID string) (*model.ChatSession, error) {
	session, err := s.repo.GetSessionByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.UserID != userID || session.ChatbotID != chatbotID {
		// 不泄露会话是否存在
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// AppendMessage 追加消息并同步历史缓存
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content, metadata string) (*model.ChatMessage, error) {
	msg := &model.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	if err := s.repo.CreateMessage(msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if err := s.repo.TouchSession(sessionID); err != nil {
		log.Printf("Warning: failed to touch session %s: %v", sessionID, err)
	}

	s.cacheMessage(ctx, msg)
	return msg, nil
}

// RecentHistory 获取会话最近 limit 条消息，按时间升序
func (s *Store) RecentHistory(ctx context.Context, sessionID string, limit int) ([]*model.ChatMessage, error) {
	if limit <= 0 {
		return []*model.ChatMessage{}, nil
	}

	if cached := s.loadFromRedis(ctx, sessionID, limit); cached != nil {
		return cached, nil
	}

	messages, err := s.repo.GetRecentMessagesBySession(sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	// 仓库返回时间降序，这里反转为对话顺序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Messages 获取会话全部消息
func (s *Store) Messages(ctx context.Context, sessionID string) ([]*model.ChatMessage, error) {
	return s.repo.GetMessagesBySessionID(sessionID)
}

// ListSessions 列出聊天机器人下的会话
func (s *Store) ListSessions(ctx context.Context, chatbotID string, offset, limit int) ([]*model.ChatSession, error) {
	return s.repo.ListSessionsByChatbot(chatbotID, offset, limit)
}

// DeleteSession 删除会话及其缓存
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteSession(sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if s.redis != nil {
		if err := s.redis.Del(ctx, historyKeyPrefix+sessionID).Err(); err != nil {
			log.Printf("Warning: failed to drop history cache for %s: %v", sessionID, err)
		}
	}
	return nil
}

// cachedMessage 历史缓存条目
type cachedMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// cacheMessage 将消息推入 Redis 历史列表
// 缓存失败只记日志，不影响主流程
func (s *Store) cacheMessage(ctx context.Context, msg *model.ChatMessage) {
	if s.redis == nil {
		return
	}

	data, err := json.Marshal(cachedMessage{
		ID:        msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		Metadata:  msg.Metadata,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return
	}

	key := historyKeyPrefix + msg.SessionID
	pipe := s.redis.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, 99)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("Warning: failed to cache message for session %s: %v", msg.SessionID, err)
	}
}

// loadFromRedis 尝试从缓存读取最近历史
// 缓存条目不足 limit 时返回 nil 回退数据库，避免截断早期历史
func (s *Store) loadFromRedis(ctx context.Context, sessionID string, limit int) []*model.ChatMessage {
	if s.redis == nil {
		return nil
	}

	key := historyKeyPrefix + sessionID
	items, err := s.redis.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil || len(items) < limit {
		return nil
	}

	// LPush 使列表头是最新消息，反向遍历得到对话顺序
	messages := make([]*model.ChatMessage, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var cm cachedMessage
		if err := json.Unmarshal([]byte(items[i]), &cm); err != nil {
			return nil
		}
		messages = append(messages, &model.ChatMessage{
			ID:        cm.ID,
			SessionID: sessionID,
			Role:      cm.Role,
			Content:   cm.Content,
			Metadata:  cm.Metadata,
			CreatedAt: cm.CreatedAt,
		})
	}
	return messages
}
