package repository

import (
	"github.com/ashwinyue/botdesk/internal/model"
	"gorm.io/gorm"
)

// ChatRepository 聊天数据访问
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建聊天仓库
func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateSession 创建会话
func (r *ChatRepository) CreateSession(session *model.ChatSession) error {
	return r.db.Create(session).Error
}

// GetSessionByID 获取会话
func (r *ChatRepository) GetSessionByID(id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessionsByChatbot 列出聊天机器人下的会话
func (r *ChatRepository) ListSessionsByChatbot(chatbotID string, offset, limit int) ([]*model.ChatSession, error) {
	var sessions []*model.ChatSession
	err := r.db.Where("chatbot_id = ?", chatbotID).
		Order("updated_at DESC").
		Offset(offset).Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// TouchSession 更新会话的活跃时间
func (r *ChatRepository) TouchSession(id string) error {
	return r.db.Model(&model.ChatSession{}).Where("id = ?", id).Update("updated_at", gorm.Expr("NOW()")).Error
}

// DeleteSession 删除会话及其消息
func (r *ChatRepository) DeleteSession(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.ChatMessage{}, "session_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.ChatSession{}, "id = ?", id).Error
	})
}

// CreateMessage 创建消息
func (r *ChatRepository) CreateMessage(msg *model.ChatMessage) error {
	return r.db.Create(msg).Error
}

// GetMessagesBySessionID 获取会话全部消息，按时间升序
func (r *ChatRepository) GetMessagesBySessionID(sessionID string) ([]*model.ChatMessage, error) {
	var messages []*model.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&messages).Error
	return messages, err
}

// GetRecentMessagesBySession 获取会话最近的 N 条消息，按时间降序
func (r *ChatRepository) GetRecentMessagesBySession(sessionID string, limit int) ([]*model.ChatMessage, error) {
	var messages []*model.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
