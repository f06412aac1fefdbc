package repository

import (
	"github.com/ashwinyue/botdesk/internal/model"
	"gorm.io/gorm"
)

// ChatbotRepository 聊天机器人数据访问
type ChatbotRepository struct {
	db *gorm.DB
}

// NewChatbotRepository 创建聊天机器人仓库
func NewChatbotRepository(db *gorm.DB) *ChatbotRepository {
	return &ChatbotRepository{db: db}
}

// CreateChatbot 创建聊天机器人
func (r *ChatbotRepository) CreateChatbot(bot *model.Chatbot) error {
	return r.db.Create(bot).Error
}

// GetChatbotByID 获取聊天机器人
func (r *ChatbotRepository) GetChatbotByID(id string) (*model.Chatbot, error) {
	var bot model.Chatbot
	err := r.db.Where("id = ?", id).First(&bot).Error
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

// GetChatbotByIDAndUser 获取指定用户名下的聊天机器人
// 租户隔离的唯一入口，所有私有操作都必须经过它
func (r *ChatbotRepository) GetChatbotByIDAndUser(id, userID string) (*model.Chatbot, error) {
	var bot model.Chatbot
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&bot).Error
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

// ListChatbots 列出用户的聊天机器人
func (r *ChatbotRepository) ListChatbots(userID string, offset, limit int) ([]*model.Chatbot, error) {
	var bots []*model.Chatbot
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&bots).Error
	return bots, err
}

// UpdateChatbot 更新聊天机器人
func (r *ChatbotRepository) UpdateChatbot(bot *model.Chatbot) error {
	return r.db.Save(bot).Error
}

// DeleteChatbot 删除聊天机器人及其关联数据
func (r *ChatbotRepository) DeleteChatbot(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.ChatbotDomain{}, "chatbot_id = ?", id).Error; err != nil {
			return err
		}
		var sessionIDs []string
		if err := tx.Model(&model.ChatSession{}).Where("chatbot_id = ?", id).Pluck("id", &sessionIDs).Error; err != nil {
			return err
		}
		if len(sessionIDs) > 0 {
			if err := tx.Delete(&model.ChatMessage{}, "session_id IN ?", sessionIDs).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&model.ChatSession{}, "chatbot_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Chatbot{}, "id = ?", id).Error
	})
}

// AddDomain 添加 widget 域名
func (r *ChatbotRepository) AddDomain(domain *model.ChatbotDomain) error {
	return r.db.Create(domain).Error
}

// ListDomains 列出聊天机器人的 widget 域名
func (r *ChatbotRepository) ListDomains(chatbotID string) ([]*model.ChatbotDomain, error) {
	var domains []*model.ChatbotDomain
	err := r.db.Where("chatbot_id = ?", chatbotID).Order("created_at ASC").Find(&domains).Error
	return domains, err
}

// DeleteDomain 删除 widget 域名
func (r *ChatbotRepository) DeleteDomain(chatbotID, domainID string) error {
	return r.db.Delete(&model.ChatbotDomain{}, "id = ? AND chatbot_id = ?", domainID, chatbotID).Error
}
