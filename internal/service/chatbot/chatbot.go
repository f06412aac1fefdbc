// Package chatbot 管理聊天机器人的生命周期与 widget 设置
package chatbot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ashwinyue/botdesk/internal/model"
	"github.com/ashwinyue/botdesk/internal/service/types"
	"github.com/ashwinyue/botdesk/internal/service/vectorstore"
)

// Repository 聊天机器人数据访问接口
type Repository interface {
	CreateChatbot(bot *model.Chatbot) error
	GetChatbotByIDAndUser(id, userID string) (*model.Chatbot, error)
	ListChatbots(userID string, offset, limit int) ([]*model.Chatbot, error)
	UpdateChatbot(bot *model.Chatbot) error
	DeleteChatbot(id string) error
	AddDomain(domain *model.ChatbotDomain) error
	ListDomains(chatbotID string) ([]*model.ChatbotDomain, error)
	DeleteDomain(chatbotID, domainID string) error
}

// Service 聊天机器人服务
type Service struct {
	repo  Repository
	index vectorstore.Index
}

// NewService 创建聊天机器人服务
func NewService(repo Repository, index vectorstore.Index) *Service {
	return &Service{repo: repo, index: index}
}

// CreateRequest 创建请求
type CreateRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=255"`
	Description string `json:"description"`
}

// Create 创建聊天机器人
func (s *Service) Create(ctx context.Context, userID string, req *CreateRequest) (*model.Chatbot, error) {
	bot := &model.Chatbot{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.repo.CreateChatbot(bot); err != nil {
		return nil, fmt.Errorf("failed to create chatbot: %w", err)
	}
	return bot, nil
}

// Get 获取聊天机器人
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Chatbot, error) {
	bot, err := s.repo.GetChatbotByIDAndUser(id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrChatbotNotFound
		}
		return nil, fmt.Errorf("failed to get chatbot: %w", err)
	}
	return bot, nil
}

// ListRequest 列表请求
type ListRequest struct {
	Page int `form:"page"`
	Size int `form:"size"`
}

// List 列出用户的聊天机器人
func (s *Service) List(ctx context.Context, userID string, req *ListRequest) ([]*model.Chatbot, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size <= 0 || req.Size > 100 {
		req.Size = 20
	}
	offset := (req.Page - 1) * req.Size
	return s.repo.ListChatbots(userID, offset, req.Size)
}

// UpdateRequest 更新请求
type UpdateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Update 更新聊天机器人
func (s *Service) Update(ctx context.Context, userID, id string, req *UpdateRequest) (*model.Chatbot, error) {
	bot, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		bot.Name = req.Name
	}
	bot.Description = req.Description

	if err := s.repo.UpdateChatbot(bot); err != nil {
		return nil, fmt.Errorf("failed to update chatbot: %w", err)
	}
	return bot, nil
}

// Delete 删除聊天机器人及其全部数据
// 向量集合删除失败只记日志，数据库删除仍然生效
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	bot, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	key := vectorstore.TenantKey{UserID: userID, ChatbotID: bot.ID}
	if err := s.index.DropCollection(ctx, key); err != nil {
		log.Printf("Warning: failed to drop collection for chatbot %s: %v", bot.ID, err)
	}

	if err := s.repo.DeleteChatbot(bot.ID); err != nil {
		return fmt.Errorf("failed to delete chatbot: %w", err)
	}
	return nil
}

// WidgetSettings widget 设置
type WidgetSettings struct {
	WidgetEnabled bool   `json:"widget_enabled"`
	APIKey        string `json:"api_key,omitempty"`
}

// ToggleWidget 开关 widget
// 开启时若无 API key 则生成 32 字节随机 hex key；关闭保留 key 以便重新开启
func (s *Service) ToggleWidget(ctx context.Context, userID, id string, enabled bool) (*WidgetSettings, error) {
	bot, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	bot.WidgetEnabled = enabled
	if enabled && bot.APIKey == "" {
		key, err := generateAPIKey()
		if err != nil {
			return nil, err
		}
		bot.APIKey = key
	}

	if err := s.repo.UpdateChatbot(bot); err != nil {
		return nil, fmt.Errorf("failed to update chatbot: %w", err)
	}

	settings := &WidgetSettings{WidgetEnabled: bot.WidgetEnabled}
	if bot.WidgetEnabled {
		settings.APIKey = bot.APIKey
	}
	return settings, nil
}

// AddDomainRequest 添加域名请求
type AddDomainRequest struct {
	Domain string `json:"domain" binding:"required,min=1,max=255"`
}

// AddDomain 为 widget 添加允许的源域名
func (s *Service) AddDomain(ctx context.Context, userID, id string, req *AddDomainRequest) (*model.ChatbotDomain, error) {
	bot, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	domain := &model.ChatbotDomain{
		ID:        uuid.New().String(),
		ChatbotID: bot.ID,
		Domain:    req.Domain,
	}
	if err := s.repo.AddDomain(domain); err != nil {
		return nil, fmt.Errorf("failed to add domain: %w", err)
	}
	return domain, nil
}

// ListDomains 列出 widget 允许的源域名
func (s *Service) ListDomains(ctx context.Context, userID, id string) ([]*model.ChatbotDomain, error) {
	bot, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDomains(bot.ID)
}

// DeleteDomain 删除 widget 域名
func (s *Service) DeleteDomain(ctx context.Context, userID, id, domainID string) error {
	bot, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDomain(bot.ID, domainID); err != nil {
		return fmt.Errorf("failed to delete domain: %w", err)
	}
	return nil
}

// generateAPIKey 生成 32 字节随机密钥的 hex 表示
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
