package model

import "time"

// Chatbot 聊天机器人
type Chatbot struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	UserID        string          `gorm:"index;size:36;not null" json:"user_id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	WidgetEnabled bool            `gorm:"default:false" json:"widget_enabled"`
	APIKey        string          `gorm:"size:64" json:"-"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Domains       []ChatbotDomain `gorm:"foreignKey:ChatbotID" json:"domains,omitempty"`
}

// ChatbotDomain 向 widget 开放的源域名，"*" 表示全部放行
type ChatbotDomain struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ChatbotID string    `gorm:"index;size:36;not null" json:"chatbot_id"`
	Domain    string    `gorm:"size:255;not null" json:"domain"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Chatbot) TableName() string {
	return "chatbots"
}

func (ChatbotDomain) TableName() string {
	return "chatbot_domains"
}
