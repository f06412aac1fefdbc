package model

import "time"

// ChatSession 聊天会话
type ChatSession struct {
	ID        string        `gorm:"primaryKey;size:36" json:"id"`
	UserID    string        `gorm:"index;size:36" json:"user_id"`
	ChatbotID string        `gorm:"index;size:36" json:"chatbot_id"`
	Title     string        `gorm:"size:255" json:"title"`
	CreatedAt time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
	Messages  []ChatMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

// ChatMessage 聊天消息
type ChatMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID string    `gorm:"index;size:36" json:"session_id"`
	Role      string    `gorm:"size:20;index" json:"role"` // user, assistant
	Content   string    `gorm:"type:text" json:"content"`
	Metadata  string    `gorm:"type:text" json:"metadata,omitempty"` // JSON，助手消息附带检索上下文
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName 指定表名
func (ChatSession) TableName() string {
	return "chat_sessions"
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
