package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatMessageRole 表示一条会话消息的角色。
type ChatMessageRole string

const (
	ChatRoleUser      ChatMessageRole = "user"
	ChatRoleAssistant ChatMessageRole = "assistant"
	ChatRoleSystem    ChatMessageRole = "system"
)

// IsValid 校验角色枚举值是否合法。
func (r ChatMessageRole) IsValid() bool {
	switch r {
	case ChatRoleUser, ChatRoleAssistant, ChatRoleSystem:
		return true
	}
	return false
}

// ChatSession 对应于数据库中的 chat_sessions 表。
// 标题取首条消息的前 60 个字符（超长追加 "..."），否则为 "New Chat"。
type ChatSession struct {
	ID            uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	ProjectID     uuid.UUID  `gorm:"type:char(36);not null;index" json:"projectId"`
	UserID        uuid.UUID  `gorm:"type:char(36);not null;index" json:"userId"`
	Title         string     `gorm:"type:varchar(100)" json:"title"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	LastMessageAt *time.Time `gorm:"default:null" json:"lastMessageAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// BeforeCreate 在插入前补全主键。
func (s *ChatSession) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ChatMessage 对应于数据库中的 chat_messages 表，按 CreatedAt 严格有序。
// System 角色的合成摘要消息只在读取时构造，永远不会写入此表。
type ChatMessage struct {
	ID         uuid.UUID       `gorm:"type:char(36);primaryKey" json:"id"`
	SessionID  uuid.UUID       `gorm:"type:char(36);not null;index" json:"sessionId"`
	Role       ChatMessageRole `gorm:"type:varchar(20);not null" json:"role"`
	Content    string          `gorm:"type:text;not null" json:"content"`
	TokenCount *int            `gorm:"default:null" json:"tokenCount,omitempty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// BeforeCreate 在插入前补全主键。
func (m *ChatMessage) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
