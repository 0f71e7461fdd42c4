package repository

import (
	"time"

	"piperag-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatRepository 定义了会话与消息的持久化操作接口。
type ChatRepository interface {
	CreateSession(session *model.ChatSession) error
	FindSessionByID(id uuid.UUID) (*model.ChatSession, error)
	FindSessions(projectID, userID uuid.UUID) ([]model.ChatSession, error)
	DeleteSession(id uuid.UUID) error

	// AppendMessage 在一个事务内写入消息并更新会话的 LastMessageAt，
	// 保证并发对话轮次下不会丢失更新。
	AppendMessage(msg *model.ChatMessage) error
	CountMessages(sessionID uuid.UUID) (int64, error)
	// FindRecentMessages 返回最近的 limit 条消息，按时间正序。
	FindRecentMessages(sessionID uuid.UUID, limit int) ([]model.ChatMessage, error)
	// FindOldestMessages 返回最早的 limit 条消息，按时间正序。
	FindOldestMessages(sessionID uuid.UUID, limit int) ([]model.ChatMessage, error)
	FindAllMessages(sessionID uuid.UUID) ([]model.ChatMessage, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateSession(session *model.ChatSession) error {
	return r.db.Create(session).Error
}

func (r *chatRepository) FindSessionByID(id uuid.UUID) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *chatRepository) FindSessions(projectID, userID uuid.UUID) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.Where("project_id = ? AND user_id = ?", projectID, userID).
		Order("COALESCE(last_message_at, created_at) DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *chatRepository) DeleteSession(id uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.ChatSession{}, "id = ?", id).Error
	})
}

func (r *chatRepository) AppendMessage(msg *model.ChatMessage) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.ChatSession{}).
			Where("id = ?", msg.SessionID).
			Update("last_message_at", time.Now()).Error
	})
}

func (r *chatRepository) CountMessages(sessionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&model.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func (r *chatRepository) FindRecentMessages(sessionID uuid.UUID, limit int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// 反转为时间正序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *chatRepository) FindOldestMessages(sessionID uuid.UUID, limit int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *chatRepository) FindAllMessages(sessionID uuid.UUID) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}
