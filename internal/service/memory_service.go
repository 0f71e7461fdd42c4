package service

import (
	"fmt"
	"strings"
	"time"

	"piperag-go/internal/model"
	"piperag-go/internal/repository"

	"github.com/google/uuid"
)

const (
	// DefaultWindowSize 是会话滑动窗口的默认大小。
	DefaultWindowSize = 10

	sessionTitleMaxLen = 60
	summaryLineMaxLen  = 100
)

// MemoryService 管理会话记忆：滑动窗口加早期消息摘要。
type MemoryService interface {
	GetOrCreateSession(sessionID *uuid.UUID, projectID, userID uuid.UUID, firstMessage string) (*model.ChatSession, error)
	AppendMessage(sessionID uuid.UUID, role model.ChatMessageRole, content string, tokenCount *int) (*model.ChatMessage, error)
	// GetWindow 返回最近 windowSize 条消息；更早的消息压缩为一条
	// 合成的 System 摘要放在最前面，摘要永远不会写入存储。
	GetWindow(sessionID uuid.UUID, windowSize int) ([]model.ChatMessage, error)
	GetAllMessages(sessionID uuid.UUID) ([]model.ChatMessage, error)
	GetSessions(projectID, userID uuid.UUID) ([]model.ChatSessionDTO, error)
	DeleteSession(sessionID, userID uuid.UUID) error
}

type memoryService struct {
	chatRepo repository.ChatRepository
}

// NewMemoryService 创建会话记忆服务。
func NewMemoryService(chatRepo repository.ChatRepository) MemoryService {
	return &memoryService{chatRepo: chatRepo}
}

func (s *memoryService) GetOrCreateSession(sessionID *uuid.UUID, projectID, userID uuid.UUID, firstMessage string) (*model.ChatSession, error) {
	if sessionID != nil {
		existing, err := s.chatRepo.FindSessionByID(*sessionID)
		if err == nil && existing.UserID == userID {
			return existing, nil
		}
	}

	session := &model.ChatSession{
		ProjectID: projectID,
		UserID:    userID,
		Title:     sessionTitle(firstMessage),
	}
	if err := s.chatRepo.CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *memoryService) AppendMessage(sessionID uuid.UUID, role model.ChatMessageRole, content string, tokenCount *int) (*model.ChatMessage, error) {
	msg := &model.ChatMessage{
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		TokenCount: tokenCount,
	}
	if err := s.chatRepo.AppendMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *memoryService) GetWindow(sessionID uuid.UUID, windowSize int) ([]model.ChatMessage, error) {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}

	total, err := s.chatRepo.CountMessages(sessionID)
	if err != nil {
		return nil, err
	}

	if total <= int64(windowSize) {
		return s.chatRepo.FindAllMessages(sessionID)
	}

	recent, err := s.chatRepo.FindRecentMessages(sessionID, windowSize)
	if err != nil {
		return nil, err
	}
	older, err := s.chatRepo.FindOldestMessages(sessionID, int(total)-windowSize)
	if err != nil {
		return nil, err
	}
	if len(older) == 0 {
		return recent, nil
	}

	// 合成摘要消息的时间戳设在最早保留消息的前一秒，保证排序不变
	summary := model.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      model.ChatRoleSystem,
		Content:   buildSummary(older),
		CreatedAt: recent[0].CreatedAt.Add(-time.Second),
	}

	window := make([]model.ChatMessage, 0, len(recent)+1)
	window = append(window, summary)
	window = append(window, recent...)
	return window, nil
}

func (s *memoryService) GetAllMessages(sessionID uuid.UUID) ([]model.ChatMessage, error) {
	return s.chatRepo.FindAllMessages(sessionID)
}

func (s *memoryService) GetSessions(projectID, userID uuid.UUID) ([]model.ChatSessionDTO, error) {
	sessions, err := s.chatRepo.FindSessions(projectID, userID)
	if err != nil {
		return nil, err
	}

	dtos := make([]model.ChatSessionDTO, 0, len(sessions))
	for _, sess := range sessions {
		count, err := s.chatRepo.CountMessages(sess.ID)
		if err != nil {
			return nil, err
		}
		dtos = append(dtos, model.ChatSessionDTO{
			ID:            sess.ID,
			Title:         sess.Title,
			MessageCount:  int(count),
			CreatedAt:     sess.CreatedAt,
			LastMessageAt: sess.LastMessageAt,
		})
	}
	return dtos, nil
}

func (s *memoryService) DeleteSession(sessionID, userID uuid.UUID) error {
	session, err := s.chatRepo.FindSessionByID(sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return fmt.Errorf("session %s does not belong to user", sessionID)
	}
	return s.chatRepo.DeleteSession(sessionID)
}

// sessionTitle 由首条消息生成会话标题，超过 60 字符截断加 "..."。
func sessionTitle(firstMessage string) string {
	if firstMessage == "" {
		return "New Chat"
	}
	runes := []rune(firstMessage)
	if len(runes) > sessionTitleMaxLen {
		return string(runes[:sessionTitleMaxLen]) + "..."
	}
	return firstMessage
}

// buildSummary 把早期的非 System 消息压缩为逐行的 "Role: content" 摘要。
func buildSummary(messages []model.ChatMessage) string {
	var b strings.Builder
	b.WriteString("Summary of earlier conversation:")
	for _, m := range messages {
		if m.Role == model.ChatRoleSystem {
			continue
		}
		content := m.Content
		runes := []rune(content)
		if len(runes) > summaryLineMaxLen {
			content = string(runes[:summaryLineMaxLen]) + "..."
		}
		b.WriteString("\n")
		b.WriteString(capitalizeRole(m.Role))
		b.WriteString(": ")
		b.WriteString(content)
	}
	return b.String()
}

func capitalizeRole(role model.ChatMessageRole) string {
	r := string(role)
	if r == "" {
		return r
	}
	return strings.ToUpper(r[:1]) + r[1:]
}
