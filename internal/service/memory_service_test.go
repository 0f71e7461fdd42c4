package service

import (
	"strings"
	"testing"
	"time"

	"piperag-go/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeChatRepo 是内存版的会话仓储，用递增的假时钟保证消息有序。
type fakeChatRepo struct {
	sessions map[uuid.UUID]*model.ChatSession
	messages []*model.ChatMessage
	clock    time.Time
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		sessions: make(map[uuid.UUID]*model.ChatSession),
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeChatRepo) CreateSession(session *model.ChatSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = r.clock
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *fakeChatRepo) FindSessionByID(id uuid.UUID) (*model.ChatSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeChatRepo) FindSessions(projectID, userID uuid.UUID) ([]model.ChatSession, error) {
	var out []model.ChatSession
	for _, s := range r.sessions {
		if s.ProjectID == projectID && s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeChatRepo) DeleteSession(id uuid.UUID) error {
	delete(r.sessions, id)
	var kept []*model.ChatMessage
	for _, m := range r.messages {
		if m.SessionID != id {
			kept = append(kept, m)
		}
	}
	r.messages = kept
	return nil
}

func (r *fakeChatRepo) AppendMessage(msg *model.ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	r.clock = r.clock.Add(time.Minute)
	msg.CreatedAt = r.clock
	cp := *msg
	r.messages = append(r.messages, &cp)
	if s, ok := r.sessions[msg.SessionID]; ok {
		t := r.clock
		s.LastMessageAt = &t
	}
	return nil
}

func (r *fakeChatRepo) CountMessages(sessionID uuid.UUID) (int64, error) {
	var n int64
	for _, m := range r.messages {
		if m.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (r *fakeChatRepo) bySession(sessionID uuid.UUID) []model.ChatMessage {
	var out []model.ChatMessage
	for _, m := range r.messages {
		if m.SessionID == sessionID {
			out = append(out, *m)
		}
	}
	return out
}

func (r *fakeChatRepo) FindRecentMessages(sessionID uuid.UUID, limit int) ([]model.ChatMessage, error) {
	all := r.bySession(sessionID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (r *fakeChatRepo) FindOldestMessages(sessionID uuid.UUID, limit int) ([]model.ChatMessage, error) {
	all := r.bySession(sessionID)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeChatRepo) FindAllMessages(sessionID uuid.UUID) ([]model.ChatMessage, error) {
	return r.bySession(sessionID), nil
}

func TestGetOrCreateSessionTitles(t *testing.T) {
	repo := newFakeChatRepo()
	svc := NewMemoryService(repo)
	projectID, userID := uuid.New(), uuid.New()

	session, err := svc.GetOrCreateSession(nil, projectID, userID, "")
	require.NoError(t, err)
	assert.Equal(t, "New Chat", session.Title)

	long := strings.Repeat("x", 80)
	session, err = svc.GetOrCreateSession(nil, projectID, userID, long)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 60)+"...", session.Title)

	short := "What is chunking?"
	session, err = svc.GetOrCreateSession(nil, projectID, userID, short)
	require.NoError(t, err)
	assert.Equal(t, short, session.Title)
}

func TestGetOrCreateSessionOwnership(t *testing.T) {
	repo := newFakeChatRepo()
	svc := NewMemoryService(repo)
	projectID, owner, other := uuid.New(), uuid.New(), uuid.New()

	created, err := svc.GetOrCreateSession(nil, projectID, owner, "hello")
	require.NoError(t, err)

	// 属主可以复用已有会话
	same, err := svc.GetOrCreateSession(&created.ID, projectID, owner, "ignored")
	require.NoError(t, err)
	assert.Equal(t, created.ID, same.ID)

	// 非属主拿不到别人的会话，得到新会话
	fresh, err := svc.GetOrCreateSession(&created.ID, projectID, other, "mine")
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, fresh.ID)
}

func TestGetWindowReturnsAllWhenSmall(t *testing.T) {
	repo := newFakeChatRepo()
	svc := NewMemoryService(repo)
	sessionID := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := svc.AppendMessage(sessionID, model.ChatRoleUser, "message", nil)
		require.NoError(t, err)
	}

	window, err := svc.GetWindow(sessionID, DefaultWindowSize)
	require.NoError(t, err)
	assert.Len(t, window, 5)
	for _, m := range window {
		assert.NotEqual(t, model.ChatRoleSystem, m.Role)
	}
}

func TestGetWindowSummarizesOlderMessages(t *testing.T) {
	repo := newFakeChatRepo()
	svc := NewMemoryService(repo)
	sessionID := uuid.New()

	_, err := svc.AppendMessage(sessionID, model.ChatRoleUser, "first question", nil)
	require.NoError(t, err)
	_, err = svc.AppendMessage(sessionID, model.ChatRoleAssistant, strings.Repeat("a", 150), nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		role := model.ChatRoleUser
		if i%2 == 1 {
			role = model.ChatRoleAssistant
		}
		_, err = svc.AppendMessage(sessionID, role, "recent message", nil)
		require.NoError(t, err)
	}

	window, err := svc.GetWindow(sessionID, DefaultWindowSize)
	require.NoError(t, err)
	require.Len(t, window, DefaultWindowSize+1)

	summary := window[0]
	assert.Equal(t, model.ChatRoleSystem, summary.Role)
	assert.True(t, strings.HasPrefix(summary.Content, "Summary of earlier conversation:"))
	assert.Contains(t, summary.Content, "User: first question")
	// 超过 100 字符的内容被截断
	assert.Contains(t, summary.Content, "Assistant: "+strings.Repeat("a", 100)+"...")
	assert.NotContains(t, summary.Content, strings.Repeat("a", 101))

	// 摘要时间戳在最早保留消息的前一秒
	assert.Equal(t, window[1].CreatedAt.Add(-time.Second), summary.CreatedAt)

	// 摘要永远不落库
	count, err := repo.CountMessages(sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
}

func TestDeleteSessionChecksOwnership(t *testing.T) {
	repo := newFakeChatRepo()
	svc := NewMemoryService(repo)
	projectID, owner, other := uuid.New(), uuid.New(), uuid.New()

	session, err := svc.GetOrCreateSession(nil, projectID, owner, "hello")
	require.NoError(t, err)

	err = svc.DeleteSession(session.ID, other)
	assert.Error(t, err)

	err = svc.DeleteSession(session.ID, owner)
	require.NoError(t, err)
	_, err = repo.FindSessionByID(session.ID)
	assert.Error(t, err)
}
