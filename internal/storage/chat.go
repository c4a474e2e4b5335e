package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *Storage) CreateChatSession(ctx context.Context, userID, title string) (*ChatSession, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if title == "" {
		title = "Chat " + time.Now().UTC().Format("2006-01-02 15:04")
	}
	session := ChatSession{
		SessionID: uuid.New().String(),
		UserID:    userID,
		Title:     title,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}
	return &session, nil
}

func (s *Storage) AppendChatMessage(ctx context.Context, sessionID, role, content string) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if sessionID == "" {
		return errors.New("session id is required")
	}
	msg := ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// ListSessionMessages 按写入顺序返回一段会话的消息。
func (s *Storage) ListSessionMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var out []ChatMessage
	err := s.db.WithContext(ctx).Model(&ChatMessage{}).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Limit(normalizeLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	return out, nil
}

// ListUserSessions 按更新时间倒序返回某个用户的会话。
func (s *Storage) ListUserSessions(ctx context.Context, userID string, limit int) ([]ChatSession, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var out []ChatSession
	err := s.db.WithContext(ctx).Model(&ChatSession{}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(normalizeLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	return out, nil
}
