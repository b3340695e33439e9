package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/mfolio/internal/model"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
	"github.com/xxxsen/mfolio/internal/pkg/retry"
	"github.com/xxxsen/mfolio/internal/pkg/textutil"
	"github.com/xxxsen/mfolio/internal/pkg/timeutil"
)

const (
	DefaultSessionTitle = "New Chat"

	defaultMessageLimit = 50
	maxMessageLimit     = 200
	maxTitleRunes       = 100
)

type SessionService struct {
	sessions ISessionStore
	messages IMessageStore
	conflict retry.Policy
	group    singleflight.Group
}

// NewSessionService uses policy to bound how often a lost creation race is
// resolved by re-reading the winning row.
func NewSessionService(sessions ISessionStore, messages IMessageStore, policy retry.Policy) *SessionService {
	policy.Retryable = appErr.IsConflict
	return &SessionService{sessions: sessions, messages: messages, conflict: policy}
}

// GetOrCreateSession returns the session of key, creating it on first use.
// Concurrent callers for one key always observe the same session.
func (s *SessionService) GetOrCreateSession(ctx context.Context, sessionKey string) (*model.ChatSession, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return nil, fmt.Errorf("%w: empty session key", appErr.ErrInvalid)
	}
	// The shared lookup outlives any single caller; each caller still stops
	// waiting when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(sessionKey, func() (interface{}, error) {
		return s.getOrCreate(shared, sessionKey)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", appErr.ErrPersistenceFailure, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		sess := *res.Val.(*model.ChatSession)
		return &sess, nil
	}
}

func (s *SessionService) getOrCreate(ctx context.Context, sessionKey string) (*model.ChatSession, error) {
	var out *model.ChatSession
	err := s.conflict.Do(ctx, func(ctx context.Context) error {
		existing, err := s.sessions.GetByKey(ctx, sessionKey)
		if err == nil {
			out = existing
			return nil
		}
		if !appErr.IsNotFound(err) {
			return err
		}
		now := timeutil.NowUnixMilli()
		sess := &model.ChatSession{
			ID:         newID(),
			SessionKey: sessionKey,
			Title:      DefaultSessionTitle,
			Ctime:      now,
			Mtime:      now,
		}
		if err := s.sessions.Create(ctx, sess); err != nil {
			return err
		}
		logutil.GetLogger(ctx).Info("chat session created", zap.String("session_id", sess.ID))
		out = sess
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrPersistenceFailure, err)
	}
	return out, nil
}

// FindSession looks a session up without creating it.
func (s *SessionService) FindSession(ctx context.Context, sessionKey string) (*model.ChatSession, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return nil, fmt.Errorf("%w: empty session key", appErr.ErrInvalid)
	}
	return s.sessions.GetByKey(ctx, sessionKey)
}

func (s *SessionService) AppendMessage(ctx context.Context, sessionID string, role model.Role, content string) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", appErr.ErrInvalid, role)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty message", appErr.ErrInvalid)
	}
	now := timeutil.NowUnixMilli()
	msg := &model.ChatMessage{
		ID:        newID(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Ctime:     now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return "", fmt.Errorf("%w: %w", appErr.ErrPersistenceFailure, err)
	}
	if err := s.sessions.Touch(ctx, sessionID, now); err != nil {
		logutil.GetLogger(ctx).Warn("touch session failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	return msg.ID, nil
}

// ListMessages returns the latest limit messages in creation order.
func (s *SessionService) ListMessages(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}
	msgs, err := s.messages.ListRecent(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrPersistenceFailure, err)
	}
	return msgs, nil
}

func (s *SessionService) RenameSession(ctx context.Context, sessionID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: empty title", appErr.ErrInvalid)
	}
	title = textutil.Truncate(title, maxTitleRunes)
	if err := s.sessions.UpdateTitle(ctx, sessionID, title, timeutil.NowUnixMilli()); err != nil {
		return fmt.Errorf("%w: %w", appErr.ErrPersistenceFailure, err)
	}
	return nil
}
