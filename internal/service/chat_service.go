package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mfolio/internal/ai"
	"github.com/xxxsen/mfolio/internal/model"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
	"github.com/xxxsen/mfolio/internal/pkg/textutil"
)

const (
	autoTitleRunes = 50

	defaultChatMatchThreshold = 0.4
	defaultLinkThreshold      = 0.6
	defaultHistoryTurns       = 6
	defaultMaxMessageChars    = 2000
	defaultGenerateTimeout    = 30 * time.Second
)

const chatSystemPrompt = `You are the assistant of a personal portfolio website.
Answer questions about the portfolio owner's skills, background and projects.
Ground every answer in the context below. If the context does not cover the
question, say that you do not know instead of guessing. Keep answers concise.`

type ChatOptions struct {
	MatchThreshold  float64
	MatchCount      int
	LinkThreshold   float64
	HistoryTurns    int
	MaxMessageChars int
	GenerateTimeout time.Duration
}

type RelatedProject struct {
	ProjectID string  `json:"project_id"`
	Title     string  `json:"title"`
	Slug      string  `json:"slug"`
	ImageURL  string  `json:"image_url"`
	Relevance float64 `json:"relevance"`
}

type ChatReply struct {
	SessionID          string
	UserMessageID      string
	AssistantMessageID string
	AssistantText      string
	RelatedProject     *RelatedProject
}

type HistoryMessage struct {
	model.ChatMessage
	Project *model.ProjectLink `json:"project,omitempty"`
}

type ChatService struct {
	sessions  *SessionService
	search    *SearchService
	formatter *ContextFormatter
	linker    *LinkerService
	generator ai.IGenerator
	opts      ChatOptions
}

func NewChatService(sessions *SessionService, search *SearchService, formatter *ContextFormatter, linker *LinkerService, generator ai.IGenerator, opts ChatOptions) *ChatService {
	if opts.MatchThreshold <= 0 {
		opts.MatchThreshold = defaultChatMatchThreshold
	}
	if opts.MatchCount <= 0 {
		opts.MatchCount = DefaultMatchCount
	}
	if opts.LinkThreshold <= 0 {
		opts.LinkThreshold = defaultLinkThreshold
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = defaultHistoryTurns
	}
	if opts.MaxMessageChars <= 0 {
		opts.MaxMessageChars = defaultMaxMessageChars
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = defaultGenerateTimeout
	}
	return &ChatService{
		sessions:  sessions,
		search:    search,
		formatter: formatter,
		linker:    linker,
		generator: generator,
		opts:      opts,
	}
}

// Chat answers message within the conversation of sessionKey. The user message
// is stored before generation, so it survives a failed LLM call.
func (s *ChatService) Chat(ctx context.Context, sessionKey, message string) (*ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: empty message", appErr.ErrInvalid)
	}
	if utf8.RuneCountInString(message) > s.opts.MaxMessageChars {
		return nil, fmt.Errorf("%w: message longer than %d characters", appErr.ErrInvalid, s.opts.MaxMessageChars)
	}
	if s.generator == nil {
		return nil, ai.ErrUnavailable
	}
	sess, err := s.sessions.GetOrCreateSession(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sess.ID))

	history, err := s.sessions.ListMessages(ctx, sess.ID, s.opts.HistoryTurns*2)
	if err != nil {
		return nil, err
	}
	userMsgID, err := s.sessions.AppendMessage(ctx, sess.ID, model.RoleUser, message)
	if err != nil {
		return nil, err
	}
	reply := &ChatReply{SessionID: sess.ID, UserMessageID: userMsgID}

	if sess.Title == DefaultSessionTitle && len(history) == 0 {
		if err := s.sessions.RenameSession(ctx, sess.ID, textutil.Truncate(message, autoTitleRunes)); err != nil {
			logger.Warn("auto title session failed", zap.Error(err))
		}
	}

	var results []model.SearchResult
	resp, err := s.search.Search(ctx, message, SearchOptions{
		MatchThreshold: s.opts.MatchThreshold,
		MatchCount:     s.opts.MatchCount,
		ContentTypes:   model.AllContentTypes,
	})
	if err != nil {
		logger.Warn("context search failed, answering without context", zap.Error(err))
	} else {
		results = resp.Results
	}

	prompt := buildChatPrompt(s.formatter.FormatContext(results), history, message)
	gctx, cancel := context.WithTimeout(ctx, s.opts.GenerateTimeout)
	answer, err := s.generator.Generate(gctx, prompt)
	cancel()
	if err != nil {
		logger.Error("generate reply failed", zap.Error(err))
		if !errors.Is(err, appErr.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", appErr.ErrUnavailable, err)
		}
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("%w: empty reply", appErr.ErrUnavailable)
	}
	assistantMsgID, err := s.sessions.AppendMessage(ctx, sess.ID, model.RoleAssistant, answer)
	if err != nil {
		return nil, err
	}
	reply.AssistantMessageID = assistantMsgID
	reply.AssistantText = answer

	if best := bestProject(results, s.opts.LinkThreshold); best != nil {
		link, err := s.linker.LinkProjectToMessage(ctx, assistantMsgID, best.ID, "", bestSimilarity(results, best.ID))
		if err != nil {
			logger.Warn("link project to reply failed", zap.String("project_id", best.ID), zap.Error(err))
		} else {
			reply.RelatedProject = &RelatedProject{
				ProjectID: best.ID,
				Title:     best.Title,
				Slug:      best.Slug,
				ImageURL:  link.ImageURL,
				Relevance: link.Relevance,
			}
		}
	}
	return reply, nil
}

// History returns the latest messages of a session with their project links.
// An unknown key yields an empty history and creates nothing.
func (s *ChatService) History(ctx context.Context, sessionKey string, limit int) ([]HistoryMessage, error) {
	sess, err := s.sessions.FindSession(ctx, sessionKey)
	if err != nil {
		if appErr.IsNotFound(err) {
			return []HistoryMessage{}, nil
		}
		return nil, err
	}
	msgs, err := s.sessions.ListMessages(ctx, sess.ID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == model.RoleAssistant {
			ids = append(ids, m.ID)
		}
	}
	links, err := s.linker.ListLinks(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		item := HistoryMessage{ChatMessage: m}
		if link, ok := links[m.ID]; ok {
			item.Project = &link
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *ChatService) RenameSession(ctx context.Context, sessionKey, title string) error {
	sess, err := s.sessions.FindSession(ctx, sessionKey)
	if err != nil {
		return err
	}
	return s.sessions.RenameSession(ctx, sess.ID, title)
}

func bestProject(results []model.SearchResult, threshold float64) *model.Project {
	for _, r := range results {
		if r.Similarity < threshold {
			return nil
		}
		if p, ok := r.Item.(*model.Project); ok {
			return p
		}
	}
	return nil
}

func bestSimilarity(results []model.SearchResult, projectID string) float64 {
	for _, r := range results {
		if r.ContentType == model.ContentTypeProject && r.ContentID == projectID {
			return r.Similarity
		}
	}
	return 0
}

func buildChatPrompt(contextText string, history []model.ChatMessage, message string) string {
	var sb strings.Builder
	sb.WriteString(chatSystemPrompt)
	sb.WriteString("\n\n# Context\n\n")
	if contextText == "" {
		sb.WriteString("No relevant portfolio content was found.")
	} else {
		sb.WriteString(contextText)
	}
	if len(history) > 0 {
		sb.WriteString("\n\n# Conversation so far\n\n")
		for _, m := range history {
			sb.WriteString(string(m.Role))
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n\n# Question\n\n")
	sb.WriteString(message)
	return sb.String()
}
