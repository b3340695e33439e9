package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/mfolio/internal/model"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
	"github.com/xxxsen/mfolio/internal/pkg/timeutil"
)

const DefaultLinkRelevance = 0.7

type LinkerService struct {
	messages IMessageStore
	contents IContentStore
	links    ILinkStore
}

func NewLinkerService(messages IMessageStore, contents IContentStore, links ILinkStore) *LinkerService {
	return &LinkerService{messages: messages, contents: contents, links: links}
}

// LinkProjectToMessage attaches a project to an assistant message. Both sides
// must already exist. An empty imageURL resolves to the project's first image
// at the time of the call.
func (s *LinkerService) LinkProjectToMessage(ctx context.Context, messageID, projectID, imageURL string, relevance float64) (*model.ProjectLink, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: message %s: %w", appErr.ErrLinkingFailure, messageID, err)
	}
	if msg.Role != model.RoleAssistant {
		return nil, fmt.Errorf("%w: %w: message %s has role %s", appErr.ErrLinkingFailure, appErr.ErrInvalid, messageID, msg.Role)
	}
	if _, err := s.contents.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("%w: project %s: %w", appErr.ErrLinkingFailure, projectID, err)
	}
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		first, err := s.contents.FirstImageURL(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", appErr.ErrLinkingFailure, err)
		}
		imageURL = first
	}
	if relevance <= 0 {
		relevance = DefaultLinkRelevance
	}
	if relevance > 1 {
		relevance = 1
	}
	link := &model.ProjectLink{
		MessageID: messageID,
		ProjectID: projectID,
		ImageURL:  imageURL,
		Relevance: relevance,
		Ctime:     timeutil.NowUnixMilli(),
	}
	if err := s.links.Upsert(ctx, link); err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrLinkingFailure, err)
	}
	return link, nil
}

func (s *LinkerService) ListLinks(ctx context.Context, messageIDs []string) (map[string]model.ProjectLink, error) {
	if len(messageIDs) == 0 {
		return map[string]model.ProjectLink{}, nil
	}
	links, err := s.links.ListByMessageIDs(ctx, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrPersistenceFailure, err)
	}
	return links, nil
}
