package service

import (
	"context"

	"github.com/xxxsen/mfolio/internal/model"
)

// IContentStore is the read side of the content tables. Writes belong to the
// CRUD layer.
type IContentStore interface {
	ListFacts(ctx context.Context) ([]*model.Fact, error)
	ListProjects(ctx context.Context) ([]*model.Project, error)
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	GetItems(ctx context.Context, keys []model.ContentKey) (map[model.ContentKey]model.ContentItem, error)
	FindByText(ctx context.Context, terms []string, types []model.ContentType, limit int) ([]model.ContentItem, error)
	FirstImageURL(ctx context.Context, projectID string) (string, error)
}

type IEmbeddingStore interface {
	Upsert(ctx context.Context, rec *model.EmbeddingRecord) (bool, error)
	Get(ctx context.Context, key model.ContentKey) (*model.EmbeddingRecord, error)
	IndexedIDs(ctx context.Context, contentType model.ContentType) (map[string]struct{}, error)
	QuerySimilar(ctx context.Context, vec []float32, types []model.ContentType, limit int) ([]model.VectorMatch, error)
	Delete(ctx context.Context, key model.ContentKey) error
	DeleteOrphans(ctx context.Context) (int64, error)
}

type ISessionStore interface {
	Create(ctx context.Context, session *model.ChatSession) error
	GetByKey(ctx context.Context, sessionKey string) (*model.ChatSession, error)
	GetByID(ctx context.Context, sessionID string) (*model.ChatSession, error)
	UpdateTitle(ctx context.Context, sessionID, title string, mtime int64) error
	Touch(ctx context.Context, sessionID string, mtime int64) error
}

type IMessageStore interface {
	Create(ctx context.Context, msg *model.ChatMessage) error
	GetByID(ctx context.Context, messageID string) (*model.ChatMessage, error)
	ListRecent(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
}

type ILinkStore interface {
	Upsert(ctx context.Context, link *model.ProjectLink) error
	ListByMessageIDs(ctx context.Context, messageIDs []string) (map[string]model.ProjectLink, error)
}
