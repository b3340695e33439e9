package model

import "fmt"

type ContentType string

const (
	ContentTypeFact    ContentType = "fact"
	ContentTypeProject ContentType = "project"
)

// AllContentTypes lists every content type in formatter section order.
var AllContentTypes = []ContentType{ContentTypeFact, ContentTypeProject}

func ParseContentType(s string) (ContentType, error) {
	switch ContentType(s) {
	case ContentTypeFact, ContentTypeProject:
		return ContentType(s), nil
	default:
		return "", fmt.Errorf("unknown content type: %q", s)
	}
}

// ContentKey addresses one content item across every table.
type ContentKey struct {
	ContentType ContentType `json:"content_type"`
	ContentID   string      `json:"content_id"`
}

func (k ContentKey) String() string {
	return string(k.ContentType) + ":" + k.ContentID
}

// ContentItem is implemented by *Fact and *Project only.
type ContentItem interface {
	Key() ContentKey
	DisplayTitle() string
	// SearchText is the body matched by the lexical signal.
	SearchText() string
	UpdatedAt() int64
	sealed()
}

type Fact struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
	Priority int      `json:"priority"`
	ParentID string   `json:"parent_id,omitempty"`
	Ctime    int64    `json:"ctime"`
	Mtime    int64    `json:"mtime"`
}

func (f *Fact) Key() ContentKey {
	return ContentKey{ContentType: ContentTypeFact, ContentID: f.ID}
}

func (f *Fact) DisplayTitle() string { return f.Title }

func (f *Fact) SearchText() string { return f.Content }

func (f *Fact) UpdatedAt() int64 { return f.Mtime }

func (*Fact) sealed() {}

type Project struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Summary     string   `json:"summary"`
	Features    []string `json:"features"`
	Tools       []string `json:"tools"`
	Tags        []string `json:"tags"`
	ExternalURL string   `json:"external_url,omitempty"`
	Ctime       int64    `json:"ctime"`
	Mtime       int64    `json:"mtime"`
}

func (p *Project) Key() ContentKey {
	return ContentKey{ContentType: ContentTypeProject, ContentID: p.ID}
}

func (p *Project) DisplayTitle() string { return p.Title }

func (p *Project) SearchText() string { return p.Summary }

func (p *Project) UpdatedAt() int64 { return p.Mtime }

func (*Project) sealed() {}

type ProjectImage struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	URL       string `json:"url"`
	SortOrder int    `json:"sort_order"`
}
