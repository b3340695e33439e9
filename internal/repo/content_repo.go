package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/xxxsen/mfolio/internal/model"
	"github.com/xxxsen/mfolio/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
)

var (
	factColumns    = []string{"id", "title", "content", "category", "keywords", "priority", "parent_id", "ctime", "mtime"}
	projectColumns = []string{"id", "title", "slug", "summary", "features", "tools", "tags", "external_url", "ctime", "mtime"}
)

// ContentRepo reads facts and projects. Writes belong to the admin layer;
// the Create helpers exist for seeding and tests.
type ContentRepo struct {
	db *sql.DB
}

func NewContentRepo(db *sql.DB) *ContentRepo {
	return &ContentRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFact(row rowScanner) (*model.Fact, error) {
	var f model.Fact
	var keywords pq.StringArray
	if err := row.Scan(&f.ID, &f.Title, &f.Content, &f.Category, &keywords, &f.Priority, &f.ParentID, &f.Ctime, &f.Mtime); err != nil {
		return nil, err
	}
	f.Keywords = []string(keywords)
	return &f, nil
}

func scanProject(row rowScanner) (*model.Project, error) {
	var p model.Project
	var features, tools, tags pq.StringArray
	if err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Summary, &features, &tools, &tags, &p.ExternalURL, &p.Ctime, &p.Mtime); err != nil {
		return nil, err
	}
	p.Features = []string(features)
	p.Tools = []string(tools)
	p.Tags = []string(tags)
	return &p, nil
}

func (r *ContentRepo) CreateFact(ctx context.Context, f *model.Fact) error {
	data := map[string]interface{}{
		"id":        f.ID,
		"title":     f.Title,
		"content":   f.Content,
		"category":  f.Category,
		"keywords":  pq.Array(f.Keywords),
		"priority":  f.Priority,
		"parent_id": f.ParentID,
		"ctime":     f.Ctime,
		"mtime":     f.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("facts", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ContentRepo) CreateProject(ctx context.Context, p *model.Project) error {
	data := map[string]interface{}{
		"id":           p.ID,
		"title":        p.Title,
		"slug":         p.Slug,
		"summary":      p.Summary,
		"features":     pq.Array(p.Features),
		"tools":        pq.Array(p.Tools),
		"tags":         pq.Array(p.Tags),
		"external_url": p.ExternalURL,
		"ctime":        p.Ctime,
		"mtime":        p.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("projects", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ContentRepo) CreateProjectImage(ctx context.Context, img *model.ProjectImage) error {
	data := map[string]interface{}{
		"id":         img.ID,
		"project_id": img.ProjectID,
		"url":        img.URL,
		"sort_order": img.SortOrder,
	}
	sqlStr, args, err := builder.BuildInsert("project_images", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ContentRepo) ListFacts(ctx context.Context) ([]*model.Fact, error) {
	where := map[string]interface{}{"_orderby": "priority desc, id asc"}
	sqlStr, args, err := builder.BuildSelect("facts", where, factColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryFacts(ctx, sqlStr, args...)
}

func (r *ContentRepo) ListProjects(ctx context.Context) ([]*model.Project, error) {
	where := map[string]interface{}{"_orderby": "mtime desc, id asc"}
	sqlStr, args, err := builder.BuildSelect("projects", where, projectColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.queryProjects(ctx, sqlStr, args...)
}

func (r *ContentRepo) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	sqlStr, args, err := builder.BuildSelect("projects", map[string]interface{}{"id": projectID}, projectColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	p, err := scanProject(r.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetItems loads the content items for keys. Missing keys are absent from the
// returned map.
func (r *ContentRepo) GetItems(ctx context.Context, keys []model.ContentKey) (map[model.ContentKey]model.ContentItem, error) {
	var factIDs, projectIDs []string
	for _, key := range keys {
		switch key.ContentType {
		case model.ContentTypeFact:
			factIDs = append(factIDs, key.ContentID)
		case model.ContentTypeProject:
			projectIDs = append(projectIDs, key.ContentID)
		}
	}
	items := make(map[model.ContentKey]model.ContentItem, len(keys))
	if len(factIDs) > 0 {
		query, args, err := sqlx.In("SELECT "+strings.Join(factColumns, ", ")+" FROM facts WHERE id IN (?)", factIDs)
		if err != nil {
			return nil, err
		}
		facts, err := r.queryFacts(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
		if err != nil {
			return nil, err
		}
		for _, f := range facts {
			items[f.Key()] = f
		}
	}
	if len(projectIDs) > 0 {
		query, args, err := sqlx.In("SELECT "+strings.Join(projectColumns, ", ")+" FROM projects WHERE id IN (?)", projectIDs)
		if err != nil {
			return nil, err
		}
		projects, err := r.queryProjects(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
		if err != nil {
			return nil, err
		}
		for _, p := range projects {
			items[p.Key()] = p
		}
	}
	return items, nil
}

// FindByText returns items whose title or body contains any of terms
// (case-insensitive substring match), limited per content type.
func (r *ContentRepo) FindByText(ctx context.Context, terms []string, types []model.ContentType, limit int) ([]model.ContentItem, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		patterns = append(patterns, "%"+escapeLike(t)+"%")
	}
	var out []model.ContentItem
	for _, typ := range types {
		switch typ {
		case model.ContentTypeFact:
			query := "SELECT " + strings.Join(factColumns, ", ") + ` FROM facts
				WHERE title ILIKE ANY($1) OR content ILIKE ANY($1)
				ORDER BY mtime DESC LIMIT $2`
			facts, err := r.queryFacts(ctx, query, pq.Array(patterns), limit)
			if err != nil {
				return nil, err
			}
			for _, f := range facts {
				out = append(out, f)
			}
		case model.ContentTypeProject:
			query := "SELECT " + strings.Join(projectColumns, ", ") + ` FROM projects
				WHERE title ILIKE ANY($1) OR summary ILIKE ANY($1)
				ORDER BY mtime DESC LIMIT $2`
			projects, err := r.queryProjects(ctx, query, pq.Array(patterns), limit)
			if err != nil {
				return nil, err
			}
			for _, p := range projects {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (r *ContentRepo) FirstImageURL(ctx context.Context, projectID string) (string, error) {
	where := map[string]interface{}{
		"project_id": projectID,
		"_orderby":   "sort_order asc, id asc",
		"_limit":     []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect("project_images", where, []string{"url"})
	if err != nil {
		return "", err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var url string
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&url); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return url, nil
}

func (r *ContentRepo) queryFacts(ctx context.Context, query string, args ...interface{}) ([]*model.Fact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	facts := make([]*model.Fact, 0)
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (r *ContentRepo) queryProjects(ctx context.Context, query string, args ...interface{}) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	projects := make([]*model.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
