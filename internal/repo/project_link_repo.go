package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/mfolio/internal/model"
	"github.com/xxxsen/mfolio/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
)

type ProjectLinkRepo struct {
	db *sql.DB
}

func NewProjectLinkRepo(db *sql.DB) *ProjectLinkRepo {
	return &ProjectLinkRepo{db: db}
}

// Upsert keeps at most one link per message.
func (r *ProjectLinkRepo) Upsert(ctx context.Context, link *model.ProjectLink) error {
	const query = `
		INSERT INTO message_projects (message_id, project_id, image_url, relevance, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			image_url = EXCLUDED.image_url,
			relevance = EXCLUDED.relevance
	`
	_, err := r.db.ExecContext(ctx, query, link.MessageID, link.ProjectID, link.ImageURL, link.Relevance, link.Ctime)
	if err != nil && dbutil.IsForeignKeyViolation(err) {
		return appErr.ErrNotFound
	}
	return err
}

func (r *ProjectLinkRepo) ListByMessageIDs(ctx context.Context, messageIDs []string) (map[string]model.ProjectLink, error) {
	result := make(map[string]model.ProjectLink)
	if len(messageIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT message_id, project_id, image_url, relevance, ctime FROM message_projects WHERE message_id IN (?)`, messageIDs)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var link model.ProjectLink
		if err := rows.Scan(&link.MessageID, &link.ProjectID, &link.ImageURL, &link.Relevance, &link.Ctime); err != nil {
			return nil, err
		}
		result[link.MessageID] = link
	}
	return result, rows.Err()
}
