package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/mfolio/internal/model"
	"github.com/xxxsen/mfolio/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
)

type EmbeddingRepo struct {
	db *sql.DB
}

func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

// Upsert writes the single embedding of a content item. created reports
// whether a new row was inserted rather than an existing one replaced.
func (r *EmbeddingRepo) Upsert(ctx context.Context, rec *model.EmbeddingRecord) (bool, error) {
	const query = `
		INSERT INTO content_embeddings (content_id, content_type, chunk_index, embedding, embedded_text, model_name, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (content_type, content_id) DO UPDATE SET
			chunk_index = EXCLUDED.chunk_index,
			embedding = EXCLUDED.embedding,
			embedded_text = EXCLUDED.embedded_text,
			model_name = EXCLUDED.model_name,
			mtime = EXCLUDED.mtime
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		rec.ContentID,
		string(rec.ContentType),
		rec.ChunkIndex,
		pgvector.NewVector(rec.Embedding),
		rec.EmbeddedText,
		rec.ModelName,
		rec.Ctime,
		rec.Mtime,
	).Scan(&inserted)
	return inserted, err
}

func (r *EmbeddingRepo) Get(ctx context.Context, key model.ContentKey) (*model.EmbeddingRecord, error) {
	where := map[string]interface{}{
		"content_type": string(key.ContentType),
		"content_id":   key.ContentID,
	}
	sqlStr, args, err := builder.BuildSelect("content_embeddings", where, []string{
		"content_id", "content_type", "chunk_index", "embedding", "embedded_text", "model_name", "ctime", "mtime",
	})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var rec model.EmbeddingRecord
	var contentType string
	var vec pgvector.Vector
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&rec.ContentID, &contentType, &rec.ChunkIndex, &vec, &rec.EmbeddedText, &rec.ModelName, &rec.Ctime, &rec.Mtime,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	rec.ContentType = model.ContentType(contentType)
	rec.Embedding = vec.Slice()
	return &rec, nil
}

// IndexedIDs returns the content ids of one type that already have an embedding.
func (r *EmbeddingRepo) IndexedIDs(ctx context.Context, contentType model.ContentType) (map[string]struct{}, error) {
	where := map[string]interface{}{"content_type": string(contentType)}
	sqlStr, args, err := builder.BuildSelect("content_embeddings", where, []string{"content_id"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// QuerySimilar ranks stored vectors by cosine distance to vec and returns
// similarity = 1 - distance for the nearest limit rows of the given types.
func (r *EmbeddingRepo) QuerySimilar(ctx context.Context, vec []float32, types []model.ContentType, limit int) ([]model.VectorMatch, error) {
	if limit <= 0 || len(types) == 0 {
		return nil, nil
	}
	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}
	const query = `
		SELECT content_id, content_type, 1 - (embedding <=> $1) AS similarity
		FROM content_embeddings
		WHERE content_type = ANY($2) AND vector_dims(embedding) = $3
		ORDER BY embedding <=> $1, content_id
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vec), pq.Array(typeNames), len(vec), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	matches := make([]model.VectorMatch, 0)
	for rows.Next() {
		var m model.VectorMatch
		var contentType string
		var similarity sql.NullFloat64
		if err := rows.Scan(&m.Key.ContentID, &contentType, &similarity); err != nil {
			return nil, err
		}
		if !similarity.Valid {
			continue
		}
		m.Key.ContentType = model.ContentType(contentType)
		m.Similarity = similarity.Float64
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *EmbeddingRepo) Delete(ctx context.Context, key model.ContentKey) error {
	where := map[string]interface{}{
		"content_type": string(key.ContentType),
		"content_id":   key.ContentID,
	}
	sqlStr, args, err := builder.BuildDelete("content_embeddings", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// DeleteOrphans removes embeddings whose content row no longer exists.
func (r *EmbeddingRepo) DeleteOrphans(ctx context.Context) (int64, error) {
	const query = `
		DELETE FROM content_embeddings e
		WHERE (e.content_type = 'fact' AND NOT EXISTS (SELECT 1 FROM facts f WHERE f.id = e.content_id))
			OR (e.content_type = 'project' AND NOT EXISTS (SELECT 1 FROM projects p WHERE p.id = e.content_id))
	`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
