package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mfolio/internal/model"
	"github.com/xxxsen/mfolio/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
)

var sessionColumns = []string{"id", "session_key", "title", "ctime", "mtime"}

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create inserts a session. A duplicate session_key yields appErr.ErrConflict.
func (r *SessionRepo) Create(ctx context.Context, session *model.ChatSession) error {
	data := map[string]interface{}{
		"id":          session.ID,
		"session_key": session.SessionKey,
		"title":       session.Title,
		"ctime":       session.Ctime,
		"mtime":       session.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_sessions", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *SessionRepo) GetByKey(ctx context.Context, sessionKey string) (*model.ChatSession, error) {
	return r.getOne(ctx, map[string]interface{}{"session_key": sessionKey})
}

func (r *SessionRepo) GetByID(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	return r.getOne(ctx, map[string]interface{}{"id": sessionID})
}

func (r *SessionRepo) UpdateTitle(ctx context.Context, sessionID, title string, mtime int64) error {
	where := map[string]interface{}{"id": sessionID}
	update := map[string]interface{}{"title": title, "mtime": mtime}
	return r.update(ctx, where, update)
}

func (r *SessionRepo) Touch(ctx context.Context, sessionID string, mtime int64) error {
	where := map[string]interface{}{"id": sessionID}
	return r.update(ctx, where, map[string]interface{}{"mtime": mtime})
}

func (r *SessionRepo) update(ctx context.Context, where, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("chat_sessions", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *SessionRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.ChatSession, error) {
	sqlStr, args, err := builder.BuildSelect("chat_sessions", where, sessionColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var s model.ChatSession
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&s.ID, &s.SessionKey, &s.Title, &s.Ctime, &s.Mtime)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
