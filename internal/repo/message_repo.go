package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mfolio/internal/model"
	"github.com/xxxsen/mfolio/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create appends a message and fills in the store-assigned sequence.
func (r *MessageRepo) Create(ctx context.Context, msg *model.ChatMessage) error {
	const query = `
		INSERT INTO chat_messages (id, session_id, role, content, ctime)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`
	err := r.db.QueryRowContext(ctx, query, msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Ctime).Scan(&msg.Seq)
	if err != nil {
		if dbutil.IsForeignKeyViolation(err) {
			return appErr.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, messageID string) (*model.ChatMessage, error) {
	sqlStr, args, err := builder.BuildSelect("chat_messages", map[string]interface{}{"id": messageID},
		[]string{"id", "session_id", "role", "content", "seq", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var m model.ChatMessage
	var role string
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Seq, &m.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	m.Role = model.Role(role)
	return &m, nil
}

// ListRecent returns the latest limit messages of a session in ascending
// sequence order.
func (r *MessageRepo) ListRecent(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	const query = `
		SELECT id, session_id, role, content, seq, ctime FROM (
			SELECT id, session_id, role, content, seq, ctime
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	messages := make([]model.ChatMessage, 0)
	for rows.Next() {
		var m model.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Seq, &m.Ctime); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
