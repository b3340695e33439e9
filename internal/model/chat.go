package model

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type ChatSession struct {
	ID         string `json:"id"`
	SessionKey string `json:"session_key"`
	Title      string `json:"title"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Seq       int64  `json:"seq"`
	Ctime     int64  `json:"ctime"`
}

type ProjectLink struct {
	MessageID string  `json:"message_id"`
	ProjectID string  `json:"project_id"`
	ImageURL  string  `json:"image_url"`
	Relevance float64 `json:"relevance"`
	Ctime     int64   `json:"ctime"`
}
