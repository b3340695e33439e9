package model

type EmbeddingRecord struct {
	ContentID    string      `json:"content_id"`
	ContentType  ContentType `json:"content_type"`
	ChunkIndex   int         `json:"chunk_index"`
	Embedding    []float32   `json:"embedding"`
	EmbeddedText string      `json:"embedded_text"`
	ModelName    string      `json:"model_name"`
	Ctime        int64       `json:"ctime"`
	Mtime        int64       `json:"mtime"`
}

func (r *EmbeddingRecord) Key() ContentKey {
	return ContentKey{ContentType: r.ContentType, ContentID: r.ContentID}
}

// VectorMatch is one row of a similarity query against the embedding store.
type VectorMatch struct {
	Key        ContentKey
	Similarity float64
}
