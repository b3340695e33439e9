package model

type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"
	SearchModeLexical SearchMode = "lexical"
)

type SearchResult struct {
	ContentID    string      `json:"content_id"`
	ContentType  ContentType `json:"content_type"`
	Similarity   float64     `json:"similarity"`
	VectorScore  float64     `json:"vector_score"`
	LexicalScore float64     `json:"lexical_score"`
	Item         ContentItem `json:"item"`
}

func (r *SearchResult) Key() ContentKey {
	return ContentKey{ContentType: r.ContentType, ContentID: r.ContentID}
}
