package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mfolio/internal/ai"
	"github.com/xxxsen/mfolio/internal/model"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
	"github.com/xxxsen/mfolio/internal/pkg/textutil"
)

const (
	DefaultMatchThreshold = 0.5
	DefaultMatchCount     = 5
	DefaultCandidateLimit = 200
	DefaultLexicalWeight  = 0.1
	// MaxLexicalWeight keeps lexical overlap from overturning a wide vector gap.
	MaxLexicalWeight = 0.2
)

type SearchOptions struct {
	MatchThreshold float64
	MatchCount     int
	// ContentTypes restricts candidates before ranking. Empty means all types.
	ContentTypes []model.ContentType
	// LexicalFallback ranks by the lexical signal alone when the query cannot
	// be embedded. Off unless the caller asks for it.
	LexicalFallback bool
}

func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MatchThreshold: DefaultMatchThreshold,
		MatchCount:     DefaultMatchCount,
		ContentTypes:   model.AllContentTypes,
	}
}

type SearchResponse struct {
	Results []model.SearchResult
	Mode    model.SearchMode
}

type SearchConfig struct {
	CandidateLimit int
	LexicalWeight  float64
}

type SearchService struct {
	contents       IContentStore
	embeddings     IEmbeddingStore
	embedder       ai.IEmbedder
	candidateLimit int
	lexicalWeight  float64
}

func NewSearchService(contents IContentStore, embeddings IEmbeddingStore, embedder ai.IEmbedder, cfg SearchConfig) *SearchService {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.LexicalWeight <= 0 {
		cfg.LexicalWeight = DefaultLexicalWeight
	}
	if cfg.LexicalWeight > MaxLexicalWeight {
		cfg.LexicalWeight = MaxLexicalWeight
	}
	return &SearchService{
		contents:       contents,
		embeddings:     embeddings,
		embedder:       embedder,
		candidateLimit: cfg.CandidateLimit,
		lexicalWeight:  cfg.LexicalWeight,
	}
}

// Search ranks facts and projects against query by fusing vector similarity
// with a lexical signal.
func (s *SearchService) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error) {
	resp := &SearchResponse{Results: []model.SearchResult{}, Mode: model.SearchModeHybrid}
	if opts.MatchCount <= 0 {
		return resp, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: %w: empty query", appErr.ErrSearchFailure, appErr.ErrInvalid)
	}
	types, err := normalizeTypes(opts.ContentTypes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSearchFailure, err)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("query", query))
	q := newLexicalQuery(query)

	vec, err := s.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		if !opts.LexicalFallback || ctx.Err() != nil {
			if !errors.Is(err, appErr.ErrEmbeddingFailure) {
				err = fmt.Errorf("%w: %w", appErr.ErrEmbeddingFailure, err)
			}
			return nil, fmt.Errorf("%w: %w", appErr.ErrSearchFailure, err)
		}
		logger.Warn("query embedding failed, using lexical ranking", zap.Error(err))
		resp.Mode = model.SearchModeLexical
		resp.Results, err = s.lexicalSearch(ctx, q, types, opts)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	matches, err := s.embeddings.QuerySimilar(ctx, vec, types, s.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSearchFailure, err)
	}
	if len(matches) == 0 {
		return resp, nil
	}
	keys := make([]model.ContentKey, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m.Key)
	}
	items, err := s.contents.GetItems(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSearchFailure, err)
	}
	results := make([]model.SearchResult, 0, len(matches))
	for _, m := range matches {
		item, ok := items[m.Key]
		if !ok {
			logger.Warn("embedding without content, skipped", zap.String("key", m.Key.String()))
			continue
		}
		vector := clamp01(m.Similarity)
		lexical := q.score(item)
		results = append(results, model.SearchResult{
			ContentID:    m.Key.ContentID,
			ContentType:  m.Key.ContentType,
			Similarity:   Fuse(vector, lexical, s.lexicalWeight),
			VectorScore:  vector,
			LexicalScore: lexical,
			Item:         item,
		})
	}
	resp.Results = rankResults(results, opts.MatchThreshold, opts.MatchCount)
	return resp, nil
}

func (s *SearchService) lexicalSearch(ctx context.Context, q *lexicalQuery, types []model.ContentType, opts SearchOptions) ([]model.SearchResult, error) {
	if len(q.terms) == 0 {
		return []model.SearchResult{}, nil
	}
	items, err := s.contents.FindByText(ctx, q.terms, types, s.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSearchFailure, err)
	}
	results := make([]model.SearchResult, 0, len(items))
	for _, item := range items {
		key := item.Key()
		lexical := q.score(item)
		results = append(results, model.SearchResult{
			ContentID:    key.ContentID,
			ContentType:  key.ContentType,
			Similarity:   lexical,
			LexicalScore: lexical,
			Item:         item,
		})
	}
	return rankResults(results, opts.MatchThreshold, opts.MatchCount), nil
}

// Fuse combines both signals into one score in [0,1]. It is non-decreasing in
// each argument and lets the lexical signal move a result by at most weight.
func Fuse(vector, lexical, weight float64) float64 {
	return clamp01(clamp01(vector) + weight*clamp01(lexical))
}

func rankResults(results []model.SearchResult, threshold float64, count int) []model.SearchResult {
	kept := results[:0]
	for _, r := range results {
		if r.Similarity >= threshold {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if ua, ub := a.Item.UpdatedAt(), b.Item.UpdatedAt(); ua != ub {
			return ua > ub
		}
		if a.ContentID != b.ContentID {
			return a.ContentID < b.ContentID
		}
		return a.ContentType < b.ContentType
	})
	if len(kept) > count {
		kept = kept[:count]
	}
	return kept
}

type lexicalQuery struct {
	phrase string
	terms  []string
}

func newLexicalQuery(query string) *lexicalQuery {
	return &lexicalQuery{phrase: textutil.Normalize(query), terms: textutil.Tokenize(query)}
}

// score is 1 when the whole query appears in the title, otherwise the share
// of query terms found in the title or body.
func (q *lexicalQuery) score(item model.ContentItem) float64 {
	title := textutil.Normalize(item.DisplayTitle())
	if q.phrase != "" && strings.Contains(" "+title+" ", " "+q.phrase+" ") {
		return 1
	}
	return textutil.TokenOverlap(q.terms, item.DisplayTitle()+" "+item.SearchText())
}

func normalizeTypes(types []model.ContentType) ([]model.ContentType, error) {
	if len(types) == 0 {
		return model.AllContentTypes, nil
	}
	seen := make(map[model.ContentType]struct{}, len(types))
	out := make([]model.ContentType, 0, len(types))
	for _, t := range types {
		if _, err := model.ParseContentType(string(t)); err != nil {
			return nil, fmt.Errorf("%w: %w", appErr.ErrInvalid, err)
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
