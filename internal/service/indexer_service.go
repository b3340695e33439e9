package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/mfolio/internal/ai"
	"github.com/xxxsen/mfolio/internal/model"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
	"github.com/xxxsen/mfolio/internal/pkg/textutil"
	"github.com/xxxsen/mfolio/internal/pkg/timeutil"
)

const (
	defaultIndexBatchSize  = 10
	defaultIndexBatchPause = time.Second
)

type IndexOutcome string

const (
	IndexCreated IndexOutcome = "created"
	IndexUpdated IndexOutcome = "updated"
	IndexSkipped IndexOutcome = "skipped"
)

type IndexerOptions struct {
	BatchSize   int
	BatchPause  time.Duration
	Concurrency int
}

type IndexFailure struct {
	ContentType model.ContentType `json:"content_type"`
	ContentID   string            `json:"content_id"`
	Error       string            `json:"error"`
}

// IndexReport summarises one IndexAll run. A failure with an empty ContentID
// means a whole content family could not be loaded; it is not part of Failed.
type IndexReport struct {
	Created  int            `json:"created"`
	Updated  int            `json:"updated"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	Failures []IndexFailure `json:"failures"`
}

func (r *IndexReport) record(item model.ContentItem, outcome IndexOutcome, err error) {
	if err != nil {
		r.Failed++
		key := item.Key()
		r.Failures = append(r.Failures, IndexFailure{ContentType: key.ContentType, ContentID: key.ContentID, Error: err.Error()})
		return
	}
	switch outcome {
	case IndexCreated:
		r.Created++
	case IndexUpdated:
		r.Updated++
	case IndexSkipped:
		r.Skipped++
	}
}

type IndexerService struct {
	contents   IContentStore
	embeddings IEmbeddingStore
	embedder   ai.IEmbedder
	opts       IndexerOptions
	pause      func(ctx context.Context, d time.Duration) error
}

func NewIndexerService(contents IContentStore, embeddings IEmbeddingStore, embedder ai.IEmbedder, opts IndexerOptions) *IndexerService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultIndexBatchSize
	}
	if opts.BatchPause < 0 {
		opts.BatchPause = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &IndexerService{
		contents:   contents,
		embeddings: embeddings,
		embedder:   embedder,
		opts:       opts,
		pause:      sleepContext,
	}
}

// IndexAll embeds every fact and project. Without force, items that already
// have an embedding are skipped. Per-item failures never stop the run.
func (s *IndexerService) IndexAll(ctx context.Context, force bool) (*IndexReport, error) {
	logger := logutil.GetLogger(ctx).With(zap.Bool("force", force))
	report := &IndexReport{Failures: []IndexFailure{}}

	var items []model.ContentItem
	loaded := 0
	for _, contentType := range model.AllContentTypes {
		family, err := s.loadFamily(ctx, contentType, force)
		if err != nil {
			logger.Error("load content family failed", zap.String("content_type", string(contentType)), zap.Error(err))
			report.Failures = append(report.Failures, IndexFailure{ContentType: contentType, Error: err.Error()})
			continue
		}
		loaded++
		for _, it := range family.items {
			if _, ok := family.indexed[it.Key().ContentID]; ok {
				report.Skipped++
				continue
			}
			items = append(items, it)
		}
	}
	if loaded == 0 {
		return report, fmt.Errorf("%w: no content could be loaded", appErr.ErrIndexingFailure)
	}

	var mu sync.Mutex
	for start := 0; start < len(items); start += s.opts.BatchSize {
		if start > 0 {
			if err := s.pause(ctx, s.opts.BatchPause); err != nil {
				return report, err
			}
		}
		end := min(start+s.opts.BatchSize, len(items))
		var g errgroup.Group
		g.SetLimit(s.opts.Concurrency)
		for _, item := range items[start:end] {
			g.Go(func() error {
				outcome, err := s.indexItem(ctx, item)
				if err != nil {
					logger.Warn("index item failed", zap.String("key", item.Key().String()), zap.Error(err))
				}
				mu.Lock()
				report.record(item, outcome, err)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}
	logger.Info("index run finished",
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// IndexItem (re)indexes a single content item, typically after an edit.
func (s *IndexerService) IndexItem(ctx context.Context, key model.ContentKey, force bool) (IndexOutcome, error) {
	items, err := s.contents.GetItems(ctx, []model.ContentKey{key})
	if err != nil {
		return "", fmt.Errorf("%w: %w", appErr.ErrIndexingFailure, err)
	}
	item, ok := items[key]
	if !ok {
		return "", fmt.Errorf("%w: %w", appErr.ErrIndexingFailure, appErr.ErrNotFound)
	}
	if !force {
		_, err := s.embeddings.Get(ctx, key)
		if err == nil {
			return IndexSkipped, nil
		}
		if !appErr.IsNotFound(err) {
			return "", fmt.Errorf("%w: %w", appErr.ErrIndexingFailure, err)
		}
	}
	return s.indexItem(ctx, item)
}

// RemoveItem drops the embedding of a deleted content item.
func (s *IndexerService) RemoveItem(ctx context.Context, key model.ContentKey) error {
	if err := s.embeddings.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %w", appErr.ErrPersistenceFailure, err)
	}
	return nil
}

// Prune removes embeddings whose content item no longer exists.
func (s *IndexerService) Prune(ctx context.Context) (int64, error) {
	removed, err := s.embeddings.DeleteOrphans(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", appErr.ErrPersistenceFailure, err)
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("pruned orphan embeddings", zap.Int64("count", removed))
	}
	return removed, nil
}

type contentFamily struct {
	items   []model.ContentItem
	indexed map[string]struct{}
}

func (s *IndexerService) loadFamily(ctx context.Context, contentType model.ContentType, force bool) (*contentFamily, error) {
	family := &contentFamily{indexed: map[string]struct{}{}}
	switch contentType {
	case model.ContentTypeFact:
		facts, err := s.contents.ListFacts(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range facts {
			family.items = append(family.items, f)
		}
	case model.ContentTypeProject:
		projects, err := s.contents.ListProjects(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range projects {
			family.items = append(family.items, p)
		}
	default:
		return nil, fmt.Errorf("unknown content type: %s", contentType)
	}
	if force {
		return family, nil
	}
	indexed, err := s.embeddings.IndexedIDs(ctx, contentType)
	if err != nil {
		return nil, err
	}
	family.indexed = indexed
	return family, nil
}

func (s *IndexerService) indexItem(ctx context.Context, item model.ContentItem) (IndexOutcome, error) {
	text := EmbeddingText(item)
	if text == "" {
		return "", fmt.Errorf("%w: %w: nothing to embed", appErr.ErrIndexingFailure, appErr.ErrInvalid)
	}
	vec, err := s.embedder.Embed(ctx, text, ai.TaskRetrievalDocument)
	if err != nil {
		return "", fmt.Errorf("%w: %w", appErr.ErrIndexingFailure, err)
	}
	now := timeutil.NowUnixMilli()
	key := item.Key()
	created, err := s.embeddings.Upsert(ctx, &model.EmbeddingRecord{
		ContentID:    key.ContentID,
		ContentType:  key.ContentType,
		Embedding:    vec,
		EmbeddedText: text,
		ModelName:    s.embedder.ModelName(),
		Ctime:        now,
		Mtime:        now,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", appErr.ErrIndexingFailure, appErr.ErrPersistenceFailure, err)
	}
	if created {
		return IndexCreated, nil
	}
	return IndexUpdated, nil
}

// EmbeddingText builds the canonical text embedded for a content item.
// Empty fields are left out.
func EmbeddingText(item model.ContentItem) string {
	var lines []string
	add := func(label, value string) {
		value = strings.TrimSpace(value)
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	switch it := item.(type) {
	case *model.Fact:
		add("Title", it.Title)
		add("Category", it.Category)
		add("Content", it.Content)
		add("Keywords", joinNonEmpty(it.Keywords, ", "))
	case *model.Project:
		add("Project", it.Title)
		add("Summary", strings.ReplaceAll(textutil.MarkdownToText(it.Summary), "\n", " "))
		add("Features", joinNonEmpty(it.Features, "; "))
		add("Tools", joinNonEmpty(it.Tools, ", "))
		add("Tags", joinNonEmpty(it.Tags, ", "))
	}
	return strings.Join(lines, "\n")
}

func joinNonEmpty(values []string, sep string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
