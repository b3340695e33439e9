package embedcache

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mfolio/internal/ai"
	"github.com/xxxsen/mfolio/internal/model"
	"github.com/xxxsen/mfolio/internal/pkg/timeutil"
)

// ICacheStore is satisfied by repo.EmbeddingCacheRepo.
type ICacheStore interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

// WrapDBCacheToEmbedder consults the persistent cache before the provider.
// Cache read or write failures never fail the embed call.
func WrapDBCacheToEmbedder(e ai.IEmbedder, store ICacheStore) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store ICacheStore
}

func (d *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	logger := logutil.GetLogger(ctx)
	key := buildCacheKey(d.next.ModelName(), taskType, text)
	values, ok, err := d.store.Get(ctx, key.model, key.taskType, key.contentHash)
	switch {
	case err != nil:
		logger.Warn("embedding cache read failed", zap.Error(err))
	case ok:
		logger.Debug("embedding cache hit (db)", zap.String("task_type", taskType))
		return values, nil
	}
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := d.store.Save(ctx, &model.EmbeddingCache{
		ModelName:   key.model,
		TaskType:    key.taskType,
		ContentHash: key.contentHash,
		Embedding:   res,
		Ctime:       timeutil.NowUnixMilli(),
	}); err != nil {
		logger.Warn("failed to cache embedding", zap.Error(err))
	}
	return res, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
