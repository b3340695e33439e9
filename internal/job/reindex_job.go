package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mfolio/internal/service"
)

type contentIndexer interface {
	IndexAll(ctx context.Context, force bool) (*service.IndexReport, error)
	Prune(ctx context.Context) (int64, error)
}

// ReindexJob embeds content that has no embedding yet and drops embeddings
// of deleted content.
type ReindexJob struct {
	indexer contentIndexer
}

func NewReindexJob(indexer contentIndexer) *ReindexJob {
	return &ReindexJob{indexer: indexer}
}

func (j *ReindexJob) Name() string {
	return "content_reindex"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	if j.indexer == nil {
		return nil
	}
	report, err := j.indexer.IndexAll(ctx, false)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		logutil.GetLogger(ctx).Warn("reindex finished with failures",
			zap.Int("failed", report.Failed),
			zap.Int("created", report.Created),
		)
	}
	_, err = j.indexer.Prune(ctx)
	return err
}
