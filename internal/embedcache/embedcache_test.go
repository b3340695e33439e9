package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mfolio/internal/model"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) ModelName() string {
	return "test/model"
}

type memCacheStore struct {
	items   map[string][]float32
	readErr error
	saveErr error
}

func (m *memCacheStore) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	v, ok := m.items[modelName+taskType+contentHash]
	return v, ok, nil
}

func (m *memCacheStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.items[item.ModelName+item.TaskType+item.ContentHash] = item.Embedding
	return nil
}

func TestLruEmbedder_CachesByTextAndTask(t *testing.T) {
	inner := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(inner, 10, time.Minute)

	v1, err := e.Embed(context.Background(), "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	v1[0] = 999
	v2, err := e.Embed(context.Background(), "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, float32(5), v2[0])
	require.Equal(t, 1, inner.calls)

	_, err = e.Embed(context.Background(), "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestLruEmbedder_DisabledReturnsInner(t *testing.T) {
	inner := &countingEmbedder{}
	require.Same(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
}

func TestDBEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	store := &memCacheStore{items: map[string][]float32{}}
	e := WrapDBCacheToEmbedder(inner, store)

	_, err := e.Embed(context.Background(), "fact text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "fact text", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Len(t, store.items, 1)
}

func TestDBEmbedder_StoreFailuresAreNotFatal(t *testing.T) {
	inner := &countingEmbedder{}
	store := &memCacheStore{items: map[string][]float32{}, readErr: errors.New("db down"), saveErr: errors.New("db down")}
	e := WrapDBCacheToEmbedder(inner, store)
	vec, err := e.Embed(context.Background(), "x", "")
	require.NoError(t, err)
	require.NotEmpty(t, vec)

	inner.err = errors.New("provider down")
	_, err = e.Embed(context.Background(), "y", "")
	require.Error(t, err)
}
