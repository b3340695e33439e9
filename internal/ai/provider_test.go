package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProvider_Registry(t *testing.T) {
	_, err := NewProvider("", nil)
	require.Error(t, err)
	_, err = NewProvider("unknown", map[string]interface{}{})
	require.Error(t, err)

	p, err := NewProvider(" OpenRouter ", map[string]interface{}{"api_key": "k"})
	require.NoError(t, err)
	require.Equal(t, "openrouter", p.Name())

	_, err = NewEmbedProvider("openrouter", map[string]interface{}{"api_key": "k"})
	require.Error(t, err)

	ep, err := NewEmbedProvider("gemini", map[string]interface{}{"api_key": "k"})
	require.NoError(t, err)
	require.Equal(t, "gemini/text-embedding-004", NewEmbedder(ep, "text-embedding-004").ModelName())
}

func TestOpenAIProvider_EmbedAndGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/embeddings":
			var req openAIEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "embed-model", req.Model)
			_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
		case "/v1/chat/completions":
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hi there  "}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p, err := newOpenAIProvider(map[string]interface{}{"api_key": "key", "base_url": srv.URL + "/v1/"})
	require.NoError(t, err)

	vec, err := p.Embed(context.Background(), "embed-model", "hello", TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	text, err := NewGenerator(p, "chat-model").Generate(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "hi there", text)
}

func TestOpenAIProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	p, err := newOpenAIProvider(map[string]interface{}{"api_key": "key", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), "m", "hello", "")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.True(t, IsRetryable(err))
}

func TestOpenAIProvider_MissingKey(t *testing.T) {
	p, err := newOpenAIProvider(map[string]interface{}{})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), "m", "hello", "")
	require.ErrorIs(t, err, ErrUnavailable)
	require.False(t, IsRetryable(err))
}

type staticGenerator struct {
	out string
	err error
}

func (s staticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return s.out, s.err
}

func TestGroupGenerator_FallsBack(t *testing.T) {
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "primary", Generator: staticGenerator{err: errors.New("down")}},
		{Name: "backup", Generator: staticGenerator{out: "ok"}},
	})
	out, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "ok", out)

	g = NewGroupGenerator([]GeneratorEntry{
		{Name: "a", Generator: staticGenerator{err: errors.New("a")}},
		{Name: "b", Generator: staticGenerator{err: errors.New("b")}},
	})
	_, err = g.Generate(context.Background(), "p")
	require.EqualError(t, err, "b")
	require.Nil(t, NewGroupGenerator(nil))
}
