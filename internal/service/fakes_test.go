package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/mfolio/internal/model"
	appErr "github.com/xxxsen/mfolio/internal/pkg/errors"
	"github.com/xxxsen/mfolio/internal/pkg/retry"
	"github.com/xxxsen/mfolio/internal/pkg/textutil"
)

// memStore implements every store interface in memory.
type memStore struct {
	mu sync.Mutex

	facts      []*model.Fact
	projects   []*model.Project
	images     map[string][]model.ProjectImage
	embeddings map[model.ContentKey]*model.EmbeddingRecord
	sessions   map[string]*model.ChatSession
	messages   []model.ChatMessage
	links      map[string]model.ProjectLink
	seq        int64

	factsErr     error
	projectsErr  error
	queryErr     error
	upsertCalls  int
	sessionCalls int
}

func newMemStore() *memStore {
	return &memStore{
		images:     map[string][]model.ProjectImage{},
		embeddings: map[model.ContentKey]*model.EmbeddingRecord{},
		sessions:   map[string]*model.ChatSession{},
		links:      map[string]model.ProjectLink{},
	}
}

func (m *memStore) ListFacts(ctx context.Context) ([]*model.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.factsErr != nil {
		return nil, m.factsErr
	}
	return append([]*model.Fact(nil), m.facts...), nil
}

func (m *memStore) ListProjects(ctx context.Context) ([]*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.projectsErr != nil {
		return nil, m.projectsErr
	}
	return append([]*model.Project(nil), m.projects...), nil
}

func (m *memStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.ID == projectID {
			return p, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (m *memStore) GetItems(ctx context.Context, keys []model.ContentKey) (map[model.ContentKey]model.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.ContentKey]model.ContentItem{}
	for _, k := range keys {
		if item := m.findLocked(k); item != nil {
			out[k] = item
		}
	}
	return out, nil
}

func (m *memStore) findLocked(k model.ContentKey) model.ContentItem {
	switch k.ContentType {
	case model.ContentTypeFact:
		for _, f := range m.facts {
			if f.ID == k.ContentID {
				return f
			}
		}
	case model.ContentTypeProject:
		for _, p := range m.projects {
			if p.ID == k.ContentID {
				return p
			}
		}
	}
	return nil
}

func (m *memStore) FindByText(ctx context.Context, terms []string, types []model.ContentType, limit int) ([]model.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	allowed := map[model.ContentType]bool{}
	for _, t := range types {
		allowed[t] = true
	}
	var out []model.ContentItem
	consider := func(item model.ContentItem) {
		text := strings.ToLower(item.DisplayTitle() + " " + item.SearchText())
		for _, t := range terms {
			if strings.Contains(text, t) {
				out = append(out, item)
				return
			}
		}
	}
	if allowed[model.ContentTypeFact] {
		for _, f := range m.facts {
			consider(f)
		}
	}
	if allowed[model.ContentTypeProject] {
		for _, p := range m.projects {
			consider(p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) FirstImageURL(ctx context.Context, projectID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	imgs := append([]model.ProjectImage(nil), m.images[projectID]...)
	if len(imgs) == 0 {
		return "", nil
	}
	sort.Slice(imgs, func(i, j int) bool { return imgs[i].SortOrder < imgs[j].SortOrder })
	return imgs[0].URL, nil
}

func (m *memStore) Upsert(ctx context.Context, rec *model.EmbeddingRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	cp := *rec
	_, existed := m.embeddings[rec.Key()]
	m.embeddings[rec.Key()] = &cp
	return !existed, nil
}

func (m *memStore) Get(ctx context.Context, key model.ContentKey) (*model.EmbeddingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.embeddings[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) IndexedIDs(ctx context.Context, contentType model.ContentType) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]struct{}{}
	for k := range m.embeddings {
		if k.ContentType == contentType {
			out[k.ContentID] = struct{}{}
		}
	}
	return out, nil
}

func (m *memStore) QuerySimilar(ctx context.Context, vec []float32, types []model.ContentType, limit int) ([]model.VectorMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	allowed := map[model.ContentType]bool{}
	for _, t := range types {
		allowed[t] = true
	}
	var out []model.VectorMatch
	for k, rec := range m.embeddings {
		if !allowed[k.ContentType] || len(rec.Embedding) != len(vec) {
			continue
		}
		out = append(out, model.VectorMatch{Key: k, Similarity: cosine(vec, rec.Embedding)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Key.ContentID < out[j].Key.ContentID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, key model.ContentKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.embeddings, key)
	return nil
}

func (m *memStore) DeleteOrphans(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.embeddings {
		if m.findLocked(k) == nil {
			delete(m.embeddings, k)
			n++
		}
	}
	return n, nil
}

// memSessions and memMessages split the session and message stores, whose
// method names overlap.
type memSessions struct{ *memStore }

func (s memSessions) Create(ctx context.Context, session *model.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionCalls++
	for _, existing := range s.sessions {
		if existing.SessionKey == session.SessionKey {
			return appErr.ErrConflict
		}
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s memSessions) GetByKey(ctx context.Context, sessionKey string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.SessionKey == sessionKey {
			cp := *existing
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s memSessions) GetByID(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sessions[sessionID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *existing
	return &cp, nil
}

func (s memSessions) UpdateTitle(ctx context.Context, sessionID, title string, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sessions[sessionID]
	if !ok {
		return appErr.ErrNotFound
	}
	existing.Title = title
	existing.Mtime = mtime
	return nil
}

func (s memSessions) Touch(ctx context.Context, sessionID string, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sessions[sessionID]
	if !ok {
		return appErr.ErrNotFound
	}
	existing.Mtime = mtime
	return nil
}

type memMessages struct{ *memStore }

func (s memMessages) Create(ctx context.Context, msg *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[msg.SessionID]; !ok {
		return appErr.ErrNotFound
	}
	s.seq++
	msg.Seq = s.seq
	s.messages = append(s.messages, *msg)
	return nil
}

func (s memMessages) GetByID(ctx context.Context, messageID string) (*model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == messageID {
			cp := m
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s memMessages) ListRecent(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.ChatMessage
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			all = append(all, m)
		}
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

type memLinks struct{ *memStore }

func (s memLinks) Upsert(ctx context.Context, link *model.ProjectLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.MessageID] = *link
	return nil
}

func (s memLinks) ListByMessageIDs(ctx context.Context, messageIDs []string) (map[string]model.ProjectLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]model.ProjectLink{}
	for _, id := range messageIDs {
		if l, ok := s.links[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

func (m *memStore) countMessages(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			n++
		}
	}
	return n
}

func (m *memStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// conceptEmbedder maps words onto a few concept axes, so related words land
// close together without a real model.
type conceptEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	fail  map[string]bool
}

var conceptAxes = [][]string{
	{"language", "languages", "typescript", "python", "golang", "java", "rust", "programming"},
	{"web", "website", "frontend", "react", "css", "portfolio"},
	{"database", "postgres", "sql", "storage", "data"},
	{"cloud", "kubernetes", "docker", "deploy", "infrastructure"},
	{"music", "guitar", "hobby", "hobbies"},
}

func (c *conceptEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	err := c.err
	failed := c.fail[text]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if failed {
		return nil, errors.New("provider rejected text")
	}
	vec := make([]float32, len(conceptAxes)+1)
	vec[len(conceptAxes)] = 0.1
	for _, term := range textutil.Tokenize(text) {
		for i, axis := range conceptAxes {
			for _, w := range axis {
				if term == w {
					vec[i]++
				}
			}
		}
	}
	return vec, nil
}

func (c *conceptEmbedder) ModelName() string {
	return "test/concepts"
}

func (c *conceptEmbedder) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type scriptedGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3}
}

type testEnv struct {
	store     *memStore
	embedder  *conceptEmbedder
	generator *scriptedGenerator
	indexer   *IndexerService
	search    *SearchService
	sessions  *SessionService
	linker    *LinkerService
	chat      *ChatService
}

func newTestEnv() *testEnv {
	store := newMemStore()
	embedder := &conceptEmbedder{fail: map[string]bool{}}
	generator := &scriptedGenerator{reply: "Happy to help."}
	env := &testEnv{store: store, embedder: embedder, generator: generator}
	env.indexer = NewIndexerService(store, store, embedder, IndexerOptions{BatchSize: 2})
	env.indexer.pause = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	env.search = NewSearchService(store, store, embedder, SearchConfig{})
	env.sessions = NewSessionService(memSessions{store}, memMessages{store}, testPolicy())
	env.linker = NewLinkerService(memMessages{store}, store, memLinks{store})
	env.chat = NewChatService(env.sessions, env.search, NewContextFormatter(0), env.linker, generator, ChatOptions{})
	return env
}
