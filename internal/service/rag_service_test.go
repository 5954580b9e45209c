package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/history"
	"ragchat/internal/qa"
)

type fakeIndex struct {
	results   []domain.SearchResult
	err       error
	lastQuery string
	lastK     int
}

func (f *fakeIndex) Search(_ context.Context, query string, topK int) ([]domain.SearchResult, error) {
	f.lastQuery, f.lastK = query, topK
	if f.err != nil {
		return nil, f.err
	}
	return f.results[:min(topK, len(f.results))], nil
}

func (f *fakeIndex) Count() int { return len(f.results) }

type fakeChains struct {
	reply        string
	err          error
	lastChain    string
	lastQuestion string
	lastChunks   []domain.Chunk
}

func (f *fakeChains) Has(name string) bool { return name == qa.ChainStuff || name == qa.ChainRefine }

func (f *fakeChains) Answer(_ context.Context, chainType, question string, chunks []domain.Chunk) (string, error) {
	f.lastChain, f.lastQuestion, f.lastChunks = chainType, question, chunks
	return f.reply, f.err
}

func result(path, text string) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{Text: text, Metadata: map[string]string{domain.MetadataSource: path}}}
}

func newService(t *testing.T, idx *fakeIndex, chains *fakeChains) (*QuestionService, *history.File) {
	t.Helper()
	h := history.New(filepath.Join(t.TempDir(), "chat_history.txt"))
	return NewQuestionService(idx, chains, h, Defaults{ChainType: qa.ChainStuff, ContextSize: 4}, nil, nil), h
}

func TestEnhanceQuestion(t *testing.T) {
	assert.Equal(t, "According to the context: Who is the Father?", EnhanceQuestion("Who is the Father?"))
}

func TestExtractSources(t *testing.T) {
	got := ExtractSources([]map[string]string{
		{domain.MetadataSource: `C:\development\playground\murli_en_chat\data\murli_en_2002-11-23_avyakt.txt`},
		{domain.MetadataSource: "/data/murli_en_1972-07-16_avyakt_2011-03-20.txt"},
		{domain.MetadataSource: "notes.md"},
		{},
	})
	assert.Equal(t, []string{"murli_en_2002-11-23_avyakt", "murli_en_1972-07-16_avyakt_2011-03-20", "notes.md", ""}, got)
}

func TestSearch_RetrievesWithRawQuestionAndAnswersEnhanced(t *testing.T) {
	idx := &fakeIndex{results: []domain.SearchResult{
		result("/d/a.txt", "first"), result("/d/b.txt", "second"), result("/d/c.txt", "third"),
	}}
	chains := &fakeChains{reply: "It is silence."}
	svc, _ := newService(t, idx, chains)

	ans, err := svc.Search(context.Background(), "  What is silence?  ", qa.ChainRefine, 2)
	require.NoError(t, err)
	assert.Equal(t, "What is silence?", idx.lastQuery)
	assert.Equal(t, 2, idx.lastK)
	assert.Equal(t, qa.ChainRefine, chains.lastChain)
	assert.Equal(t, "According to the context: What is silence?", chains.lastQuestion)
	assert.Len(t, chains.lastChunks, 2)

	assert.Equal(t, "It is silence.", ans.Text)
	assert.Equal(t, qa.ChainRefine, ans.ChainType)
	assert.Equal(t, []string{"first", "second"}, ans.Texts)
	assert.Equal(t, []string{"a", "b"}, ExtractSources(ans.Metadata))
}

func TestSearch_Defaults(t *testing.T) {
	idx := &fakeIndex{results: []domain.SearchResult{result("/d/a.txt", "first")}}
	chains := &fakeChains{reply: "ok"}
	svc, _ := newService(t, idx, chains)

	_, err := svc.Search(context.Background(), "q", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, idx.lastK)
	assert.Equal(t, qa.ChainStuff, chains.lastChain)
}

func TestSearch_Errors(t *testing.T) {
	idx := &fakeIndex{}
	svc, _ := newService(t, idx, &fakeChains{})

	_, err := svc.Search(context.Background(), "   ", "", 0)
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = svc.Search(context.Background(), "q", "map_rerank", 0)
	assert.ErrorIs(t, err, qa.ErrUnknownChainType)
	assert.Empty(t, idx.lastQuery)

	idx.err = errors.New("disk gone")
	_, err = svc.Search(context.Background(), "q", "", 0)
	assert.ErrorContains(t, err, "disk gone")
}

func TestAsk_WritesHistoryOnlyWhenSomethingRetrieved(t *testing.T) {
	idx := &fakeIndex{}
	chains := &fakeChains{reply: "I don't know."}
	svc, h := newService(t, idx, chains)

	ans, err := svc.Ask(context.Background(), "Unrelated question")
	require.NoError(t, err)
	assert.Empty(t, ans.Texts)
	got, err := h.Read()
	require.NoError(t, err)
	assert.Empty(t, got)

	idx.results = []domain.SearchResult{result("/d/a.txt", "first")}
	_, err = svc.Ask(context.Background(), "What is silence?")
	require.NoError(t, err)
	got, err = h.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"What is silence?"}, got)
}

func TestAsk_ChainFailureWritesNoHistory(t *testing.T) {
	idx := &fakeIndex{results: []domain.SearchResult{result("/d/a.txt", "first")}}
	svc, h := newService(t, idx, &fakeChains{err: errors.New("rate limited")})

	_, err := svc.Ask(context.Background(), "What is silence?")
	require.Error(t, err)
	got, err := h.Read()
	require.NoError(t, err)
	assert.Empty(t, got)
}
