package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/qa"
	"ragchat/internal/service"
	"ragchat/internal/vectorstore/chromem"
	"ragchat/internal/vectorstore/qdrant"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	root := t.TempDir()
	corpus := filepath.Join(root, "murli")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	files := map[string]string{
		"murli_en_2002-11-23_avyakt.txt": "Silence clears the intellect.\n\nIn silence the soul hears the Father.",
		"murli_en_1972-07-16_avyakt.txt": "The gardener waters the tree every morning.\n\nPatience makes the roots strong.",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(corpus, name), []byte(content), 0o644))
	}

	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv(config.EnvDocLocation, "")
	t.Setenv(config.EnvIndexStore, "")
	t.Setenv(config.EnvFaissStore, "")
	t.Setenv(config.EnvHistoryLocation, "")
	path := filepath.Join(root, "config.yaml")
	yaml := `
corpus:
  location: ` + corpus + `
  persist_root: ` + filepath.Join(root, "index") + `
embedder:
  type: tfidf
history:
  location: ` + filepath.Join(root, "history") + `
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNew_WithoutLLMKeyFallsBackToExtractive(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, service.StateReady, a.Gate.State())
	assert.Equal(t, 2, a.Index.Count())
	assert.Equal(t, []string{qa.ChainExtractive}, a.Chains.Names())
	assert.Equal(t, qa.ChainExtractive, a.Questions.Defaults().ChainType)

	ans, err := a.Questions.Ask(context.Background(), "What does the gardener do?")
	require.NoError(t, err)
	require.NotEmpty(t, ans.Texts)
	assert.Contains(t, ans.Text, "gardener")
	assert.Equal(t, "murli_en_1972-07-16_avyakt", service.ExtractSources(ans.Metadata)[0])

	questions, err := a.History.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"What does the gardener do?"}, questions)
	assert.Equal(t, filepath.Join(cfg.History.Location, config.HistoryFileName), a.History.Path())
}

func TestNew_SecondSessionReusesIndex(t *testing.T) {
	cfg := testConfig(t)
	first, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Removing the corpus proves the second session never rebuilds.
	require.NoError(t, os.RemoveAll(cfg.Corpus.Location))
	second, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Index.Count())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.ContextSize = -1
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "invalid config")
}

func TestNewChunker(t *testing.T) {
	ch, err := NewChunker(config.ChunkerConfig{Type: "parts", Parts: 3}, nil)
	require.NoError(t, err)
	assert.IsType(t, &chunker.PartSplitter{}, ch)

	_, err = NewChunker(config.ChunkerConfig{Type: "parts", Parts: 0}, nil)
	assert.ErrorIs(t, err, chunker.ErrInvalidPartCount)

	_, err = NewChunker(config.ChunkerConfig{Type: "paragraph"}, nil)
	assert.Error(t, err)
}

func TestNewEmbedder_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewEmbedder(config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIConfig{APIKeyEnv: "OPENAI_API_KEY"}}, nil)
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}

func TestNewFactory(t *testing.T) {
	f, err := NewFactory(config.VectorStoreConfig{Type: "chromem"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &chromem.Factory{}, f)

	f, err = NewFactory(config.VectorStoreConfig{Type: "qdrant", Qdrant: &config.QdrantConfig{URL: "http://localhost:6333"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &qdrant.Factory{}, f)

	_, err = NewFactory(config.VectorStoreConfig{Type: "qdrant"}, nil)
	assert.Error(t, err)
	_, err = NewFactory(config.VectorStoreConfig{Type: "faiss"}, nil)
	assert.Error(t, err)
}
