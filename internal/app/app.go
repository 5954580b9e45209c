// Package app assembles one chat session: config, index, chains and history.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/embedding/openai"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/history"
	"ragchat/internal/loader"
	"ragchat/internal/metrics"
	"ragchat/internal/qa"
	"ragchat/internal/service"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/chromem"
	"ragchat/internal/vectorstore/qdrant"
)

// App owns every long-lived component of a session.
type App struct {
	Config    *config.AppConfig
	Logger    *zap.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Gate      *service.Gate
	Index     vectorstore.Index
	Chains    *qa.Chains
	History   *history.File
	Questions *service.QuestionService
}

// New validates cfg, opens or builds the corpus index and wires the question service.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	gate, err := NewGate(cfg, a.Metrics, logger)
	if err != nil {
		return nil, err
	}
	a.Gate = gate
	if a.Index, err = gate.Init(ctx); err != nil {
		return nil, err
	}

	a.Chains = qa.New(newLLM(cfg, logger), qa.Config{Temperature: cfg.LLM.Temperature, MaxSentences: cfg.Search.MaxSentences}, logger)
	defaults := service.Defaults{ChainType: cfg.Search.ChainType, ContextSize: cfg.Search.ContextSize}
	if !a.Chains.Has(defaults.ChainType) {
		logger.Warn("chain type unavailable, answering extractively", zap.String("chain_type", defaults.ChainType))
		defaults.ChainType = qa.ChainExtractive
	}
	a.History = history.New(cfg.HistoryFile())
	a.Questions = service.NewQuestionService(a.Index, a.Chains, a.History, defaults, a.Metrics, logger)
	logger.Info("session ready", zap.Int("chunks", a.Index.Count()), zap.Strings("chains", a.Chains.Names()))
	return a, nil
}

// NewGate builds the gate of the configured corpus without initializing it.
func NewGate(cfg *config.AppConfig, m *metrics.Metrics, logger *zap.Logger) (*service.Gate, error) {
	ch, err := NewChunker(cfg.Chunker, logger)
	if err != nil {
		return nil, err
	}
	emb, err := NewEmbedder(cfg.Embedder, logger)
	if err != nil {
		return nil, err
	}
	factory, err := NewFactory(cfg.VectorStore, logger)
	if err != nil {
		return nil, err
	}
	gcfg := service.GateConfig{Corpus: cfg.Corpus.Location, PersistRoot: cfg.Corpus.PersistRoot, MaxChunks: cfg.Corpus.MaxChunks}
	return service.NewGate(gcfg, loader.New(logger), ch, emb, factory, m, logger), nil
}

// NewFactory selects the vector store named by cfg.Type.
func NewFactory(cfg config.VectorStoreConfig, logger *zap.Logger) (vectorstore.Factory, error) {
	switch cfg.Type {
	case "chromem", "":
		return chromem.NewFactory(chromem.Config{Compress: cfg.Compress}, logger), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant vector store config missing")
		}
		f, err := qdrant.NewFactory(qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  os.Getenv(cfg.Qdrant.APIKeyEnv),
			Timeout: time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("qdrant vector store init failed: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

// NewChunker selects the chunker named by cfg.Type.
func NewChunker(cfg config.ChunkerConfig, logger *zap.Logger) (domain.Chunker, error) {
	switch cfg.Type {
	case "character", "":
		return chunker.NewCharacterChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separators), nil
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	case "parts":
		return chunker.NewPartSplitter(cfg.Parts, logger)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Type)
	}
}

// NewEmbedder selects the embedder named by cfg.Type.
func NewEmbedder(cfg config.EmbedderConfig, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai", "":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKeyEnv:         cfg.OpenAI.APIKeyEnv,
			Model:             cfg.OpenAI.Model,
			Timeout:           time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize:         cfg.OpenAI.BatchSize,
			RequestsPerMinute: cfg.OpenAI.RequestsPerMinute,
			MaxRetries:        cfg.OpenAI.MaxRetries,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

// newLLM returns nil when no API key is set; only the extractive chain is then available.
func newLLM(cfg *config.AppConfig, logger *zap.Logger) llms.Model {
	o := cfg.LLM.OpenAI
	if os.Getenv(o.APIKeyEnv) == "" {
		logger.Warn("no LLM API key, LLM chains disabled", zap.String("env", o.APIKeyEnv))
		return nil
	}
	llm, err := qa.NewOpenAI(qa.LLMConfig{
		BaseURL:   o.BaseURL,
		APIKeyEnv: o.APIKeyEnv,
		Model:     o.Model,
		Timeout:   time.Duration(o.TimeoutSecs) * time.Second,
	})
	if err != nil {
		logger.Error("cannot create LLM, LLM chains disabled", zap.Error(err))
		return nil
	}
	return llm
}

// Close flushes the logger.
func (a *App) Close() error {
	_ = a.Logger.Sync()
	return nil
}
