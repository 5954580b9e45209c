package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/loader"
	"ragchat/internal/metrics"
	"ragchat/internal/vectorstore"
)

// State is where a gate is in its lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateBuilding
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var ErrNoChunks = errors.New("corpus produced no chunks")

// BuildError reports a corpus whose index could not be obtained. Partial is set when
// the failed attempt left files in the cache directory; that directory then has to be
// removed by hand before the next run, otherwise it is taken for a valid index.
type BuildError struct {
	Corpus  string
	Dir     string
	Partial bool
	Err     error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("indexing %s into %s: %v", e.Corpus, e.Dir, e.Err)
	if e.Partial {
		msg += " (partial index left on disk)"
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// GateConfig locates the corpus and its cache.
type GateConfig struct {
	Corpus      string
	PersistRoot string
	MaxChunks   int
}

// Gate returns the embedding index of one corpus, building it only when no
// non-empty cache directory exists. A cached index is trusted as is.
type Gate struct {
	config   GateConfig
	loader   *loader.Loader
	chunker  domain.Chunker
	embedder embedding.Embedder
	factory  vectorstore.Factory
	metrics  *metrics.Metrics
	logger   *zap.Logger

	state State
	index vectorstore.Index
	err   error
}

func NewGate(cfg GateConfig, ld *loader.Loader, chunker domain.Chunker, emb embedding.Embedder, factory vectorstore.Factory, m *metrics.Metrics, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ld == nil {
		ld = loader.New(logger)
	}
	return &Gate{config: cfg, loader: ld, chunker: chunker, embedder: emb, factory: factory, metrics: m, logger: logger}
}

// CorpusStem is the final path element of the corpus without its extension.
func CorpusStem(corpus string) string {
	p := filepath.Clean(corpus)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CacheDir is the index directory of corpus under persistRoot.
func CacheDir(persistRoot, corpus string) string {
	return filepath.Join(persistRoot, CorpusStem(corpus))
}

// Dir returns the cache directory of the gate's corpus.
func (g *Gate) Dir() string { return CacheDir(g.config.PersistRoot, g.config.Corpus) }

// State reports the lifecycle state.
func (g *Gate) State() State { return g.state }

// Init returns the corpus index, loading it from the cache directory when present.
// A ready gate returns its index again; a failed gate returns its error again.
func (g *Gate) Init(ctx context.Context) (vectorstore.Index, error) {
	switch g.state {
	case StateReady:
		return g.index, nil
	case StateFailed:
		return nil, g.err
	}
	dir := g.Dir()
	g.logger.Info("using doc location", zap.String("corpus", g.config.Corpus), zap.String("cache_dir", dir))
	if cacheHit(dir) {
		g.logger.Info("reading from existing directory", zap.String("dir", dir))
		return g.open(ctx, dir)
	}
	g.logger.Warn("cannot find index directory or it is empty", zap.String("dir", dir))
	g.logger.Info("generating vectors")

	chunks, _, err := g.LoadTexts()
	if err != nil {
		return nil, g.fail(dir, err)
	}
	if len(chunks) > g.config.MaxChunks && g.config.MaxChunks > 0 {
		g.logger.Warn("truncating chunks", zap.Int("chunks", len(chunks)), zap.Int("max", g.config.MaxChunks))
		chunks = chunks[:g.config.MaxChunks]
	}
	return g.ExtractEmbeddings(ctx, chunks)
}

// LoadTexts reads the corpus and splits every document with the configured chunker.
// Files or documents that fail are logged and counted, the rest is kept.
func (g *Gate) LoadTexts() ([]domain.Chunk, loader.Stats, error) {
	docs, stats, err := g.loader.LoadDir(g.config.Corpus)
	if err != nil {
		return nil, stats, err
	}
	var chunks []domain.Chunk
	for _, d := range docs {
		cs, err := g.chunker.Chunk(d)
		if err != nil {
			g.logger.Error("cannot split document", zap.String("path", d.Path), zap.Error(err))
			stats.Processed--
			stats.Failed++
			continue
		}
		chunks = append(chunks, cs...)
	}
	g.logger.Info("length of texts", zap.Int("chunks", len(chunks)), zap.Int("processed", stats.Processed))
	g.logger.Warn("failed files", zap.Int("failed", stats.Failed))
	return chunks, stats, nil
}

// ExtractEmbeddings loads the cached index if one exists, otherwise embeds chunks
// and persists them to the cache directory.
func (g *Gate) ExtractEmbeddings(ctx context.Context, chunks []domain.Chunk) (vectorstore.Index, error) {
	dir := g.Dir()
	if cacheHit(dir) {
		return g.open(ctx, dir)
	}
	if len(chunks) == 0 {
		return nil, g.fail(dir, ErrNoChunks)
	}
	g.state = StateBuilding
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if err := g.embedder.Prepare(texts); err != nil {
		return nil, g.fail(dir, fmt.Errorf("preparing embedder: %w", err))
	}
	// Embedder state is written before the index and removed again if the build fails.
	p, persist := g.embedder.(embedding.Persister)
	if persist {
		if err := p.Save(dir); err != nil {
			_ = p.Remove(dir)
			return nil, g.fail(dir, fmt.Errorf("saving embedder state: %w", err))
		}
	}
	idx, err := g.factory.Build(ctx, dir, CorpusStem(g.config.Corpus), chunks, g.embedder)
	if err != nil {
		if persist {
			if rerr := p.Remove(dir); rerr != nil {
				g.logger.Warn("cannot remove embedder state", zap.String("dir", dir), zap.Error(rerr))
			}
		}
		return nil, g.fail(dir, err)
	}
	g.logger.Info("vector database persisted", zap.String("dir", dir), zap.Int("chunks", idx.Count()))
	g.metrics.ObserveIndex("build", idx.Count())
	return g.ready(idx), nil
}

func (g *Gate) open(ctx context.Context, dir string) (vectorstore.Index, error) {
	if p, ok := g.embedder.(embedding.Persister); ok {
		if err := p.Load(dir); err != nil {
			return nil, g.fail(dir, fmt.Errorf("loading embedder state: %w", err))
		}
	}
	idx, err := g.factory.Open(ctx, dir, CorpusStem(g.config.Corpus), g.embedder)
	if err != nil {
		return nil, g.fail(dir, err)
	}
	g.metrics.ObserveIndex("hit", idx.Count())
	return g.ready(idx), nil
}

func (g *Gate) ready(idx vectorstore.Index) vectorstore.Index {
	g.state = StateReady
	g.index = idx
	return idx
}

func (g *Gate) fail(dir string, err error) error {
	berr := &BuildError{Corpus: g.config.Corpus, Dir: dir, Partial: g.state == StateBuilding && cacheHit(dir), Err: err}
	g.logger.Error("failed to process corpus", zap.String("corpus", g.config.Corpus), zap.Bool("partial", berr.Partial), zap.Error(err))
	g.state = StateFailed
	g.err = berr
	g.metrics.ObserveIndex("failed", 0)
	return berr
}

// cacheHit reports whether dir exists and holds at least one entry.
func cacheHit(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
