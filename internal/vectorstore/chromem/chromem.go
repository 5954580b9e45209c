// Package chromem persists embedding indexes on disk with chromem-go.
package chromem

import (
	"context"
	"fmt"
	"strconv"

	chromemdb "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/vectorstore"
)

// Reserved metadata keys; everything else is the chunk's own metadata.
const (
	metaDocumentID = "_document_id"
	metaIndex      = "_chunk_index"
)

// Config configures the on-disk database.
type Config struct {
	Compress    bool
	Concurrency int
}

// Factory opens and builds chromem-go backed indexes.
type Factory struct {
	config Config
	logger *zap.Logger
}

func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Factory{config: cfg, logger: logger}
}

// Open loads the collection name persisted in dir.
func (f *Factory) Open(_ context.Context, dir, name string, emb embedding.Embedder) (vectorstore.Index, error) {
	db, err := chromemdb.NewPersistentDB(dir, f.config.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB %s: %w", dir, err)
	}
	col := db.GetCollection(name, embedFunc(emb))
	if col == nil {
		return nil, fmt.Errorf("%w: %s in %s", vectorstore.ErrCollectionNotFound, name, dir)
	}
	f.logger.Info("index loaded", zap.String("dir", dir), zap.String("collection", name), zap.Int("chunks", col.Count()))
	return &Index{collection: col, embedder: emb}, nil
}

// Build embeds chunks and writes them to a new collection in dir. Documents are
// persisted as they are added, so a failed build can leave files behind.
func (f *Factory) Build(ctx context.Context, dir, name string, chunks []domain.Chunk, emb embedding.Embedder) (vectorstore.Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := emb.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	db, err := chromemdb.NewPersistentDB(dir, f.config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB %s: %w", dir, err)
	}
	col, err := db.GetOrCreateCollection(name, nil, embedFunc(emb))
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	docs := make([]chromemdb.Document, 0, len(chunks))
	skipped := 0
	for i, c := range chunks {
		if isZero(vecs[i]) {
			skipped++
			continue
		}
		docs = append(docs, chromemdb.Document{
			ID:        c.ChunkID,
			Content:   c.Text,
			Metadata:  toMetadata(c),
			Embedding: vecs[i],
		})
	}
	if skipped > 0 {
		f.logger.Warn("skipped chunks without embedding signal", zap.Int("skipped", skipped))
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no chunk produced a usable embedding")
	}
	if err := col.AddDocuments(ctx, docs, f.config.Concurrency); err != nil {
		return nil, fmt.Errorf("adding documents: %w", err)
	}
	f.logger.Info("index persisted", zap.String("dir", dir), zap.String("collection", name), zap.Int("chunks", len(docs)))
	return &Index{collection: col, embedder: emb}, nil
}

// Index is a chromem collection queried with the embedder that built it.
type Index struct {
	collection *chromemdb.Collection
	embedder   embedding.Embedder
}

func (i *Index) Count() int { return i.collection.Count() }

// Search returns up to topK chunks ordered by cosine similarity.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	topK = min(topK, i.collection.Count())
	if topK == 0 {
		return nil, nil
	}
	vec, err := i.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if isZero(vec) {
		return nil, nil
	}
	res, err := i.collection.QueryEmbedding(ctx, vec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	out := make([]domain.SearchResult, len(res))
	for j, r := range res {
		out[j] = domain.SearchResult{Chunk: fromResult(r), Score: float64(r.Similarity)}
	}
	return out, nil
}

func embedFunc(emb embedding.Embedder) chromemdb.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return emb.EmbedQuery(ctx, text)
	}
}

func toMetadata(c domain.Chunk) map[string]string {
	m := make(map[string]string, len(c.Metadata)+2)
	for k, v := range c.Metadata {
		m[k] = v
	}
	m[metaDocumentID] = c.DocumentID
	m[metaIndex] = strconv.Itoa(c.Index)
	return m
}

func fromResult(r chromemdb.Result) domain.Chunk {
	c := domain.Chunk{ChunkID: r.ID, Text: r.Content, Metadata: make(map[string]string, len(r.Metadata))}
	for k, v := range r.Metadata {
		switch k {
		case metaDocumentID:
			c.DocumentID = v
		case metaIndex:
			c.Index, _ = strconv.Atoi(v)
		default:
			c.Metadata[k] = v
		}
	}
	return c
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
