// Package qdrant keeps embedding indexes in a Qdrant collection. The local index
// directory only holds a marker naming the remote collection, so the cache check
// of the gate works the same as for on-disk stores.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	lcqdrant "github.com/tmc/langchaingo/vectorstores/qdrant"
	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/vectorstore"
)

// MarkerFile is written into the index directory once a collection is complete.
const MarkerFile = "qdrant.json"

const (
	// contentKey is where the langchaingo store keeps the page content in the payload.
	contentKey     = "content"
	metaDocumentID = "_document_id"
	metaIndex      = "_chunk_index"
	metaChunkID    = "_chunk_id"
)

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type marker struct {
	URL        string `json:"url"`
	Collection string `json:"collection"`
	Dimension  int    `json:"dimension"`
	Count      int    `json:"count"`
}

// Factory creates collections over the REST API and fills and queries them
// through the langchaingo store.
type Factory struct {
	url    *url.URL
	apiKey string
	client *http.Client
	logger *zap.Logger
}

func NewFactory(cfg Config, logger *zap.Logger) (*Factory, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing qdrant url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{url: u, apiKey: cfg.APIKey, client: &http.Client{Timeout: timeout}, logger: logger}, nil
}

// Open attaches to the collection recorded in dir.
func (f *Factory) Open(_ context.Context, dir, name string, emb embedding.Embedder) (vectorstore.Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s in %s", vectorstore.ErrCollectionNotFound, name, dir)
		}
		return nil, err
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("reading %s: %w", MarkerFile, err)
	}
	if m.Collection != name {
		return nil, fmt.Errorf("%w: %s in %s", vectorstore.ErrCollectionNotFound, name, dir)
	}
	store, err := f.store(name, emb)
	if err != nil {
		return nil, err
	}
	f.logger.Info("index attached", zap.String("url", m.URL), zap.String("collection", name), zap.Int("chunks", m.Count))
	return &Index{store: store, count: m.Count}, nil
}

// Build recreates the collection name, uploads chunks and records the marker in dir.
func (f *Factory) Build(ctx context.Context, dir, name string, chunks []domain.Chunk, emb embedding.Embedder) (vectorstore.Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}
	probe, err := emb.EmbedQuery(ctx, chunks[0].Text)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(probe) == 0 {
		return nil, fmt.Errorf("embedder %s returned an empty vector", emb.Name())
	}
	if err := f.recreate(ctx, name, len(probe)); err != nil {
		return nil, err
	}
	store, err := f.store(name, emb)
	if err != nil {
		return nil, err
	}
	docs := make([]schema.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = schema.Document{PageContent: c.Text, Metadata: toPayload(c)}
	}
	if _, err := store.AddDocuments(ctx, docs); err != nil {
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	data, err := json.Marshal(marker{URL: f.url.String(), Collection: name, Dimension: len(probe), Count: len(chunks)})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, MarkerFile), data, 0o644); err != nil {
		return nil, err
	}
	f.logger.Info("index uploaded", zap.String("collection", name), zap.Int("chunks", len(chunks)), zap.Int("dimension", len(probe)))
	return &Index{store: store, count: len(chunks)}, nil
}

func (f *Factory) store(name string, emb embedding.Embedder) (vectorstores.VectorStore, error) {
	opts := []lcqdrant.Option{
		lcqdrant.WithURL(*f.url),
		lcqdrant.WithCollectionName(name),
		lcqdrant.WithEmbedder(emb),
	}
	if f.apiKey != "" {
		opts = append(opts, lcqdrant.WithAPIKey(f.apiKey))
	}
	store, err := lcqdrant.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant store: %w", err)
	}
	return store, nil
}

// recreate drops any collection with the same name and creates an empty one with cosine distance.
func (f *Factory) recreate(ctx context.Context, name string, dimension int) error {
	endpoint := f.url.JoinPath("collections", name).String()
	if err := f.do(ctx, http.MethodDelete, endpoint, nil, http.StatusNotFound); err != nil {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return f.do(ctx, http.MethodPut, endpoint, body)
}

func (f *Factory) do(ctx context.Context, method, endpoint string, body any, allowed ...int) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("api-key", f.apiKey)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	for _, code := range allowed {
		if resp.StatusCode == code {
			return nil
		}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, endpoint, resp.Status)
	}
	return nil
}

// Index is a remote collection queried through langchaingo.
type Index struct {
	store vectorstores.VectorStore
	count int
}

func (i *Index) Count() int { return i.count }

// Search returns up to topK chunks ordered by cosine similarity.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	topK = min(topK, i.count)
	if topK == 0 {
		return nil, nil
	}
	docs, err := i.store.SimilaritySearch(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	out := make([]domain.SearchResult, len(docs))
	for j, d := range docs {
		out[j] = domain.SearchResult{Chunk: fromDocument(d), Score: float64(d.Score)}
	}
	return out, nil
}

func toPayload(c domain.Chunk) map[string]any {
	m := make(map[string]any, len(c.Metadata)+3)
	for k, v := range c.Metadata {
		m[k] = v
	}
	m[metaDocumentID] = c.DocumentID
	m[metaChunkID] = c.ChunkID
	m[metaIndex] = c.Index
	return m
}

func fromDocument(d schema.Document) domain.Chunk {
	c := domain.Chunk{Text: d.PageContent, Metadata: make(map[string]string, len(d.Metadata))}
	for k, v := range d.Metadata {
		switch k {
		case contentKey:
		case metaDocumentID:
			c.DocumentID, _ = v.(string)
		case metaChunkID:
			c.ChunkID, _ = v.(string)
		case metaIndex:
			switch n := v.(type) {
			case float64:
				c.Index = int(n)
			case int:
				c.Index = n
			case string:
				c.Index, _ = strconv.Atoi(n)
			}
		default:
			if s, ok := v.(string); ok {
				c.Metadata[k] = s
			} else {
				c.Metadata[k] = fmt.Sprint(v)
			}
		}
	}
	return c
}
