package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls    [][]string
	failures int
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("429 too many requests")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("503 unavailable")
	}
	return []float32{float32(len(text)), 1}, nil
}

func newTestClient(f *fakeEmbedder, batch, retries int) *Client {
	c := New(f, Config{BatchSize: batch, MaxRetries: retries}, nil)
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

func TestClient_BatchesDocuments(t *testing.T) {
	f := &fakeEmbedder{}
	c := newTestClient(f, 2, 0)

	vecs, err := c.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)

	require.Len(t, vecs, 5)
	assert.Equal(t, float32(3), vecs[2][0])
	require.Len(t, f.calls, 3)
	assert.Equal(t, []string{"eeeee"}, f.calls[2])
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	f := &fakeEmbedder{failures: 2}
	c := newTestClient(f, 10, 3)

	vecs, err := c.EmbedDocuments(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Len(t, f.calls, 3)

	f.failures = 1
	v, err := c.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, v)
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	f := &fakeEmbedder{failures: 10}
	c := newTestClient(f, 10, 2)

	_, err := c.EmbedDocuments(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Len(t, f.calls, 3)
}

func TestClient_CancelledContext(t *testing.T) {
	f := &fakeEmbedder{failures: 10}
	c := New(f, Config{MaxRetries: 5, RequestsPerMinute: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.EmbedQuery(ctx, "x")
	assert.Error(t, err)
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("RAGCHAT_TEST_MISSING_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "RAGCHAT_TEST_MISSING_KEY"}, nil)
	assert.Error(t, err)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
	assert.Equal(t, 5*time.Second, retryDelay(36))
	assert.Equal(t, 5*time.Second, retryDelay(64))
}
