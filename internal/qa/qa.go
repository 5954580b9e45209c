// Package qa answers a question over retrieved chunks, either with a langchaingo
// question-answering chain or extractively without a model.
package qa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/summarizer"
)

const (
	ChainStuff      = "stuff"
	ChainMapReduce  = "map_reduce"
	ChainRefine     = "refine"
	ChainExtractive = "extractive"
)

var ErrUnknownChainType = errors.New("unknown chain type")

// Answerer produces an answer to question from the given chunks.
type Answerer interface {
	Answer(ctx context.Context, question string, chunks []domain.Chunk) (string, error)
}

// Chains holds the answerers available by chain type.
type Chains struct {
	answerers map[string]Answerer
	logger    *zap.Logger
}

// Config tunes the chains built by New.
type Config struct {
	Temperature  float64
	MaxSentences int
}

// New registers the extractive chain and, when llm is not nil, the stuff, map_reduce
// and refine chains over llm.
func New(llm llms.Model, cfg Config, logger *zap.Logger) *Chains {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chains{answerers: map[string]Answerer{}, logger: logger}
	c.Register(ChainExtractive, &Extractive{Summarizer: summarizer.NewFrequencySummarizer(), MaxSentences: cfg.MaxSentences})
	if llm != nil {
		c.Register(ChainStuff, &LLMChain{Chain: chains.LoadStuffQA(llm), Temperature: cfg.Temperature})
		c.Register(ChainMapReduce, &LLMChain{Chain: chains.LoadMapReduceQA(llm), Temperature: cfg.Temperature})
		c.Register(ChainRefine, &LLMChain{Chain: chains.LoadRefineQA(llm), Temperature: cfg.Temperature})
	}
	return c
}

// Register adds or replaces the answerer of a chain type.
func (c *Chains) Register(name string, a Answerer) {
	c.answerers[name] = a
}

// Has reports whether a chain type is registered.
func (c *Chains) Has(name string) bool {
	_, ok := c.answerers[name]
	return ok
}

// Names lists the registered chain types.
func (c *Chains) Names() []string {
	names := make([]string, 0, len(c.answerers))
	for n := range c.answerers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Answer runs the chain registered under chainType.
func (c *Chains) Answer(ctx context.Context, chainType, question string, chunks []domain.Chunk) (string, error) {
	a, ok := c.answerers[chainType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownChainType, chainType)
	}
	start := time.Now()
	out, err := a.Answer(ctx, question, chunks)
	if err != nil {
		return "", fmt.Errorf("%s chain: %w", chainType, err)
	}
	c.logger.Debug("chain answered", zap.String("chain_type", chainType), zap.Int("chunks", len(chunks)), zap.Duration("took", time.Since(start)))
	return out, nil
}

// LLMChain adapts a langchaingo documents chain.
type LLMChain struct {
	Chain       chains.Chain
	Temperature float64
}

func (l *LLMChain) Answer(ctx context.Context, question string, chunks []domain.Chunk) (string, error) {
	out, err := chains.Call(ctx, l.Chain, map[string]any{
		"input_documents": toDocuments(chunks),
		"question":        question,
	}, chains.WithTemperature(l.Temperature))
	if err != nil {
		return "", err
	}
	text, ok := out["text"].(string)
	if !ok {
		return "", fmt.Errorf("chain output has no text")
	}
	return text, nil
}

// Extractive answers with the retrieved sentences that best match the question.
type Extractive struct {
	Summarizer   *summarizer.FrequencySummarizer
	MaxSentences int
}

func (e *Extractive) Answer(_ context.Context, question string, chunks []domain.Chunk) (string, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	out, err := e.Summarizer.Summarize(question, texts, e.MaxSentences)
	if errors.Is(err, summarizer.ErrNoText) {
		return "I don't know.", nil
	}
	return out, err
}

func toDocuments(chunks []domain.Chunk) []schema.Document {
	docs := make([]schema.Document, len(chunks))
	for i, c := range chunks {
		meta := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		docs[i] = schema.Document{PageContent: c.Text, Metadata: meta}
	}
	return docs
}

// LLMConfig configures the OpenAI-compatible chat model.
type LLMConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewOpenAI creates the chat model behind the LLM chains.
func NewOpenAI(cfg LLMConfig) (*openai.LLM, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo-16k"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(key),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: t}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI chat model: %w", err)
	}
	return llm, nil
}
