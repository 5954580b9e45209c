package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/metrics"
	"ragchat/internal/qa"
	"ragchat/internal/vectorstore"
)

var ErrEmptyQuestion = errors.New("question is empty")

const enhancePrefix = "According to the context: "

// EnhanceQuestion phrases a question so the model answers from the retrieved context.
func EnhanceQuestion(question string) string {
	return enhancePrefix + question
}

// Chains runs a named QA chain.
type Chains interface {
	Has(chainType string) bool
	Answer(ctx context.Context, chainType, question string, chunks []domain.Chunk) (string, error)
}

// HistoryWriter records asked questions.
type HistoryWriter interface {
	Append(question string) error
}

// Defaults are used by Ask and whenever Search gets zero values.
type Defaults struct {
	ChainType   string
	ContextSize int
}

// QuestionService retrieves the chunks closest to a question and answers it with a QA chain.
type QuestionService struct {
	index    vectorstore.Index
	chains   Chains
	history  HistoryWriter
	defaults Defaults
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewQuestionService(index vectorstore.Index, chains Chains, history HistoryWriter, defaults Defaults, m *metrics.Metrics, logger *zap.Logger) *QuestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.ChainType == "" {
		defaults.ChainType = qa.ChainStuff
	}
	if defaults.ContextSize <= 0 {
		defaults.ContextSize = 4
	}
	return &QuestionService{index: index, chains: chains, history: history, defaults: defaults, metrics: m, logger: logger}
}

// Defaults returns the chain type and context size used by Ask.
func (s *QuestionService) Defaults() Defaults { return s.defaults }

// Search finds contextSize chunks similar to question and runs chainType over them.
// Retrieval uses the question as typed; the chain gets the enhanced question.
func (s *QuestionService) Search(ctx context.Context, question, chainType string, contextSize int) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, ErrEmptyQuestion
	}
	if chainType == "" {
		chainType = s.defaults.ChainType
	}
	if contextSize <= 0 {
		contextSize = s.defaults.ContextSize
	}
	if !s.chains.Has(chainType) {
		return domain.Answer{}, fmt.Errorf("%w: %s", qa.ErrUnknownChainType, chainType)
	}

	start := time.Now()
	answer, err := s.search(ctx, question, chainType, contextSize)
	took := time.Since(start)
	s.metrics.ObserveQuestion(chainType, len(answer.Texts), took, err)
	if err != nil {
		s.logger.Error("question failed", zap.String("question", question), zap.String("chain_type", chainType), zap.Error(err))
		return domain.Answer{}, err
	}
	s.logger.Info("question answered",
		zap.String("question", question),
		zap.String("chain_type", chainType),
		zap.Int("retrieved", len(answer.Texts)),
		zap.Duration("took", took),
	)
	return answer, nil
}

func (s *QuestionService) search(ctx context.Context, question, chainType string, contextSize int) (domain.Answer, error) {
	results, err := s.index.Search(ctx, question, contextSize)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("similarity search: %w", err)
	}
	chunks := make([]domain.Chunk, len(results))
	answer := domain.Answer{
		ChainType: chainType,
		Texts:     make([]string, len(results)),
		Metadata:  make([]map[string]string, len(results)),
	}
	for i, r := range results {
		chunks[i] = r.Chunk
		answer.Texts[i] = r.Chunk.Text
		answer.Metadata[i] = r.Chunk.Metadata
	}
	answer.Text, err = s.chains.Answer(ctx, chainType, EnhanceQuestion(question), chunks)
	if err != nil {
		return domain.Answer{}, err
	}
	return answer, nil
}

// Ask answers with the default chain and context size. Questions that retrieved
// something are written to the history.
func (s *QuestionService) Ask(ctx context.Context, question string) (domain.Answer, error) {
	return s.AskWith(ctx, question, "", 0)
}

// AskWith is Ask with an explicit chain type and context size.
func (s *QuestionService) AskWith(ctx context.Context, question, chainType string, contextSize int) (domain.Answer, error) {
	answer, err := s.Search(ctx, question, chainType, contextSize)
	if err != nil {
		return answer, err
	}
	if len(answer.Texts) > 0 && s.history != nil {
		if err := s.history.Append(question); err != nil {
			s.logger.Warn("cannot write history", zap.Error(err))
		}
	}
	return answer, nil
}

var sourcePattern = regexp.MustCompile(`.+[\\/](.+)\.txt`)

// ExtractSources turns each chunk's source path into a label: the file name without
// directory and .txt extension. Paths that do not match are returned unchanged.
func ExtractSources(metadata []map[string]string) []string {
	sources := make([]string, len(metadata))
	for i, m := range metadata {
		sources[i] = sourcePattern.ReplaceAllString(m[domain.MetadataSource], "${1}")
	}
	return sources
}
