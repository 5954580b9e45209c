package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"ragchat/internal/logging"
)

// CorpusConfig points at the documents and at the directory the index is persisted under.
type CorpusConfig struct {
	Location    string `yaml:"location"`
	PersistRoot string `yaml:"persist_root"`
	MaxChunks   int    `yaml:"max_chunks"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string        `yaml:"type"`
	Compress bool          `yaml:"compress"`
	Qdrant   *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string     `yaml:"type"`
	ChunkSize         int        `yaml:"chunk_size"`
	ChunkOverlap      int        `yaml:"chunk_overlap"`
	Separators        Separators `yaml:"separators"`
	SentencesPerChunk int        `yaml:"sentences_per_chunk"`
	OverlapSentences  int        `yaml:"overlap_sentences"`
	Parts             int        `yaml:"parts"`
}

// Separators are split points of the character chunker, most preferred first.
type Separators []string

// MarshalYAML writes each separator double-quoted. Block scalars, which yaml.v3 picks for
// strings made of newlines, do not read back to the same value.
func (s Separators) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, sep := range s {
		node.Content = append(node.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Style: yaml.DoubleQuotedStyle,
			Value: sep,
		})
	}
	return node, nil
}

// OpenAIConfig holds connection details for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKeyEnv         string `yaml:"api_key_env"`
	Model             string `yaml:"model"`
	TimeoutSecs       int    `yaml:"timeout_secs"`
	BatchSize         int    `yaml:"batch_size"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	MaxRetries        int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string        `yaml:"type"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
}

// LLMConfig configures the chat model used by the LLM-backed QA chains.
type LLMConfig struct {
	OpenAI      OpenAIConfig `yaml:"openai"`
	Temperature float64      `yaml:"temperature"`
}

// SearchConfig holds the defaults used when answering a question.
type SearchConfig struct {
	ChainType    string `yaml:"chain_type"`
	ContextSize  int    `yaml:"context_size"`
	MaxSentences int    `yaml:"max_sentences"`
}

// HistoryConfig locates the question history file.
type HistoryConfig struct {
	Location string `yaml:"location"`
}

// WebConfig configures the dashboard server.
type WebConfig struct {
	Addr  string `yaml:"addr"`
	Title string `yaml:"title"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus      CorpusConfig      `yaml:"corpus"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	History     HistoryConfig     `yaml:"history"`
	Web         WebConfig         `yaml:"web"`
	Log         logging.Config    `yaml:"log"`
}

// Environment variables overriding the file.
const (
	EnvDocLocation     = "DOC_LOCATION"
	EnvIndexStore      = "INDEX_STORE"
	EnvFaissStore      = "FAISS_STORE" // older name of INDEX_STORE, used when it is unset
	EnvHistoryLocation = "CHAT_HISTORY_LOCATION"
	EnvLogLevel        = "LOG_LEVEL"
	EnvWebAddr         = "WEB_ADDR"
	EnvQdrantURL       = "QDRANT_URL"
)

// HistoryFileName is the name of the history file inside the history location.
const HistoryFileName = "chat_history.txt"

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			if err := applyEnv(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// HistoryFile returns the path of the history file.
func (c *AppConfig) HistoryFile() string {
	return filepath.Join(c.History.Location, HistoryFileName)
}

// Validate reports settings no component can run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Corpus.Location) == "" {
		errs = append(errs, errors.New("corpus.location is required"))
	}
	if strings.TrimSpace(c.Corpus.PersistRoot) == "" {
		errs = append(errs, errors.New("corpus.persist_root is required"))
	}
	if c.Corpus.MaxChunks <= 0 {
		errs = append(errs, errors.New("corpus.max_chunks must be positive"))
	}
	switch c.Chunker.Type {
	case "character":
		if c.Chunker.ChunkSize <= 0 {
			errs = append(errs, errors.New("chunker.chunk_size must be positive"))
		}
		if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
			errs = append(errs, errors.New("chunker.chunk_overlap must be in [0, chunk_size)"))
		}
	case "sentence":
	case "parts":
		if c.Chunker.Parts < 1 {
			errs = append(errs, errors.New("chunker.parts must be at least 1"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown chunker: %s", c.Chunker.Type))
	}
	switch c.Embedder.Type {
	case "tfidf":
	case "openai":
		if c.Embedder.OpenAI == nil {
			errs = append(errs, errors.New("openai embedder config missing"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedder: %s", c.Embedder.Type))
	}
	switch c.VectorStore.Type {
	case "chromem":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || strings.TrimSpace(c.VectorStore.Qdrant.URL) == "" {
			errs = append(errs, errors.New("vector_store.qdrant.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector store: %s", c.VectorStore.Type))
	}
	switch c.Search.ChainType {
	case "stuff", "map_reduce", "refine", "extractive":
	default:
		errs = append(errs, fmt.Errorf("unknown chain type: %s", c.Search.ChainType))
	}
	if c.Search.ContextSize <= 0 {
		errs = append(errs, errors.New("search.context_size must be positive"))
	}
	return errors.Join(errs...)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Corpus: CorpusConfig{Location: "data", PersistRoot: "index_store", MaxChunks: 6400 * 3},
		Chunker: ChunkerConfig{
			Type:              "character",
			ChunkSize:         6000,
			ChunkOverlap:      100,
			Separators:        []string{"\n\n", "\n"},
			SentencesPerChunk: 5,
			OverlapSentences:  1,
			Parts:             3,
		},
		Embedder:    EmbedderConfig{Type: "openai", OpenAI: &OpenAIConfig{}},
		VectorStore: VectorStoreConfig{Type: "chromem"},
		LLM: LLMConfig{
			OpenAI:      OpenAIConfig{Model: "gpt-3.5-turbo-16k"},
			Temperature: 0,
		},
		Search:  SearchConfig{ChainType: "stuff", ContextSize: 4, MaxSentences: 5},
		History: HistoryConfig{Location: "."},
		Web:     WebConfig{Addr: ":8080", Title: "Ask questions about the corpus"},
		Log:     logging.Config{Level: "info", Format: "console"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Corpus.MaxChunks == 0 {
		cfg.Corpus.MaxChunks = 6400 * 3
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "character"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Chunker.Parts == 0 {
		cfg.Chunker.Parts = 3
	}
	if len(cfg.Chunker.Separators) == 0 {
		cfg.Chunker.Separators = []string{"\n\n", "\n"}
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small")
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 25
		}
		if cfg.Embedder.OpenAI.RequestsPerMinute == 0 {
			cfg.Embedder.OpenAI.RequestsPerMinute = 60
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 5
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
			cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	applyOpenAIDefaults(&cfg.LLM.OpenAI, "gpt-3.5-turbo-16k")
	if cfg.Search.ChainType == "" {
		cfg.Search.ChainType = "stuff"
	}
	if cfg.Search.ContextSize == 0 {
		cfg.Search.ContextSize = 4
	}
	if cfg.Search.MaxSentences == 0 {
		cfg.Search.MaxSentences = 5
	}
	if cfg.History.Location == "" {
		cfg.History.Location = "."
	}
	if cfg.Web.Addr == "" {
		cfg.Web.Addr = ":8080"
	}
	if cfg.Web.Title == "" {
		cfg.Web.Title = "Ask questions about the corpus"
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 60
	}
}

// envKeys maps the environment variables read at startup to config keys.
var envKeys = map[string]string{
	EnvDocLocation:     "corpus.location",
	EnvIndexStore:      "corpus.persist_root",
	EnvFaissStore:      "corpus.faiss_store",
	EnvHistoryLocation: "history.location",
	EnvLogLevel:        "log.level",
	EnvWebAddr:         "web.addr",
	EnvQdrantURL:       "vector_store.qdrant.url",
}

// applyEnv layers the environment over cfg. Unset and empty variables leave the file value.
func applyEnv(cfg *AppConfig) error {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string {
		// Unknown variables map to "" and are skipped.
		return envKeys[s]
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	set := func(key string, dst *string) {
		if v := k.String(key); v != "" {
			*dst = v
		}
	}
	set("corpus.location", &cfg.Corpus.Location)
	set("corpus.faiss_store", &cfg.Corpus.PersistRoot)
	set("corpus.persist_root", &cfg.Corpus.PersistRoot)
	set("history.location", &cfg.History.Location)
	set("log.level", &cfg.Log.Level)
	set("web.addr", &cfg.Web.Addr)
	if cfg.VectorStore.Qdrant != nil {
		set("vector_store.qdrant.url", &cfg.VectorStore.Qdrant.URL)
	}
	return nil
}
