package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/ivoxa/callbridge/internal/mcp"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind, used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"model":      {"openai"},
	"embeddings": {"openai", "ollama"},
	"reranker":   {"openai", "term-overlap"},
	"summarizer": {"any-llm", "openai", "anthropic", "ollama"},
}

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the §4.6/§4.10/§5 numeric defaults called out in
// SPEC_FULL.md for any field left at its YAML zero value.
func applyDefaults(cfg *Config) {
	if cfg.Telephony.MediaQueueCapacity == 0 {
		cfg.Telephony.MediaQueueCapacity = 10 // ~200ms at 20ms frames, per §5
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogLevelInfo
	}

	if cfg.Model.VAD.Threshold == 0 {
		cfg.Model.VAD.Threshold = 0.5
	}
	if cfg.Model.VAD.PrefixPaddingMs == 0 {
		cfg.Model.VAD.PrefixPaddingMs = 300
	}
	if cfg.Model.VAD.SilenceDurationMs == 0 {
		cfg.Model.VAD.SilenceDurationMs = 500
	}
	if cfg.Model.InputTranscriptionModel == "" {
		cfg.Model.InputTranscriptionModel = "whisper-1"
	}

	if cfg.Redis.QueryCacheTTLSeconds == 0 {
		cfg.Redis.QueryCacheTTLSeconds = 3600
	}
	if cfg.Redis.EmbeddingCacheTTLSeconds == 0 {
		cfg.Redis.EmbeddingCacheTTLSeconds = 7 * 24 * 3600
	}

	r := &cfg.Retrieval
	if r.TopK == 0 {
		r.TopK = 5
	}
	if r.SemanticWeight == 0 && r.KeywordWeight == 0 {
		r.SemanticWeight, r.KeywordWeight = 0.7, 0.3
	}
	if r.BM25K1 == 0 {
		r.BM25K1 = 1.5
	}
	if r.BM25B == 0 {
		r.BM25B = 0.75
	}
	if r.CrossEncoderWeight == 0 && r.OriginalWeight == 0 {
		r.CrossEncoderWeight, r.OriginalWeight = 0.6, 0.4
	}
	if r.DiversityThreshold == 0 {
		r.DiversityThreshold = 0.7
	}
	if r.VoiceMaxSentencesPerDoc == 0 {
		r.VoiceMaxSentencesPerDoc = 3
	}
	if r.VoiceMaxDocs == 0 {
		r.VoiceMaxDocs = 2
	}
	if r.VoiceMaxChars == 0 {
		r.VoiceMaxChars = 500
	}

	for i := range cfg.Businesses {
		b := &cfg.Businesses[i]
		if b.KnowledgeNamespace == "" {
			b.KnowledgeNamespace = b.BusinessID
		}
		if b.Escalation.SentimentThreshold == 0 {
			b.Escalation.SentimentThreshold = -0.5
		}
		if b.Escalation.ComplexityThreshold == 0 {
			b.Escalation.ComplexityThreshold = 0.8
		}
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("server.listen_addr is required"))
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Model.Provider == "" {
		errs = append(errs, fmt.Errorf("model.provider is required"))
	} else {
		validateProviderName("model", cfg.Model.Provider)
	}
	if cfg.Model.Voice == "" {
		errs = append(errs, fmt.Errorf("model.voice is required"))
	}
	if cfg.Model.Temperature < 0 || cfg.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature %.2f is out of range [0, 2]", cfg.Model.Temperature))
	}

	if cfg.Postgres.DSN == "" {
		slog.Warn("postgres.dsn is empty; conversation history and call state will not persist")
	}

	validateProviderName("embeddings", cfg.Retrieval.EmbeddingsProvider)
	validateProviderName("reranker", cfg.Retrieval.RerankerProvider)
	validateProviderName("summarizer", cfg.Providers.Summarizer.Name)
	validateProviderName("summarizer", cfg.Providers.SummarizerFallback.Name)

	if w := cfg.Retrieval.SemanticWeight + cfg.Retrieval.KeywordWeight; w != 0 && (w < 0.999 || w > 1.001) {
		errs = append(errs, fmt.Errorf("retrieval: semantic_weight + keyword_weight must sum to 1, got %.3f", w))
	}

	businessIDsSeen := make(map[string]int, len(cfg.Businesses))
	for i, b := range cfg.Businesses {
		prefix := fmt.Sprintf("businesses[%d]", i)
		if b.BusinessID == "" {
			errs = append(errs, fmt.Errorf("%s.business_id is required", prefix))
			continue
		}
		if prev, ok := businessIDsSeen[b.BusinessID]; ok {
			errs = append(errs, fmt.Errorf("%s.business_id %q is a duplicate of businesses[%d]", prefix, b.BusinessID, prev))
		}
		businessIDsSeen[b.BusinessID] = i
	}

	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		transport := mcp.Transport(srv.Transport)
		if srv.Transport != "" && !transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
