// Package config provides the configuration schema, loader, and provider
// registry for the call bridge service.
package config

// Config is the root configuration structure for the bridge daemon.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Telephony  TelephonyConfig  `yaml:"telephony"`
	Model      ModelConfig      `yaml:"model"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Businesses []BusinessConfig `yaml:"businesses"`
	Providers  ProvidersConfig  `yaml:"providers"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// ServerConfig holds network and logging settings for the bridge server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP/WebSocket server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// PublicBaseURL is the externally reachable base URL used to build the
	// media-stream WebSocket URL returned in the TwiML bootstrap document
	// (e.g., "wss://bridge.example.com").
	PublicBaseURL string `yaml:"public_base_url"`
}

// LogLevel mirrors the values accepted by log/slog.Level's text form.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// TelephonyConfig holds the credentials and defaults used when talking to the
// telephony carrier (C2's outward-facing half).
type TelephonyConfig struct {
	// AccountSID / AuthToken authenticate outbound calls and status-callback
	// verification with the carrier.
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`

	// StatusCallbackPath and VoicePath are the HTTP paths registered with the
	// carrier for the `/status` and `/voice` webhooks respectively.
	StatusCallbackPath string `yaml:"status_callback_path"`
	VoicePath          string `yaml:"voice_path"`

	// MediaQueueCapacity bounds the drop-oldest queues at both ends of C2, in
	// frames. §5 specifies a default of roughly 200ms of audio.
	MediaQueueCapacity int `yaml:"media_queue_capacity"`
}

// ModelConfig holds the defaults used to build a SessionConfig (§3) for every
// call unless overridden by a BusinessConfig.
type ModelConfig struct {
	// Provider selects the registered realtimeapi.Provider implementation
	// (e.g., "openai").
	Provider string `yaml:"provider"`

	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`

	Voice                   string  `yaml:"voice"`
	Instructions            string  `yaml:"instructions"`
	Temperature             float64 `yaml:"temperature"`
	MaxResponseTokens       int     `yaml:"max_response_tokens"`
	InputTranscriptionModel string  `yaml:"input_transcription_model"`

	VAD VADConfig `yaml:"vad"`
}

// VADConfig configures the model's server-side turn detector. Defaults match
// §4.6: threshold 0.5, prefix padding 300ms, silence duration 500ms.
type VADConfig struct {
	Threshold         float64 `yaml:"threshold"`
	PrefixPaddingMs   int     `yaml:"prefix_padding_ms"`
	SilenceDurationMs int     `yaml:"silence_duration_ms"`
}

// PostgresConfig holds the connection string for the conversation store, call
// state persistence, escalation/agent tables, and the vector store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the connection string for C10's query and embedding
// caches.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	QueryCacheTTLSeconds     int `yaml:"query_cache_ttl_seconds"`
	EmbeddingCacheTTLSeconds int `yaml:"embedding_cache_ttl_seconds"`
}

// RetrievalConfig tunes the C10 hybrid search, rerank, and diversity-prune
// stages. Zero values are replaced with the §4.10 defaults by [Validate].
type RetrievalConfig struct {
	// EmbeddingsProvider/Reranker select registered provider names.
	EmbeddingsProvider string `yaml:"embeddings_provider"`
	RerankerProvider   string `yaml:"reranker_provider"`

	TopK int `yaml:"top_k"`

	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`

	BM25K1 float64 `yaml:"bm25_k1"`
	BM25B  float64 `yaml:"bm25_b"`

	CrossEncoderWeight float64 `yaml:"cross_encoder_weight"`
	OriginalWeight     float64 `yaml:"original_weight"`

	DiversityThreshold float64 `yaml:"diversity_threshold"`

	VoiceMaxSentencesPerDoc int `yaml:"voice_max_sentences_per_doc"`
	VoiceMaxDocs            int `yaml:"voice_max_docs"`
	VoiceMaxChars           int `yaml:"voice_max_chars"`
}

// BusinessConfig describes one tenant's agent personality and escalation
// policy, resolved by call manager (C7) and sentiment/keyword triggers (C9).
// See SPEC_FULL.md's "Agent personality / business configuration resolution".
type BusinessConfig struct {
	BusinessID string `yaml:"business_id"`

	// Voice/SystemPrompt/Temperature override ModelConfig's defaults for
	// calls scoped to this business. Empty/zero fields inherit the default.
	Voice        string  `yaml:"voice"`
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float64 `yaml:"temperature"`

	// KnowledgeNamespace scopes C10's vector-store queries; defaults to
	// BusinessID if empty.
	KnowledgeNamespace string `yaml:"knowledge_namespace"`

	Escalation EscalationConfig `yaml:"escalation"`
}

// EscalationConfig names the triggers C9 evaluates against each turn.
type EscalationConfig struct {
	SentimentThreshold  float64  `yaml:"sentiment_threshold"`
	ComplexityThreshold float64  `yaml:"complexity_threshold"`
	Keywords            []string `yaml:"keywords"`

	// Departments/Skills narrow the §4.9 agent search; empty means any
	// available+active agent.
	Departments []string `yaml:"departments"`
	Skills      []string `yaml:"skills"`
}

// ProvidersConfig declares which provider implementation to use for concerns
// that are not per-call (the summarizer LLM used by C9, and any additional
// named provider entries the deployment wires into the [Registry]).
type ProvidersConfig struct {
	Summarizer ProviderEntry `yaml:"summarizer"`

	// SummarizerFallback, when Name is non-empty, is wired behind the
	// primary summarizer via a circuit breaker: escalation summaries and
	// query rewrites fail over to it rather than silently degrading to
	// passthrough when the primary backend is unhealthy.
	SummarizerFallback ProviderEntry `yaml:"summarizer_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. Name is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	Name    string         `yaml:"name"`
	APIKey  string         `yaml:"api_key"`
	BaseURL string         `yaml:"base_url"`
	Model   string         `yaml:"model"`
	Options map[string]any `yaml:"options"`
}

// MCPConfig holds the list of Model Context Protocol servers the tool
// dispatcher (C4) optionally proxies tools from.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}
