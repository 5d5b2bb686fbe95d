// Command bridged is the main entry point for the call bridge server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/ivoxa/callbridge/internal/app"
	"github.com/ivoxa/callbridge/internal/config"
	"github.com/ivoxa/callbridge/internal/media"
	"github.com/ivoxa/callbridge/internal/observe"
	"github.com/ivoxa/callbridge/pkg/provider/embeddings"
	"github.com/ivoxa/callbridge/pkg/provider/embeddings/ollama"
	"github.com/ivoxa/callbridge/pkg/provider/embeddings/openai"
	"github.com/ivoxa/callbridge/pkg/provider/llm"
	"github.com/ivoxa/callbridge/pkg/provider/llm/anyllm"
	llmopenai "github.com/ivoxa/callbridge/pkg/provider/llm/openai"
	"github.com/ivoxa/callbridge/pkg/provider/reranker/llmscore"
	"github.com/ivoxa/callbridge/pkg/provider/reranker/termoverlap"
	"github.com/ivoxa/callbridge/pkg/realtimeapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "bridged: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "bridged: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("bridged starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "callbridge",
	})
	if err != nil {
		slog.Error("failed to init telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	printStartupSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	mux := http.NewServeMux()
	registerRoutes(mux, cfg, application)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(observe.DefaultMetrics())(mux),
	}

	serveErrs := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrs <- err
			return
		}
		serveErrs <- nil
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	if err := <-serveErrs; err != nil {
		slog.Error("http server error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// registerRoutes wires the carrier-facing webhooks, the media-stream
// upgrade, and the operational endpoints onto mux.
func registerRoutes(mux *http.ServeMux, cfg *config.Config, a *app.App) {
	voicePath := cfg.Telephony.VoicePath
	if voicePath == "" {
		voicePath = "/voice"
	}
	statusPath := cfg.Telephony.StatusCallbackPath
	if statusPath == "" {
		statusPath = "/status"
	}

	mux.HandleFunc(voicePath, voiceHandler(cfg))
	mux.HandleFunc(statusPath, statusCallbackHandler(a))
	mux.Handle("/media-stream", a.Media)

	mux.HandleFunc("/healthz", a.Health.Healthz)
	mux.HandleFunc("/readyz", a.Health.Readyz)
	mux.Handle("/metrics", promhttp.Handler())
}

// voiceHandler renders the TwiML bootstrap document pointing the carrier at
// this server's media-stream endpoint. The business_id query parameter
// (configured per-number on the carrier side) is forwarded as a <Parameter>
// child so the media handler's customParameters carry it through to
// [callmanager.Manager.StartCallBridge].
func voiceHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		businessID := r.FormValue("business_id")

		scheme := "wss"
		streamURL := fmt.Sprintf("%s://%s/media-stream", scheme, r.Host)
		if base := cfg.Server.PublicBaseURL; base != "" {
			streamURL = base + "/media-stream"
		}

		doc, err := media.Bootstrap(streamURL, media.Parameter{Name: "business_id", Value: businessID})
		if err != nil {
			slog.Error("voice: render twiml failed", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write(doc)
	}
}

// statusCallbackHandler drives C8's transitions from the carrier's
// status-callback webhook. It always acknowledges with 200 — carriers retry
// a non-2xx response, which would otherwise pile up duplicate transitions —
// logging any transition failure instead of surfacing it to the carrier.
func statusCallbackHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		callSid := r.FormValue("CallSid")
		status := r.FormValue("CallStatus")

		if callSid != "" && status != "" {
			if err := a.CallManager().HandleStatusCallback(r.Context(), callSid, status); err != nil {
				slog.Warn("status callback: transition failed", "call_sid", callSid, "status", status, "err", err)
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ── Provider wiring ──────────────────────────────────────────────────────

// registerBuiltinProviders registers every provider factory this binary
// ships with against reg's four provider categories.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterModel("openai", func(entry config.ProviderEntry) (realtimeapi.Provider, error) {
		opts := []realtimeapi.Option{}
		if entry.Model != "" {
			opts = append(opts, realtimeapi.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, realtimeapi.WithBaseURL(entry.BaseURL))
		}
		return realtimeapi.NewOpenAIProvider(entry.APIKey, opts...), nil
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		model := entry.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(apiKey, model, opts...)
	})
	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_BASE_URL")
		}
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := entry.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return ollama.New(baseURL, model)
	})

	reg.RegisterReranker("term-overlap", func(config.ProviderEntry) (config.Reranker, error) {
		return termoverlap.New(), nil
	})
	reg.RegisterReranker("openai", func(entry config.ProviderEntry) (config.Reranker, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		model := entry.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		p, err := llmopenai.New(apiKey, model)
		if err != nil {
			return nil, err
		}
		return llmscore.New(p), nil
	})

	reg.RegisterSummarizer("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		model := entry.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return llmopenai.New(apiKey, model)
	})
	reg.RegisterSummarizer("anthropic", func(entry config.ProviderEntry) (llm.Provider, error) {
		model := entry.Model
		if model == "" {
			model = "claude-3-5-haiku-latest"
		}
		opts := summarizerOptions(entry)
		return anyllm.NewAnthropic(model, opts...)
	})
	reg.RegisterSummarizer("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		model := entry.Model
		if model == "" {
			model = "llama3.1"
		}
		opts := summarizerOptions(entry)
		return anyllm.NewOllama(model, opts...)
	})
	reg.RegisterSummarizer("any-llm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend, _ := entry.Options["backend"].(string)
		if backend == "" {
			backend = "openai"
		}
		model := entry.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		opts := summarizerOptions(entry)
		return anyllm.New(backend, model, opts...)
	})
}

// summarizerOptions translates a ProviderEntry's generic credential fields
// into any-llm-go options. any-llm-go falls back to the provider's standard
// environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...) when no
// WithAPIKey option is given, so an empty entry is valid.
func summarizerOptions(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// ── Startup summary ──────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       callbridge — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Model", cfg.Model.Provider, cfg.Model.Model)
	printField("Embeddings", cfg.Retrieval.EmbeddingsProvider, "")
	printField("Reranker", cfg.Retrieval.RerankerProvider, "")
	printField("Summarizer", cfg.Providers.Summarizer.Name, cfg.Providers.Summarizer.Model)
	fmt.Printf("║  Businesses      : %-19d ║\n", len(cfg.Businesses))
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	if cfg.Postgres.DSN == "" {
		fmt.Println("║  Postgres        : (in-memory)       ║")
	} else {
		fmt.Println("║  Postgres        : configured        ║")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ───────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
