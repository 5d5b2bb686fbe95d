// Package app wires every call bridge subsystem into a running application.
//
// New resolves the configured providers from the registry, connects
// Postgres/Redis (or falls back to in-process stores when they are not
// configured), and assembles C2 through C10 into one object graph. Run
// blocks until the context is cancelled; Shutdown tears everything down in
// reverse order.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ivoxa/callbridge/internal/callmanager"
	"github.com/ivoxa/callbridge/internal/callstate"
	callstatepg "github.com/ivoxa/callbridge/internal/callstate/postgres"
	"github.com/ivoxa/callbridge/internal/config"
	"github.com/ivoxa/callbridge/internal/conversation"
	conversationpg "github.com/ivoxa/callbridge/internal/conversation/postgres"
	"github.com/ivoxa/callbridge/internal/escalation"
	escalationpg "github.com/ivoxa/callbridge/internal/escalation/postgres"
	"github.com/ivoxa/callbridge/internal/health"
	"github.com/ivoxa/callbridge/internal/mcp"
	"github.com/ivoxa/callbridge/internal/mcp/mcphost"
	"github.com/ivoxa/callbridge/internal/media"
	"github.com/ivoxa/callbridge/internal/observe"
	"github.com/ivoxa/callbridge/internal/resilience"
	"github.com/ivoxa/callbridge/internal/retrieval"
	retrievalpg "github.com/ivoxa/callbridge/internal/retrieval/postgres"
	"github.com/ivoxa/callbridge/internal/tools"
	"github.com/ivoxa/callbridge/pkg/provider/llm"
	"github.com/ivoxa/callbridge/pkg/realtimeapi"
	"github.com/ivoxa/callbridge/pkg/types"
)

// App owns every subsystem's lifetime and exposes the HTTP surface needed
// by cmd/bridged: the media-stream handler and the health handler.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	metrics  *observe.Metrics

	pool        *pgxpool.Pool
	redisClient *redis.Client

	convStore  *conversation.Store
	callStore  callstate.Store
	escStore   escalation.Store
	dispatcher *tools.Dispatcher
	pipeline   *retrieval.Pipeline
	coord      *escalation.Coordinator
	manager    *callmanager.Manager
	mcpHost    mcp.Host

	// Media is the HTTP handler the media-stream WebSocket route is mounted
	// on. Exported for cmd/bridged to wire into its mux.
	Media *media.Handler

	// Health reports readiness of Postgres and Redis.
	Health *health.Handler

	closers  []func() error
	stopOnce sync.Once
}

// New wires the full object graph described by SPEC_FULL.md's component
// list: C2 (media), C5 (conversation store), C6/C7 (bridge/call manager),
// C8 (call state), C9 (escalation), C10 (retrieval), plus the optional
// MCP-proxied tool path named in the domain stack.
func New(ctx context.Context, cfg *config.Config, registry *config.Registry) (*App, error) {
	a := &App{cfg: cfg, registry: registry, metrics: observe.DefaultMetrics()}

	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	modelProvider, err := a.resolveModelProvider()
	if err != nil {
		return nil, fmt.Errorf("app: resolve model provider: %w", err)
	}

	summarizer, err := a.resolveSummarizer()
	if err != nil {
		return nil, fmt.Errorf("app: resolve summarizer provider: %w", err)
	}

	if err := a.initRetrieval(summarizer); err != nil {
		return nil, fmt.Errorf("app: init retrieval: %w", err)
	}

	a.coord = escalation.New(a.escStore, summarizer, a.resolveEscalationConfig)

	a.dispatcher = tools.NewDispatcher()
	tools.RegisterBuiltins(a.dispatcher, tools.Deps{
		Knowledge:  a.pipeline,
		Escalation: a.coord,
	})

	if err := a.initMCP(ctx); err != nil {
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}

	a.manager = callmanager.New(cfg.Model, cfg.Businesses, registry, modelProvider, a.convStore, a.dispatcher, a.callStore)
	a.manager.SetEscalationCoordinator(a.coord)
	a.manager.SetExtraToolDefinitions(a.mcpToolDefinitions())

	a.Media = media.NewHandler(a.manager, cfg.Telephony.MediaQueueCapacity)
	a.Health = health.New(a.healthCheckers()...)

	return a, nil
}

// resolveEscalationConfig looks up the currently active call's escalation
// policy for the tool-initiated escalate_to_human path, which carries only
// a call_id and no business context of its own (§4.4's open question).
func (a *App) resolveEscalationConfig(callID string) config.EscalationConfig {
	if a.manager == nil {
		return config.EscalationConfig{}
	}
	call, err := a.callStore.Get(context.Background(), callID)
	if err != nil {
		return config.EscalationConfig{}
	}
	for _, b := range a.cfg.Businesses {
		if b.BusinessID == call.BusinessID {
			return b.Escalation
		}
	}
	return config.EscalationConfig{}
}

// initStorage connects Postgres and Redis when configured, falling back to
// in-process stores otherwise so the service still starts for local
// development (per the warning [config.Validate] logs for an empty DSN).
func (a *App) initStorage(ctx context.Context) error {
	if a.cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, a.cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("ping postgres: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		a.convStore = conversation.New(conversationpg.New(pool))
		a.callStore = callstatepg.New(pool)
		a.escStore = escalationpg.New(pool)
	} else {
		slog.Warn("app: postgres.dsn is empty — running with in-memory stores, state will not survive a restart")
		a.convStore = conversation.New(newMemoryLog())
		a.callStore = newMemoryCallStore()
		a.escStore = newMemoryEscalationStore()
	}

	if a.cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		a.redisClient = client
		a.closers = append(a.closers, client.Close)
	} else {
		slog.Warn("app: redis.addr is empty — retrieval caching disabled")
	}

	return nil
}

// resolveModelProvider instantiates the realtime-API session provider named
// by cfg.Model.Provider (§4.3/C3). This provider is required: without it no
// call can ever connect a model session.
func (a *App) resolveModelProvider() (realtimeapi.Provider, error) {
	if a.cfg.Model.Provider == "" {
		return nil, fmt.Errorf("model.provider is required")
	}
	return a.registry.CreateModel(config.ProviderEntry{
		Name:   a.cfg.Model.Provider,
		APIKey: a.cfg.Model.APIKey,
		Model:  a.cfg.Model.Model,
	})
}

// resolveSummarizer instantiates the escalation/query-rewrite LLM provider,
// if one is configured. A nil summarizer is valid: C9 falls back to
// deterministic truncation and C10's Rewriter falls back to passthrough.
//
// When Providers.SummarizerFallback names a second provider, it is wired
// behind the primary via [resilience.LLMFallback] so a provider outage
// degrades to the fallback backend instead of to passthrough.
func (a *App) resolveSummarizer() (llm.Provider, error) {
	name := a.cfg.Providers.Summarizer.Name
	if name == "" {
		return nil, nil
	}
	primary, err := a.registry.CreateSummarizer(a.cfg.Providers.Summarizer)
	if err != nil {
		return nil, fmt.Errorf("create summarizer %q: %w", name, err)
	}

	fallbackName := a.cfg.Providers.SummarizerFallback.Name
	if fallbackName == "" {
		return primary, nil
	}
	fallback, err := a.registry.CreateSummarizer(a.cfg.Providers.SummarizerFallback)
	if err != nil {
		return nil, fmt.Errorf("create summarizer fallback %q: %w", fallbackName, err)
	}
	chain := resilience.NewLLMFallback(primary, name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "summarizer:" + name},
	})
	chain.AddFallback(fallbackName, fallback)
	return chain, nil
}

// initRetrieval builds C10's pipeline: embeddings provider, reranker,
// pgvector-backed store, redis cache, and query rewriter sharing the
// summarizer LLM.
func (a *App) initRetrieval(summarizer llm.Provider) error {
	if a.cfg.Retrieval.EmbeddingsProvider == "" {
		return fmt.Errorf("retrieval.embeddings_provider is required")
	}
	embedder, err := a.registry.CreateEmbeddings(config.ProviderEntry{Name: a.cfg.Retrieval.EmbeddingsProvider})
	if err != nil {
		return fmt.Errorf("create embeddings provider %q: %w", a.cfg.Retrieval.EmbeddingsProvider, err)
	}

	var reranker config.Reranker
	if a.cfg.Retrieval.RerankerProvider != "" {
		reranker, err = a.registry.CreateReranker(config.ProviderEntry{Name: a.cfg.Retrieval.RerankerProvider})
		if err != nil {
			return fmt.Errorf("create reranker %q: %w", a.cfg.Retrieval.RerankerProvider, err)
		}
	}

	var store retrieval.VectorStore
	if a.pool != nil {
		store = retrievalpg.New(a.pool)
	} else {
		store = newMemoryVectorStore()
	}

	var cache *retrieval.Cache
	if a.redisClient != nil {
		cache = retrieval.NewCache(a.redisClient,
			time.Duration(a.cfg.Redis.QueryCacheTTLSeconds)*time.Second,
			time.Duration(a.cfg.Redis.EmbeddingCacheTTLSeconds)*time.Second,
		)
	} else {
		cache = retrieval.NewCache(nil, 0, 0)
	}

	rewriter := retrieval.NewRewriter(summarizer)
	a.pipeline = retrieval.New(store, embedder, reranker, rewriter, cache, a.cfg.Retrieval)
	return nil
}

// initMCP creates the MCP host and registers every configured server. A
// server that fails to register is logged and skipped rather than failing
// startup — one misbehaving operator-added tool server should not prevent
// the bridge itself from serving calls.
func (a *App) initMCP(ctx context.Context) error {
	if len(a.cfg.MCP.Servers) == 0 {
		return nil
	}
	host := mcphost.New()
	a.mcpHost = host
	a.closers = append(a.closers, host.Close)

	for _, srv := range a.cfg.MCP.Servers {
		cfg := mcp.ServerConfig{
			Name:      srv.Name,
			Transport: mcp.Transport(srv.Transport),
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}
		if err := host.RegisterServer(ctx, cfg); err != nil {
			slog.Warn("app: register mcp server failed", "name", srv.Name, "err", err)
			continue
		}
		slog.Info("app: registered mcp server", "name", srv.Name)
	}
	if err := host.Calibrate(ctx); err != nil {
		slog.Warn("app: mcp calibration failed, using declared latencies", "err", err)
	}
	return nil
}

// mcpToolDefinitions converts every MCP-hosted tool into a
// [realtimeapi.ToolDefinition] and registers a dispatcher handler that
// proxies the call through the MCP host, per §4.4's "either in-process
// handlers or a proxied MCP tool server" contract.
func (a *App) mcpToolDefinitions() []realtimeapi.ToolDefinition {
	if a.mcpHost == nil {
		return nil
	}
	available := a.mcpHost.AvailableTools(types.BudgetDeep) // deep budget surfaces every registered tool
	defs := make([]realtimeapi.ToolDefinition, 0, len(available))
	for _, t := range available {
		defs = append(defs, realtimeapi.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
		name := t.Name
		a.dispatcher.Register(name, a.mcpToolHandler(name))
	}
	return defs
}

// mcpToolHandler adapts a single MCP-hosted tool into a [tools.Handler],
// forwarding the model's already-validated JSON arguments to the host and
// surfacing an application-level error result the same way builtin
// handlers do, per the dispatcher's {"error": "..."} convention.
func (a *App) mcpToolHandler(name string) tools.Handler {
	return func(ctx context.Context, _ tools.CallContext, args json.RawMessage) (any, error) {
		result, err := a.mcpHost.ExecuteTool(ctx, name, string(args))
		if err != nil {
			return nil, fmt.Errorf("mcp tool %q: %w", name, err)
		}
		if result.IsError {
			return nil, fmt.Errorf("mcp tool %q: %s", name, result.Content)
		}
		return result.Content, nil
	}
}

func (a *App) healthCheckers() []health.Checker {
	var checkers []health.Checker
	if a.pool != nil {
		checkers = append(checkers, health.Checker{
			Name:     "postgres",
			Critical: false, // conversation/call state falls back to memory
			Check: func(ctx context.Context) error {
				return a.pool.Ping(ctx)
			},
		})
	}
	if a.redisClient != nil {
		checkers = append(checkers, health.Checker{
			Name:     "redis",
			Critical: false, // query/embedding caches simply go cold
			Check: func(ctx context.Context) error {
				return a.redisClient.Ping(ctx).Err()
			},
		})
	}
	return checkers
}

// CallManager returns the call manager (C7), the [media.CallStarter]
// cmd/bridged's /status webhook and media-stream route drive.
func (a *App) CallManager() *callmanager.Manager { return a.manager }

// Run blocks until ctx is cancelled. The bridge's real work happens per
// call, driven by HTTP requests handled outside the App; Run exists so
// cmd/bridged's lifecycle matches the teacher's New/Run/Shutdown shape.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "businesses", len(a.cfg.Businesses))
	<-ctx.Done()
	return ctx.Err()
}

// Shutdown tears down all subsystems in reverse-init order, respecting
// ctx's deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}
