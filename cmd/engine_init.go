package main

import (
	"context"
	"maps"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/member-qa/internal/cache"
	"github.com/sells-group/member-qa/internal/config"
	"github.com/sells-group/member-qa/internal/fetcher"
	"github.com/sells-group/member-qa/internal/hybrid"
	"github.com/sells-group/member-qa/internal/llm"
	"github.com/sells-group/member-qa/internal/lookup"
	"github.com/sells-group/member-qa/internal/monitoring"
	"github.com/sells-group/member-qa/internal/resolver"
	"github.com/sells-group/member-qa/internal/source"
	"github.com/sells-group/member-qa/internal/store"
	anthropicpkg "github.com/sells-group/member-qa/pkg/anthropic"
	"github.com/sells-group/member-qa/pkg/gemini"
)

// engineEnv holds the initialized cache, store and orchestrator needed by
// the ask/analyze/serve commands.
type engineEnv struct {
	Store        store.Store // may be nil
	Cache        *cache.Cache
	LLM          *llm.Engine
	Monitor      *monitoring.Collector
	Orchestrator *hybrid.Orchestrator
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEngine validates config for mode, opens the store, warms the cache and
// builds the orchestrator. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if st != nil {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}

	loader := source.NewLoader(initFetcher(cfg.Source), source.Options{
		URL:      cfg.Source.URL,
		Format:   cfg.Source.Format,
		IDKeys:   cfg.Source.IDKeys,
		NameKeys: cfg.Source.NameKeys,
	})
	c := cache.New(loader, st, cache.Options{
		FetchTimeout:  cfg.Cache.FetchTimeout(),
		KeepSnapshots: cfg.Store.KeepSnapshots,
	})
	if err := c.Warm(ctx); err != nil {
		zap.L().Warn("cache warm failed, first request will fetch", zap.Error(err))
	}

	vocab := cfg.Resolver.Vocabulary
	if cfg.Resolver.VocabularyFile != "" {
		fromFile, err := resolver.LoadVocabularyFile(cfg.Resolver.VocabularyFile)
		if err != nil {
			if st != nil {
				_ = st.Close()
			}
			return nil, err
		}
		maps.Copy(fromFile, vocab)
		vocab = fromFile
	}

	provider, err := initProvider(ctx, cfg)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}

	engine := llm.New(llm.Options{
		Provider:          provider,
		Timeout:           cfg.LLM.Timeout(),
		FailureThreshold:  cfg.LLM.FailureThreshold,
		ResetTimeout:      time.Duration(cfg.LLM.ResetTimeoutSecs) * time.Second,
		PresenceThreshold: cfg.Resolver.PresenceThreshold,
	})

	monitor := monitoring.NewCollector()
	orch := hybrid.New(hybrid.Options{
		Snapshots: c,
		Resolver: resolver.New(resolver.Options{
			Vocabulary:        vocab,
			PresenceThreshold: cfg.Resolver.PresenceThreshold,
		}),
		Lookup:        lookup.New(lookup.Options{TextFields: cfg.Lookup.TextFields}),
		LLM:           engine,
		Observer:      monitor,
		MaxAge:        cfg.Cache.MaxAge(),
		TokenBudget:   cfg.LLM.TokenBudget,
		MaxConcurrent: cfg.Batch.MaxConcurrentQuestions,
	})

	zap.L().Info("engine initialized",
		zap.String("source", cfg.Source.URL),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("llm", engine.Available()),
	)

	return &engineEnv{Store: st, Cache: c, LLM: engine, Monitor: monitor, Orchestrator: orch}, nil
}

// initStore opens the configured snapshot store. Driver "none" returns nil.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "member-qa.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

func initFetcher(sc config.SourceConfig) fetcher.Fetcher {
	timeout := time.Duration(sc.TimeoutSecs) * time.Second
	return &fetcher.SchemeRouter{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:    timeout,
			MaxRetries: sc.MaxRetries,
			UserAgent:  sc.UserAgent,
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
	}
}

// initProvider builds the LLM backend selected by llm.provider. A missing
// key is not an error: the engine runs deterministic-only.
func initProvider(ctx context.Context, c *config.Config) (llm.Provider, error) {
	key := c.LLMKey()
	if key == "" {
		zap.L().Info("no llm credential configured, answering deterministically",
			zap.String("provider", c.LLM.Provider),
		)
		return nil, nil
	}

	switch c.LLM.Provider {
	case "anthropic":
		return llm.NewAnthropicProvider(anthropicpkg.NewClient(key), c.Anthropic.Model, c.Anthropic.MaxTokens), nil
	case "gemini":
		client, err := gemini.NewClient(ctx, key)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini")
		}
		return llm.NewGeminiProvider(client, c.Gemini.Model, c.Gemini.MaxTokens), nil
	default:
		return nil, nil
	}
}
