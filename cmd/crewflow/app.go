package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/crewflow/api/handlers"
	"github.com/BaSui01/crewflow/catalog"
	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/cache"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/internal/runner"
	"github.com/BaSui01/crewflow/internal/runstore"
	"github.com/BaSui01/crewflow/internal/telemetry"
	"github.com/BaSui01/crewflow/llm"
	llmfactory "github.com/BaSui01/crewflow/llm/factory"
	"github.com/BaSui01/crewflow/llm/tokenizer"
	"github.com/BaSui01/crewflow/llm/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app 持有一次进程生命周期内的全部依赖
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	ref      llm.ModelRef
	provider llm.Provider

	registry  *prometheus.Registry
	metrics   *metrics.Collector
	store     *runstore.Store
	cache     *cache.Manager
	telemetry *telemetry.Providers
	runner    *runner.Runner
}

// appOptions 供测试替换外部依赖
type appOptions struct {
	provider llm.Provider
	scraper  tools.WebScrapeProvider
	search   tools.WebSearchProvider
	// crew 非空时作为遥测资源属性
	crew string
	// maxConcurrent 覆盖 server.max_concurrent_runs；run 命令为 0
	maxConcurrent int
	// isolateOutputs 让每次运行写入独立的输出目录（serve）
	isolateOutputs bool
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	ref, err := llm.ParseModelRef(cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("llm.model: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, ref: ref}

	a.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, opts.crew, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	a.provider = opts.provider
	if a.provider == nil {
		a.provider, err = llmfactory.NewProvider(ref, providerConfig(cfg.LLM), logger)
		if err != nil {
			return nil, err
		}
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.NewCollector("crewflow", a.registry, logger)

	if cfg.Database.Enabled {
		a.store, err = runstore.Open(cfg.Database, logger)
		if err != nil {
			logger.Warn("run store not available, run history disabled", zap.Error(err))
			a.store = nil
		}
	}

	resultCache := a.newResultCache()

	scraper := opts.scraper
	if scraper == nil {
		scraper = tools.NewHTTPScraper(cfg.Tools.ScrapeTimeout)
	}
	search := opts.search
	if search == nil {
		if cfg.Tools.SerperAPIKey == "" {
			logger.Warn("no serper api key configured, search tool calls will fail",
				zap.String("env", config.SerperAPIKeyEnv))
		}
		search = tools.NewSerperSearch(cfg.Tools.SerperAPIKey, cfg.Tools.SerperURL, cfg.Tools.SearchTimeout)
	}

	scrapeOpts := tools.DefaultWebScrapeOptions()
	if cfg.Tools.ScrapeMaxLength > 0 {
		scrapeOpts.MaxLength = cfg.Tools.ScrapeMaxLength
	}
	searchOpts := tools.DefaultWebSearchOptions()
	if cfg.Tools.SearchMaxResults > 0 {
		searchOpts.MaxResults = cfg.Tools.SearchMaxResults
	}

	ropts := runner.Options{
		Deps: catalog.Deps{
			LLM:           a.provider,
			Model:         ref.Model,
			Temperature:   float32(cfg.LLM.Temperature),
			MaxIterations: cfg.Crew.MaxIterations,
			Tokenizer:     tokenizer.ForModel(ref.Model),
			Scraper:       scraper,
			ScrapeOptions: scrapeOpts,
			Search:        search,
			SearchOptions: searchOpts,
			CacheTTL:      cfg.Tools.CacheTTL,
			Verbose:       cfg.Crew.Verbose,
			Logger:        logger,
		},
		Crew:           cfg.Crew,
		Cache:          resultCache,
		Observer:       a.metrics,
		ToolObserver:   a.metrics,
		MaxConcurrent:  opts.maxConcurrent,
		IsolateOutputs: opts.isolateOutputs,
		Logger:         logger,
	}
	// 接口中的 nil 指针不等于 nil
	if a.store != nil {
		ropts.Store = a.store
	}
	a.runner = runner.New(ropts)
	return a, nil
}

func providerConfig(c config.LLMConfig) llmfactory.ProviderConfig {
	return llmfactory.ProviderConfig{
		APIKey:       c.APIKey,
		BaseURL:      c.BaseURL,
		Timeout:      c.Timeout,
		MaxRetries:   c.MaxRetries,
		RPS:          c.RPS,
		Burst:        c.Burst,
		KeepThinking: c.KeepThinking,
	}
}

// newResultCache 按 tools.cache_backend 选择缓存；Redis 不可用时退回内存缓存
func (a *app) newResultCache() tools.ResultCache {
	tc := a.cfg.Tools
	switch strings.ToLower(tc.CacheBackend) {
	case "none":
		return nil
	case "redis":
		rc := cache.DefaultConfig()
		rc.Addr = a.cfg.Redis.Addr
		rc.Password = a.cfg.Redis.Password
		rc.DB = a.cfg.Redis.DB
		if a.cfg.Redis.KeyPrefix != "" {
			rc.KeyPrefix = a.cfg.Redis.KeyPrefix
		}
		if a.cfg.Redis.PoolSize > 0 {
			rc.PoolSize = a.cfg.Redis.PoolSize
		}
		if a.cfg.Redis.MinIdleConns > 0 {
			rc.MinIdleConns = a.cfg.Redis.MinIdleConns
		}
		if tc.CacheTTL > 0 {
			rc.DefaultTTL = tc.CacheTTL
		}
		m, err := cache.NewManager(rc, a.logger)
		if err != nil {
			a.logger.Warn("redis cache not available, falling back to memory", zap.Error(err))
			return tools.NewMemoryResultCache(tc.CacheMaxEntries)
		}
		a.cache = m
		return cache.NewRedisResultCache(m)
	default:
		return tools.NewMemoryResultCache(tc.CacheMaxEntries)
	}
}

// healthChecks 返回 /health 与 health 命令使用的检查项
func (a *app) healthChecks() []handlers.HealthCheck {
	checks := []handlers.HealthCheck{
		handlers.NewCheck("llm", func(ctx context.Context) error {
			status, err := a.provider.HealthCheck(ctx)
			if err != nil {
				return err
			}
			if !status.Healthy {
				return fmt.Errorf("%s reported unhealthy", a.provider.Name())
			}
			return nil
		}),
	}
	if a.store != nil {
		checks = append(checks, handlers.NewCheck("runstore", a.store.Ping))
	}
	if a.cache != nil {
		checks = append(checks, handlers.NewCheck("redis", a.cache.Ping))
	}
	return checks
}

// Close 释放资源，刷新遥测数据
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	errs = append(errs, a.telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}
